package bot

import (
	"testing"

	"crossarb/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to partially filled", models.GroupPending, models.GroupPartiallyFilled, true},
		{"pending to filled", models.GroupPending, models.GroupFilled, true},
		{"pending to imbalanced", models.GroupPending, models.GroupImbalanced, true},
		{"pending to canceling", models.GroupPending, models.GroupCanceling, true},
		{"pending to failed", models.GroupPending, models.GroupFailed, true},
		{"partial to filled", models.GroupPartiallyFilled, models.GroupFilled, true},
		{"imbalanced back to partial", models.GroupImbalanced, models.GroupPartiallyFilled, true},
		{"canceling to canceled", models.GroupCanceling, models.GroupCanceled, true},
		{"canceling to failed", models.GroupCanceling, models.GroupFailed, true},
		{"canceling to filled via rehedge", models.GroupCanceling, models.GroupFilled, true},

		{"pending to canceled skips canceling", models.GroupPending, models.GroupCanceled, false},
		{"filled is terminal", models.GroupFilled, models.GroupPending, false},
		{"canceled is terminal", models.GroupCanceled, models.GroupCanceling, false},
		{"failed is terminal", models.GroupFailed, models.GroupPending, false},
		{"unknown status", "GARBAGE", models.GroupFilled, false},
		{"self transition", models.GroupPending, models.GroupPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{models.GroupFilled, models.GroupCanceled, models.GroupFailed}
	active := []string{models.GroupPending, models.GroupPartiallyFilled, models.GroupImbalanced, models.GroupCanceling}

	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("%s must be terminal", s)
		}
		if IsActive(s) {
			t.Errorf("%s must not be active", s)
		}
	}
	for _, s := range active {
		if IsTerminal(s) {
			t.Errorf("%s must not be terminal", s)
		}
		if !IsActive(s) {
			t.Errorf("%s must be active", s)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for status, allowed := range ValidTransitions {
		if IsTerminal(status) && len(allowed) > 0 {
			t.Errorf("terminal status %s has outgoing transitions: %v", status, allowed)
		}
	}
}
