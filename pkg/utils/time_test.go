package utils

import (
	"testing"
	"time"
)

func TestGetDayStartFrom(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			name:     "midday",
			input:    time.Date(2024, 1, 15, 14, 30, 45, 123, time.UTC),
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "already midnight",
			input:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "non-UTC zone normalized",
			input:    time.Date(2024, 1, 15, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)),
			expected: time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetDayStartFrom(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("GetDayStartFrom(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestGetDayEndFrom(t *testing.T) {
	input := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)
	expected := time.Date(2024, 1, 15, 23, 59, 59, 999999999, time.UTC)

	result := GetDayEndFrom(input)
	if !result.Equal(expected) {
		t.Errorf("GetDayEndFrom(%v) = %v, want %v", input, result, expected)
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 1, 15, 0, 0, 1, 0, time.UTC)
	b := time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC)
	c := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	if !SameDay(a, b) {
		t.Error("expected a and b to be the same day")
	}
	if SameDay(b, c) {
		t.Error("expected b and c to be different days")
	}
}

func TestGetDayStart_Today(t *testing.T) {
	start := GetDayStart()
	now := time.Now().UTC()

	if start.After(now) {
		t.Error("day start is in the future")
	}
	if now.Sub(start) >= 24*time.Hour {
		t.Error("day start is more than 24h ago")
	}
}
