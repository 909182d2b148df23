package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crossarb/internal/models"

	"github.com/gorilla/mux"
)

// groupRouter регистрирует handler в mux, чтобы path параметры парсились как в бою
func groupRouter(h *GroupHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/groups", h.GetGroups).Methods("GET")
	r.HandleFunc("/api/v1/groups/{id}", h.GetGroup).Methods("GET")
	r.HandleFunc("/api/v1/groups/{id}/audit", h.GetGroupAudit).Methods("GET")
	return r
}

// ============ GroupHandler Tests ============

func TestGroupHandler_GetGroups(t *testing.T) {
	t.Run("returns all groups", func(t *testing.T) {
		mockStatus := NewMockStatusService()
		handler := NewGroupHandler(mockStatus, NewMockAuditService())

		mockStatus.AddGroup(1, models.GroupFilled)
		mockStatus.AddGroup(2, models.GroupPending)
		mockStatus.AddGroup(3, models.GroupFailed)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil)
		w := httptest.NewRecorder()

		groupRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response GetGroupsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response.Total != 3 {
			t.Errorf("expected total 3, got %d", response.Total)
		}
	})

	t.Run("filters active groups", func(t *testing.T) {
		mockStatus := NewMockStatusService()
		handler := NewGroupHandler(mockStatus, NewMockAuditService())

		mockStatus.AddGroup(1, models.GroupFilled)
		mockStatus.AddGroup(2, models.GroupPending)
		mockStatus.AddGroup(3, models.GroupImbalanced)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/groups?active=true", nil)
		w := httptest.NewRecorder()

		groupRouter(handler).ServeHTTP(w, req)

		var response GetGroupsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response.Total != 2 {
			t.Errorf("expected 2 active groups, got %d", response.Total)
		}
		for _, g := range response.Groups {
			if g.Status == models.GroupFilled {
				t.Error("terminal group in active filter")
			}
		}
	})
}

func TestGroupHandler_GetGroup(t *testing.T) {
	t.Run("returns group by id", func(t *testing.T) {
		mockStatus := NewMockStatusService()
		handler := NewGroupHandler(mockStatus, NewMockAuditService())

		mockStatus.AddGroup(42, models.GroupPartiallyFilled)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/42", nil)
		w := httptest.NewRecorder()

		groupRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var group models.HedgedOrderGroup
		if err := json.NewDecoder(w.Body).Decode(&group); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if group.ID != 42 {
			t.Errorf("expected group 42, got %d", group.ID)
		}
		if group.Status != models.GroupPartiallyFilled {
			t.Errorf("unexpected status: %s", group.Status)
		}
	})

	t.Run("returns 404 for unknown group", func(t *testing.T) {
		handler := NewGroupHandler(NewMockStatusService(), NewMockAuditService())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/999", nil)
		w := httptest.NewRecorder()

		groupRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("returns 400 for invalid id", func(t *testing.T) {
		handler := NewGroupHandler(NewMockStatusService(), NewMockAuditService())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/abc", nil)
		w := httptest.NewRecorder()

		groupRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestGroupHandler_GetGroupAudit(t *testing.T) {
	t.Run("returns events for group", func(t *testing.T) {
		mockStatus := NewMockStatusService()
		mockAudit := NewMockAuditService()
		handler := NewGroupHandler(mockStatus, mockAudit)

		mockAudit.AddGroupEvent(7, models.NotificationTypeTransition, "PENDING -> PARTIALLY_FILLED")
		mockAudit.AddGroupEvent(7, models.NotificationTypeTransition, "PARTIALLY_FILLED -> FILLED")
		mockAudit.AddGroupEvent(8, models.NotificationTypeUnwind, "other group")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/7/audit", nil)
		w := httptest.NewRecorder()

		groupRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response struct {
			GroupID int64                  `json:"group_id"`
			Events  []*models.Notification `json:"events"`
			Total   int                    `json:"total"`
		}
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response.Total != 2 {
			t.Errorf("expected 2 events, got %d", response.Total)
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		mockAudit := NewMockAuditService()
		mockAudit.SetError("list", ErrMockDatabase)
		handler := NewGroupHandler(NewMockStatusService(), mockAudit)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/7/audit", nil)
		w := httptest.NewRecorder()

		groupRouter(handler).ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}
