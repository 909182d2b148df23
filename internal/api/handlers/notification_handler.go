package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"crossarb/internal/models"
	"crossarb/internal/service"
)

// maxNotificationLimit ограничивает размер одной выборки журнала
const maxNotificationLimit = 500

// NotificationHandler отвечает за журнал аудита
//
// Endpoints:
// - GET /api/v1/notifications - получение журнала событий
// - GET /api/v1/notifications?type=rejected - с фильтрацией по типу
// - GET /api/v1/notifications?limit=50 - с ограничением количества
// - DELETE /api/v1/notifications - очистка журнала
//
// Назначение:
// Отдаёт историю решений процесса: вердикты гейта, переходы групп,
// корректирующие и разворачивающие ордера, ошибки площадок.
// По умолчанию возвращаются последние 100 событий.
type NotificationHandler struct {
	auditService service.AuditServiceInterface
}

// NewNotificationHandler создает новый NotificationHandler с внедрением зависимости
func NewNotificationHandler(auditService service.AuditServiceInterface) *NotificationHandler {
	return &NotificationHandler{
		auditService: auditService,
	}
}

// GetNotificationsResponse представляет ответ журнала событий
type GetNotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

// GetNotifications возвращает журнал событий с фильтрацией
//
// GET /api/v1/notifications
//
// Query параметры:
// - type (string): фильтр по типу события (ADMITTED, REJECTED, TRANSITION,
//   CORRECTIVE, CANCEL, REHEDGE, UNWIND, LEG_FAIL, BAD_TICK, ERROR)
// - limit (int): количество записей (по умолчанию 100, максимум 500)
//
// HTTP коды:
// - 200 OK: успешно, возвращает массив событий
// - 500 Internal Server Error: ошибка базы
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	notifType := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("type")))

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	notifications, err := h.auditService.List(limit, notifType)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get notifications: "+err.Error())
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}

	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: notifications,
		Total:         len(notifications),
	})
}

// ClearNotifications очищает журнал событий
//
// DELETE /api/v1/notifications
//
// Удаляет все события из базы данных. Это действие необратимо.
//
// HTTP коды:
// - 200 OK: журнал успешно очищен
// - 500 Internal Server Error: ошибка при очистке
func (h *NotificationHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.auditService.Clear(); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to clear notifications: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Notifications cleared successfully",
	})
}
