package handlers

import (
	"net/http"

	"crossarb/internal/service"
)

// StatusHandler отвечает за состояние процесса
//
// Endpoints:
// - GET /api/v1/status - снимок состояния: аптайм, площадки, пары, группы, капитал
type StatusHandler struct {
	statusService service.StatusServiceInterface
}

// NewStatusHandler создает новый StatusHandler с внедрением зависимости
func NewStatusHandler(statusService service.StatusServiceInterface) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
	}
}

// GetStatus возвращает текущий снимок состояния процесса
//
// GET /api/v1/status
//
// HTTP коды:
// - 200 OK: успешно
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.statusService.Status())
}
