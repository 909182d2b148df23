package handlers

import (
	"net/http"
	"strconv"

	"crossarb/internal/bot"
	"crossarb/internal/models"
	"crossarb/internal/service"

	"github.com/gorilla/mux"
)

// GroupHandler отвечает за просмотр групп связанных ордеров
//
// Endpoints:
// - GET /api/v1/groups - список групп процесса
// - GET /api/v1/groups?active=true - только активные (нетерминальные)
// - GET /api/v1/groups/{id} - одна группа
// - GET /api/v1/groups/{id}/audit - журнал событий группы
//
// Назначение:
// Группы живут в памяти hedge-движка; handler отдаёт их снимки
// без возможности мутации. Журнал событий читается из базы.
type GroupHandler struct {
	statusService service.StatusServiceInterface
	auditService  service.AuditServiceInterface
}

// NewGroupHandler создает новый GroupHandler с внедрением зависимостей
func NewGroupHandler(statusService service.StatusServiceInterface, auditService service.AuditServiceInterface) *GroupHandler {
	return &GroupHandler{
		statusService: statusService,
		auditService:  auditService,
	}
}

// GetGroupsResponse представляет ответ списка групп
type GetGroupsResponse struct {
	Groups []models.HedgedOrderGroup `json:"groups"`
	Total  int                       `json:"total"`
}

// GetGroups возвращает группы процесса
//
// GET /api/v1/groups
//
// Query параметры:
// - active (bool): только активные группы
//
// HTTP коды:
// - 200 OK: успешно
func (h *GroupHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	groups := h.statusService.Groups()

	if r.URL.Query().Get("active") == "true" {
		active := make([]models.HedgedOrderGroup, 0, len(groups))
		for _, g := range groups {
			if bot.IsActive(g.Status) {
				active = append(active, g)
			}
		}
		groups = active
	}

	respondWithJSON(w, http.StatusOK, GetGroupsResponse{
		Groups: groups,
		Total:  len(groups),
	})
}

// GetGroup возвращает одну группу по ID
//
// GET /api/v1/groups/{id}
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: некорректный ID
// - 404 Not Found: группа не найдена
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := groupID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}

	group, ok := h.statusService.Group(id)
	if !ok {
		respondWithError(w, http.StatusNotFound, "Group not found")
		return
	}

	respondWithJSON(w, http.StatusOK, group)
}

// GetGroupAudit возвращает журнал событий группы в хронологическом порядке
//
// GET /api/v1/groups/{id}/audit
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: некорректный ID
// - 500 Internal Server Error: ошибка базы
func (h *GroupHandler) GetGroupAudit(w http.ResponseWriter, r *http.Request) {
	id, err := groupID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}

	events, err := h.auditService.ListByGroup(id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get group audit: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"group_id": id,
		"events":   events,
		"total":    len(events),
	})
}

// groupID извлекает ID группы из path параметров
func groupID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}
