package handlers

import (
	"net/http"

	"crossarb/internal/models"
	"crossarb/internal/service"
)

// PairHandler отвечает за просмотр реестра пар
//
// Endpoints:
// - GET /api/v1/pairs - зарегистрированные пары (пересечение листингов)
// - GET /api/v1/pairs/abnormal - пары, исключённые по статической аномалии цен
//
// Реестр строится один раз при старте и после этого только читается,
// поэтому handler отдаёт снимок из памяти ядра
type PairHandler struct {
	statusService service.StatusServiceInterface
}

// NewPairHandler создает новый PairHandler с внедрением зависимости
func NewPairHandler(statusService service.StatusServiceInterface) *PairHandler {
	return &PairHandler{
		statusService: statusService,
	}
}

// GetPairsResponse представляет ответ списка пар
type GetPairsResponse struct {
	Pairs []models.PairMapping `json:"pairs"`
	Total int                  `json:"total"`
}

// GetPairs возвращает зарегистрированные пары
//
// GET /api/v1/pairs
//
// HTTP коды:
// - 200 OK: успешно
func (h *PairHandler) GetPairs(w http.ResponseWriter, r *http.Request) {
	pairs := h.statusService.Mappings()
	respondWithJSON(w, http.StatusOK, GetPairsResponse{
		Pairs: pairs,
		Total: len(pairs),
	})
}

// GetAbnormalPairsResponse представляет ответ списка исключённых пар
type GetAbnormalPairsResponse struct {
	Pairs []models.AbnormalPair `json:"pairs"`
	Total int                   `json:"total"`
}

// GetAbnormalPairs возвращает пары, исключённые из регистрации
//
// GET /api/v1/pairs/abnormal
//
// HTTP коды:
// - 200 OK: успешно
func (h *PairHandler) GetAbnormalPairs(w http.ResponseWriter, r *http.Request) {
	pairs := h.statusService.Abnormal()
	respondWithJSON(w, http.StatusOK, GetAbnormalPairsResponse{
		Pairs: pairs,
		Total: len(pairs),
	})
}
