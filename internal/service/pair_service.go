package service

import (
	"fmt"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// PairService - персистентный срез реестра пар.
// Реестр живёт в памяти ядра; сервис сохраняет результат построения
// в базу для API и анализа между перезапусками.
type PairService struct {
	store  PairStore
	logger *utils.Logger
}

// NewPairService создает сервис пар
func NewPairService(store PairStore, logger *utils.Logger) *PairService {
	if logger == nil {
		logger = utils.InitLogger(utils.LogConfig{})
	}
	return &PairService{
		store:  store,
		logger: logger.WithComponent("pairs"),
	}
}

// SyncRegistry сохраняет построенный реестр: маппинги замещаются
// целиком, аномальные пары дописываются в журнал
func (s *PairService) SyncRegistry(mappings []models.PairMapping, abnormal []models.AbnormalPair) error {
	if err := s.store.ReplaceAll(mappings); err != nil {
		return fmt.Errorf("replace mappings: %w", err)
	}

	for i := range abnormal {
		if err := s.store.SaveAbnormal(&abnormal[i]); err != nil {
			// Аномальная запись не критична, реестр уже сохранён
			s.logger.Warn("abnormal pair save failed",
				utils.Pair(abnormal[i].Mapping.Key.String()),
				utils.Err(err))
		}
	}

	s.logger.Info("registry persisted",
		utils.Int("pairs", len(mappings)),
		utils.Int("abnormal", len(abnormal)))

	return nil
}

// List возвращает сохранённые маппинги
func (s *PairService) List() ([]*models.PairMapping, error) {
	return s.store.GetAll()
}

// ListAbnormal возвращает зафиксированные аномальные пары
func (s *PairService) ListAbnormal() ([]*models.AbnormalPair, error) {
	return s.store.GetAbnormal()
}
