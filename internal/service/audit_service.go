package service

import (
	"context"
	"time"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// AuditService - асинхронная запись событий аудита.
//
// Record вызывается из горячих путей (гейт, reconcile) и НЕ ждёт базу:
// событие кладётся в буфер, отдельная горутина пишет в хранилище.
// При переполнении буфера событие теряется - торговый путь важнее
// полноты журнала.
type AuditService struct {
	store  AuditStore
	logger *utils.Logger
	queue  chan *models.Notification
}

// NewAuditService создаёт сервис с буфером на queueSize событий
func NewAuditService(store AuditStore, queueSize int, logger *utils.Logger) *AuditService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if logger == nil {
		logger = utils.InitLogger(utils.LogConfig{})
	}
	return &AuditService{
		store:  store,
		logger: logger.WithComponent("audit"),
		queue:  make(chan *models.Notification, queueSize),
	}
}

// Record принимает событие аудита без блокировки
func (s *AuditService) Record(n *models.Notification) {
	select {
	case s.queue <- n:
	default:
		s.logger.Warn("audit queue full, event dropped",
			utils.String("type", n.Type),
			utils.Pair(n.Pair))
	}
}

// Run запускает писатель журнала. Блокирует до отмены контекста,
// затем дописывает накопленное в буфере.
func (s *AuditService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case n := <-s.queue:
			s.persist(n)
		}
	}
}

// drain дописывает остаток буфера при остановке
func (s *AuditService) drain() {
	for {
		select {
		case n := <-s.queue:
			s.persist(n)
		default:
			return
		}
	}
}

func (s *AuditService) persist(n *models.Notification) {
	if err := s.store.Insert(n); err != nil {
		s.logger.Error("audit insert failed",
			utils.String("type", n.Type),
			utils.Err(err))
	}
}

// List возвращает последние события с опциональным фильтром по типу
func (s *AuditService) List(limit int, notifType string) ([]*models.Notification, error) {
	return s.store.List(limit, notifType)
}

// ListByGroup возвращает историю одной группы
func (s *AuditService) ListByGroup(groupID int64) ([]*models.Notification, error) {
	return s.store.ListByGroup(groupID)
}

// Cleanup удаляет события старше retention
func (s *AuditService) Cleanup(retention time.Duration) (int64, error) {
	return s.store.DeleteOlderThan(time.Now().Add(-retention))
}

// Clear очищает журнал
func (s *AuditService) Clear() error {
	return s.store.Clear()
}
