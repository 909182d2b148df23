package service

import (
	"time"

	"crossarb/internal/models"
)

// AuditStore - персистентный журнал событий аудита
type AuditStore interface {
	Insert(n *models.Notification) error
	List(limit int, notifType string) ([]*models.Notification, error)
	ListByGroup(groupID int64) ([]*models.Notification, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
	Clear() error
}

// PairStore - персистентный реестр пар
type PairStore interface {
	ReplaceAll(mappings []models.PairMapping) error
	GetAll() ([]*models.PairMapping, error)
	SaveAbnormal(ab *models.AbnormalPair) error
	GetAbnormal() ([]*models.AbnormalPair, error)
}

// StatusServiceInterface - срез состояния ядра для API handlers
type StatusServiceInterface interface {
	Status() Status
	Groups() []models.HedgedOrderGroup
	Group(id int64) (models.HedgedOrderGroup, bool)
	Mappings() []models.PairMapping
	Abnormal() []models.AbnormalPair
}

// AuditServiceInterface - журнал аудита для API handlers
type AuditServiceInterface interface {
	List(limit int, notifType string) ([]*models.Notification, error)
	ListByGroup(groupID int64) ([]*models.Notification, error)
	Clear() error
}
