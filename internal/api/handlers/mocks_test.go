package handlers

import (
	"errors"
	"time"

	"crossarb/internal/models"
	"crossarb/internal/service"
)

// ErrMockDatabase имитирует ошибку базы данных
var ErrMockDatabase = errors.New("mock database error")

// ============ MockStatusService ============

// MockStatusService - состояние ядра в памяти для тестов handlers
type MockStatusService struct {
	status   service.Status
	groups   []models.HedgedOrderGroup
	mappings []models.PairMapping
	abnormal []models.AbnormalPair
}

func NewMockStatusService() *MockStatusService {
	return &MockStatusService{
		status: service.Status{
			Uptime:    "1m0s",
			VenueA:    "binance",
			VenueB:    "okx",
			MinSpread: 0.003,
			MaxSpread: 0.05,
		},
	}
}

func (m *MockStatusService) Status() service.Status { return m.status }

func (m *MockStatusService) Groups() []models.HedgedOrderGroup { return m.groups }

func (m *MockStatusService) Group(id int64) (models.HedgedOrderGroup, bool) {
	for _, g := range m.groups {
		if g.ID == id {
			return g, true
		}
	}
	return models.HedgedOrderGroup{}, false
}

func (m *MockStatusService) Mappings() []models.PairMapping { return m.mappings }

func (m *MockStatusService) Abnormal() []models.AbnormalPair { return m.abnormal }

// AddGroup добавляет группу с заданным статусом
func (m *MockStatusService) AddGroup(id int64, status string) {
	m.groups = append(m.groups, models.HedgedOrderGroup{
		ID:        id,
		Key:       models.PairKey{Base: "BTC", Quote: "USDT"},
		Direction: models.DirectionBuyASellB,
		Notional:  600,
		Status:    status,
		CreatedAt: time.Now(),
	})
}

// AddMapping регистрирует пару в снимке реестра
func (m *MockStatusService) AddMapping(base, quote, symbolA, symbolB string) {
	m.mappings = append(m.mappings, models.PairMapping{
		Key:     models.PairKey{Base: base, Quote: quote},
		SymbolA: symbolA,
		SymbolB: symbolB,
	})
}

// ============ MockAuditService ============

// MockAuditService - журнал аудита в памяти для тестов handlers
type MockAuditService struct {
	notifications []*models.Notification
	errors        map[string]error
}

func NewMockAuditService() *MockAuditService {
	return &MockAuditService{
		errors: make(map[string]error),
	}
}

// SetError настраивает ошибку для операции: "list", "clear"
func (m *MockAuditService) SetError(op string, err error) {
	m.errors[op] = err
}

// AddNotification добавляет событие в журнал
func (m *MockAuditService) AddNotification(notifType, severity, message string) {
	m.notifications = append(m.notifications, &models.Notification{
		ID:        len(m.notifications) + 1,
		Timestamp: time.Now(),
		Type:      notifType,
		Severity:  severity,
		Message:   message,
	})
}

// AddGroupEvent добавляет событие, привязанное к группе
func (m *MockAuditService) AddGroupEvent(groupID int64, notifType, message string) {
	id := groupID
	m.notifications = append(m.notifications, &models.Notification{
		ID:        len(m.notifications) + 1,
		Timestamp: time.Now(),
		Type:      notifType,
		Severity:  models.SeverityInfo,
		GroupID:   &id,
		Message:   message,
	})
}

func (m *MockAuditService) List(limit int, notifType string) ([]*models.Notification, error) {
	if err := m.errors["list"]; err != nil {
		return nil, err
	}
	var out []*models.Notification
	for _, n := range m.notifications {
		if notifType == "" || n.Type == notifType {
			out = append(out, n)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockAuditService) ListByGroup(groupID int64) ([]*models.Notification, error) {
	if err := m.errors["list"]; err != nil {
		return nil, err
	}
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.GroupID != nil && *n.GroupID == groupID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *MockAuditService) Clear() error {
	if err := m.errors["clear"]; err != nil {
		return err
	}
	m.notifications = nil
	return nil
}

// Count возвращает размер журнала
func (m *MockAuditService) Count() int {
	return len(m.notifications)
}
