package service

import (
	"errors"
	"sync"
	"time"

	"crossarb/internal/models"
)

// mockAuditStore - хранилище журнала в памяти
type mockAuditStore struct {
	mu        sync.Mutex
	inserted  []*models.Notification
	insertErr error
	cleared   bool
}

func (m *mockAuditStore) Insert(n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	n.ID = len(m.inserted) + 1
	m.inserted = append(m.inserted, n)
	return nil
}

func (m *mockAuditStore) List(limit int, notifType string) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.inserted {
		if notifType == "" || n.Type == notifType {
			out = append(out, n)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockAuditStore) ListByGroup(groupID int64) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.inserted {
		if n.GroupID != nil && *n.GroupID == groupID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockAuditStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*models.Notification
	var deleted int64
	for _, n := range m.inserted {
		if n.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.inserted = kept
	return deleted, nil
}

func (m *mockAuditStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = nil
	m.cleared = true
	return nil
}

func (m *mockAuditStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

// mockPairStore - хранилище реестра в памяти
type mockPairStore struct {
	mu         sync.Mutex
	mappings   []models.PairMapping
	abnormal   []*models.AbnormalPair
	replaceErr error
}

var errStoreDown = errors.New("store down")

func (m *mockPairStore) ReplaceAll(mappings []models.PairMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.mappings = mappings
	return nil
}

func (m *mockPairStore) GetAll() ([]*models.PairMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.PairMapping, len(m.mappings))
	for i := range m.mappings {
		out[i] = &m.mappings[i]
	}
	return out, nil
}

func (m *mockPairStore) SaveAbnormal(ab *models.AbnormalPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abnormal = append(m.abnormal, ab)
	return nil
}

func (m *mockPairStore) GetAbnormal() ([]*models.AbnormalPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abnormal, nil
}
