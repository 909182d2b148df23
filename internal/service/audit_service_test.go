package service

import (
	"context"
	"testing"
	"time"

	"crossarb/internal/models"
)

func TestAuditServiceRecordAndPersist(t *testing.T) {
	store := &mockAuditStore{}
	s := NewAuditService(store, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		s.Record(&models.Notification{
			Type:     models.NotificationTypeAdmitted,
			Severity: models.SeverityInfo,
			Pair:     "BTC/USDT",
			Message:  "opportunity admitted for execution",
		})
	}

	// Писатель асинхронный - ждём записи
	deadline := time.After(2 * time.Second)
	for store.count() < 5 {
		select {
		case <-deadline:
			t.Fatalf("expected 5 persisted events, got %d", store.count())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestAuditServiceDrainsOnShutdown(t *testing.T) {
	store := &mockAuditStore{}
	s := NewAuditService(store, 16, nil)

	// Буфер заполняется ДО запуска писателя
	for i := 0; i < 10; i++ {
		s.Record(&models.Notification{Type: models.NotificationTypeTransition})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // немедленная остановка

	s.Run(ctx)

	if store.count() != 10 {
		t.Errorf("expected 10 drained events, got %d", store.count())
	}
}

func TestAuditServiceRecordDoesNotBlockWhenFull(t *testing.T) {
	store := &mockAuditStore{}
	s := NewAuditService(store, 2, nil)

	// Писатель не запущен: буфер на 2 переполняется без блокировки
	for i := 0; i < 50; i++ {
		s.Record(&models.Notification{Type: models.NotificationTypeError})
	}
}

func TestAuditServiceList(t *testing.T) {
	store := &mockAuditStore{}
	s := NewAuditService(store, 16, nil)

	store.Insert(&models.Notification{Type: models.NotificationTypeAdmitted})
	store.Insert(&models.Notification{Type: models.NotificationTypeRejected})

	list, err := s.List(10, models.NotificationTypeRejected)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].Type != models.NotificationTypeRejected {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestAuditServiceCleanup(t *testing.T) {
	store := &mockAuditStore{}
	s := NewAuditService(store, 16, nil)

	old := &models.Notification{Type: models.NotificationTypeError, Timestamp: time.Now().Add(-48 * time.Hour)}
	fresh := &models.Notification{Type: models.NotificationTypeError, Timestamp: time.Now()}
	store.Insert(old)
	store.Insert(fresh)

	deleted, err := s.Cleanup(24 * time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 remaining, got %d", store.count())
	}
}
