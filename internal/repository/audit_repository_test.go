package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"crossarb/internal/models"
)

// ============================================================
// AuditRepository Tests
// ============================================================

func TestAuditRepositoryInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	groupID := int64(42)
	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(sqlmock.AnyArg(), models.NotificationTypeTransition, models.SeverityInfo,
			"BTC/USDT", sqlmock.AnyArg(), "PENDING -> FILLED: all legs filled", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	repo := NewAuditRepository(db)
	n := &models.Notification{
		Type:     models.NotificationTypeTransition,
		Severity: models.SeverityInfo,
		Pair:     "BTC/USDT",
		GroupID:  &groupID,
		Message:  "PENDING -> FILLED: all legs filled",
		Meta:     map[string]interface{}{"from": "PENDING", "to": "FILLED"},
	}

	if err := repo.Insert(n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID != 7 {
		t.Errorf("expected id 7, got %d", n.ID)
	}
	if n.Timestamp.IsZero() {
		t.Error("timestamp must be set on insert")
	}
}

func TestAuditRepositoryInsertWithoutMeta(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(sqlmock.AnyArg(), models.NotificationTypeRejected, models.SeverityInfo,
			"ETH/USDT", nil, "opportunity rejected: capital", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	repo := NewAuditRepository(db)
	err = repo.Insert(&models.Notification{
		Type:     models.NotificationTypeRejected,
		Severity: models.SeverityInfo,
		Pair:     "ETH/USDT",
		Message:  "opportunity rejected: capital",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func auditRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "timestamp", "type", "severity", "pair", "group_id", "message", "meta"}).
		AddRow(2, now, models.NotificationTypeTransition, models.SeverityInfo, "BTC/USDT", int64(42),
			"PENDING -> FILLED", []byte(`{"from":"PENDING","to":"FILLED"}`)).
		AddRow(1, now.Add(-time.Minute), models.NotificationTypeAdmitted, models.SeverityInfo, "BTC/USDT", nil,
			"opportunity admitted", nil)
}

func TestAuditRepositoryList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, timestamp, type, severity, pair, group_id, message, meta FROM notifications`).
		WithArgs(100).
		WillReturnRows(auditRows())

	repo := NewAuditRepository(db)
	list, err := repo.List(0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list) != 2 {
		t.Fatalf("expected 2 events, got %d", len(list))
	}

	first := list[0]
	if first.GroupID == nil || *first.GroupID != 42 {
		t.Errorf("expected group id 42, got %v", first.GroupID)
	}
	if first.Meta["to"] != "FILLED" {
		t.Errorf("meta not decoded: %v", first.Meta)
	}

	second := list[1]
	if second.GroupID != nil {
		t.Error("expected nil group id")
	}
	if second.Meta != nil {
		t.Error("expected nil meta")
	}
}

func TestAuditRepositoryListByType(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "timestamp", "type", "severity", "pair", "group_id", "message", "meta"}).
		AddRow(1, time.Now(), models.NotificationTypeRejected, models.SeverityInfo, "BTC/USDT", nil,
			"opportunity rejected: capital", nil)

	mock.ExpectQuery(`SELECT id, timestamp, type, severity, pair, group_id, message, meta FROM notifications`).
		WithArgs(models.NotificationTypeRejected, 50).
		WillReturnRows(rows)

	repo := NewAuditRepository(db)
	list, err := repo.List(50, models.NotificationTypeRejected)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].Type != models.NotificationTypeRejected {
		t.Errorf("unexpected result: %+v", list)
	}
}

func TestAuditRepositoryListByGroup(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, timestamp, type, severity, pair, group_id, message, meta FROM notifications`).
		WithArgs(int64(42)).
		WillReturnRows(auditRows())

	repo := NewAuditRepository(db)
	list, err := repo.ListByGroup(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 events, got %d", len(list))
	}
}

func TestAuditRepositoryDeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec(`DELETE FROM notifications WHERE timestamp`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 17))

	repo := NewAuditRepository(db)
	deleted, err := repo.DeleteOlderThan(cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 17 {
		t.Errorf("expected 17 deleted, got %d", deleted)
	}
}

func TestAuditRepositoryClear(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM notifications`).
		WillReturnResult(sqlmock.NewResult(0, 100))

	repo := NewAuditRepository(db)
	if err := repo.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuditRepositoryListQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, timestamp, type, severity, pair, group_id, message, meta FROM notifications`).
		WithArgs(100).
		WillReturnError(errors.New("connection refused"))

	repo := NewAuditRepository(db)
	if _, err := repo.List(0, ""); err == nil {
		t.Fatal("expected error")
	}
}
