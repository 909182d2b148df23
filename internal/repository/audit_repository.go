package repository

import (
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"

	"crossarb/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AuditRepository - журнал событий аудита в таблице notifications.
// Meta сериализуется в JSON-колонку.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository создает новый экземпляр репозитория
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert записывает событие аудита
func (r *AuditRepository) Insert(n *models.Notification) error {
	query := `
		INSERT INTO notifications (timestamp, type, severity, pair, group_id, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	var meta interface{}
	if n.Meta != nil {
		b, err := json.Marshal(n.Meta)
		if err != nil {
			return err
		}
		meta = b
	}

	return r.db.QueryRow(
		query,
		n.Timestamp,
		n.Type,
		n.Severity,
		n.Pair,
		n.GroupID,
		n.Message,
		meta,
	).Scan(&n.ID)
}

// List возвращает последние события, опционально фильтруя по типу.
// limit <= 0 означает значение по умолчанию.
func (r *AuditRepository) List(limit int, notifType string) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error

	if notifType != "" {
		query := `
			SELECT id, timestamp, type, severity, pair, group_id, message, meta
			FROM notifications
			WHERE type = $1
			ORDER BY timestamp DESC
			LIMIT $2`
		rows, err = r.db.Query(query, notifType, limit)
	} else {
		query := `
			SELECT id, timestamp, type, severity, pair, group_id, message, meta
			FROM notifications
			ORDER BY timestamp DESC
			LIMIT $1`
		rows, err = r.db.Query(query, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var pair sql.NullString
		var groupID sql.NullInt64
		var meta []byte

		err := rows.Scan(&n.ID, &n.Timestamp, &n.Type, &n.Severity, &pair, &groupID, &n.Message, &meta)
		if err != nil {
			return nil, err
		}

		if pair.Valid {
			n.Pair = pair.String
		}
		if groupID.Valid {
			id := groupID.Int64
			n.GroupID = &id
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Meta); err != nil {
				return nil, err
			}
		}

		result = append(result, n)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ListByGroup возвращает события одной группы в хронологическом порядке
func (r *AuditRepository) ListByGroup(groupID int64) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, pair, group_id, message, meta
		FROM notifications
		WHERE group_id = $1
		ORDER BY timestamp ASC`

	rows, err := r.db.Query(query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var pair sql.NullString
		var gid sql.NullInt64
		var meta []byte

		err := rows.Scan(&n.ID, &n.Timestamp, &n.Type, &n.Severity, &pair, &gid, &n.Message, &meta)
		if err != nil {
			return nil, err
		}

		if pair.Valid {
			n.Pair = pair.String
		}
		if gid.Valid {
			id := gid.Int64
			n.GroupID = &id
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Meta); err != nil {
				return nil, err
			}
		}

		result = append(result, n)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteOlderThan удаляет события старше отметки, возвращает количество
func (r *AuditRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Clear очищает журнал
func (r *AuditRepository) Clear() error {
	_, err := r.db.Exec(`DELETE FROM notifications`)
	return err
}
