package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"crossarb/internal/models"
)

// Ошибки репозитория пар
var (
	ErrPairNotFound = errors.New("pair not found")
	ErrPairExists   = errors.New("pair already exists")
)

// PairRepository - работа с таблицами pair_mappings и abnormal_pairs
type PairRepository struct {
	db *sql.DB
}

// NewPairRepository создает новый экземпляр репозитория
func NewPairRepository(db *sql.DB) *PairRepository {
	return &PairRepository{db: db}
}

// Create сохраняет маппинг пары
func (r *PairRepository) Create(mapping *models.PairMapping) error {
	query := `
		INSERT INTO pair_mappings (base, quote, symbol_a, symbol_b, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		query,
		mapping.Key.Base,
		mapping.Key.Quote,
		mapping.SymbolA,
		mapping.SymbolB,
		mapping.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrPairExists
		}
		return err
	}

	return nil
}

// GetByKey возвращает маппинг по ключу пары
func (r *PairRepository) GetByKey(key models.PairKey) (*models.PairMapping, error) {
	query := `
		SELECT base, quote, symbol_a, symbol_b, created_at
		FROM pair_mappings
		WHERE base = $1 AND quote = $2`

	mapping := &models.PairMapping{}
	err := r.db.QueryRow(query, key.Base, key.Quote).Scan(
		&mapping.Key.Base,
		&mapping.Key.Quote,
		&mapping.SymbolA,
		&mapping.SymbolB,
		&mapping.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPairNotFound
		}
		return nil, err
	}

	return mapping, nil
}

// GetAll возвращает все маппинги
func (r *PairRepository) GetAll() ([]*models.PairMapping, error) {
	query := `
		SELECT base, quote, symbol_a, symbol_b, created_at
		FROM pair_mappings
		ORDER BY base, quote`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*models.PairMapping
	for rows.Next() {
		mapping := &models.PairMapping{}
		err := rows.Scan(
			&mapping.Key.Base,
			&mapping.Key.Quote,
			&mapping.SymbolA,
			&mapping.SymbolB,
			&mapping.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return mappings, nil
}

// ReplaceAll атомарно замещает реестр: старые маппинги удаляются,
// новые вставляются в одной транзакции
func (r *PairRepository) ReplaceAll(mappings []models.PairMapping) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM pair_mappings`); err != nil {
		return err
	}

	query := `
		INSERT INTO pair_mappings (base, quote, symbol_a, symbol_b, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	for i := range mappings {
		m := &mappings[i]
		if _, err := tx.Exec(query, m.Key.Base, m.Key.Quote, m.SymbolA, m.SymbolB, m.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveAbnormal сохраняет пару, исключённую как аномальную
func (r *PairRepository) SaveAbnormal(ab *models.AbnormalPair) error {
	query := `
		INSERT INTO abnormal_pairs (base, quote, symbol_a, symbol_b, price_a, price_b, spread_ratio, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(
		query,
		ab.Mapping.Key.Base,
		ab.Mapping.Key.Quote,
		ab.Mapping.SymbolA,
		ab.Mapping.SymbolB,
		ab.PriceA,
		ab.PriceB,
		ab.SpreadRatio,
		time.Now(),
	)
	return err
}

// GetAbnormal возвращает все зафиксированные аномальные пары
func (r *PairRepository) GetAbnormal() ([]*models.AbnormalPair, error) {
	query := `
		SELECT base, quote, symbol_a, symbol_b, price_a, price_b, spread_ratio
		FROM abnormal_pairs
		ORDER BY spread_ratio DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.AbnormalPair
	for rows.Next() {
		ab := &models.AbnormalPair{}
		err := rows.Scan(
			&ab.Mapping.Key.Base,
			&ab.Mapping.Key.Quote,
			&ab.Mapping.SymbolA,
			&ab.Mapping.SymbolB,
			&ab.PriceA,
			&ab.PriceB,
			&ab.SpreadRatio,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, ab)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Delete удаляет маппинг пары
func (r *PairRepository) Delete(key models.PairKey) error {
	result, err := r.db.Exec(`DELETE FROM pair_mappings WHERE base = $1 AND quote = $2`, key.Base, key.Quote)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPairNotFound
	}

	return nil
}

// isUniqueViolation проверяет ошибку нарушения уникальности PostgreSQL
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
