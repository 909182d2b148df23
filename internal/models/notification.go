package models

import "time"

// Notification - событие аудита: решение гейта, переход группы,
// корректирующее действие. По этим записям восстанавливается полная
// история принятия решений.
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	Pair      string                 `json:"pair,omitempty" db:"pair"`
	GroupID   *int64                 `json:"group_id,omitempty" db:"group_id"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // JSON в БД
}

// Типы событий
const (
	NotificationTypeAdmitted   = "ADMITTED"    // возможность допущена к исполнению
	NotificationTypeRejected   = "REJECTED"    // возможность отклонена (с причиной)
	NotificationTypeTransition = "TRANSITION"  // переход статуса группы
	NotificationTypeCorrective = "CORRECTIVE"  // корректирующий ордер при расхождении ног
	NotificationTypeCancel     = "CANCEL"      // отмена ноги по таймауту
	NotificationTypeRehedge    = "REHEDGE"     // перевыставление остатка новой группой
	NotificationTypeUnwind     = "UNWIND"      // разворот исполненного объёма
	NotificationTypeLegFail    = "LEG_FAIL"    // отказ площадки по ноге
	NotificationTypeBadTick    = "BAD_TICK"    // спред выше санитарной границы
	NotificationTypeError      = "ERROR"       // ошибка API/ордера
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
