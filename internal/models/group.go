package models

import "time"

// Статусы группы (state machine в internal/bot/state_machine.go)
const (
	GroupPending         = "PENDING"          // ноги отправлены, исполнения нет
	GroupPartiallyFilled = "PARTIALLY_FILLED" // есть исполнение, не все ноги закрыты
	GroupImbalanced      = "IMBALANCED"       // ноги разошлись сверх допуска
	GroupFilled          = "FILLED"           // все ноги исполнены полностью
	GroupCanceling       = "CANCELING"        // отменяем остаток по таймауту
	GroupCanceled        = "CANCELED"         // остаток отменён
	GroupFailed          = "FAILED"           // отказ площадки, требуется вмешательство
)

// Статусы ноги
const (
	LegPending         = "PENDING"
	LegPartiallyFilled = "PARTIALLY_FILLED"
	LegFilled          = "FILLED"
	LegCanceled        = "CANCELED"
	LegRejected        = "REJECTED"
)

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Направление арбитража
const (
	DirectionBuyASellB = "BUY_A_SELL_B" // покупаем на A, продаём на B
	DirectionBuyBSellA = "BUY_B_SELL_A" // покупаем на B, продаём на A
)

// OrderLeg - одна нога группы: один ордер на одной площадке.
// Нога принадлежит ровно одной группе и не разделяется между группами.
type OrderLeg struct {
	Venue           string  `json:"venue"`
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"` // buy, sell
	RequestedQty    float64 `json:"requested_qty"`
	FilledQty       float64 `json:"filled_qty"`
	AvgFillPrice    float64 `json:"avg_fill_price"`
	ExternalOrderID string  `json:"external_order_id"`
	Status          string  `json:"status"`
	Hedge           bool    `json:"hedge"` // контрактная нога хеджа (swap short)
}

// Remaining возвращает неисполненный остаток ноги
func (l *OrderLeg) Remaining() float64 {
	rem := l.RequestedQty - l.FilledQty
	if rem < 0 {
		return 0
	}
	return rem
}

// IsOpen - нога ещё может получить исполнение
func (l *OrderLeg) IsOpen() bool {
	return l.Status == LegPending || l.Status == LegPartiallyFilled
}

// HedgedOrderGroup - группа связанных ордеров одного арбитража.
// 2 ноги (спот на A + спот на B) или 3 (плюс контрактный шорт на хедж-площадке).
// С момента создания и до терминального статуса принадлежит исключительно
// hedge-движку: никто другой её не мутирует.
type HedgedOrderGroup struct {
	ID        int64      `json:"id"` // сквозной serial, уникален в рамках процесса
	Key       PairKey    `json:"pair_key"`
	Direction string     `json:"direction"`
	Legs      []OrderLeg `json:"legs"`
	Notional  float64    `json:"notional"` // зарезервированный капитал, USDT
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Счётчик неудачных корректирующих/замещающих действий.
	// После превышения лимита группа помечается FAILED.
	CorrectiveFailures int `json:"corrective_failures,omitempty"`
}

// BuyLeg возвращает спотовую ногу покупки (nil если не найдена)
func (g *HedgedOrderGroup) BuyLeg() *OrderLeg {
	for i := range g.Legs {
		if g.Legs[i].Side == SideBuy && !g.Legs[i].Hedge {
			return &g.Legs[i]
		}
	}
	return nil
}

// SellLeg возвращает спотовую ногу продажи (nil если не найдена)
func (g *HedgedOrderGroup) SellLeg() *OrderLeg {
	for i := range g.Legs {
		if g.Legs[i].Side == SideSell && !g.Legs[i].Hedge {
			return &g.Legs[i]
		}
	}
	return nil
}
