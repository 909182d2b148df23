// Package venue предоставляет унифицированный интерфейс для работы с площадками.
package venue

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// jsoniter для горячего пути: разбор тиков из WebSocket потока
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Venue определяет унифицированный интерфейс площадки.
// Каждая реализация сама отвечает за аутентификацию, формат запросов
// и переподключение потоков.
type Venue interface {
	// Connect устанавливает соединение с площадкой
	Connect(apiKey, secret, passphrase string) error

	// Name возвращает имя площадки
	Name() string

	// ListInstruments возвращает список спотовых инструментов
	ListInstruments(ctx context.Context) ([]Instrument, error)

	// FetchQuote получает текущие best bid/ask по инструменту
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)

	// SubscribeQuotes подписывается на обновления котировок через WebSocket
	SubscribeQuotes(symbols []string, callback func(*Quote)) error

	// PlaceMarketOrder размещает рыночный ордер
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*Order, error)

	// PlaceLimitOrder размещает лимитный ордер
	PlaceLimitOrder(ctx context.Context, symbol, side string, qty, price float64) (*Order, error)

	// CancelOrder отменяет ордер
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// FetchOrderStatus получает текущее состояние ордера
	FetchOrderStatus(ctx context.Context, symbol, orderID string) (*Order, error)

	// Close закрывает соединения с площадкой
	Close() error
}

// Quote содержит лучшие цены покупки и продажи
type Quote struct {
	Venue     string    `json:"venue"`
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`  // лучшая цена покупки
	Ask       float64   `json:"ask"`  // лучшая цена продажи
	Last      float64   `json:"last"` // последняя сделка (0 если поток не отдаёт)
	Timestamp time.Time `json:"timestamp"`
}

// Instrument описывает торгуемый инструмент площадки
type Instrument struct {
	Symbol string `json:"symbol"` // нативный символ площадки (BTCUSDT, BTC-USDT)
	Base   string `json:"base"`   // базовая валюта
	Quote  string `json:"quote"`  // котируемая валюта
	Active bool   `json:"active"` // доступен ли для торговли
}

// Order представляет ордер
type Order struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"` // "buy" или "sell"
	Type         string    `json:"type"` // "market" или "limit"
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"` // 0 для рыночных
	FilledQty    float64   `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VenueError представляет ошибку от площадки
type VenueError struct {
	Venue    string
	Code     string
	Message  string
	Original error
}

func (e *VenueError) Error() string {
	return e.Venue + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *VenueError) Unwrap() error {
	return e.Original
}

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Типы ордера
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Статусы ордера
const (
	OrderStatusNew       = "new"
	OrderStatusPartial   = "partial"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
)
