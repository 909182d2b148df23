package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crossarb/internal/models"
	"crossarb/internal/venue"
)

// ============================================================
// Моки площадки и аудита для тестов пакета
// ============================================================

// mockVenue - управляемая площадка: ошибки, доли исполнения и статусы
// ордеров задаются тестом
type mockVenue struct {
	name string

	mu     sync.Mutex
	nextID int
	orders map[string]*venue.Order

	instruments []venue.Instrument
	quotes      map[string]*venue.Quote

	// Доля объёма, исполняемая сразу при выставлении лимитного ордера
	limitFillRatio float64
	// Цена исполнения рыночных ордеров
	marketPrice float64

	placeErr  error
	cancelErr error
	fetchErr  error

	// Отмена висит до закрытия канала (nil = без задержки)
	cancelBlock chan struct{}

	marketOrders []*venue.Order
	limitOrders  []*venue.Order
	canceled     []string

	callback func(*venue.Quote)
}

func newMockVenue(name string) *mockVenue {
	return &mockVenue{
		name:        name,
		orders:      make(map[string]*venue.Order),
		quotes:      make(map[string]*venue.Quote),
		marketPrice: 100.0,
	}
}

func (m *mockVenue) Connect(apiKey, secret, passphrase string) error { return nil }
func (m *mockVenue) Name() string                                    { return m.name }
func (m *mockVenue) Close() error                                    { return nil }

func (m *mockVenue) ListInstruments(ctx context.Context) ([]venue.Instrument, error) {
	return m.instruments, nil
}

func (m *mockVenue) FetchQuote(ctx context.Context, symbol string) (*venue.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

func (m *mockVenue) SubscribeQuotes(symbols []string, callback func(*venue.Quote)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = callback
	return nil
}

// push эмулирует приход тика по подписке
func (m *mockVenue) push(q *venue.Quote) {
	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb(q)
	}
}

func (m *mockVenue) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*venue.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.placeErr != nil {
		return nil, m.placeErr
	}

	order := m.newOrderLocked(symbol, side, venue.OrderTypeMarket, qty, m.marketPrice)
	order.FilledQty = qty
	order.AvgFillPrice = m.marketPrice
	order.Status = venue.OrderStatusFilled

	m.marketOrders = append(m.marketOrders, order)
	return order, nil
}

func (m *mockVenue) PlaceLimitOrder(ctx context.Context, symbol, side string, qty, price float64) (*venue.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.placeErr != nil {
		return nil, m.placeErr
	}

	order := m.newOrderLocked(symbol, side, venue.OrderTypeLimit, qty, price)
	order.FilledQty = qty * m.limitFillRatio
	order.AvgFillPrice = price
	switch {
	case order.FilledQty >= qty:
		order.Status = venue.OrderStatusFilled
	case order.FilledQty > 0:
		order.Status = venue.OrderStatusPartial
	default:
		order.Status = venue.OrderStatusNew
	}

	m.limitOrders = append(m.limitOrders, order)
	return order, nil
}

func (m *mockVenue) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	block := m.cancelBlock
	m.mu.Unlock()
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelErr != nil {
		return m.cancelErr
	}

	m.canceled = append(m.canceled, orderID)
	if order, ok := m.orders[orderID]; ok {
		order.Status = venue.OrderStatusCancelled
	}
	return nil
}

func (m *mockVenue) FetchOrderStatus(ctx context.Context, symbol, orderID string) (*venue.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	order, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	cp := *order
	return &cp, nil
}

// setOrder позволяет тесту подменить состояние ордера на "площадке"
func (m *mockVenue) setOrder(orderID string, filled, avgPrice float64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[orderID]; ok {
		order.FilledQty = filled
		order.AvgFillPrice = avgPrice
		order.Status = status
	}
}

func (m *mockVenue) marketOrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marketOrders)
}

func (m *mockVenue) lastMarketOrder() *venue.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.marketOrders) == 0 {
		return nil
	}
	return m.marketOrders[len(m.marketOrders)-1]
}

func (m *mockVenue) newOrderLocked(symbol, side, orderType string, qty, price float64) *venue.Order {
	m.nextID++
	now := time.Now()
	order := &venue.Order{
		ID:        fmt.Sprintf("%s-%d", m.name, m.nextID),
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Quantity:  qty,
		Price:     price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.orders[order.ID] = order
	return order
}

// mockAuditor накапливает события аудита
type mockAuditor struct {
	mu     sync.Mutex
	events []*models.Notification
}

func (a *mockAuditor) Record(n *models.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, n)
}

func (a *mockAuditor) lastByType(t string) *models.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.events) - 1; i >= 0; i-- {
		if a.events[i].Type == t {
			return a.events[i]
		}
	}
	return nil
}

func (a *mockAuditor) countByType(t string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for _, e := range a.events {
		if e.Type == t {
			count++
		}
	}
	return count
}

// mockExecutor - управляемый исполнитель для тестов гейта
type mockExecutor struct {
	mu       sync.Mutex
	active   map[models.PairKey]bool
	executed []AdmittedOpportunity
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{active: make(map[models.PairKey]bool)}
}

func (m *mockExecutor) HasActiveGroup(key models.PairKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[key]
}

func (m *mockExecutor) Execute(opp AdmittedOpportunity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, opp)
}

func (m *mockExecutor) executedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executed)
}

// staticResolver - резолвер символов на фиксированной карте
type staticResolver struct {
	symbolsA map[models.PairKey]string
	symbolsB map[models.PairKey]string
}

func (r *staticResolver) SymbolFor(key models.PairKey, role int) (string, bool) {
	if role == VenueRoleA {
		s, ok := r.symbolsA[key]
		return s, ok
	}
	s, ok := r.symbolsB[key]
	return s, ok
}
