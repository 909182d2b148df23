package bot

import (
	"testing"
	"time"

	"crossarb/internal/config"
	"crossarb/internal/models"
	"crossarb/internal/venue"
)

func newTestEngine(t *testing.T) (*Engine, *mockVenue, *mockVenue) {
	t.Helper()

	binance := newMockVenue("binance")
	okx := newMockVenue("okx")

	cfg := &config.Config{
		Venues: config.VenuesConfig{VenueA: "binance", VenueB: "okx"},
		Strategy: config.StrategyConfig{
			MaxAmount:        1000,
			MaxAmountPerPair: 600,
			MinAmountPerPair: 100,
			TradeAmount:      600,
			MinSpread:        0.003,
			MaxSpread:        0.05,
			OccurrenceWindow: 10 * time.Second,
			MinOccurrences:   1,
		},
		Engine: config.EngineConfig{
			ReconcileInterval:  50 * time.Millisecond,
			LegTimeout:         30 * time.Second,
			OrderTimeout:       time.Second,
			ImbalanceTolerance: 0.05,
			TimeoutPolicy:      config.TimeoutPolicyUnwind,
			MaxCorrectiveFails: 3,
			QueueSize:          16,
			NumShards:          4,
		},
	}

	r := NewRegistry(binance, okx, 0.05, nil, nil)
	r.mappings[testKey] = models.PairMapping{Key: testKey, SymbolA: "BTCUSDT", SymbolB: "BTC-USDT"}
	r.bySymbolA["BTCUSDT"] = testKey
	r.bySymbolB["BTC-USDT"] = testKey

	return NewEngine(cfg, binance, okx, r, &mockAuditor{}, nil), binance, okx
}

func TestProcessEventSubmitsSignal(t *testing.T) {
	e, _, _ := newTestEngine(t)
	filters := make(map[models.PairKey]*OccurrenceFilter)
	now := time.Now()

	// Одна сторона - оценивать нечего
	e.processEvent(quoteEvent{key: testKey, role: VenueRoleA, bid: 100.0, ask: 100.1, ts: now}, filters)
	if len(e.gate.queue) != 0 {
		t.Fatal("one-sided pair must not produce a signal")
	}

	// Вторая сторона даёт спред ~0.5% - сигнал уходит в гейт
	e.processEvent(quoteEvent{key: testKey, role: VenueRoleB, bid: 100.6, ask: 100.7, ts: now}, filters)
	if len(e.gate.queue) != 1 {
		t.Fatalf("expected 1 signal in gate queue, got %d", len(e.gate.queue))
	}

	r := <-e.gate.queue
	if r.Direction != models.DirectionBuyASellB {
		t.Errorf("expected BUY_A_SELL_B, got %s", r.Direction)
	}
	if !almostEqual(r.BuyPrice, 100.1) || !almostEqual(r.SellPrice, 100.6) {
		t.Errorf("unexpected prices: buy %f sell %f", r.BuyPrice, r.SellPrice)
	}
}

func TestProcessEventSuppressesBadTick(t *testing.T) {
	e, _, _ := newTestEngine(t)
	filters := make(map[models.PairKey]*OccurrenceFilter)
	now := time.Now()

	e.processEvent(quoteEvent{key: testKey, role: VenueRoleA, bid: 100.0, ask: 100.1, ts: now}, filters)
	// Спред 106/100.1 - 1 ≈ 5.9% выше санитарной границы 5%
	e.processEvent(quoteEvent{key: testKey, role: VenueRoleB, bid: 106.0, ask: 106.1, ts: now}, filters)

	if len(e.gate.queue) != 0 {
		t.Error("bad tick must not reach the gate")
	}
}

func TestProcessEventBelowThreshold(t *testing.T) {
	e, _, _ := newTestEngine(t)
	filters := make(map[models.PairKey]*OccurrenceFilter)
	now := time.Now()

	e.processEvent(quoteEvent{key: testKey, role: VenueRoleA, bid: 100.0, ask: 100.1, ts: now}, filters)
	// Спред ~0.1% ниже порога 0.3%
	e.processEvent(quoteEvent{key: testKey, role: VenueRoleB, bid: 100.2, ask: 100.3, ts: now}, filters)

	if len(e.gate.queue) != 0 {
		t.Error("sub-threshold spread must not reach the gate")
	}
}

func TestProcessEventOccurrenceFilter(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.cfg.Strategy.MinOccurrences = 3
	filters := make(map[models.PairKey]*OccurrenceFilter)
	now := time.Now()

	e.processEvent(quoteEvent{key: testKey, role: VenueRoleA, bid: 100.0, ask: 100.1, ts: now}, filters)

	for i := 0; i < 2; i++ {
		ts := now.Add(time.Duration(i) * time.Second)
		e.processEvent(quoteEvent{key: testKey, role: VenueRoleB, bid: 100.6, ask: 100.7, ts: ts}, filters)
	}
	if len(e.gate.queue) != 0 {
		t.Fatal("signal must wait for required occurrences")
	}

	e.processEvent(quoteEvent{key: testKey, role: VenueRoleB, bid: 100.6, ask: 100.7, ts: now.Add(3 * time.Second)}, filters)
	if len(e.gate.queue) != 1 {
		t.Errorf("expected signal after 3 occurrences, got %d queued", len(e.gate.queue))
	}
}

func TestRouteDropsUnknownSymbol(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.route(VenueRoleA, &venue.Quote{Symbol: "UNKNOWN", Bid: 1, Ask: 2, Timestamp: time.Now()})

	for i, ch := range e.shardChans {
		if len(ch) != 0 {
			t.Errorf("shard %d received event for unknown symbol", i)
		}
	}
}

func TestRouteDeliversToPairShard(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.route(VenueRoleA, &venue.Quote{Symbol: "BTCUSDT", Bid: 100, Ask: 100.1, Timestamp: time.Now()})

	idx := e.store.GetShardIndex(testKey)
	if len(e.shardChans[idx]) != 1 {
		t.Fatalf("expected event in shard %d", idx)
	}

	ev := <-e.shardChans[idx]
	if ev.key != testKey || ev.role != VenueRoleA {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestRouteDropsOnFullShard(t *testing.T) {
	e, _, _ := newTestEngine(t)

	// Воркеры не запущены: канал шарда переполняется и события
	// отбрасываются без блокировки
	for i := 0; i < 100; i++ {
		e.route(VenueRoleA, &venue.Quote{Symbol: "BTCUSDT", Bid: 100, Ask: 100.1, Timestamp: time.Now()})
	}

	idx := e.store.GetShardIndex(testKey)
	if len(e.shardChans[idx]) != cap(e.shardChans[idx]) {
		t.Errorf("shard channel should be full, got %d/%d", len(e.shardChans[idx]), cap(e.shardChans[idx]))
	}
}

func TestSubscribeRegistersCallbacks(t *testing.T) {
	e, binance, okx := newTestEngine(t)

	if err := e.subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Тик с площадки попадает в канал шарда пары
	binance.push(&venue.Quote{Venue: "binance", Symbol: "BTCUSDT", Bid: 100, Ask: 100.1, Timestamp: time.Now()})
	okx.push(&venue.Quote{Venue: "okx", Symbol: "BTC-USDT", Bid: 100.6, Ask: 100.7, Timestamp: time.Now()})

	idx := e.store.GetShardIndex(testKey)
	if len(e.shardChans[idx]) != 2 {
		t.Errorf("expected 2 events in pair shard, got %d", len(e.shardChans[idx]))
	}
}
