package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crossarb/internal/config"
	"crossarb/internal/models"
	"crossarb/internal/venue"
	"crossarb/pkg/utils"
)

// quoteEvent - событие обновления котировки для воркера шарда.
// Передаётся по значению: аллокаций на горячем пути нет.
type quoteEvent struct {
	key  models.PairKey
	role int
	bid  float64
	ask  float64
	ts   time.Time
}

// Engine - ядро: поток котировок → хранилище → оценка спреда → гейт.
//
// Конвейер:
//
//	WS callback → роутинг по hash(pair) → канал шарда → воркер шарда
//	воркер: Update → Evaluate → Classify → OccurrenceFilter → Gate.Submit
//
// У каждого шарда РОВНО ОДИН воркер: обновления одной пары
// обрабатываются строго в порядке прихода, без гонок за фильтр.
// Переполненный канал шарда не блокирует WS-чтение: событие
// отбрасывается со счётчиком, следующий тик принесёт свежую цену.
type Engine struct {
	cfg      *config.Config
	venueA   venue.Venue
	venueB   venue.Venue
	registry *Registry

	store     *QuoteStore
	evaluator *Evaluator
	gate      *Gate
	hedge     *HedgeEngine

	shardChans []chan quoteEvent

	logger  *utils.Logger
	auditor Auditor

	wg      sync.WaitGroup
	started time.Time
}

// NewEngine собирает ядро из подключённых площадок и построенного реестра
func NewEngine(
	cfg *config.Config,
	venueA, venueB venue.Venue,
	registry *Registry,
	auditor Auditor,
	logger *utils.Logger,
) *Engine {
	if logger == nil {
		logger = utils.InitLogger(utils.LogConfig{})
	}

	store := NewQuoteStore(cfg.Engine.NumShards)

	venues := map[string]venue.Venue{
		cfg.Venues.VenueA: venueA,
		cfg.Venues.VenueB: venueB,
	}
	if cfg.Venues.HedgeVenue != "" {
		if _, ok := venues[cfg.Venues.HedgeVenue]; !ok {
			// Хедж-площадка совпадает с одной из торговых или отсутствует
			// в карте - контрактные ноги пойдут через того же клиента
			if cfg.Venues.HedgeVenue == cfg.Venues.VenueB {
				venues[cfg.Venues.HedgeVenue] = venueB
			} else {
				venues[cfg.Venues.HedgeVenue] = venueA
			}
		}
	}

	hedge := NewHedgeEngine(venues, registry, cfg.Engine, cfg.Venues, auditor, logger)
	gate := NewGate(cfg.Strategy, cfg.Engine.QueueSize, hedge, auditor, logger)
	hedge.SetGate(gate)

	shardChans := make([]chan quoteEvent, store.NumShards())
	for i := range shardChans {
		shardChans[i] = make(chan quoteEvent, cfg.Engine.QueueSize)
	}

	return &Engine{
		cfg:        cfg,
		venueA:     venueA,
		venueB:     venueB,
		registry:   registry,
		store:      store,
		evaluator:  NewEvaluator(cfg.Strategy.MinSpread, cfg.Strategy.MaxSpread),
		gate:       gate,
		hedge:      hedge,
		shardChans: shardChans,
		logger:     logger.WithComponent("engine"),
		auditor:    auditor,
	}
}

// Run запускает воркеры, гейт, reconcile-цикл и подписки на котировки.
// Блокирует до отмены контекста, затем дожидается остановки горутин.
func (e *Engine) Run(ctx context.Context) error {
	e.started = time.Now()

	for i := range e.shardChans {
		e.wg.Add(1)
		go e.shardWorker(ctx, i)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.gate.Run(ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.hedge.Run(ctx)
	}()

	if err := e.subscribe(); err != nil {
		return fmt.Errorf("subscribe quotes: %w", err)
	}

	e.logger.Info("engine started",
		utils.Int("shards", e.store.NumShards()),
		utils.Int("pairs", e.registry.Count()))

	<-ctx.Done()
	e.wg.Wait()

	e.logger.Info("engine stopped")
	return nil
}

// subscribe подписывает обе площадки на котировки всех пар реестра
func (e *Engine) subscribe() error {
	symbolsA, symbolsB := e.registry.Symbols()

	err := e.venueA.SubscribeQuotes(symbolsA, func(q *venue.Quote) {
		e.route(VenueRoleA, q)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", e.cfg.Venues.VenueA, err)
	}
	UpdateVenueStatus(e.cfg.Venues.VenueA, true)

	err = e.venueB.SubscribeQuotes(symbolsB, func(q *venue.Quote) {
		e.route(VenueRoleB, q)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", e.cfg.Venues.VenueB, err)
	}
	UpdateVenueStatus(e.cfg.Venues.VenueB, true)

	return nil
}

// route направляет обновление котировки в канал шарда пары.
// Вызывается из горутины чтения WS - НЕ БЛОКИРУЕТ.
func (e *Engine) route(role int, q *venue.Quote) {
	key, ok := e.registry.KeyForSymbol(role, q.Symbol)
	if !ok {
		return // символ вне реестра
	}

	ev := quoteEvent{
		key:  key,
		role: role,
		bid:  q.Bid,
		ask:  q.Ask,
		ts:   q.Timestamp,
	}

	select {
	case e.shardChans[e.store.GetShardIndex(key)] <- ev:
	default:
		RecordBufferOverflow("quote_shard")
	}
}

// shardWorker обрабатывает события своего шарда.
// Фильтры повторяемости живут в локальной карте воркера: кроме него
// их никто не трогает, блокировки не нужны.
func (e *Engine) shardWorker(ctx context.Context, idx int) {
	defer e.wg.Done()

	filters := make(map[models.PairKey]*OccurrenceFilter)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.shardChans[idx]:
			e.processEvent(ev, filters)
		}
	}
}

// processEvent выполняет один шаг конвейера для события котировки
func (e *Engine) processEvent(ev quoteEvent, filters map[models.PairKey]*OccurrenceFilter) {
	start := time.Now()

	snap, ok := e.store.Update(ev.key, ev.role, ev.bid, ev.ask, ev.ts)

	venueName := e.cfg.Venues.VenueA
	if ev.role == VenueRoleB {
		venueName = e.cfg.Venues.VenueB
	}
	RecordQuoteUpdate(venueName, float64(time.Since(start).Microseconds())/1000.0)

	if !ok {
		return // битая котировка или вторая сторона ещё не получена
	}

	result := e.evaluator.Evaluate(snap)
	RecordSpread(result.Key.String(), result.Spread)

	filter, ok := filters[ev.key]
	if !ok {
		filter = NewOccurrenceFilter(
			e.cfg.Strategy.OccurrenceWindow,
			e.cfg.Strategy.MinOccurrences,
			e.cfg.Strategy.ConsecutiveRequired,
		)
		filters[ev.key] = filter
	}

	switch e.evaluator.Classify(result) {
	case VerdictBadTick:
		// Спред выше санитарной границы - это не возможность,
		// а рассинхрон или битые данные. Подавляем и сбрасываем серию.
		RecordBadTick(result.Key.String())
		filter.Observe(result.Timestamp, false)

		e.logger.Debug("bad tick suppressed",
			utils.Pair(result.Key.String()),
			utils.Spread(result.Spread))

	case VerdictSignal:
		if filter.Observe(result.Timestamp, true) {
			e.gate.Submit(result)
		}

	default:
		filter.Observe(result.Timestamp, false)
	}
}

// ============ Доступ для API ============

// Gate возвращает гейт (для API статуса)
func (e *Engine) Gate() *Gate {
	return e.gate
}

// Hedge возвращает hedge-движок (для API групп)
func (e *Engine) Hedge() *HedgeEngine {
	return e.hedge
}

// Store возвращает хранилище котировок
func (e *Engine) Store() *QuoteStore {
	return e.store
}

// Uptime возвращает время работы ядра
func (e *Engine) Uptime() time.Duration {
	if e.started.IsZero() {
		return 0
	}
	return time.Since(e.started)
}
