package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crossarb/internal/models"
	"crossarb/internal/venue"
	"crossarb/pkg/retry"
	"crossarb/pkg/utils"
)

// Registry - реестр торгуемых пар.
//
// Пара попадает в реестр, если активный инструмент с теми же base/quote
// есть на ОБЕИХ площадках. Пары с аномальным расхождением цен (разные
// активы под одним тикером) исключаются при построении.
//
// После Build реестр только читается, поэтому RLock хватает всем.
type Registry struct {
	venueA venue.Venue
	venueB venue.Venue

	// Порог статического расхождения цен для исключения пары
	abnormalThreshold float64

	logger  *utils.Logger
	auditor Auditor

	mu       sync.RWMutex
	mappings map[models.PairKey]models.PairMapping
	abnormal []models.AbnormalPair

	// Обратный поиск: символ площадки → ключ пары
	bySymbolA map[string]models.PairKey
	bySymbolB map[string]models.PairKey
}

// NewRegistry создаёт пустой реестр
func NewRegistry(venueA, venueB venue.Venue, abnormalThreshold float64, auditor Auditor, logger *utils.Logger) *Registry {
	if logger == nil {
		logger = utils.InitLogger(utils.LogConfig{})
	}
	return &Registry{
		venueA:            venueA,
		venueB:            venueB,
		abnormalThreshold: abnormalThreshold,
		logger:            logger.WithComponent("registry"),
		auditor:           auditor,
		mappings:          make(map[models.PairKey]models.PairMapping),
		bySymbolA:         make(map[string]models.PairKey),
		bySymbolB:         make(map[string]models.PairKey),
	}
}

// Build запрашивает листинги обеих площадок, пересекает их по (base, quote)
// и отсеивает аномальные пары
func (r *Registry) Build(ctx context.Context) error {
	instrumentsA, err := r.listInstruments(ctx, r.venueA)
	if err != nil {
		return fmt.Errorf("list %s instruments: %w", r.venueA.Name(), err)
	}
	instrumentsB, err := r.listInstruments(ctx, r.venueB)
	if err != nil {
		return fmt.Errorf("list %s instruments: %w", r.venueB.Name(), err)
	}

	byKeyA := make(map[models.PairKey]venue.Instrument, len(instrumentsA))
	for _, inst := range instrumentsA {
		if !inst.Active {
			continue
		}
		byKeyA[models.PairKey{Base: inst.Base, Quote: inst.Quote}] = inst
	}

	mappings := make(map[models.PairKey]models.PairMapping)
	bySymbolA := make(map[string]models.PairKey)
	bySymbolB := make(map[string]models.PairKey)
	var abnormal []models.AbnormalPair

	now := time.Now()
	for _, instB := range instrumentsB {
		if !instB.Active {
			continue
		}
		key := models.PairKey{Base: instB.Base, Quote: instB.Quote}
		instA, ok := byKeyA[key]
		if !ok {
			continue
		}

		mapping := models.PairMapping{
			Key:       key,
			SymbolA:   instA.Symbol,
			SymbolB:   instB.Symbol,
			CreatedAt: now,
		}

		if ab, isAbnormal := r.checkAbnormal(ctx, mapping); isAbnormal {
			abnormal = append(abnormal, ab)
			continue
		}

		mappings[key] = mapping
		bySymbolA[instA.Symbol] = key
		bySymbolB[instB.Symbol] = key
	}

	r.mu.Lock()
	r.mappings = mappings
	r.bySymbolA = bySymbolA
	r.bySymbolB = bySymbolB
	r.abnormal = abnormal
	r.mu.Unlock()

	RegisteredPairs.Set(float64(len(mappings)))
	AbnormalPairs.Set(float64(len(abnormal)))

	r.logger.Info("registry built",
		utils.Int("pairs", len(mappings)),
		utils.Int("abnormal", len(abnormal)))

	return nil
}

// listInstruments запрашивает листинг с консервативными ретраями:
// построение реестра не чувствительно к латентности
func (r *Registry) listInstruments(ctx context.Context, v venue.Venue) ([]venue.Instrument, error) {
	return retry.DoWithResult(ctx, func() ([]venue.Instrument, error) {
		return v.ListInstruments(ctx)
	}, retry.ConservativeConfig())
}

// checkAbnormal сравнивает текущие цены пары на обеих площадках.
// Расхождение сверх порога означает, что под одним тикером торгуются
// разные активы - такую пару арбитражить нельзя.
func (r *Registry) checkAbnormal(ctx context.Context, mapping models.PairMapping) (models.AbnormalPair, bool) {
	quoteA, errA := r.venueA.FetchQuote(ctx, mapping.SymbolA)
	quoteB, errB := r.venueB.FetchQuote(ctx, mapping.SymbolB)
	if errA != nil || errB != nil {
		// Цену не получили - пару не исключаем, решит поток котировок
		return models.AbnormalPair{}, false
	}

	priceA, priceB := quoteA.Last, quoteB.Last
	if priceA <= 0 || priceB <= 0 {
		return models.AbnormalPair{}, false
	}

	ratio := utils.StaticDeviation(priceA, priceB)
	if ratio <= r.abnormalThreshold {
		return models.AbnormalPair{}, false
	}

	r.logger.Warn("abnormal pair excluded",
		utils.Pair(mapping.Key.String()),
		utils.Float64("price_a", priceA),
		utils.Float64("price_b", priceB),
		utils.Float64("ratio", ratio))

	if r.auditor != nil {
		r.auditor.Record(&models.Notification{
			Timestamp: time.Now(),
			Type:      models.NotificationTypeBadTick,
			Severity:  models.SeverityWarn,
			Pair:      mapping.Key.String(),
			Message:   fmt.Sprintf("pair excluded: price deviation %.2f%% between venues", ratio*100),
			Meta: map[string]interface{}{
				"price_a": priceA,
				"price_b": priceB,
				"ratio":   ratio,
			},
		})
	}

	return models.AbnormalPair{
		Mapping:     mapping,
		PriceA:      priceA,
		PriceB:      priceB,
		SpreadRatio: ratio,
	}, true
}

// SymbolFor возвращает нативный символ площадки по роли
func (r *Registry) SymbolFor(key models.PairKey, role int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mapping, ok := r.mappings[key]
	if !ok {
		return "", false
	}
	if role == VenueRoleA {
		return mapping.SymbolA, true
	}
	return mapping.SymbolB, true
}

// KeyForSymbol возвращает ключ пары по символу площадки
func (r *Registry) KeyForSymbol(role int, symbol string) (models.PairKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if role == VenueRoleA {
		key, ok := r.bySymbolA[symbol]
		return key, ok
	}
	key, ok := r.bySymbolB[symbol]
	return key, ok
}

// Lookup возвращает маппинг пары
func (r *Registry) Lookup(key models.PairKey) (models.PairMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mapping, ok := r.mappings[key]
	return mapping, ok
}

// Mappings возвращает копию всех маппингов
func (r *Registry) Mappings() []models.PairMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.PairMapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		out = append(out, m)
	}
	return out
}

// Abnormal возвращает пары, исключённые при построении
func (r *Registry) Abnormal() []models.AbnormalPair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.AbnormalPair, len(r.abnormal))
	copy(out, r.abnormal)
	return out
}

// Count возвращает размер реестра
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mappings)
}

// Symbols возвращает списки символов для подписки на котировки
func (r *Registry) Symbols() (symbolsA, symbolsB []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbolsA = make([]string, 0, len(r.mappings))
	symbolsB = make([]string, 0, len(r.mappings))
	for _, m := range r.mappings {
		symbolsA = append(symbolsA, m.SymbolA)
		symbolsB = append(symbolsB, m.SymbolB)
	}
	return symbolsA, symbolsB
}
