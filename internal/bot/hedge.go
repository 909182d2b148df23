package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"crossarb/internal/config"
	"crossarb/internal/models"
	"crossarb/internal/venue"
	"crossarb/pkg/retry"
	"crossarb/pkg/utils"
)

// Шаг округления объёма по умолчанию
const defaultLotSize = 1e-6

// orderRetry - политика повторов критичных ордеров.
// Постоянные ошибки (отклонение площадкой) не повторяются.
func orderRetry() retry.Config {
	cfg := retry.AggressiveConfig()
	cfg.RetryIf = retry.IsRetryable
	return cfg
}

// SymbolResolver отдаёт нативный символ площадки для пары
type SymbolResolver interface {
	SymbolFor(key models.PairKey, role int) (string, bool)
}

// legResult - ответ площадки по одной отправленной ноге
type legResult struct {
	index int
	order *venue.Order
	err   error
}

// HedgeEngine - исполнитель хеджированных групп.
//
// Жизненный цикл группы:
//  1. Execute: ноги отправляются ПАРАЛЛЕЛЬНО на обе площадки
//     (общее время = max(latency_A, latency_B), а не сумма)
//  2. reconcile-цикл каждые ReconcileInterval сверяет исполнение ног
//     с площадками и двигает статус по state machine
//  3. Терминальный статус снимает резерв капитала и слот пары в гейте
//
// Сверка идёт в ОДНОЙ горутине: корректирующие действия внутри прохода
// синхронны, поэтому повторный проход никогда не дублирует ордер.
// Мьютекс держится только на чтении и применении состояния; вызовы
// площадок идут вне его, чтобы гейт и API не ждали сеть.
type HedgeEngine struct {
	venues   map[string]venue.Venue
	resolver SymbolResolver
	cfg      config.EngineConfig
	venueCfg config.VenuesConfig
	gate     *Gate
	auditor  Auditor
	logger   *utils.Logger

	mu           sync.RWMutex
	groups       map[int64]*models.HedgedOrderGroup
	activeByPair map[models.PairKey]int64

	nextID  atomic.Int64
	lotSize float64
}

// NewHedgeEngine создаёт движок. Гейт подключается позже через SetGate:
// гейт и движок ссылаются друг на друга.
func NewHedgeEngine(
	venues map[string]venue.Venue,
	resolver SymbolResolver,
	cfg config.EngineConfig,
	venueCfg config.VenuesConfig,
	auditor Auditor,
	logger *utils.Logger,
) *HedgeEngine {
	if logger == nil {
		logger = utils.InitLogger(utils.LogConfig{})
	}
	return &HedgeEngine{
		venues:       venues,
		resolver:     resolver,
		cfg:          cfg,
		venueCfg:     venueCfg,
		auditor:      auditor,
		logger:       logger.WithComponent("hedge"),
		groups:       make(map[int64]*models.HedgedOrderGroup),
		activeByPair: make(map[models.PairKey]int64),
		lotSize:      defaultLotSize,
	}
}

// SetGate подключает гейт для снятия резервов и учёта результата
func (h *HedgeEngine) SetGate(g *Gate) {
	h.gate = g
}

// HasActiveGroup сообщает, есть ли у пары незавершённая группа
func (h *HedgeEngine) HasActiveGroup(key models.PairKey) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.activeByPair[key]
	return ok
}

// Execute создаёт группу и отправляет ноги. Вызывается гейтом,
// не блокирует его: вся работа в отдельной горутине.
func (h *HedgeEngine) Execute(opp AdmittedOpportunity) {
	go h.execute(opp)
}

func (h *HedgeEngine) execute(opp AdmittedOpportunity) {
	group, err := h.buildGroup(opp)
	if err != nil {
		h.logger.Error("group build failed",
			utils.Pair(opp.Result.Key.String()),
			utils.Err(err))
		h.gate.Release(opp.Result.Key)
		return
	}

	h.mu.Lock()
	h.groups[group.ID] = group
	h.activeByPair[group.Key] = group.ID
	h.mu.Unlock()

	GroupsTotal.Inc()
	ActiveGroups.Inc()

	h.logger.Info("group created",
		utils.GroupID(group.ID),
		utils.Pair(group.Key.String()),
		utils.String("direction", group.Direction),
		utils.Notional(group.Notional),
		utils.Int("legs", len(group.Legs)))

	h.submitLegs(group, opp.Result)
}

// buildGroup собирает группу: 2 спотовые ноги, плюс контрактный шорт
// на хедж-площадке если она настроена
func (h *HedgeEngine) buildGroup(opp AdmittedOpportunity) (*models.HedgedOrderGroup, error) {
	r := opp.Result

	symA, okA := h.resolver.SymbolFor(r.Key, VenueRoleA)
	symB, okB := h.resolver.SymbolFor(r.Key, VenueRoleB)
	if !okA || !okB {
		return nil, fmt.Errorf("pair %s not in registry", r.Key.String())
	}

	qty := utils.RoundToLotSize(opp.Notional/r.BuyPrice, h.lotSize)
	if qty <= 0 {
		return nil, fmt.Errorf("notional %.2f too small at price %.8f", opp.Notional, r.BuyPrice)
	}

	var buyVenue, sellVenue, buySymbol, sellSymbol string
	if r.Direction == models.DirectionBuyASellB {
		buyVenue, buySymbol = h.venueCfg.VenueA, symA
		sellVenue, sellSymbol = h.venueCfg.VenueB, symB
	} else {
		buyVenue, buySymbol = h.venueCfg.VenueB, symB
		sellVenue, sellSymbol = h.venueCfg.VenueA, symA
	}

	now := time.Now()
	group := &models.HedgedOrderGroup{
		ID:        h.nextID.Add(1),
		Key:       r.Key,
		Direction: r.Direction,
		Notional:  opp.Notional,
		Status:    models.GroupPending,
		CreatedAt: now,
		UpdatedAt: now,
		Legs: []models.OrderLeg{
			{
				Venue:        buyVenue,
				Symbol:       buySymbol,
				Side:         models.SideBuy,
				RequestedQty: qty,
				Status:       models.LegPending,
			},
			{
				Venue:        sellVenue,
				Symbol:       sellSymbol,
				Side:         models.SideSell,
				RequestedQty: qty,
				Status:       models.LegPending,
			},
		},
	}

	// Контрактный шорт страхует купленный спотовый объём на время
	// жизни группы. Символ свопа в нотации OKX: BASE-QUOTE-SWAP.
	if h.venueCfg.HedgeVenue != "" {
		group.Legs = append(group.Legs, models.OrderLeg{
			Venue:        h.venueCfg.HedgeVenue,
			Symbol:       r.Key.Base + "-" + r.Key.Quote + "-SWAP",
			Side:         models.SideSell,
			RequestedQty: qty,
			Status:       models.LegPending,
			Hedge:        true,
		})
	}

	return group, nil
}

// submitLegs отправляет все ноги группы параллельно.
// Спотовые ноги - лимитные по ценам оценки, хедж-нога - рыночная.
func (h *HedgeEngine) submitLegs(group *models.HedgedOrderGroup, r SpreadResult) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.OrderTimeout)
	defer cancel()

	results := make(chan legResult, len(group.Legs))

	for i := range group.Legs {
		leg := group.Legs[i]
		v, ok := h.venues[leg.Venue]
		if !ok {
			results <- legResult{index: i, err: fmt.Errorf("venue %s not connected", leg.Venue)}
			continue
		}

		price := r.BuyPrice
		if leg.Side == models.SideSell {
			price = r.SellPrice
		}
		go func(i int, leg models.OrderLeg, price float64) {
			start := time.Now()
			var order *venue.Order
			var err error
			if leg.Hedge {
				order, err = v.PlaceMarketOrder(ctx, leg.Symbol, leg.Side, leg.RequestedQty)
			} else {
				order, err = v.PlaceLimitOrder(ctx, leg.Symbol, leg.Side, leg.RequestedQty, price)
			}
			OrderExecutionLatency.WithLabelValues(leg.Venue, leg.Side).
				Observe(float64(time.Since(start).Milliseconds()))
			results <- legResult{index: i, order: order, err: err}
		}(i, leg, price)
	}

	// Ждём все ноги: порядок прихода не важен. Каждый вызов площадки
	// ограничен ctx, поэтому ожидание конечно. Ответы не отбрасываются:
	// пришедший позже других ID ордера всё равно попадает в ногу,
	// иначе живой ордер остался бы невидимым для сверки.
	received := make([]legResult, 0, len(group.Legs))
	for len(received) < cap(results) {
		res := <-results
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			h.logger.Warn("leg submission timed out",
				utils.GroupID(group.ID),
				utils.Pair(group.Key.String()))
		}
		received = append(received, res)
	}

	h.applySubmitResults(group, received)
}

// applySubmitResults фиксирует ответы площадок по отправленным ногам
func (h *HedgeEngine) applySubmitResults(group *models.HedgedOrderGroup, results []legResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, res := range results {
		leg := &group.Legs[res.index]

		if res.err != nil {
			leg.Status = models.LegRejected
			h.logger.Error("leg rejected",
				utils.GroupID(group.ID),
				utils.Venue(leg.Venue),
				utils.Symbol(leg.Symbol),
				utils.Err(res.err))
			h.audit(&models.Notification{
				Timestamp: time.Now(),
				Type:      models.NotificationTypeLegFail,
				Severity:  models.SeverityError,
				Pair:      group.Key.String(),
				GroupID:   &group.ID,
				Message:   fmt.Sprintf("%s %s leg rejected: %v", leg.Venue, leg.Side, res.err),
			})
			continue
		}

		leg.ExternalOrderID = res.order.ID
		leg.FilledQty = res.order.FilledQty
		leg.AvgFillPrice = res.order.AvgFillPrice
		leg.Status = mapOrderStatus(res.order.Status)
	}

	group.UpdatedAt = time.Now()
}

// mapOrderStatus переводит статус ордера площадки в статус ноги
func mapOrderStatus(s string) string {
	switch s {
	case venue.OrderStatusFilled:
		return models.LegFilled
	case venue.OrderStatusPartial:
		return models.LegPartiallyFilled
	case venue.OrderStatusCancelled:
		return models.LegCanceled
	case venue.OrderStatusRejected:
		return models.LegRejected
	default:
		return models.LegPending
	}
}

// ============================================================
// Reconcile-цикл
// ============================================================

// Run запускает периодическую сверку. Блокирует до отмены контекста.
func (h *HedgeEngine) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.ReconcileInterval)
	defer ticker.Stop()

	h.logger.Info("reconcile loop started",
		utils.String("interval", h.cfg.ReconcileInterval.String()))

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.logger.Info("reconcile loop stopped")
			return
		case <-ticker.C:
			h.reconcileAll(ctx)
		}
	}
}

// shutdown отменяет открытые ноги активных групп при остановке процесса.
// Контекст процесса уже отменён, отмены идут со свежим таймаутом.
// Исполненный объём не разворачивается: группа останется в журнале,
// и оператор решает её судьбу вручную.
func (h *HedgeEngine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range h.activeByPair {
		group, ok := h.groups[id]
		if !ok {
			continue
		}

		for i := range group.Legs {
			leg := &group.Legs[i]
			if !leg.IsOpen() || leg.ExternalOrderID == "" {
				continue
			}

			v, ok := h.venues[leg.Venue]
			if !ok {
				continue
			}

			if err := v.CancelOrder(ctx, leg.Symbol, leg.ExternalOrderID); err != nil {
				h.logger.Warn("shutdown cancel failed",
					utils.GroupID(group.ID),
					utils.Venue(leg.Venue),
					utils.OrderID(leg.ExternalOrderID),
					utils.Err(err))
				continue
			}

			leg.Status = models.LegCanceled
			h.logger.Info("canceled open leg on shutdown",
				utils.GroupID(group.ID),
				utils.Venue(leg.Venue),
				utils.OrderID(leg.ExternalOrderID))
		}
	}
}

// reconcileAll сверяет все активные группы
func (h *HedgeEngine) reconcileAll(ctx context.Context) {
	start := time.Now()

	h.mu.RLock()
	ids := make([]int64, 0, len(h.activeByPair))
	for _, id := range h.activeByPair {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.reconcileGroup(ctx, id)
	}

	ReconcileLatency.Observe(float64(time.Since(start).Milliseconds()))
}

// Действия сверки, требующие вызовов площадок
const (
	actNone = iota
	actFailRejected
	actFinishCancel
	actCancelRemainder
	actCorrect
)

// reconcileGroup выполняет один проход сверки для группы.
// Проход идемпотентен: повторный вызов без изменений на площадках
// не выполняет действий.
//
// Решение принимается под мьютексом, сетевые вызовы - вне его:
// пока площадка отвечает, гейт и API не ждут движок. Дублей действий
// нет, потому что сверка идёт в одной горутине.
func (h *HedgeEngine) reconcileGroup(ctx context.Context, id int64) {
	h.mu.RLock()
	group, ok := h.groups[id]
	if !ok || IsTerminal(group.Status) {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	h.refreshLegs(ctx, group)

	h.mu.Lock()
	action := actNone
	switch {
	case IsTerminal(group.Status):

	// Отказ любой ноги: разворачиваем исполненное, группа FAILED
	case h.hasRejectedLeg(group):
		action = actFailRejected

	// Группа в отмене: ждём подтверждения отмен, затем применяем политику
	case group.Status == models.GroupCanceling:
		action = actFinishCancel

	// Все ноги закрыты полностью
	case h.allLegsFilled(group):
		h.transitionLocked(group, models.GroupFilled, "all legs filled")

	// Таймаут ноги: отменяем остаток
	case time.Since(group.CreatedAt) > h.cfg.LegTimeout && h.hasOpenLeg(group):
		action = actCancelRemainder

	// Расхождение ног сверх допуска: корректирующий ордер
	case h.imbalanceLocked(group) > h.cfg.ImbalanceTolerance:
		action = actCorrect

	// Частичное исполнение в пределах допуска
	case h.anyLegFilled(group) && group.Status == models.GroupPending:
		h.transitionLocked(group, models.GroupPartiallyFilled, "partial fills within tolerance")
	}
	h.mu.Unlock()

	switch action {
	case actFailRejected:
		h.unwind(ctx, group)
		h.mu.Lock()
		h.transitionLocked(group, models.GroupFailed, "leg rejected by venue")
		h.mu.Unlock()
	case actFinishCancel:
		h.finishCancel(ctx, group)
	case actCancelRemainder:
		h.cancelRemainder(ctx, group)
	case actCorrect:
		h.correct(ctx, group)
	}
}

// refreshLegs подтягивает статусы открытых ног с площадок
func (h *HedgeEngine) refreshLegs(ctx context.Context, group *models.HedgedOrderGroup) {
	h.mu.RLock()
	type pending struct {
		index   int
		venue   string
		symbol  string
		orderID string
	}
	var toFetch []pending
	for i := range group.Legs {
		leg := &group.Legs[i]
		if leg.IsOpen() && leg.ExternalOrderID != "" {
			toFetch = append(toFetch, pending{i, leg.Venue, leg.Symbol, leg.ExternalOrderID})
		}
	}
	h.mu.RUnlock()

	for _, p := range toFetch {
		v, ok := h.venues[p.venue]
		if !ok {
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, h.cfg.OrderTimeout)
		order, err := v.FetchOrderStatus(fetchCtx, p.symbol, p.orderID)
		cancel()
		if err != nil {
			h.logger.Warn("order status fetch failed",
				utils.GroupID(group.ID),
				utils.Venue(p.venue),
				utils.OrderID(p.orderID),
				utils.Err(err))
			continue
		}

		h.mu.Lock()
		leg := &group.Legs[p.index]
		leg.FilledQty = order.FilledQty
		leg.AvgFillPrice = order.AvgFillPrice
		leg.Status = mapOrderStatus(order.Status)
		group.UpdatedAt = time.Now()
		h.mu.Unlock()
	}
}

// imbalanceLocked возвращает относительное расхождение спотовых ног:
// |filledBuy - filledSell| / max(filledBuy, filledSell).
// ВАЖНО: вызывается под mu.
func (h *HedgeEngine) imbalanceLocked(group *models.HedgedOrderGroup) float64 {
	buy, sell := group.BuyLeg(), group.SellLeg()
	if buy == nil || sell == nil {
		return 0
	}
	larger := utils.Max(buy.FilledQty, sell.FilledQty)
	if larger == 0 {
		return 0
	}
	return utils.Abs(buy.FilledQty-sell.FilledQty) / larger
}

// correct догоняет отстающую ногу рыночным ордером на разницу объёмов.
//
// Живой лимитник отстающей ноги сначала снимается: иначе он продолжил
// бы исполняться параллельно с корректировкой и группа переисполнилась
// бы. После снятия финальное исполнение ордера фиксируется в ноге, и
// только потом считается разница. Номинал корректировки проходит тот
// же учёт капитала, что и допуск группы.
func (h *HedgeEngine) correct(ctx context.Context, group *models.HedgedOrderGroup) {
	h.mu.Lock()
	if group.Status != models.GroupImbalanced {
		if !h.transitionLocked(group, models.GroupImbalanced, "legs diverged beyond tolerance") {
			h.mu.Unlock()
			return
		}
	}

	buy, sell := group.BuyLeg(), group.SellLeg()
	if buy == nil || sell == nil {
		h.mu.Unlock()
		return
	}
	lagging := buy
	if sell.FilledQty < buy.FilledQty {
		lagging = sell
	}

	laggingVenue := lagging.Venue
	laggingSymbol := lagging.Symbol
	laggingSide := lagging.Side
	cancelID := ""
	if lagging.IsOpen() && lagging.ExternalOrderID != "" {
		cancelID = lagging.ExternalOrderID
	}
	h.mu.Unlock()

	v, ok := h.venues[laggingVenue]
	if !ok {
		return
	}

	if cancelID != "" {
		opCtx, cancel := context.WithTimeout(ctx, h.cfg.OrderTimeout)
		err := v.CancelOrder(opCtx, laggingSymbol, cancelID)
		cancel()
		if err != nil {
			// Следующий проход повторит снятие
			h.logger.Warn("corrective cancel failed",
				utils.GroupID(group.ID),
				utils.Venue(laggingVenue),
				utils.OrderID(cancelID),
				utils.Err(err))
			return
		}

		opCtx, cancel = context.WithTimeout(ctx, h.cfg.OrderTimeout)
		final, err := v.FetchOrderStatus(opCtx, laggingSymbol, cancelID)
		cancel()
		if err != nil {
			h.logger.Warn("final fill fetch failed after cancel",
				utils.GroupID(group.ID),
				utils.Venue(laggingVenue),
				utils.OrderID(cancelID),
				utils.Err(err))
			return
		}

		h.mu.Lock()
		lagging.FilledQty = final.FilledQty
		lagging.AvgFillPrice = final.AvgFillPrice
		lagging.Status = models.LegCanceled
		lagging.ExternalOrderID = ""
		group.UpdatedAt = time.Now()
		h.mu.Unlock()
	}

	h.mu.Lock()
	diff := utils.RoundToLotSize(utils.Abs(buy.FilledQty-sell.FilledQty), h.lotSize)
	price := lagging.AvgFillPrice
	if price <= 0 && lagging.RequestedQty > 0 {
		price = group.Notional / lagging.RequestedQty
	}
	key := group.Key
	h.mu.Unlock()

	if diff <= 0 {
		h.mu.Lock()
		if h.imbalanceLocked(group) <= h.cfg.ImbalanceTolerance {
			h.transitionLocked(group, models.GroupPartiallyFilled, "legs back within tolerance")
		}
		h.mu.Unlock()
		return
	}

	if h.gate != nil && !h.gate.CheckCorrective(key, diff*price) {
		RecordCorrective(false)
		h.mu.Lock()
		group.CorrectiveFailures++
		fails := group.CorrectiveFailures
		if fails >= h.cfg.MaxCorrectiveFails {
			h.transitionLocked(group, models.GroupFailed, "corrective failures exceeded limit")
		}
		h.mu.Unlock()

		h.logger.Error("corrective denied by capital ceiling",
			utils.GroupID(group.ID),
			utils.Venue(laggingVenue),
			utils.Notional(diff*price),
			utils.Int("failures", fails))
		return
	}

	var order *venue.Order
	err := retry.Do(ctx, func() error {
		opCtx, cancel := context.WithTimeout(ctx, h.cfg.OrderTimeout)
		defer cancel()
		var opErr error
		order, opErr = v.PlaceMarketOrder(opCtx, laggingSymbol, laggingSide, diff)
		return opErr
	}, orderRetry())

	RecordCorrective(err == nil)

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		group.CorrectiveFailures++
		h.logger.Error("corrective order failed",
			utils.GroupID(group.ID),
			utils.Venue(laggingVenue),
			utils.Qty(diff),
			utils.Int("failures", group.CorrectiveFailures),
			utils.Err(err))

		if group.CorrectiveFailures >= h.cfg.MaxCorrectiveFails {
			h.transitionLocked(group, models.GroupFailed, "corrective failures exceeded limit")
		}
		return
	}

	// Вливаем исполнение корректирующего ордера в ногу
	mergeFill(lagging, order)
	group.UpdatedAt = time.Now()

	h.audit(&models.Notification{
		Timestamp: time.Now(),
		Type:      models.NotificationTypeCorrective,
		Severity:  models.SeverityWarn,
		Pair:      group.Key.String(),
		GroupID:   &group.ID,
		Message:   fmt.Sprintf("corrective %s %.8f on %s", laggingSide, diff, laggingVenue),
		Meta: map[string]interface{}{
			"qty":   diff,
			"venue": laggingVenue,
			"side":  laggingSide,
		},
	})

	// Корректировка вернула ноги в допуск
	if h.imbalanceLocked(group) <= h.cfg.ImbalanceTolerance {
		h.transitionLocked(group, models.GroupPartiallyFilled, "corrective restored balance")
	}
}

// cancelRemainder отменяет остатки открытых ног по таймауту.
//
// Нога без ID площадки отмене не подлежит: ответ на выставление не
// пришёл, ордера для нас не существует. Такая нога помечается
// отменённой сразу, иначе группа навсегда застряла бы в CANCELING
// и резерв капитала не вернулся бы.
func (h *HedgeEngine) cancelRemainder(ctx context.Context, group *models.HedgedOrderGroup) {
	type cancelIntent struct {
		index     int
		venue     string
		symbol    string
		orderID   string
		remaining float64
	}

	h.mu.Lock()
	if !h.transitionLocked(group, models.GroupCanceling, "leg timeout, canceling remainder") {
		h.mu.Unlock()
		return
	}

	var plan []cancelIntent
	for i := range group.Legs {
		leg := &group.Legs[i]
		if !leg.IsOpen() {
			continue
		}
		if leg.ExternalOrderID == "" {
			leg.Status = models.LegCanceled
			h.logger.Warn("open leg has no venue order id, marked canceled",
				utils.GroupID(group.ID),
				utils.Venue(leg.Venue),
				utils.Symbol(leg.Symbol))
			continue
		}
		plan = append(plan, cancelIntent{i, leg.Venue, leg.Symbol, leg.ExternalOrderID, leg.Remaining()})
	}
	h.mu.Unlock()

	for _, c := range plan {
		v, ok := h.venues[c.venue]
		if !ok {
			continue
		}

		opCtx, cancel := context.WithTimeout(ctx, h.cfg.OrderTimeout)
		err := v.CancelOrder(opCtx, c.symbol, c.orderID)
		cancel()
		if err != nil {
			h.logger.Warn("cancel failed",
				utils.GroupID(group.ID),
				utils.Venue(c.venue),
				utils.OrderID(c.orderID),
				utils.Err(err))
			continue
		}

		h.mu.Lock()
		group.Legs[c.index].Status = models.LegCanceled
		group.UpdatedAt = time.Now()
		h.mu.Unlock()

		h.audit(&models.Notification{
			Timestamp: time.Now(),
			Type:      models.NotificationTypeCancel,
			Severity:  models.SeverityWarn,
			Pair:      group.Key.String(),
			GroupID:   &group.ID,
			Message:   fmt.Sprintf("canceled remainder %.8f on %s", c.remaining, c.venue),
		})
	}
}

// finishCancel применяет политику таймаута после отмены остатков
func (h *HedgeEngine) finishCancel(ctx context.Context, group *models.HedgedOrderGroup) {
	// Остались неподтверждённые отмены - дождёмся следующего прохода
	h.mu.RLock()
	open := h.hasOpenLeg(group)
	h.mu.RUnlock()
	if open {
		return
	}

	switch h.cfg.TimeoutPolicy {
	case config.TimeoutPolicyRehedge:
		h.rehedge(ctx, group)
	default:
		h.unwind(ctx, group)
		h.mu.Lock()
		h.transitionLocked(group, models.GroupCanceled, "remainder unwound after timeout")
		h.mu.Unlock()
	}
}

// rehedge закрывает группу и перевыставляет неисполненный остаток
// НОВОЙ группой с рыночными ордерами. Номинал остатка проходит через
// гейт под теми же потолками, что и обычный допуск; отказ гейта
// переводит исполненный объём на разворот.
func (h *HedgeEngine) rehedge(ctx context.Context, group *models.HedgedOrderGroup) {
	type remainderLeg struct {
		venue  string
		symbol string
		side   string
		qty    float64
	}

	h.mu.Lock()

	var rems []remainderLeg
	var notional float64
	for i := range group.Legs {
		leg := &group.Legs[i]
		if leg.Hedge {
			continue
		}
		rem := utils.RoundToLotSize(leg.Remaining(), h.lotSize)
		if rem <= 0 {
			continue
		}
		price := leg.AvgFillPrice
		if price <= 0 && leg.RequestedQty > 0 {
			price = group.Notional / leg.RequestedQty
		}
		if n := rem * price; n > notional {
			notional = n
		}
		rems = append(rems, remainderLeg{leg.Venue, leg.Symbol, leg.Side, rem})
	}

	if len(rems) == 0 {
		h.transitionLocked(group, models.GroupCanceled, "nothing left to rehedge")
		h.mu.Unlock()
		return
	}

	// Исходная группа закрывается: резерв и слот пары освобождаются,
	// остаток живёт дальше в замещающей группе
	if !h.transitionLocked(group, models.GroupCanceled, "remainder reissued as a new group") {
		h.mu.Unlock()
		return
	}

	if h.gate != nil && !h.gate.ReserveReplacement(group.Key, notional) {
		h.mu.Unlock()
		h.logger.Warn("replacement group denied by capital ceiling, unwinding fills",
			utils.GroupID(group.ID),
			utils.Pair(group.Key.String()),
			utils.Notional(notional))
		h.unwind(ctx, group)
		return
	}

	now := time.Now()
	replacement := &models.HedgedOrderGroup{
		ID:        h.nextID.Add(1),
		Key:       group.Key,
		Direction: group.Direction,
		Notional:  notional,
		Status:    models.GroupPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, r := range rems {
		replacement.Legs = append(replacement.Legs, models.OrderLeg{
			Venue:        r.venue,
			Symbol:       r.symbol,
			Side:         r.side,
			RequestedQty: r.qty,
			Status:       models.LegPending,
		})
	}
	h.groups[replacement.ID] = replacement
	h.activeByPair[replacement.Key] = replacement.ID
	h.mu.Unlock()

	GroupsTotal.Inc()
	ActiveGroups.Inc()

	h.logger.Info("replacement group created",
		utils.GroupID(replacement.ID),
		utils.Pair(replacement.Key.String()),
		utils.Notional(notional),
		utils.Int64("source_group_id", group.ID))

	h.audit(&models.Notification{
		Timestamp: time.Now(),
		Type:      models.NotificationTypeRehedge,
		Severity:  models.SeverityWarn,
		Pair:      group.Key.String(),
		GroupID:   &group.ID,
		Message:   fmt.Sprintf("remainder reissued as group %d", replacement.ID),
		Meta: map[string]interface{}{
			"replacement_group_id": replacement.ID,
			"notional":             notional,
		},
	})

	// Остаток добирается рыночными ордерами; неудачи оставляют ногу
	// PENDING без ID - сверка доведёт замещающую группу по таймауту
	for i, r := range rems {
		v, ok := h.venues[r.venue]
		if !ok {
			continue
		}

		var order *venue.Order
		err := retry.Do(ctx, func() error {
			opCtx, cancel := context.WithTimeout(ctx, h.cfg.OrderTimeout)
			defer cancel()
			var opErr error
			order, opErr = v.PlaceMarketOrder(opCtx, r.symbol, r.side, r.qty)
			return opErr
		}, orderRetry())
		if err != nil {
			h.logger.Error("rehedge order failed",
				utils.GroupID(replacement.ID),
				utils.Venue(r.venue),
				utils.Qty(r.qty),
				utils.Err(err))
			continue
		}

		h.mu.Lock()
		leg := &replacement.Legs[i]
		leg.ExternalOrderID = order.ID
		leg.FilledQty = order.FilledQty
		leg.AvgFillPrice = order.AvgFillPrice
		leg.Status = mapOrderStatus(order.Status)
		replacement.UpdatedAt = time.Now()
		h.mu.Unlock()
	}
}

// unwind разворачивает исполненный объём каждой ноги встречным
// рыночным ордером. План собирается под мьютексом, ордера идут вне его.
func (h *HedgeEngine) unwind(ctx context.Context, group *models.HedgedOrderGroup) {
	type reverseOrder struct {
		venue  string
		symbol string
		side   string
		qty    float64
	}

	h.mu.RLock()
	plan := make([]reverseOrder, 0, len(group.Legs))
	for i := range group.Legs {
		leg := &group.Legs[i]

		qty := utils.RoundToLotSize(leg.FilledQty, h.lotSize)
		if qty <= 0 {
			continue
		}

		reverse := models.SideSell
		if leg.Side == models.SideSell {
			reverse = models.SideBuy
		}
		plan = append(plan, reverseOrder{leg.Venue, leg.Symbol, reverse, qty})
	}
	h.mu.RUnlock()

	for _, o := range plan {
		v, ok := h.venues[o.venue]
		if !ok {
			continue
		}

		err := retry.Do(ctx, func() error {
			opCtx, cancel := context.WithTimeout(ctx, h.cfg.OrderTimeout)
			defer cancel()
			_, opErr := v.PlaceMarketOrder(opCtx, o.symbol, o.side, o.qty)
			return opErr
		}, orderRetry())
		if err != nil {
			// Объём остался открытым на площадке - об этом обязаны знать
			h.logger.Error("unwind order failed, position left open",
				utils.GroupID(group.ID),
				utils.Venue(o.venue),
				utils.Symbol(o.symbol),
				utils.Qty(o.qty),
				utils.Err(err))
			h.audit(&models.Notification{
				Timestamp: time.Now(),
				Type:      models.NotificationTypeError,
				Severity:  models.SeverityError,
				Pair:      group.Key.String(),
				GroupID:   &group.ID,
				Message:   fmt.Sprintf("unwind failed on %s, %.8f left open", o.venue, o.qty),
			})
			continue
		}

		h.audit(&models.Notification{
			Timestamp: time.Now(),
			Type:      models.NotificationTypeUnwind,
			Severity:  models.SeverityWarn,
			Pair:      group.Key.String(),
			GroupID:   &group.ID,
			Message:   fmt.Sprintf("unwound %.8f %s on %s", o.qty, o.side, o.venue),
		})
	}

	h.mu.Lock()
	group.UpdatedAt = time.Now()
	h.mu.Unlock()
}

// transitionLocked выполняет переход статуса через state machine.
// Недопустимый переход не выполняется. ВАЖНО: вызывается под mu.
func (h *HedgeEngine) transitionLocked(group *models.HedgedOrderGroup, to, reason string) bool {
	if !CanTransition(group.Status, to) {
		h.logger.Warn("invalid transition skipped",
			utils.GroupID(group.ID),
			utils.String("from", group.Status),
			utils.String("to", to))
		return false
	}

	from := group.Status
	group.Status = to
	group.UpdatedAt = time.Now()

	h.logger.Info("group transition",
		utils.GroupID(group.ID),
		utils.Pair(group.Key.String()),
		utils.String("from", from),
		utils.String("to", to),
		utils.String("reason", reason))

	h.audit(&models.Notification{
		Timestamp: time.Now(),
		Type:      models.NotificationTypeTransition,
		Severity:  transitionSeverity(to),
		Pair:      group.Key.String(),
		GroupID:   &group.ID,
		Message:   fmt.Sprintf("%s -> %s: %s", from, to, reason),
		Meta: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})

	if IsTerminal(to) {
		h.finishLocked(group)
	}
	return true
}

func transitionSeverity(to string) string {
	switch to {
	case models.GroupFailed:
		return models.SeverityError
	case models.GroupImbalanced, models.GroupCanceling, models.GroupCanceled:
		return models.SeverityWarn
	default:
		return models.SeverityInfo
	}
}

// finishLocked закрывает группу: резерв и слот пары возвращаются
// в гейт, результат попадает в риск-лимиты. ВАЖНО: вызывается под mu.
func (h *HedgeEngine) finishLocked(group *models.HedgedOrderGroup) {
	delete(h.activeByPair, group.Key)

	ActiveGroups.Dec()
	RecordGroupFinished(group.Status)

	pnl := groupPnL(group)

	if h.gate != nil {
		h.gate.Release(group.Key)
		h.gate.RecordResult(group.Key, pnl)
	}

	h.logger.Info("group finished",
		utils.GroupID(group.ID),
		utils.Pair(group.Key.String()),
		utils.State(group.Status),
		utils.Float64("pnl", pnl))
}

// groupPnL считает реализованный результат группы по исполненным ногам.
// Хедж-нога не участвует: её результат реализуется при закрытии контракта.
func groupPnL(group *models.HedgedOrderGroup) float64 {
	pnl := 0.0
	for i := range group.Legs {
		leg := &group.Legs[i]
		if leg.Hedge {
			continue
		}
		notional := leg.FilledQty * leg.AvgFillPrice
		if leg.Side == models.SideSell {
			pnl += notional
		} else {
			pnl -= notional
		}
	}
	return pnl
}

// mergeFill вливает исполнение замещающего ордера в ногу:
// средняя цена взвешивается по объёмам
func mergeFill(leg *models.OrderLeg, order *venue.Order) {
	if order == nil || order.FilledQty <= 0 {
		return
	}

	leg.AvgFillPrice = utils.CalculateWeightedAverage(
		[]float64{leg.AvgFillPrice, order.AvgFillPrice},
		[]float64{leg.FilledQty, order.FilledQty},
	)
	leg.FilledQty += order.FilledQty

	if leg.FilledQty >= leg.RequestedQty {
		leg.Status = models.LegFilled
	} else {
		leg.Status = models.LegPartiallyFilled
	}
}

// ============ Предикаты по ногам (вызываются под mu) ============

func (h *HedgeEngine) allLegsFilled(group *models.HedgedOrderGroup) bool {
	for i := range group.Legs {
		if group.Legs[i].Status != models.LegFilled {
			return false
		}
	}
	return true
}

func (h *HedgeEngine) anyLegFilled(group *models.HedgedOrderGroup) bool {
	for i := range group.Legs {
		if group.Legs[i].FilledQty > 0 {
			return true
		}
	}
	return false
}

func (h *HedgeEngine) hasOpenLeg(group *models.HedgedOrderGroup) bool {
	for i := range group.Legs {
		if group.Legs[i].IsOpen() {
			return true
		}
	}
	return false
}

func (h *HedgeEngine) hasRejectedLeg(group *models.HedgedOrderGroup) bool {
	for i := range group.Legs {
		if group.Legs[i].Status == models.LegRejected {
			return true
		}
	}
	return false
}

// ============ Доступ для API ============

// Group возвращает копию группы по ID
func (h *HedgeEngine) Group(id int64) (models.HedgedOrderGroup, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	group, ok := h.groups[id]
	if !ok {
		return models.HedgedOrderGroup{}, false
	}
	return copyGroup(group), true
}

// Groups возвращает копии всех групп (для API статуса)
func (h *HedgeEngine) Groups() []models.HedgedOrderGroup {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.HedgedOrderGroup, 0, len(h.groups))
	for _, group := range h.groups {
		out = append(out, copyGroup(group))
	}
	return out
}

// ActiveCount возвращает количество незавершённых групп
func (h *HedgeEngine) ActiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.activeByPair)
}

func copyGroup(g *models.HedgedOrderGroup) models.HedgedOrderGroup {
	cp := *g
	cp.Legs = make([]models.OrderLeg, len(g.Legs))
	copy(cp.Legs, g.Legs)
	return cp
}

func (h *HedgeEngine) audit(n *models.Notification) {
	if h.auditor != nil {
		h.auditor.Record(n)
	}
}
