package bot

import (
	"context"
	"sync"
	"time"

	"crossarb/internal/config"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// AdmittedOpportunity - возможность, прошедшая все проверки гейта.
// Notional уже зарезервирован: исполнитель обязан довести группу до
// терминального статуса, после чего резерв будет снят.
type AdmittedOpportunity struct {
	Result   SpreadResult
	Notional float64 // USDT
}

// GroupExecutor - исполнитель допущенных возможностей (hedge-движок)
type GroupExecutor interface {
	// HasActiveGroup сообщает, есть ли у пары незавершённая группа
	HasActiveGroup(key models.PairKey) bool

	// Execute запускает создание группы. Не блокирует гейт.
	Execute(opp AdmittedOpportunity)
}

// Auditor - приёмник событий аудита (решения гейта, переходы групп)
type Auditor interface {
	Record(n *models.Notification)
}

// Причины отклонения возможности
const (
	RejectActiveGroup       = "active_group"
	RejectDailyLoss         = "daily_loss"
	RejectConsecutiveLosses = "consecutive_losses"
	RejectCapital           = "capital"
	RejectSpreadBounds      = "spread_bounds"
)

// Gate - шлюз допуска возможностей к исполнению.
//
// Единственный потребитель читает очередь и применяет проверки строго
// по порядку: активная группа → потолки капитала → диапазон спреда →
// риск-лимиты. Первая непройденная проверка отклоняет возможность
// целиком: номинал не ужимается под остаток потолка.
// Резерв списывается ДО отправки ордеров: две возможности не могут
// одновременно претендовать на один и тот же капитал.
//
// Переполнение очереди не блокирует воркеры котировок: лишние
// возможности отбрасываются со счётчиком в метриках.
type Gate struct {
	cfg      config.StrategyConfig
	queue    chan SpreadResult
	executor GroupExecutor
	auditor  Auditor
	logger   *utils.Logger

	// Учёт капитала и риск-состояние. Мутации идут из горутины
	// потребителя и из reconcile-цикла (Release), поэтому под мьютексом.
	mu             sync.Mutex
	reservedTotal  float64
	reservedByPair map[models.PairKey]float64
	dailyLoss      float64
	dayStart       time.Time
	consecLosses   int
}

// NewGate создаёт шлюз. queueSize - ёмкость буфера возможностей.
func NewGate(cfg config.StrategyConfig, queueSize int, executor GroupExecutor, auditor Auditor, logger *utils.Logger) *Gate {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if logger == nil {
		logger = utils.InitLogger(utils.LogConfig{})
	}
	return &Gate{
		cfg:            cfg,
		queue:          make(chan SpreadResult, queueSize),
		executor:       executor,
		auditor:        auditor,
		logger:         logger.WithComponent("gate"),
		reservedByPair: make(map[models.PairKey]float64),
		dayStart:       utils.GetDayStart(),
	}
}

// Submit кладёт возможность в очередь без блокировки.
// При переполнении возможность отбрасывается: лучше потерять сигнал,
// чем затормозить обработку котировок.
func (g *Gate) Submit(r SpreadResult) {
	select {
	case g.queue <- r:
	default:
		RecordBufferOverflow("gate_queue")
	}
}

// Run запускает потребителя очереди. Блокирует до отмены контекста.
func (g *Gate) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-g.queue:
			g.process(r)
		}
	}
}

// process применяет проверки и либо передаёт возможность исполнителю,
// либо отклоняет с причиной в аудите
func (g *Gate) process(r SpreadResult) {
	// 1. У пары уже есть незавершённая группа - пропускаем.
	// Гарантия "не более одной активной группы на пару".
	if g.executor.HasActiveGroup(r.Key) {
		g.reject(r, RejectActiveGroup)
		return
	}

	g.mu.Lock()

	// Резерв пары снимается чуть позже терминального статуса группы,
	// поэтому проверяем и его
	if g.reservedByPair[r.Key] > 0 {
		g.mu.Unlock()
		g.reject(r, RejectActiveGroup)
		return
	}

	// 2. Потолки капитала. Номинал не ужимается под остаток:
	// не помещается целиком - отклоняем
	notional := g.cfg.TradeAmount
	if notional < g.cfg.MinAmountPerPair || notional > g.cfg.MaxAmountPerPair {
		g.mu.Unlock()
		g.reject(r, RejectCapital)
		return
	}
	if g.reservedTotal+notional > g.cfg.MaxAmount {
		g.mu.Unlock()
		g.reject(r, RejectCapital)
		return
	}

	// 3. Спред в рабочем диапазоне: выше санитарной границы - битый тик
	if r.Spread < g.cfg.MinSpread || r.Spread >= g.cfg.MaxSpread {
		g.mu.Unlock()
		g.reject(r, RejectSpreadBounds)
		return
	}

	// 4. Риск-лимиты. Дневной убыток сбрасывается на границе дня UTC.
	g.rolloverDayLocked()

	if g.cfg.MaxConsecutiveLosses > 0 && g.consecLosses >= g.cfg.MaxConsecutiveLosses {
		g.mu.Unlock()
		g.reject(r, RejectConsecutiveLosses)
		return
	}
	if g.cfg.MaxDailyLoss > 0 && g.dailyLoss >= g.cfg.MaxDailyLoss {
		g.mu.Unlock()
		g.reject(r, RejectDailyLoss)
		return
	}

	g.reservedTotal += notional
	g.reservedByPair[r.Key] = notional
	ReservedCapital.Set(g.reservedTotal)

	g.mu.Unlock()

	g.admit(r, notional)
}

// admit фиксирует допуск и передаёт возможность исполнителю
func (g *Gate) admit(r SpreadResult, notional float64) {
	RecordOpportunity(r.Key.String(), true, "")

	g.logger.Info("opportunity admitted",
		utils.Pair(r.Key.String()),
		utils.Spread(r.Spread),
		utils.String("direction", r.Direction),
		utils.Notional(notional))

	g.audit(&models.Notification{
		Timestamp: time.Now(),
		Type:      models.NotificationTypeAdmitted,
		Severity:  models.SeverityInfo,
		Pair:      r.Key.String(),
		Message:   "opportunity admitted for execution",
		Meta: map[string]interface{}{
			"spread":    r.Spread,
			"direction": r.Direction,
			"notional":  notional,
		},
	})

	g.executor.Execute(AdmittedOpportunity{Result: r, Notional: notional})
}

// reject фиксирует отклонение с причиной
func (g *Gate) reject(r SpreadResult, reason string) {
	RecordOpportunity(r.Key.String(), false, reason)

	g.logger.Debug("opportunity rejected",
		utils.Pair(r.Key.String()),
		utils.Spread(r.Spread),
		utils.String("reason", reason))

	g.audit(&models.Notification{
		Timestamp: time.Now(),
		Type:      models.NotificationTypeRejected,
		Severity:  models.SeverityInfo,
		Pair:      r.Key.String(),
		Message:   "opportunity rejected: " + reason,
		Meta: map[string]interface{}{
			"spread":    r.Spread,
			"direction": r.Direction,
			"reason":    reason,
		},
	})
}

// Release снимает резерв пары. Вызывается hedge-движком при переходе
// группы в терминальный статус. Повторный вызов безопасен.
func (g *Gate) Release(key models.PairKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	notional, ok := g.reservedByPair[key]
	if !ok {
		return
	}
	delete(g.reservedByPair, key)
	g.reservedTotal -= notional
	if g.reservedTotal < 0 {
		g.reservedTotal = 0
	}
	ReservedCapital.Set(g.reservedTotal)
}

// ReserveReplacement резервирует номинал замещающей группы под теми же
// потолками, что и обычный допуск. Вызывается hedge-движком после
// освобождения резерва исходной группы; отказ означает, что остаток
// перевыставлять нельзя.
func (g *Gate) ReserveReplacement(key models.PairKey, notional float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if notional <= 0 {
		return false
	}
	if g.reservedByPair[key]+notional > g.cfg.MaxAmountPerPair {
		return false
	}
	if g.reservedTotal+notional > g.cfg.MaxAmount {
		return false
	}

	g.reservedTotal += notional
	g.reservedByPair[key] += notional
	ReservedCapital.Set(g.reservedTotal)
	return true
}

// CheckCorrective проверяет номинал корректирующего ордера по потолкам
// капитала. Объём в пределах действующего резерва пары уже учтён при
// допуске группы; превышение сверяется с теми же потолками.
func (g *Gate) CheckCorrective(key models.PairKey, notional float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if notional <= 0 {
		return true
	}
	reserved := g.reservedByPair[key]
	if notional <= reserved {
		return true
	}
	extra := notional - reserved
	return notional <= g.cfg.MaxAmountPerPair && g.reservedTotal+extra <= g.cfg.MaxAmount
}

// RecordResult учитывает реализованный результат завершённой группы
// в риск-лимитах
func (g *Gate) RecordResult(key models.PairKey, pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverDayLocked()

	if pnl < 0 {
		g.dailyLoss += -pnl
		g.consecLosses++
	} else {
		g.consecLosses = 0
	}

	DailyLoss.Set(g.dailyLoss)
}

// rolloverDayLocked сбрасывает дневной счётчик на границе дня UTC.
// ВАЖНО: вызывается под mu.
func (g *Gate) rolloverDayLocked() {
	now := time.Now().UTC()
	if !utils.SameDay(g.dayStart, now) {
		g.dayStart = utils.GetDayStartFrom(now)
		g.dailyLoss = 0
		DailyLoss.Set(0)
	}
}

// Reserved возвращает текущий суммарный резерв (для API статуса)
func (g *Gate) Reserved() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reservedTotal
}

// audit передаёт событие в приёмник аудита, если он подключен
func (g *Gate) audit(n *models.Notification) {
	if g.auditor != nil {
		g.auditor.Record(n)
	}
}
