package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах
// - Анализ производительности в production

// ============ Метрики котировок ============

// QuoteUpdates - количество принятых обновлений котировок
var QuoteUpdates = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "quotes",
		Name:      "updates_total",
		Help:      "Total number of accepted quote updates",
	},
	[]string{"venue"},
)

// QuoteUpdateLatency - время обработки обновления котировки
var QuoteUpdateLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "crossarb",
		Subsystem: "quotes",
		Name:      "update_latency_ms",
		Help:      "Time to process a quote update in milliseconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
)

// SpreadObserved - наблюдаемые спреды (в долях)
var SpreadObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "crossarb",
		Subsystem: "spread",
		Name:      "observed",
		Help:      "Observed spread values as fractions",
		Buckets:   []float64{-0.01, -0.005, 0, 0.001, 0.002, 0.003, 0.005, 0.01, 0.02, 0.05},
	},
	[]string{"pair"},
)

// BadTicks - подавленные битые тики (спред выше санитарной границы)
var BadTicks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "spread",
		Name:      "bad_ticks_total",
		Help:      "Number of suppressed quote updates with spread above sanity bound",
	},
	[]string{"pair"},
)

// ============ Метрики гейта ============

// OpportunitiesTotal - возможности по исходу допуска
var OpportunitiesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "gate",
		Name:      "opportunities_total",
		Help:      "Opportunities by admission outcome",
	},
	[]string{"pair", "outcome", "reason"}, // outcome: admitted, rejected
)

// ReservedCapital - текущий суммарный резерв капитала
var ReservedCapital = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "gate",
		Name:      "reserved_capital_usdt",
		Help:      "Currently reserved capital across active groups in USDT",
	},
)

// DailyLoss - реализованный убыток за текущий день UTC
var DailyLoss = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "gate",
		Name:      "daily_loss_usdt",
		Help:      "Realized loss for the current UTC day in USDT",
	},
)

// ============ Метрики групп ============

// GroupsTotal - созданные группы
var GroupsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "hedge",
		Name:      "groups_total",
		Help:      "Total number of hedged order groups created",
	},
)

// GroupsByStatus - группы по терминальному статусу
var GroupsByStatus = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "hedge",
		Name:      "groups_finished_total",
		Help:      "Hedged order groups by terminal status",
	},
	[]string{"status"}, // FILLED, CANCELED, FAILED
)

// ActiveGroups - текущее количество незавершённых групп
var ActiveGroups = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "hedge",
		Name:      "active_groups",
		Help:      "Current number of non-terminal hedged order groups",
	},
)

// CorrectiveOrders - корректирующие ордера при расхождении ног
var CorrectiveOrders = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "hedge",
		Name:      "corrective_orders_total",
		Help:      "Corrective market orders by result",
	},
	[]string{"result"}, // success, failed
)

// ReconcileLatency - длительность одного прохода сверки
var ReconcileLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "crossarb",
		Subsystem: "hedge",
		Name:      "reconcile_latency_ms",
		Help:      "Duration of one reconciliation pass in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
)

// OrderExecutionLatency - время исполнения ордера на площадке
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "crossarb",
		Subsystem: "hedge",
		Name:      "order_execution_latency_ms",
		Help:      "Time to execute order on venue in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"venue", "side"},
)

// ============ Метрики инфраструктуры ============

// VenueConnections - статус подключений к площадкам
var VenueConnections = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "venue",
		Name:      "connection_status",
		Help:      "Venue connection status (1=connected, 0=disconnected)",
	},
	[]string{"venue"},
)

// BufferOverflows - переполнения буферов каналов
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "engine",
		Name:      "buffer_overflows_total",
		Help:      "Number of channel buffer overflows (events dropped)",
	},
	[]string{"buffer"}, // quote_shard, gate_queue
)

// RegisteredPairs - размер реестра пар
var RegisteredPairs = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "registry",
		Name:      "pairs",
		Help:      "Number of registered tradable pairs",
	},
)

// AbnormalPairs - пары, исключённые из реестра как аномальные
var AbnormalPairs = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "registry",
		Name:      "abnormal_pairs",
		Help:      "Number of pairs excluded from the registry as abnormal",
	},
)

// ============ Вспомогательные функции ============

// RecordQuoteUpdate записывает принятое обновление и латентность обработки
func RecordQuoteUpdate(venue string, latencyMs float64) {
	QuoteUpdates.WithLabelValues(venue).Inc()
	QuoteUpdateLatency.Observe(latencyMs)
}

// RecordSpread записывает наблюдаемый спред
func RecordSpread(pair string, spread float64) {
	SpreadObserved.WithLabelValues(pair).Observe(spread)
}

// RecordBadTick записывает подавленный битый тик
func RecordBadTick(pair string) {
	BadTicks.WithLabelValues(pair).Inc()
}

// RecordOpportunity записывает исход допуска возможности.
// reason заполняется только для отклонённых.
func RecordOpportunity(pair string, admitted bool, reason string) {
	outcome := "rejected"
	if admitted {
		outcome = "admitted"
		reason = ""
	}
	OpportunitiesTotal.WithLabelValues(pair, outcome, reason).Inc()
}

// RecordGroupFinished записывает терминальный статус группы
func RecordGroupFinished(status string) {
	GroupsByStatus.WithLabelValues(status).Inc()
}

// RecordCorrective записывает результат корректирующего ордера
func RecordCorrective(success bool) {
	result := "failed"
	if success {
		result = "success"
	}
	CorrectiveOrders.WithLabelValues(result).Inc()
}

// RecordBufferOverflow записывает переполнение буфера
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

// UpdateVenueStatus обновляет статус подключения площадки
func UpdateVenueStatus(venue string, connected bool) {
	if connected {
		VenueConnections.WithLabelValues(venue).Set(1)
	} else {
		VenueConnections.WithLabelValues(venue).Set(0)
	}
}
