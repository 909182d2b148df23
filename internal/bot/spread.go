package bot

import (
	"time"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// ============================================================
// SpreadResult - результат оценки пары в обоих направлениях
// ============================================================

// SpreadResult - оценка спреда по снимку котировок.
// Все спреды в долях: 0.004 = 0.4%.
type SpreadResult struct {
	Key models.PairKey

	// Спред покупки на A: купить по askA, продать на B по bidB
	SpreadBuyA float64
	// Спред покупки на B: купить по askB, продать на A по bidA
	SpreadBuyB float64

	// Максимум из двух направлений и само направление
	Spread    float64
	Direction string

	// Цены исполнения выбранного направления
	BuyPrice  float64 // ask площадки покупки
	SellPrice float64 // bid площадки продажи

	// Timestamp более свежей из двух котировок
	Timestamp time.Time
}

// Verdict - классификация результата оценки
type Verdict int

const (
	VerdictNone    Verdict = iota // спред ниже порога, не сигнал
	VerdictSignal                 // спред в рабочем диапазоне [min, max)
	VerdictBadTick                // спред на санитарной границе или выше, подавляется
)

// Evaluator - чистый вычислитель спреда.
// Не имеет состояния между вызовами, безопасен для любого количества горутин.
type Evaluator struct {
	minSpread float64 // порог сигнала, доли
	maxSpread float64 // санитарная граница: от неё и выше - битый тик
}

// NewEvaluator создаёт вычислитель с порогами из конфигурации
func NewEvaluator(minSpread, maxSpread float64) *Evaluator {
	return &Evaluator{
		minSpread: minSpread,
		maxSpread: maxSpread,
	}
}

// Evaluate вычисляет спреды обоих направлений по снимку.
//
// Формула направления "купить на A":
//
//	spreadBuyA = bidB / askA - 1
//
// и симметрично для "купить на B". Выбирается максимум.
// При равенстве направлений предпочитается покупка на A.
func (e *Evaluator) Evaluate(snap QuoteSnapshot) SpreadResult {
	spreadBuyA := utils.CrossSpread(snap.B.Bid, snap.A.Ask)
	spreadBuyB := utils.CrossSpread(snap.A.Bid, snap.B.Ask)

	r := SpreadResult{
		Key:        snap.Key,
		SpreadBuyA: spreadBuyA,
		SpreadBuyB: spreadBuyB,
	}

	if spreadBuyA >= spreadBuyB {
		r.Spread = spreadBuyA
		r.Direction = models.DirectionBuyASellB
		r.BuyPrice = snap.A.Ask
		r.SellPrice = snap.B.Bid
	} else {
		r.Spread = spreadBuyB
		r.Direction = models.DirectionBuyBSellA
		r.BuyPrice = snap.B.Ask
		r.SellPrice = snap.A.Bid
	}

	if snap.A.Timestamp.After(snap.B.Timestamp) {
		r.Timestamp = snap.A.Timestamp
	} else {
		r.Timestamp = snap.B.Timestamp
	}

	return r
}

// Classify определяет судьбу результата: сигнал, шум или битый тик.
// Санитарная граница входит в зону битого тика: spread == maxSpread
// уже подавляется.
func (e *Evaluator) Classify(r SpreadResult) Verdict {
	if r.Spread >= e.maxSpread {
		return VerdictBadTick
	}
	if r.Spread >= e.minSpread {
		return VerdictSignal
	}
	return VerdictNone
}

// ============================================================
// OccurrenceFilter - фильтр повторяемости сигнала
// ============================================================

// OccurrenceFilter отсеивает одиночные всплески спреда.
//
// Сигнал считается устойчивым, когда в пределах окна накопилось
// minOccurrences наблюдений выше порога. При consecutive=true
// наблюдения обязаны идти подряд: одна оценка ниже порога
// сбрасывает серию.
//
// Состояние принадлежит одной паре и мутируется только воркером
// её шарда, поэтому блокировка не нужна.
type OccurrenceFilter struct {
	window         time.Duration
	minOccurrences int
	consecutive    bool

	hits   []time.Time // наблюдения выше порога в пределах окна
	streak int         // длина текущей серии подряд
}

// NewOccurrenceFilter создаёт фильтр с параметрами из конфигурации
func NewOccurrenceFilter(window time.Duration, minOccurrences int, consecutive bool) *OccurrenceFilter {
	if minOccurrences < 1 {
		minOccurrences = 1
	}
	return &OccurrenceFilter{
		window:         window,
		minOccurrences: minOccurrences,
		consecutive:    consecutive,
	}
}

// Observe регистрирует очередную оценку и возвращает true когда
// сигнал признан устойчивым. После срабатывания фильтр сбрасывается.
func (f *OccurrenceFilter) Observe(ts time.Time, aboveThreshold bool) bool {
	if !aboveThreshold {
		f.streak = 0
		if f.consecutive {
			f.hits = f.hits[:0]
		}
		return false
	}

	f.streak++
	f.hits = append(f.hits, ts)
	f.prune(ts)

	var ready bool
	if f.consecutive {
		ready = f.streak >= f.minOccurrences && len(f.hits) >= f.minOccurrences
	} else {
		ready = len(f.hits) >= f.minOccurrences
	}

	if ready {
		f.Reset()
	}
	return ready
}

// prune выбрасывает наблюдения старше окна
func (f *OccurrenceFilter) prune(now time.Time) {
	cutoff := now.Add(-f.window)
	idx := 0
	for idx < len(f.hits) && f.hits[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		f.hits = f.hits[idx:]
	}
}

// Reset сбрасывает накопленное состояние
func (f *OccurrenceFilter) Reset() {
	f.hits = f.hits[:0]
	f.streak = 0
}
