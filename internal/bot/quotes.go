package bot

import (
	"math"
	"sync"
	"time"

	"crossarb/internal/models"
)

// ============ ОПТИМИЗАЦИЯ: Inline FNV-1a hash без аллокаций ============
const (
	fnvOffset32 = uint32(2166136261)
	fnvPrime32  = uint32(16777619)
)

// fnvHashPair вычисляет FNV-1a hash ключа пары БЕЗ аллокаций.
// Хэшируем base и quote подряд с разделителем, без конкатенации строк.
func fnvHashPair(key models.PairKey) uint32 {
	h := fnvOffset32
	for i := 0; i < len(key.Base); i++ {
		h ^= uint32(key.Base[i])
		h *= fnvPrime32
	}
	h ^= uint32('/')
	h *= fnvPrime32
	for i := 0; i < len(key.Quote); i++ {
		h ^= uint32(key.Quote[i])
		h *= fnvPrime32
	}
	return h
}

// Роль площадки в паре
const (
	VenueRoleA = 0
	VenueRoleB = 1
)

// VenueQuote - последние best bid/ask одной площадки
type VenueQuote struct {
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// QuoteSnapshot - копия состояния пары на момент обновления.
// Передаётся в evaluator по значению: дальнейшие обновления шарда
// снимок не затрагивают.
type QuoteSnapshot struct {
	Key models.PairKey
	A   VenueQuote // площадка A
	B   VenueQuote // площадка B
}

// pairQuotes - мутабельное состояние пары внутри шарда
type pairQuotes struct {
	a, b     VenueQuote
	hasA     bool
	hasB     bool
}

// QuoteStore - шардированное хранилище котировок
//
// Архитектура:
// - numShards шардов, каждый со своим мьютексом
// - Пара → шард детерминированно через hash(key) % numShards
// - Писатель шарда один (воркер Engine), поэтому Update и последующая
//   оценка спреда атомарны относительно этой пары
// - Читатели (API, reconcile) ходят через RLock
type QuoteStore struct {
	shards    []*quoteShard
	numShards uint32
}

type quoteShard struct {
	pairs map[models.PairKey]*pairQuotes
	mu    sync.RWMutex
}

// NewQuoteStore создаёт шардированное хранилище.
// numShards должен соответствовать количеству воркеров Engine.
func NewQuoteStore(numShards int) *QuoteStore {
	if numShards <= 0 {
		numShards = 16
	}

	qs := &QuoteStore{
		shards:    make([]*quoteShard, numShards),
		numShards: uint32(numShards),
	}

	for i := 0; i < numShards; i++ {
		qs.shards[i] = &quoteShard{
			pairs: make(map[models.PairKey]*pairQuotes),
		}
	}

	return qs
}

// getShard возвращает шард для пары (детерминированно)
func (qs *QuoteStore) getShard(key models.PairKey) *quoteShard {
	return qs.shards[fnvHashPair(key)%qs.numShards]
}

// GetShardIndex возвращает индекс шарда для пары.
// Используется Engine для роутинга событий к воркеру шарда.
func (qs *QuoteStore) GetShardIndex(key models.PairKey) int {
	return int(fnvHashPair(key) % qs.numShards)
}

// validQuote отсеивает битые котировки: неположительные цены, NaN/Inf
// и перевёрнутый стакан. Такие обновления игнорируются целиком,
// предыдущее состояние пары сохраняется.
func validQuote(bid, ask float64) bool {
	if bid <= 0 || ask <= 0 {
		return false
	}
	if math.IsNaN(bid) || math.IsNaN(ask) || math.IsInf(bid, 0) || math.IsInf(ask, 0) {
		return false
	}
	return true
}

// Update обновляет котировку одной площадки и возвращает снимок пары.
//
// Возвращает (snapshot, true) если обновление принято И обе стороны
// пары уже известны - только тогда есть смысл оценивать спред.
// Битое обновление отбрасывается: (zero, false).
func (qs *QuoteStore) Update(key models.PairKey, role int, bid, ask float64, ts time.Time) (QuoteSnapshot, bool) {
	if !validQuote(bid, ask) {
		return QuoteSnapshot{}, false
	}

	shard := qs.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	pq, ok := shard.pairs[key]
	if !ok {
		pq = &pairQuotes{}
		shard.pairs[key] = pq
	}

	q := VenueQuote{Bid: bid, Ask: ask, Timestamp: ts}
	if role == VenueRoleA {
		pq.a = q
		pq.hasA = true
	} else {
		pq.b = q
		pq.hasB = true
	}

	if !pq.hasA || !pq.hasB {
		return QuoteSnapshot{}, false
	}

	return QuoteSnapshot{Key: key, A: pq.a, B: pq.b}, true
}

// GetSnapshot возвращает снимок пары, ok=false если обе стороны ещё не получены
func (qs *QuoteStore) GetSnapshot(key models.PairKey) (QuoteSnapshot, bool) {
	shard := qs.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	pq, ok := shard.pairs[key]
	if !ok || !pq.hasA || !pq.hasB {
		return QuoteSnapshot{}, false
	}

	return QuoteSnapshot{Key: key, A: pq.a, B: pq.b}, true
}

// Count возвращает количество пар с полным снимком (обе стороны)
func (qs *QuoteStore) Count() int {
	total := 0
	for _, shard := range qs.shards {
		shard.mu.RLock()
		for _, pq := range shard.pairs {
			if pq.hasA && pq.hasB {
				total++
			}
		}
		shard.mu.RUnlock()
	}
	return total
}

// NumShards возвращает количество шардов (для мониторинга)
func (qs *QuoteStore) NumShards() int {
	return int(qs.numShards)
}
