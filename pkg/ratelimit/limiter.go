package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - Token Bucket ограничитель частоты REST запросов к площадке.
//
// Ведро наполняется токенами с постоянной скоростью (rate токенов/сек),
// ёмкость ограничена burst. Каждый запрос потребляет один токен; при пустом
// ведре Wait блокируется до пополнения или отмены контекста.
//
// Burst важен для исполнения: ноги группы отправляются параллельно,
// и короткий всплеск из нескольких ордеров не должен упираться в лимит.
//
// Лимиты площадок:
//   - binance spot: 20 req/sec (burst 40)
//   - okx: 20 req/sec (burst 40)
type RateLimiter struct {
	rate       float64   // токенов в секунду
	burst      float64   // ёмкость ведра
	tokens     float64   // текущее количество токенов
	lastRefill time.Time // время последнего пополнения
	mu         sync.Mutex
}

// NewRateLimiter создаёт ограничитель: rate запросов в секунду, всплеск до burst
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst < rate {
		burst = rate * 2
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst, // начинаем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет токены на основе прошедшего времени.
// Вызывается под lock'ом.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()

	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}

	rl.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста.
// Возвращает nil когда токен получен, иначе ctx.Err().
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// Время до появления следующего токена
		waitTime := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-time.After(waitTime):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow проверяет доступность токена без блокировки
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	return false
}

// Rate возвращает скорость пополнения (токенов/сек)
func (rl *RateLimiter) Rate() float64 {
	return rl.rate
}

// Burst возвращает ёмкость ведра
func (rl *RateLimiter) Burst() float64 {
	return rl.burst
}

// Tokens возвращает текущее количество доступных токенов (для мониторинга)
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}
