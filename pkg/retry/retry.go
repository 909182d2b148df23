package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config конфигурация повторных попыток.
//
// Экспоненциальный backoff с jitter:
// delay = min(InitialDelay * Multiplier^attempt, MaxDelay) ± jitter
//
// Jitter разносит повторы по времени, чтобы параллельные ноги группы
// не били в API площадки синхронно.
type Config struct {
	// MaxRetries - максимальное количество попыток (включая первую).
	// 0 или отрицательное = без ограничения, останавливает только контекст
	MaxRetries int

	// InitialDelay - задержка перед второй попыткой (default 100ms)
	InitialDelay time.Duration

	// MaxDelay - потолок задержки (default 30s)
	MaxDelay time.Duration

	// Multiplier - множитель экспоненциального роста (default 2.0)
	Multiplier float64

	// JitterFactor - доля случайной вариации задержки, 0..1 (default 0)
	JitterFactor float64

	// RetryIf решает, повторять ли после данной ошибки.
	// nil = повторять любые ошибки
	RetryIf func(error) bool
}

// DefaultConfig - 4 попытки, задержки 100ms, 200ms, 400ms
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// AggressiveConfig для критичных операций: корректирующие ордера,
// разворот исполненного объёма. 6 попыток, задержки от 50ms
func AggressiveConfig() Config {
	return Config{
		MaxRetries:   6,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// ConservativeConfig для некритичных операций: листинги инструментов,
// статусы ордеров. 3 попытки, задержки от 500ms
func ConservativeConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// validate проверяет и устанавливает значения по умолчанию
func (c *Config) validate() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// delay вычисляет задержку перед попыткой attempt+1
func (c *Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}

	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}

	return time.Duration(d)
}

// Do выполняет операцию с повторными попытками.
// Возвращает nil при успехе, иначе последнюю ошибку. Отмена контекста
// прерывает ожидание между попытками.
//
//	err := retry.Do(ctx, func() error {
//	    return venue.CancelOrder(ctx, symbol, orderID)
//	}, retry.DefaultConfig())
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// DoWithResult выполняет операцию, возвращающую значение, с повторными попытками
//
//	order, err := retry.DoWithResult(ctx, func() (*venue.Order, error) {
//	    return v.PlaceMarketOrder(ctx, symbol, side, qty)
//	}, retry.AggressiveConfig())
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var lastErr error
	var zero T

	for attempt := 0; cfg.MaxRetries <= 0 || attempt < cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}

		// Последняя попытка - не ждём
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries-1 {
			break
		}

		select {
		case <-time.After(cfg.delay(attempt)):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// RetryableError - ошибка, которая сама сообщает, имеет ли смысл повтор
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable возвращает false для ошибок, помеченных как постоянные
// (Permanent, Retryable() == false). Невременные сетевые ошибки
// (Temporary() == false) тоже не повторяются. Всё остальное повторяется.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	type temporary interface {
		Temporary() bool
	}
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return true
}

// PermanentError оборачивает ошибку, повтор после которой бессмыслен:
// отказ площадки по балансу, невалидный символ, отклонённый ордер
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// Permanent помечает ошибку как постоянную
//
//	if rejected {
//	    return retry.Permanent(err)
//	}
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
