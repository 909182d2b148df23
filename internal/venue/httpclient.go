package venue

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// HTTPClientConfig содержит настройки HTTP клиента для REST API площадок
type HTTPClientConfig struct {
	// Таймауты соединения
	ConnectTimeout time.Duration // таймаут установки TCP соединения (default: 5s)
	ReadTimeout    time.Duration // таймаут чтения ответа (default: 10s)
	TotalTimeout   time.Duration // общий таймаут операции (default: 30s)

	// Connection pooling
	MaxIdleConns        int           // максимум idle соединений (default: 100)
	MaxIdleConnsPerHost int           // максимум idle соединений на хост (default: 10)
	MaxConnsPerHost     int           // максимум соединений на хост (default: 20)
	IdleConnTimeout     time.Duration // таймаут простоя соединения (default: 90s)

	// TLS
	TLSHandshakeTimeout time.Duration // таймаут TLS handshake (default: 5s)

	// Keep-Alive
	DisableKeepAlives bool          // отключить Keep-Alive (default: false)
	KeepAliveInterval time.Duration // интервал Keep-Alive (default: 30s)
}

// DefaultHTTPClientConfig возвращает конфигурацию по умолчанию.
// Параметры подобраны под торговые операции с низкой latency.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		TotalTimeout:   30 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout: 5 * time.Second,

		DisableKeepAlives: false,
		KeepAliveInterval: 30 * time.Second,
	}
}

// HTTPClient представляет HTTP клиент с connection pooling для биржевых API.
// Каждый адаптер площадки получает собственный экземпляр через конструктор:
// глобального клиента нет, зависимости передаются явно.
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// NewHTTPClient создаёт новый HTTP клиент с заданной конфигурацией
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.KeepAliveInterval,
	}

	transport := &http.Transport{
		// Dialer с таймаутом соединения, deadline контекста имеет приоритет
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if deadline, ok := ctx.Deadline(); ok {
				timeout := time.Until(deadline)
				if timeout < config.ConnectTimeout {
					dialerWithTimeout := &net.Dialer{
						Timeout:   timeout,
						KeepAlive: config.KeepAliveInterval,
					}
					return dialerWithTimeout.DialContext(ctx, network, addr)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},

		// Connection pooling (Keep-Alive)
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		DisableKeepAlives: config.DisableKeepAlives,

		// Оптимизации для скорости
		DisableCompression:    true, // отключаем сжатие для минимизации latency
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.TotalTimeout, // общий таймаут как fallback
	}

	return &HTTPClient{
		client: client,
		config: config,
	}
}

// Do выполняет HTTP запрос. Таймауты контролируются через context запроса.
func (hc *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return hc.client.Do(req)
}

// DoWithTimeout выполняет HTTP запрос с кастомным таймаутом
func (hc *HTTPClient) DoWithTimeout(req *http.Request, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	return hc.client.Do(req.WithContext(ctx))
}

// GetConfig возвращает текущую конфигурацию клиента
func (hc *HTTPClient) GetConfig() HTTPClientConfig {
	return hc.config
}

// Close закрывает все idle соединения.
// Вызывается при graceful shutdown.
func (hc *HTTPClient) Close() {
	if transport, ok := hc.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
