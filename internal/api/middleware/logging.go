package middleware

import (
	"net/http"
	"time"

	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// responseWriter оборачивает http.ResponseWriter для захвата
// статус кода и размера ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging - middleware для логирования HTTP запросов
//
// Логирует метод, путь, статус код, длительность обработки,
// адрес клиента и размер ответа. Ошибки сервера (5xx) пишутся
// уровнем warn, остальное - debug, чтобы не засорять журнал
// опросами статуса.
func Logging(logger *utils.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				utils.String("method", r.Method),
				utils.String("path", r.URL.Path),
				utils.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				utils.String("remote", r.RemoteAddr),
				zap.Int64("bytes", wrapped.written),
			}

			if wrapped.statusCode >= http.StatusInternalServerError {
				logger.Warn("request failed", fields...)
			} else {
				logger.Debug("request", fields...)
			}
		})
	}
}
