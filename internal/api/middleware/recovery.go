package middleware

import (
	"net/http"
	"runtime/debug"

	"crossarb/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Перехватывает panic, логирует ошибку со stack trace и возвращает
// клиенту 500, не роняя процесс: торговое ядро работает в том же
// процессе, и паника в API не должна останавливать исполнение.
func Recovery(logger *utils.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic in handler",
						utils.Any("panic", err),
						utils.String("path", r.URL.Path),
						utils.String("stack", string(debug.Stack())))

					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
