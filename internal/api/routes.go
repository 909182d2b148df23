package api

import (
	"net/http"

	"crossarb/internal/api/handlers"
	"crossarb/internal/api/middleware"
	"crossarb/internal/service"
	"crossarb/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	StatusService *service.StatusService
	AuditService  *service.AuditService
	Logger        *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
// Организует версионирование API (v1).
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /status
//	│   └── GET / - снимок состояния процесса
//	├── /pairs/
//	│   ├── GET / - зарегистрированные пары
//	│   └── GET /abnormal - исключённые пары
//	├── /groups/
//	│   ├── GET / - группы связанных ордеров
//	│   ├── GET /{id} - одна группа
//	│   └── GET /{id}/audit - журнал событий группы
//	└── /notifications/
//	    ├── GET / - журнал аудита
//	    └── DELETE / - очистить журнал
//
// /metrics - Prometheus метрики
// /health  - проверка живости
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	logger := utils.GetGlobalLogger()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var statusHandler *handlers.StatusHandler
	var pairHandler *handlers.PairHandler
	var groupHandler *handlers.GroupHandler
	if deps != nil && deps.StatusService != nil {
		statusHandler = handlers.NewStatusHandler(deps.StatusService)
		pairHandler = handlers.NewPairHandler(deps.StatusService)
		if deps.AuditService != nil {
			groupHandler = handlers.NewGroupHandler(deps.StatusService, deps.AuditService)
		}
	}

	var notificationHandler *handlers.NotificationHandler
	if deps != nil && deps.AuditService != nil {
		notificationHandler = handlers.NewNotificationHandler(deps.AuditService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Status routes
	if statusHandler != nil {
		api.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
	}

	// Pair routes
	if pairHandler != nil {
		api.HandleFunc("/pairs", pairHandler.GetPairs).Methods("GET")
		api.HandleFunc("/pairs/abnormal", pairHandler.GetAbnormalPairs).Methods("GET")
	}

	// Group routes
	if groupHandler != nil {
		api.HandleFunc("/groups", groupHandler.GetGroups).Methods("GET")
		api.HandleFunc("/groups/{id}", groupHandler.GetGroup).Methods("GET")
		api.HandleFunc("/groups/{id}/audit", groupHandler.GetGroupAudit).Methods("GET")
	}

	// Notification routes
	if notificationHandler != nil {
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		api.HandleFunc("/notifications", notificationHandler.ClearNotifications).Methods("DELETE")
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
