package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crossarb/internal/api"
	"crossarb/internal/bot"
	"crossarb/internal/config"
	"crossarb/internal/repository"
	"crossarb/internal/service"
	"crossarb/internal/venue"
	"crossarb/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("database connection failed", utils.Err(err))
	}
	defer db.Close()

	logger.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация репозиториев
	pairRepo := repository.NewPairRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Журнал аудита: неблокирующая запись через очередь
	auditService := service.NewAuditService(auditRepo, 1000, logger)

	// Корневой контекст процесса: отменяется на сигнале остановки
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go auditService.Run(ctx)

	// Адаптеры площадок
	venueA, err := venue.NewVenue(cfg.Venues.VenueA, cfg.Venues.RestURL(cfg.Venues.VenueA), cfg.Venues.WSURL(cfg.Venues.VenueA), logger.Logger)
	if err != nil {
		logger.Fatal("venue A init failed", utils.Err(err))
	}
	venueB, err := venue.NewVenue(cfg.Venues.VenueB, cfg.Venues.RestURL(cfg.Venues.VenueB), cfg.Venues.WSURL(cfg.Venues.VenueB), logger.Logger)
	if err != nil {
		logger.Fatal("venue B init failed", utils.Err(err))
	}

	if err := connectVenue(venueA); err != nil {
		logger.Fatal("venue A connect failed", utils.Venue(venueA.Name()), utils.Err(err))
	}
	defer venueA.Close()
	if err := connectVenue(venueB); err != nil {
		logger.Fatal("venue B connect failed", utils.Venue(venueB.Name()), utils.Err(err))
	}
	defer venueB.Close()

	// Построение реестра пар: пересечение листингов минус аномальные
	registry := bot.NewRegistry(venueA, venueB, cfg.Engine.AbnormalPairThreshold, auditService, logger)
	buildCtx, buildCancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := registry.Build(buildCtx); err != nil {
		buildCancel()
		logger.Fatal("registry build failed", utils.Err(err))
	}
	buildCancel()

	// Персистентный срез реестра для API и анализа между перезапусками
	pairService := service.NewPairService(pairRepo, logger)
	if err := pairService.SyncRegistry(registry.Mappings(), registry.Abnormal()); err != nil {
		logger.Error("registry persist failed", utils.Err(err))
	}

	// Торговое ядро
	engine := bot.NewEngine(cfg, venueA, venueB, registry, auditService, logger)

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx)
	}()

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		StatusService: service.NewStatusService(cfg, engine, registry),
		AuditService:  auditService,
		Logger:        logger,
	}

	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", utils.Err(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-engineDone:
		if err != nil {
			logger.Error("engine stopped", utils.Err(err))
		}
	}

	// Останавливаем ядро и журнал: гейт перестаёт принимать сигналы,
	// очередь аудита дописывается в базу
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	logger.Info("server exited")
}

// connectVenue подключает площадку с учётными данными из окружения.
// Пустые ключи допустимы: публичные потоки работают без аутентификации,
// торговые вызовы вернут ошибку площадки.
func connectVenue(v venue.Venue) error {
	prefix := func(s string) string {
		return fmt.Sprintf("%s_%s", toEnvName(v.Name()), s)
	}
	return v.Connect(
		os.Getenv(prefix("API_KEY")),
		os.Getenv(prefix("API_SECRET")),
		os.Getenv(prefix("API_PASSPHRASE")),
	)
}

func toEnvName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
