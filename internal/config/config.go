package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения.
// Загружается один раз при старте, после валидации не меняется.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Venues   VenuesConfig
	Strategy StrategyConfig
	Engine   EngineConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// VenuesConfig - две торговые площадки плюс опциональная хедж-площадка
// для контрактной ноги. Адаптеры создаются один раз и передаются в движок
// явно (никаких глобальных синглтонов).
type VenuesConfig struct {
	VenueA     string // binance
	VenueB     string // okx
	HedgeVenue string // пусто = группы из двух ног, без контрактного шорта

	WSURLBinance   string
	RestURLBinance string
	WSURLOKX       string
	RestURLOKX     string
}

// StrategyConfig - лимиты капитала, пороги спреда, окно повторов
// и риск-контроль. Все проверки гейта работают только с этими полями.
type StrategyConfig struct {
	// Лимиты капитала (USDT)
	MaxAmount        float64 // общий потолок по всем активным группам
	MaxAmountPerPair float64 // потолок на одну пару
	MinAmountPerPair float64 // минимальный размер сделки
	TradeAmount      float64 // целевой номинал одной группы

	// Пороги спреда (доли, 0.003 = 0.3%)
	MinSpread float64 // ниже - не сигнал
	MaxSpread float64 // выше - битый тик, подавляется

	// Окно повторов сигнала: одиночный выброс не торгуется
	OccurrenceWindow    time.Duration
	MinOccurrences      int
	ConsecutiveRequired bool

	// Риск-контроль
	MaxDailyLoss         float64 // потолок реализованного дневного убытка (USDT)
	MaxConsecutiveLosses int     // подряд убыточных групп до остановки
}

// EngineConfig - тайминги исполнения и сверки
type EngineConfig struct {
	ReconcileInterval  time.Duration // период сверки статусов ног
	LegTimeout         time.Duration // возраст группы, после которого остаток отменяется
	OrderTimeout       time.Duration // таймаут одного вызова API площадки
	ImbalanceTolerance float64       // допустимое расхождение ног (доля от объёма)
	TimeoutPolicy      string        // rehedge | unwind - судьба исполненного при отмене
	MaxCorrectiveFails int           // неудачных корректировок до FAILED
	QueueSize          int           // буфер очереди возможностей гейта
	NumShards          int           // шарды хранилища котировок (0 = авто)

	AbnormalPairThreshold float64 // порог статической аномалии при построении реестра
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Политики обработки исполненного объёма при отмене по таймауту
const (
	TimeoutPolicyRehedge = "rehedge" // перевыставить остаток новой группой
	TimeoutPolicyUnwind  = "unwind"  // развернуть исполненное по рынку
)

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "crossarb"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Venues: VenuesConfig{
			VenueA:         getEnv("VENUE_A", "binance"),
			VenueB:         getEnv("VENUE_B", "okx"),
			HedgeVenue:     getEnv("HEDGE_VENUE", ""),
			WSURLBinance:   getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/ws"),
			RestURLBinance: getEnv("BINANCE_REST_URL", "https://api.binance.com"),
			WSURLOKX:       getEnv("OKX_WS_URL", "wss://ws.okx.com:8443/ws/v5/public"),
			RestURLOKX:     getEnv("OKX_REST_URL", "https://www.okx.com"),
		},
		Strategy: StrategyConfig{
			MaxAmount:        getEnvAsFloat("MAX_AMOUNT", 10000),
			MaxAmountPerPair: getEnvAsFloat("MAX_AMOUNT_PER_PAIR", 1000),
			MinAmountPerPair: getEnvAsFloat("MIN_AMOUNT_PER_PAIR", 10),
			TradeAmount:      getEnvAsFloat("TRADE_AMOUNT", 500),

			MinSpread: getEnvAsFloat("MIN_SPREAD", 0.003),
			MaxSpread: getEnvAsFloat("MAX_SPREAD", 0.05),

			OccurrenceWindow:    getEnvAsDuration("OCCURRENCE_WINDOW", 10*time.Second),
			MinOccurrences:      getEnvAsInt("MIN_OCCURRENCES", 2),
			ConsecutiveRequired: getEnvAsBool("CONSECUTIVE_REQUIRED", false),

			MaxDailyLoss:         getEnvAsFloat("MAX_DAILY_LOSS", 500),
			MaxConsecutiveLosses: getEnvAsInt("MAX_CONSECUTIVE_LOSSES", 3),
		},
		Engine: EngineConfig{
			ReconcileInterval:     getEnvAsDuration("RECONCILE_INTERVAL", 500*time.Millisecond),
			LegTimeout:            getEnvAsDuration("LEG_TIMEOUT", 30*time.Second),
			OrderTimeout:          getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
			ImbalanceTolerance:    getEnvAsFloat("IMBALANCE_TOLERANCE", 0.05),
			TimeoutPolicy:         getEnv("TIMEOUT_POLICY", TimeoutPolicyRehedge),
			MaxCorrectiveFails:    getEnvAsInt("MAX_CORRECTIVE_FAILS", 3),
			QueueSize:             getEnvAsInt("GATE_QUEUE_SIZE", 256),
			NumShards:             getEnvAsInt("QUOTE_SHARDS", 0),
			AbnormalPairThreshold: getEnvAsFloat("ABNORMAL_PAIR_THRESHOLD", 0.05),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRanges проверяет числовые диапазоны параметров.
// Невалидная конфигурация отклоняется при загрузке, не в рантайме.
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	s := c.Strategy
	if s.MaxAmount <= 0 {
		return fmt.Errorf("MAX_AMOUNT must be positive, got %v", s.MaxAmount)
	}
	if s.MaxAmountPerPair <= 0 || s.MaxAmountPerPair > s.MaxAmount {
		return fmt.Errorf("MAX_AMOUNT_PER_PAIR must be in (0, MAX_AMOUNT], got %v", s.MaxAmountPerPair)
	}
	if s.MinAmountPerPair < 0 || s.MinAmountPerPair > s.MaxAmountPerPair {
		return fmt.Errorf("MIN_AMOUNT_PER_PAIR must be in [0, MAX_AMOUNT_PER_PAIR], got %v", s.MinAmountPerPair)
	}
	if s.TradeAmount < s.MinAmountPerPair || s.TradeAmount > s.MaxAmountPerPair {
		return fmt.Errorf("TRADE_AMOUNT must be in [MIN_AMOUNT_PER_PAIR, MAX_AMOUNT_PER_PAIR], got %v", s.TradeAmount)
	}

	if s.MinSpread <= 0 {
		return fmt.Errorf("MIN_SPREAD must be positive, got %v", s.MinSpread)
	}
	if s.MaxSpread <= s.MinSpread {
		return fmt.Errorf("MAX_SPREAD must exceed MIN_SPREAD, got min=%v max=%v", s.MinSpread, s.MaxSpread)
	}

	if s.OccurrenceWindow <= 0 {
		return fmt.Errorf("OCCURRENCE_WINDOW must be positive, got %v", s.OccurrenceWindow)
	}
	if s.MinOccurrences < 1 {
		return fmt.Errorf("MIN_OCCURRENCES must be at least 1, got %d", s.MinOccurrences)
	}
	if s.MaxDailyLoss <= 0 {
		return fmt.Errorf("MAX_DAILY_LOSS must be positive, got %v", s.MaxDailyLoss)
	}
	if s.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_LOSSES must be at least 1, got %d", s.MaxConsecutiveLosses)
	}

	e := c.Engine
	if e.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %v", e.ReconcileInterval)
	}
	if e.LegTimeout <= e.ReconcileInterval {
		return fmt.Errorf("LEG_TIMEOUT must exceed RECONCILE_INTERVAL, got %v", e.LegTimeout)
	}
	if e.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", e.OrderTimeout)
	}
	if e.ImbalanceTolerance <= 0 || e.ImbalanceTolerance >= 1 {
		return fmt.Errorf("IMBALANCE_TOLERANCE must be in (0, 1), got %v", e.ImbalanceTolerance)
	}
	if e.TimeoutPolicy != TimeoutPolicyRehedge && e.TimeoutPolicy != TimeoutPolicyUnwind {
		return fmt.Errorf("TIMEOUT_POLICY must be %q or %q, got %q",
			TimeoutPolicyRehedge, TimeoutPolicyUnwind, e.TimeoutPolicy)
	}
	if e.MaxCorrectiveFails < 1 {
		return fmt.Errorf("MAX_CORRECTIVE_FAILS must be at least 1, got %d", e.MaxCorrectiveFails)
	}
	if e.QueueSize < 1 {
		return fmt.Errorf("GATE_QUEUE_SIZE must be at least 1, got %d", e.QueueSize)
	}
	if e.AbnormalPairThreshold <= 0 {
		return fmt.Errorf("ABNORMAL_PAIR_THRESHOLD must be positive, got %v", e.AbnormalPairThreshold)
	}

	if c.Venues.VenueA == "" || c.Venues.VenueB == "" {
		return fmt.Errorf("VENUE_A and VENUE_B are required")
	}
	if strings.EqualFold(c.Venues.VenueA, c.Venues.VenueB) {
		return fmt.Errorf("VENUE_A and VENUE_B must differ, got %q", c.Venues.VenueA)
	}

	return nil
}

// RestURL возвращает REST эндпоинт площадки (пусто = продакшн по умолчанию)
func (v VenuesConfig) RestURL(name string) string {
	switch strings.ToLower(name) {
	case "binance":
		return v.RestURLBinance
	case "okx":
		return v.RestURLOKX
	}
	return ""
}

// WSURL возвращает WebSocket эндпоинт площадки
func (v VenuesConfig) WSURL(name string) string {
	switch strings.ToLower(name) {
	case "binance":
		return v.WSURLBinance
	case "okx":
		return v.WSURLOKX
	}
	return ""
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
