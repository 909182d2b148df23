package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе zap
//
// Компоненты получают *Logger через конструкторы. Глобальный логгер
// существует только как fallback для main и коротких утилит.

// LogConfig - настройки логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal (default: info)
	Format      string // json, text (default: json)
	Output      string // путь к файлу, пусто = stderr
	Development bool   // человекочитаемые stacktrace, caller
}

// Logger оборачивает zap.Logger вместе с sugar-вариантом
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// parseLevel конвертирует строковый уровень в zapcore.Level
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создаёт и настраивает логгер.
// Никогда не возвращает nil: при ошибке открытия файла пишет в stderr.
func InitLogger(cfg LogConfig) *Logger {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		if cfg.Development {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
		// при ошибке остаёмся на stderr
	}

	core := zapcore.NewCore(encoder, sink, parseLevel(cfg.Level))

	opts := []zap.Option{}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}

	zl := zap.New(core, opts...)

	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// With возвращает новый логгер с добавленными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent возвращает логгер с полем component
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(zap.String("component", component))
}

// WithVenue возвращает логгер с полем venue
func (l *Logger) WithVenue(venue string) *Logger {
	return l.With(zap.String("venue", venue))
}

// WithSymbol возвращает логгер с полем symbol
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(zap.String("symbol", symbol))
}

// WithPair возвращает логгер с полем pair (формат BTC/USDT)
func (l *Logger) WithPair(pair string) *Logger {
	return l.With(zap.String("pair", pair))
}

// WithGroupID возвращает логгер с полем group_id
func (l *Logger) WithGroupID(id int64) *Logger {
	return l.With(zap.Int64("group_id", id))
}

// Sugar возвращает sugar-вариант логгера
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальный логгер (fallback для main)
// ============================================================

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitGlobalLogger инициализирует глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер, создавая дефолтный при необходимости
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()

	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// Debug логирует через глобальный логгер
func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }

// Info логирует через глобальный логгер
func Info(msg string, fields ...zap.Field) { GetGlobalLogger().Info(msg, fields...) }

// Warn логирует через глобальный логгер
func Warn(msg string, fields ...zap.Field) { GetGlobalLogger().Warn(msg, fields...) }

// Error логирует через глобальный логгер
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

// Fatal логирует через глобальный логгер и завершает процесс
func Fatal(msg string, fields ...zap.Field) { GetGlobalLogger().Fatal(msg, fields...) }

// Debugf логирует с форматированием
func Debugf(template string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(template, args...) }

// Infof логирует с форматированием
func Infof(template string, args ...interface{}) { GetGlobalLogger().sugar.Infof(template, args...) }

// Warnf логирует с форматированием
func Warnf(template string, args ...interface{}) { GetGlobalLogger().sugar.Warnf(template, args...) }

// Errorf логирует с форматированием
func Errorf(template string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(template, args...) }

// ============================================================
// Конструкторы полей для доменных сущностей
// ============================================================

// Venue - поле venue
func Venue(name string) zap.Field { return zap.String("venue", name) }

// Symbol - поле symbol
func Symbol(symbol string) zap.Field { return zap.String("symbol", symbol) }

// Pair - поле pair
func Pair(pair string) zap.Field { return zap.String("pair", pair) }

// OrderID - поле order_id
func OrderID(id string) zap.Field { return zap.String("order_id", id) }

// GroupID - поле group_id
func GroupID(id int64) zap.Field { return zap.Int64("group_id", id) }

// Price - поле price
func Price(price float64) zap.Field { return zap.Float64("price", price) }

// Qty - поле qty
func Qty(qty float64) zap.Field { return zap.Float64("qty", qty) }

// Notional - поле notional
func Notional(notional float64) zap.Field { return zap.Float64("notional", notional) }

// Spread - поле spread (доли, не проценты)
func Spread(spread float64) zap.Field { return zap.Float64("spread", spread) }

// Side - поле side
func Side(side string) zap.Field { return zap.String("side", side) }

// State - поле state
func State(state string) zap.Field { return zap.String("state", state) }

// Latency - поле latency_ms
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - поле request_id
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Component - поле component
func Component(name string) zap.Field { return zap.String("component", name) }

// Переэкспорт стандартных конструкторов zap, чтобы вызывающему коду
// не приходилось импортировать zap ради одного поля

// String - строковое поле
func String(key, value string) zap.Field { return zap.String(key, value) }

// Int - целочисленное поле
func Int(key string, value int) zap.Field { return zap.Int(key, value) }

// Int64 - поле int64
func Int64(key string, value int64) zap.Field { return zap.Int64(key, value) }

// Float64 - поле float64
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }

// Bool - булево поле
func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }

// Err - поле error
func Err(err error) zap.Field { return zap.Error(err) }

// Any - поле произвольного типа
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// fieldsToInterface конвертирует zap.Field в пары key/value для sugar API
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		var value interface{}
		switch {
		case f.Interface != nil:
			value = f.Interface
		case f.String != "":
			value = f.String
		default:
			value = f.Integer
		}
		result = append(result, f.Key, value)
	}
	return result
}
