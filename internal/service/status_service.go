package service

import (
	"time"

	"crossarb/internal/bot"
	"crossarb/internal/config"
	"crossarb/internal/models"
)

// Status - снимок состояния процесса для API
type Status struct {
	Uptime          string  `json:"uptime"`
	VenueA          string  `json:"venue_a"`
	VenueB          string  `json:"venue_b"`
	RegisteredPairs int     `json:"registered_pairs"`
	QuotedPairs     int     `json:"quoted_pairs"`
	ActiveGroups    int     `json:"active_groups"`
	ReservedCapital float64 `json:"reserved_capital"`
	MinSpread       float64 `json:"min_spread"`
	MaxSpread       float64 `json:"max_spread"`
}

// StatusService - агрегация состояния ядра для API
type StatusService struct {
	cfg      *config.Config
	engine   *bot.Engine
	registry *bot.Registry
}

// NewStatusService создает сервис статуса
func NewStatusService(cfg *config.Config, engine *bot.Engine, registry *bot.Registry) *StatusService {
	return &StatusService{
		cfg:      cfg,
		engine:   engine,
		registry: registry,
	}
}

// Status возвращает текущий снимок состояния
func (s *StatusService) Status() Status {
	return Status{
		Uptime:          s.engine.Uptime().Round(time.Second).String(),
		VenueA:          s.cfg.Venues.VenueA,
		VenueB:          s.cfg.Venues.VenueB,
		RegisteredPairs: s.registry.Count(),
		QuotedPairs:     s.engine.Store().Count(),
		ActiveGroups:    s.engine.Hedge().ActiveCount(),
		ReservedCapital: s.engine.Gate().Reserved(),
		MinSpread:       s.cfg.Strategy.MinSpread,
		MaxSpread:       s.cfg.Strategy.MaxSpread,
	}
}

// Groups возвращает все группы процесса
func (s *StatusService) Groups() []models.HedgedOrderGroup {
	return s.engine.Hedge().Groups()
}

// Group возвращает группу по ID
func (s *StatusService) Group(id int64) (models.HedgedOrderGroup, bool) {
	return s.engine.Hedge().Group(id)
}

// Mappings возвращает реестр пар из памяти ядра
func (s *StatusService) Mappings() []models.PairMapping {
	return s.registry.Mappings()
}

// Abnormal возвращает исключённые пары из памяти ядра
func (s *StatusService) Abnormal() []models.AbnormalPair {
	return s.registry.Abnormal()
}
