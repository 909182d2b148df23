package models

import "time"

// PairKey - уникальный ключ инструмента: базовая и котируемая валюты.
// Неизменяем после регистрации. Используется как ключ map во всём ядре.
type PairKey struct {
	Base  string `json:"base"`  // BTC
	Quote string `json:"quote"` // USDT
}

// String возвращает представление вида "BTC/USDT" для логов и метрик
func (k PairKey) String() string {
	return k.Base + "/" + k.Quote
}

// PairMapping - соответствие пары её символам на двух площадках.
// Строится один раз при старте из пересечения листингов (registry),
// после этого только читается.
type PairMapping struct {
	Key       PairKey   `json:"key"`
	SymbolA   string    `json:"symbol_a"` // символ на площадке A
	SymbolB   string    `json:"symbol_b"` // символ на площадке B
	CreatedAt time.Time `json:"created_at"`
}

// AbnormalPair - пара, исключённая из регистрации из-за статической
// аномалии цен (один тикер - разные активы на разных площадках)
type AbnormalPair struct {
	Mapping     PairMapping `json:"mapping"`
	PriceA      float64     `json:"price_a"`
	PriceB      float64     `json:"price_b"`
	SpreadRatio float64     `json:"spread_ratio"` // |a-b| / min(a,b)
}
