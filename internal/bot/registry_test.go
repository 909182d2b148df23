package bot

import (
	"context"
	"testing"

	"crossarb/internal/models"
	"crossarb/internal/venue"
)

func registryVenues() (*mockVenue, *mockVenue) {
	binance := newMockVenue("binance")
	binance.instruments = []venue.Instrument{
		{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Active: true},
		{Symbol: "ETHUSDT", Base: "ETH", Quote: "USDT", Active: true},
		{Symbol: "DOGEUSDT", Base: "DOGE", Quote: "USDT", Active: true},
		{Symbol: "SOLUSDT", Base: "SOL", Quote: "USDT", Active: false}, // делистинг
		{Symbol: "XRPUSDT", Base: "XRP", Quote: "USDT", Active: true},  // нет на B
	}
	binance.quotes["BTCUSDT"] = &venue.Quote{Symbol: "BTCUSDT", Last: 50000}
	binance.quotes["ETHUSDT"] = &venue.Quote{Symbol: "ETHUSDT", Last: 3000}
	binance.quotes["DOGEUSDT"] = &venue.Quote{Symbol: "DOGEUSDT", Last: 0.1}

	okx := newMockVenue("okx")
	okx.instruments = []venue.Instrument{
		{Symbol: "BTC-USDT", Base: "BTC", Quote: "USDT", Active: true},
		{Symbol: "ETH-USDT", Base: "ETH", Quote: "USDT", Active: true},
		{Symbol: "DOGE-USDT", Base: "DOGE", Quote: "USDT", Active: true},
		{Symbol: "SOL-USDT", Base: "SOL", Quote: "USDT", Active: true},
		{Symbol: "LTC-USDT", Base: "LTC", Quote: "USDT", Active: true}, // нет на A
	}
	okx.quotes["BTC-USDT"] = &venue.Quote{Symbol: "BTC-USDT", Last: 50050}
	okx.quotes["ETH-USDT"] = &venue.Quote{Symbol: "ETH-USDT", Last: 3010}
	// Под тикером DOGE на второй площадке другой актив: цена в 2 раза выше
	okx.quotes["DOGE-USDT"] = &venue.Quote{Symbol: "DOGE-USDT", Last: 0.2}

	return binance, okx
}

func TestRegistryBuild(t *testing.T) {
	binance, okx := registryVenues()
	auditor := &mockAuditor{}
	r := NewRegistry(binance, okx, 0.05, auditor, nil)

	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}

	// BTC и ETH: активны на обеих площадках, цены сходятся.
	// DOGE исключён как аномальный, SOL неактивен на A,
	// XRP и LTC есть только на одной площадке.
	if r.Count() != 2 {
		t.Fatalf("expected 2 pairs, got %d: %v", r.Count(), r.Mappings())
	}

	mapping, ok := r.Lookup(models.PairKey{Base: "BTC", Quote: "USDT"})
	if !ok {
		t.Fatal("BTC/USDT must be registered")
	}
	if mapping.SymbolA != "BTCUSDT" || mapping.SymbolB != "BTC-USDT" {
		t.Errorf("unexpected mapping: %+v", mapping)
	}

	if _, ok := r.Lookup(models.PairKey{Base: "SOL", Quote: "USDT"}); ok {
		t.Error("inactive instrument must not be registered")
	}
	if _, ok := r.Lookup(models.PairKey{Base: "XRP", Quote: "USDT"}); ok {
		t.Error("single-venue pair must not be registered")
	}
}

func TestRegistryExcludesAbnormalPairs(t *testing.T) {
	binance, okx := registryVenues()
	auditor := &mockAuditor{}
	r := NewRegistry(binance, okx, 0.05, auditor, nil)

	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}

	abnormal := r.Abnormal()
	if len(abnormal) != 1 {
		t.Fatalf("expected 1 abnormal pair, got %d", len(abnormal))
	}
	if abnormal[0].Mapping.Key.Base != "DOGE" {
		t.Errorf("expected DOGE excluded, got %s", abnormal[0].Mapping.Key.Base)
	}
	// |0.1 - 0.2| / 0.1 = 1.0
	if !almostEqual(abnormal[0].SpreadRatio, 1.0) {
		t.Errorf("expected ratio 1.0, got %f", abnormal[0].SpreadRatio)
	}

	if _, ok := r.Lookup(models.PairKey{Base: "DOGE", Quote: "USDT"}); ok {
		t.Error("abnormal pair must not be registered")
	}
	if auditor.countByType(models.NotificationTypeBadTick) != 1 {
		t.Error("expected audit event for excluded pair")
	}
}

func TestRegistryLookups(t *testing.T) {
	binance, okx := registryVenues()
	r := NewRegistry(binance, okx, 0.05, nil, nil)
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}

	key := models.PairKey{Base: "ETH", Quote: "USDT"}

	symA, ok := r.SymbolFor(key, VenueRoleA)
	if !ok || symA != "ETHUSDT" {
		t.Errorf("SymbolFor A = %s, %v", symA, ok)
	}
	symB, ok := r.SymbolFor(key, VenueRoleB)
	if !ok || symB != "ETH-USDT" {
		t.Errorf("SymbolFor B = %s, %v", symB, ok)
	}

	gotKey, ok := r.KeyForSymbol(VenueRoleA, "ETHUSDT")
	if !ok || gotKey != key {
		t.Errorf("KeyForSymbol A = %v, %v", gotKey, ok)
	}
	gotKey, ok = r.KeyForSymbol(VenueRoleB, "ETH-USDT")
	if !ok || gotKey != key {
		t.Errorf("KeyForSymbol B = %v, %v", gotKey, ok)
	}

	if _, ok := r.KeyForSymbol(VenueRoleA, "UNKNOWN"); ok {
		t.Error("unknown symbol must not resolve")
	}

	symbolsA, symbolsB := r.Symbols()
	if len(symbolsA) != 2 || len(symbolsB) != 2 {
		t.Errorf("expected 2 symbols per venue, got %d/%d", len(symbolsA), len(symbolsB))
	}
}
