package service

import (
	"errors"
	"testing"
	"time"

	"crossarb/internal/models"
)

func TestPairServiceSyncRegistry(t *testing.T) {
	store := &mockPairStore{}
	s := NewPairService(store, nil)

	mappings := []models.PairMapping{
		{Key: models.PairKey{Base: "BTC", Quote: "USDT"}, SymbolA: "BTCUSDT", SymbolB: "BTC-USDT", CreatedAt: time.Now()},
		{Key: models.PairKey{Base: "ETH", Quote: "USDT"}, SymbolA: "ETHUSDT", SymbolB: "ETH-USDT", CreatedAt: time.Now()},
	}
	abnormal := []models.AbnormalPair{
		{Mapping: models.PairMapping{Key: models.PairKey{Base: "DOGE", Quote: "USDT"}}, PriceA: 0.1, PriceB: 0.2, SpreadRatio: 1.0},
	}

	if err := s.SyncRegistry(mappings, abnormal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, _ := s.List()
	if len(saved) != 2 {
		t.Errorf("expected 2 mappings persisted, got %d", len(saved))
	}

	ab, _ := s.ListAbnormal()
	if len(ab) != 1 {
		t.Errorf("expected 1 abnormal pair persisted, got %d", len(ab))
	}
}

func TestPairServiceSyncRegistryStoreError(t *testing.T) {
	store := &mockPairStore{replaceErr: errStoreDown}
	s := NewPairService(store, nil)

	err := s.SyncRegistry([]models.PairMapping{}, nil)
	if !errors.Is(err, errStoreDown) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}
