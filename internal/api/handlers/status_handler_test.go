package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crossarb/internal/service"
)

// ============ StatusHandler Tests ============

func TestStatusHandler_GetStatus(t *testing.T) {
	mockSvc := NewMockStatusService()
	handler := NewStatusHandler(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	handler.GetStatus(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var status service.Status
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if status.VenueA != "binance" || status.VenueB != "okx" {
		t.Errorf("unexpected venues: %s / %s", status.VenueA, status.VenueB)
	}
	if status.MinSpread != 0.003 {
		t.Errorf("unexpected min_spread: %v", status.MinSpread)
	}
}

// ============ PairHandler Tests ============

func TestPairHandler_GetPairs(t *testing.T) {
	t.Run("returns registered pairs", func(t *testing.T) {
		mockSvc := NewMockStatusService()
		handler := NewPairHandler(mockSvc)

		mockSvc.AddMapping("BTC", "USDT", "BTCUSDT", "BTC-USDT")
		mockSvc.AddMapping("ETH", "USDT", "ETHUSDT", "ETH-USDT")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs", nil)
		w := httptest.NewRecorder()

		handler.GetPairs(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response GetPairsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response.Total != 2 {
			t.Errorf("expected total 2, got %d", response.Total)
		}
		if response.Pairs[0].SymbolA != "BTCUSDT" {
			t.Errorf("unexpected symbol_a: %s", response.Pairs[0].SymbolA)
		}
	})

	t.Run("returns empty list without pairs", func(t *testing.T) {
		handler := NewPairHandler(NewMockStatusService())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs", nil)
		w := httptest.NewRecorder()

		handler.GetPairs(w, req)

		var response GetPairsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response.Total != 0 {
			t.Errorf("expected total 0, got %d", response.Total)
		}
	})
}
