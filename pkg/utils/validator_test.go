package utils

import (
	"testing"
)

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		wantErr bool
	}{
		// Valid symbols
		{"valid BTCUSDT", "BTCUSDT", false},
		{"valid ETHUSDT", "ETHUSDT", false},
		{"valid lowercase", "btcusdt", false},
		{"valid with hyphen", "BTC-USDT", false},
		{"valid with slash", "BTC/USDT", false},
		{"valid swap", "BTC-USDT-SWAP", false},
		{"valid short", "XY", false},
		{"valid with numbers", "1INCH", false},

		// Invalid symbols
		{"empty", "", true},
		{"single char", "B", true},
		{"too long", "BTCUSDTBTCUSDTBTCUSDTBTCUSDTXXX", true},
		{"special chars", "BTC@USDT", true},
		{"spaces", "BTC USDT", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSymbol(tt.symbol)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSymbol(%q) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePair(t *testing.T) {
	tests := []struct {
		name      string
		pair      string
		wantBase  string
		wantQuote string
		wantErr   bool
	}{
		{"valid", "BTC/USDT", "BTC", "USDT", false},
		{"lowercase normalized", "eth/usdt", "ETH", "USDT", false},
		{"missing quote", "BTC/", "", "", true},
		{"missing base", "/USDT", "", "", true},
		{"no separator", "BTCUSDT", "", "", true},
		{"too many parts", "BTC/USDT/EXTRA", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, quote, err := ValidatePair(tt.pair)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePair(%q) error = %v, wantErr %v", tt.pair, err, tt.wantErr)
			}
			if base != tt.wantBase || quote != tt.wantQuote {
				t.Errorf("ValidatePair(%q) = (%q, %q), want (%q, %q)",
					tt.pair, base, quote, tt.wantBase, tt.wantQuote)
			}
		})
	}
}

func TestValidateSide(t *testing.T) {
	tests := []struct {
		side    string
		wantErr bool
	}{
		{"buy", false},
		{"sell", false},
		{"BUY", false},
		{"Sell", false},
		{"long", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.side, func(t *testing.T) {
			err := ValidateSide(tt.side)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSide(%q) error = %v, wantErr %v", tt.side, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	if err := ValidateAmount(100); err != nil {
		t.Errorf("ValidateAmount(100) unexpected error: %v", err)
	}
	if err := ValidateAmount(0); err == nil {
		t.Error("ValidateAmount(0) expected error")
	}
	if err := ValidateAmount(-1); err == nil {
		t.Error("ValidateAmount(-1) expected error")
	}
}

func TestValidateSpread(t *testing.T) {
	tests := []struct {
		name    string
		spread  float64
		wantErr bool
	}{
		{"typical threshold", 0.003, false},
		{"upper bound", 1.0, false},
		{"zero", 0, true},
		{"negative", -0.01, true},
		{"percent instead of fraction", 3.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpread(tt.spread)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSpread(%v) error = %v, wantErr %v", tt.spread, err, tt.wantErr)
			}
		})
	}
}
