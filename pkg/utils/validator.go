package utils

import (
	"fmt"
	"strings"
)

// validator.go - валидация входных данных API и конфигурации

const (
	symbolMinLen = 2
	symbolMaxLen = 30
)

// ValidateSymbol проверяет формат символа (BTCUSDT, BTC-USDT, BTC/USDT).
// Допускаются латинские буквы, цифры и разделители - _ /
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is empty")
	}
	if len(symbol) < symbolMinLen {
		return fmt.Errorf("symbol %q too short", symbol)
	}
	if len(symbol) > symbolMaxLen {
		return fmt.Errorf("symbol %q too long", symbol)
	}

	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '/':
		default:
			return fmt.Errorf("symbol %q contains invalid character %q", symbol, r)
		}
	}

	return nil
}

// ValidatePair проверяет пару в формате BASE/QUOTE и возвращает её части
func ValidatePair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("pair %q must have form BASE/QUOTE", pair)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}

// ValidateSide проверяет сторону ордера
func ValidateSide(side string) error {
	switch strings.ToLower(side) {
	case "buy", "sell":
		return nil
	default:
		return fmt.Errorf("invalid side %q, must be buy or sell", side)
	}
}

// ValidateAmount проверяет, что объём положительный
func ValidateAmount(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %v", amount)
	}
	return nil
}

// ValidateSpread проверяет, что порог спреда в разумных долях (0, 1]
func ValidateSpread(spread float64) error {
	if spread <= 0 {
		return fmt.Errorf("spread threshold must be positive, got %v", spread)
	}
	if spread > 1 {
		return fmt.Errorf("spread threshold %v is a fraction, must be <= 1", spread)
	}
	return nil
}
