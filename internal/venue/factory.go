package venue

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SupportedVenues - список поддерживаемых площадок
var SupportedVenues = []string{
	"binance",
	"okx",
}

// NewVenue создаёт новый экземпляр площадки по имени.
// Пустые restURL/wsURL заменяются продакшн-эндпоинтами площадки.
func NewVenue(name, restURL, wsURL string, logger *zap.Logger) (Venue, error) {
	switch strings.ToLower(name) {
	case "binance":
		return NewBinance(restURL, wsURL, logger), nil
	case "okx":
		return NewOKX(restURL, wsURL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported venue: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли площадка
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedVenues {
		if name == supported {
			return true
		}
	}
	return false
}
