package utils

import (
	"math"
)

// math.go - математические утилиты торгового ядра
//
// Все функции чистые, без побочных эффектов.
// Спреды везде в долях (0.003 = 0.3%), не в процентах.

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Используется для округления объёма ордера до минимального шага площадки.
// Округление вниз гарантирует, что мы не превысим доступные средства.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// RoundToLotSizeUp округляет значение ВВЕРХ до ближайшего кратного lotSize.
// Используется когда нужно гарантировать минимальный объём (minQty).
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize) * lotSize
}

// CrossSpread возвращает спред продажи по bid одной площадки против
// покупки по ask другой.
//
// Формула:
//
//	spread = bid / ask - 1
//
// Положительное значение означает, что продажа дороже покупки: купив
// по ask и продав по bid, получаем spread долей прибыли до комиссий.
//
// Возвращает 0 если ask <= 0 или bid <= 0.
func CrossSpread(bid, ask float64) float64 {
	if ask <= 0 || bid <= 0 {
		return 0
	}
	return bid/ask - 1
}

// StaticDeviation возвращает относительное расхождение двух цен:
//
//	|a - b| / min(a, b)
//
// Используется для выявления пар, где один тикер соответствует разным
// активам на разных площадках. Возвращает 0 если любая из цен <= 0.
func StaticDeviation(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return math.Abs(a-b) / math.Min(a, b)
}

// CalculateWeightedAverage вычисляет средневзвешенное значение.
//
// Используется для объединения средних цен исполнения нескольких
// ордеров одной ноги (исходный + корректирующие/замещающие):
//
//	avg = Σ(price_i × qty_i) / Σ(qty_i)
//
// Возвращает 0 если входные данные некорректны.
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}

	var sumWeighted, sumWeights float64
	for i := range values {
		if weights[i] < 0 {
			continue
		}
		sumWeighted += values[i] * weights[i]
		sumWeights += weights[i]
	}

	if sumWeights == 0 {
		return 0
	}
	return sumWeighted / sumWeights
}

// Abs возвращает абсолютное значение числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Min возвращает минимум из двух чисел.
func Min(a, b float64) float64 {
	return math.Min(a, b)
}

// Max возвращает максимум из двух чисел.
func Max(a, b float64) float64 {
	return math.Max(a, b)
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
