// Package common: format.go отвечает за отображение сумм токенов.
// Длинные серии нулей после запятой сворачиваются: 0.0000037 → "0.0(5)37".
package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// displayPlaces: сколько знаков после запятой отображаем
	displayPlaces = 10
	// compactAfterZeros: сворачиваем, если ведущих нулей больше этого числа
	compactAfterZeros = 3
)

// FormatValue превращает сумму в строку для отображения.
//
// Правила:
//   - 0 → "0"
//   - округление до 10 знаков, хвостовые нули отбрасываются
//   - если целая часть 0 и дробная начинается больше чем с трёх нулей,
//     нули сворачиваются в "0.0(<число нулей>)<остальные цифры>"
//
// Примеры:
//
//	FormatValue(0.0000037) → "0.0(5)37"
//	FormatValue(0.0001)    → "0.0001"
//	FormatValue(12.5)      → "12.5"
func FormatValue(v decimal.Decimal) string {
	v = v.Round(displayPlaces)
	if v.IsZero() {
		return "0"
	}
	if v.IsNegative() {
		return "-" + FormatValue(v.Neg())
	}

	s := v.String()
	intPart, frac, ok := strings.Cut(s, ".")
	if !ok || intPart != "0" {
		return s
	}

	zeros := len(frac) - len(strings.TrimLeft(frac, "0"))
	if zeros <= compactAfterZeros {
		return s
	}
	return fmt.Sprintf("0.0(%d)%s", zeros, frac[zeros:])
}

// FormatAmount добавляет символ актива: "0.0(5)109 WBTC".
func FormatAmount(asset string, v decimal.Decimal) string {
	return FormatValue(v) + " " + asset
}

// FormatSigned создаёт строку вида "+10 HONEY" или "-12 USDT" для истории.
func FormatSigned(asset string, v decimal.Decimal) string {
	if v.IsNegative() {
		return FormatAmount(asset, v)
	}
	return "+" + FormatAmount(asset, v)
}

// NormalizeAsset приводит символ актива к верхнему регистру без пробелов.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
