// Package money сравнивает и масштабирует денежные суммы с учётом валюты.
// Все вычисления идут через decimal, float не используется.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Количество знаков после запятой по валютам. Неизвестная валюта считается двухзнаковой.
var currencyDecimals = map[string]int32{
	"VND": 0,
	"JPY": 0,
	"KRW": 0,
	"USD": 2,
	"EUR": 2,
}

const defaultDecimals int32 = 2

// Decimals возвращает число знаков после запятой для валюты
func Decimals(currency string) int32 {
	if d, ok := currencyDecimals[strings.ToUpper(currency)]; ok {
		return d
	}
	return defaultDecimals
}

// CompareAmounts сравнивает суммы после округления до точности валюты.
// Возвращает -1, 0 или 1.
func CompareAmounts(a, b decimal.Decimal, currency string) int {
	places := Decimals(currency)
	return a.Round(places).Cmp(b.Round(places))
}

// Representable сообщает, выражается ли сумма в единицах валюты без остатка.
// Для VND 99.99 не выражается: шлюз прислал дробные донги.
func Representable(a decimal.Decimal, currency string) bool {
	return a.Equal(a.Truncate(Decimals(currency)))
}

// Parse разбирает сумму из строки шлюза
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// FromMinor переводит сумму в минорных единицах шлюза в обычную: 10000 при scale 100 -> 100
func FromMinor(minor decimal.Decimal, scale int64) decimal.Decimal {
	if scale <= 1 {
		return minor
	}
	return minor.Div(decimal.NewFromInt(scale))
}

// ToMinor округляет до двух знаков и умножает на scale, результат целый
func ToMinor(amount decimal.Decimal, scale int64) int64 {
	return amount.Round(2).Mul(decimal.NewFromInt(scale)).Round(0).IntPart()
}
