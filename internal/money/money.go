// Package money содержит разбор и форматирование сумм Gold.
//
// Внутри сервиса суммы всегда представлены целым числом сотых долей Gold,
// дробная арифметика на float не используется.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAmount возвращается при некорректной сумме: нечисловой ввод,
// ноль, отрицательное значение или более двух знаков после разделителя.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount разбирает введённую пользователем сумму в сотые доли Gold.
// Разделителем дробной части может быть как точка, так и запятая.
// Сумма должна быть строго положительной.
func ParseAmount(text string) (int64, error) {
	cents, err := parseCents(text)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseSignedAmount разбирает сумму с необязательным знаком "-".
// Используется административной корректировкой баланса; ноль недопустим.
func ParseSignedAmount(text string) (int64, error) {
	text = strings.TrimSpace(text)
	negative := false
	if strings.HasPrefix(text, "-") {
		negative = true
		text = text[1:]
	}

	cents, err := parseCents(text)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	if negative {
		return -cents, nil
	}
	return cents, nil
}

func parseCents(text string) (int64, error) {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, ",", ".")
	if text == "" {
		return 0, ErrInvalidAmount
	}

	whole := text
	frac := ""
	if i := strings.IndexByte(text, '.'); i >= 0 {
		whole = text[:i]
		frac = text[i+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return 0, ErrInvalidAmount
		}
	}

	if whole == "" && frac == "" {
		return 0, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, ErrInvalidAmount
	}

	// Знаки разбираются уровнем выше, здесь допустимы только цифры.
	wholeVal, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	fracVal := uint64(0)
	if frac != "" {
		fracVal, err = strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		if len(frac) == 1 {
			fracVal *= 10
		}
	}

	if wholeVal > (1<<62)/100 {
		return 0, ErrInvalidAmount
	}

	return int64(wholeVal)*100 + int64(fracVal), nil
}

// FormatCents форматирует сумму в сотых долях Gold в строку для сообщений.
// Целые суммы выводятся без дробной части.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	if cents%100 == 0 {
		return fmt.Sprintf("%s%d", sign, cents/100)
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
