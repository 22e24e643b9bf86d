package core

import (
	"github.com/dustin/go-humanize"
)

// YenSign prefixes every formatted amount.
const YenSign = "¥"

// FormatAmount renders m in the yen convention: "¥1,234" for whole amounts
// and "¥1,234.50" when a fractional part is present. Values with more than
// two fractional digits are rounded half away from zero to two digits first.
// Negative values get a leading minus: "-¥1,234".
func FormatAmount(m Money) string {
	d := m.d.Round(AmountScale)
	if d.IsNegative() {
		return "-" + formatYen(NewMoney(d.Abs()))
	}
	return formatYen(NewMoney(d))
}

// FormatBalance renders a signed balance. Non-negative values look like
// FormatAmount; negative values are shown as "(¥1,234)" without a minus.
// The sign is only dropped from the text, never from the value.
func FormatBalance(m Money) string {
	d := m.d.Round(AmountScale)
	if d.IsNegative() {
		return "(" + formatYen(NewMoney(d.Abs())) + ")"
	}
	return formatYen(NewMoney(d))
}

// FormatAmountString parses s and formats it with FormatAmount.
func FormatAmountString(s string) (string, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return "", err
	}
	return FormatAmount(m), nil
}

// FormatBalanceString parses s and formats it with FormatBalance.
func FormatBalanceString(s string) (string, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return "", err
	}
	return FormatBalance(m), nil
}

// formatYen expects a non-negative value already rounded to AmountScale.
func formatYen(m Money) string {
	whole := m.d.Truncate(0)
	out := YenSign + humanize.BigComma(whole.BigInt())
	frac := m.d.Sub(whole)
	if frac.IsZero() {
		return out
	}
	// "0.50" -> ".50"
	return out + frac.StringFixed(AmountScale)[1:]
}
