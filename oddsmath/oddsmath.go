// Package oddsmath converts American-style prices into decimal payout
// multipliers and computes expected value of an offered price against a
// sharp no-vig reference price.
package oddsmath

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// minReferenceMultiplier guards the EV division: a reference multiplier at or
// below this signals a degenerate near-even price and suppresses EV entirely,
// rather than producing a blow-up result.
var minReferenceMultiplier = decimal.NewFromFloat(1.0001)

// AlertThreshold is the strict positive-EV cutoff for interruption surfaces
// (popups, Telegram). Distinct from card display, which treats EV >= 0 as
// qualifying.
var AlertThreshold = decimal.NewFromFloat(0.0001)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ParseAmerican parses the wire forms of an American price: "+105", "-110",
// "105", with surrounding whitespace. Empty strings and "N/A" return nil.
func ParseAmerican(raw string) *int {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "n/a") {
		return nil
	}
	s = strings.TrimPrefix(s, "+")
	// Some feeds quote prices as floats ("105.0"); take the integer part.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v := int(f)
	return &v
}

// PayoutMultiplier converts a signed American price to a decimal payout
// multiplier >= 1. Positive: price/100 + 1. Negative: 100/|price| + 1.
// Nil or zero prices have no multiplier.
func PayoutMultiplier(price *int) (decimal.Decimal, bool) {
	if price == nil || *price == 0 {
		return decimal.Zero, false
	}
	p := decimal.NewFromInt(int64(*price))
	if *price > 0 {
		return p.Div(hundred).Add(one), true
	}
	return hundred.Div(p.Abs()).Add(one), true
}

// EV returns the expected value of the offered price relative to the
// reference price, as a fraction (0.025 = +2.5%). It is unavailable unless
// both prices convert to valid multipliers and the reference multiplier
// exceeds 1.0001.
func EV(reference, offered *int) (decimal.Decimal, bool) {
	refMul, ok := PayoutMultiplier(reference)
	if !ok {
		return decimal.Zero, false
	}
	offMul, ok := PayoutMultiplier(offered)
	if !ok {
		return decimal.Zero, false
	}
	if refMul.LessThanOrEqual(minReferenceMultiplier) {
		return decimal.Zero, false
	}
	return offMul.Div(refMul).Sub(one), true
}

// QualifiesForDisplay reports whether an EV counts as actionable for card
// ordering and auto-dismiss grace. Zero-vig ties count.
func QualifiesForDisplay(ev decimal.Decimal) bool {
	return ev.GreaterThanOrEqual(decimal.Zero)
}

// QualifiesForAlert reports whether an EV should open an alert surface.
// Strictly above the epsilon, to avoid interrupting on break-even lines.
func QualifiesForAlert(ev decimal.Decimal) bool {
	return ev.GreaterThan(AlertThreshold)
}

// FormatPercent renders an EV fraction as "+2.50%" / "-1.20%".
func FormatPercent(ev decimal.Decimal) string {
	pct := ev.Mul(hundred).StringFixed(2)
	if !strings.HasPrefix(pct, "-") {
		pct = "+" + pct
	}
	return pct + "%"
}

// FormatAmerican renders an American price with its sign, or "N/A" for nil.
func FormatAmerican(price *int) string {
	if price == nil {
		return "N/A"
	}
	if *price > 0 {
		return "+" + strconv.Itoa(*price)
	}
	return strconv.Itoa(*price)
}
