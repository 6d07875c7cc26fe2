package oddsmath

import (
	"testing"

	"github.com/shopspring/decimal"
)

func intp(v int) *int { return &v }

func TestPayoutMultiplier(t *testing.T) {
	tests := []struct {
		name  string
		price *int
		want  float64
		ok    bool
	}{
		{"Positive +100", intp(100), 2.0, true},
		{"Positive +150", intp(150), 2.5, true},
		{"Positive +200", intp(200), 3.0, true},
		{"Negative -110", intp(-110), 1.909090909, true},
		{"Negative -200", intp(-200), 1.5, true},
		{"Negative -100", intp(-100), 2.0, true},
		{"Zero", intp(0), 0, false},
		{"Nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PayoutMultiplier(tt.price)
			if ok != tt.ok {
				t.Fatalf("PayoutMultiplier ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			want := decimal.NewFromFloat(tt.want)
			if got.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
				t.Errorf("PayoutMultiplier(%d) = %s, want %f", *tt.price, got, tt.want)
			}
		})
	}
}

func TestPayoutMultiplierMonotonic(t *testing.T) {
	// Higher positive prices pay more.
	prev, _ := PayoutMultiplier(intp(100))
	for p := 110; p <= 1000; p += 10 {
		cur, ok := PayoutMultiplier(intp(p))
		if !ok {
			t.Fatalf("PayoutMultiplier(+%d) not ok", p)
		}
		if !cur.GreaterThan(prev) {
			t.Fatalf("multiplier not increasing at +%d: %s <= %s", p, cur, prev)
		}
		prev = cur
	}

	// More negative prices approach 1 from above.
	prev, _ = PayoutMultiplier(intp(-100))
	for p := -110; p >= -1000; p -= 10 {
		cur, ok := PayoutMultiplier(intp(p))
		if !ok {
			t.Fatalf("PayoutMultiplier(%d) not ok", p)
		}
		if !cur.LessThan(prev) {
			t.Fatalf("multiplier not decreasing at %d: %s >= %s", p, cur, prev)
		}
		if !cur.GreaterThan(decimal.NewFromInt(1)) {
			t.Fatalf("multiplier at %d fell to %s, must stay above 1", p, cur)
		}
		prev = cur
	}
}

func TestEV(t *testing.T) {
	tests := []struct {
		name      string
		reference *int
		offered   *int
		want      float64
		ok        bool
	}{
		// (205/100) / (210/110) - 1
		{"Total Over 7.5 scenario", intp(-110), intp(105), 205.0/100.0/(210.0/110.0) - 1, true},
		{"Negative EV", intp(100), intp(-120), (100.0/120.0 + 1) / 2.0 - 1, true},
		{"Even reference, offered missing", intp(-100), nil, 0, false},
		{"Reference missing", nil, intp(105), 0, false},
		{"Both missing", nil, nil, 0, false},
		{"Zero reference", intp(0), intp(105), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EV(tt.reference, tt.offered)
			if ok != tt.ok {
				t.Fatalf("EV ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			want := decimal.NewFromFloat(tt.want)
			if got.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
				t.Errorf("EV = %s, want %f", got, tt.want)
			}
		})
	}
}

func TestParseAmerican(t *testing.T) {
	tests := []struct {
		raw  string
		want *int
	}{
		{"+105", intp(105)},
		{"-110", intp(-110)},
		{"105", intp(105)},
		{" -200 ", intp(-200)},
		{"105.0", intp(105)},
		{"N/A", nil},
		{"n/a", nil},
		{"", nil},
		{"abc", nil},
	}

	for _, tt := range tests {
		got := ParseAmerican(tt.raw)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("ParseAmerican(%q) = %d, want nil", tt.raw, *got)
		case tt.want != nil && got == nil:
			t.Errorf("ParseAmerican(%q) = nil, want %d", tt.raw, *tt.want)
		case tt.want != nil && *got != *tt.want:
			t.Errorf("ParseAmerican(%q) = %d, want %d", tt.raw, *got, *tt.want)
		}
	}
}

func TestThresholds(t *testing.T) {
	if !QualifiesForDisplay(decimal.Zero) {
		t.Error("zero EV must qualify for display")
	}
	if QualifiesForAlert(decimal.Zero) {
		t.Error("zero EV must not open an alert surface")
	}
	if QualifiesForAlert(AlertThreshold) {
		t.Error("EV exactly at the alert threshold must not fire")
	}
	if !QualifiesForAlert(decimal.NewFromFloat(0.0002)) {
		t.Error("EV above the alert threshold must fire")
	}
	if QualifiesForDisplay(decimal.NewFromFloat(-0.01)) {
		t.Error("negative EV must not qualify for display")
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatPercent(decimal.NewFromFloat(0.0239)); got != "+2.39%" {
		t.Errorf("FormatPercent = %q", got)
	}
	if got := FormatPercent(decimal.NewFromFloat(-0.012)); got != "-1.20%" {
		t.Errorf("FormatPercent = %q", got)
	}
	if got := FormatAmerican(intp(105)); got != "+105" {
		t.Errorf("FormatAmerican = %q", got)
	}
	if got := FormatAmerican(intp(-110)); got != "-110" {
		t.Errorf("FormatAmerican = %q", got)
	}
	if got := FormatAmerican(nil); got != "N/A" {
		t.Errorf("FormatAmerican(nil) = %q", got)
	}
}
