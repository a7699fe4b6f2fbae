package report

import (
	"testing"
	"time"

	"telegram_loyalty_bot/pkg/errors"
)

func TestParsePeriod(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		in       string
		from, to time.Time
	}{
		{"", day(3, 9), day(3, 16)},
		{"7d", day(3, 9), day(3, 16)},
		{"1d", day(3, 15), day(3, 16)},
		{"today", day(3, 15), day(3, 16)},
		{"month", day(3, 1), day(4, 1)},
		{"all", time.Time{}, time.Time{}},
		{"2024-02-01:2024-02-29", day(2, 1), day(3, 1)},
		{" 30D ", day(2, 15), day(3, 16)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePeriod(tt.in, now)
			if err != nil {
				t.Fatal(err)
			}
			if !p.From.Equal(tt.from) || !p.To.Equal(tt.to) {
				t.Errorf("ParsePeriod(%q) = [%v, %v), want [%v, %v)", tt.in, p.From, p.To, tt.from, tt.to)
			}
			if p.Label == "" {
				t.Error("empty label")
			}
		})
	}
}

func TestParsePeriod_Invalid(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"0d", "-3d", "400d", "yesterday", "2024-02-30:2024-03-01", "2024-03-10:2024-03-01", "2024-03-01"} {
		if _, err := ParsePeriod(in, now); !errors.Is(err, errors.ErrInvalidPeriod) {
			t.Errorf("ParsePeriod(%q) = %v, want ErrInvalidPeriod", in, err)
		}
	}
}

func TestPeriodContains(t *testing.T) {
	p := Period{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	if !p.Contains(p.From) {
		t.Error("From must be included")
	}
	if p.Contains(p.To) {
		t.Error("To must be excluded")
	}
	if p.ContainsPtr(nil) {
		t.Error("nil time must not match")
	}
	if !(Period{}).Contains(time.Now()) {
		t.Error("open period must contain everything")
	}
}
