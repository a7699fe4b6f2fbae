package handlers

import (
	"strings"
	"testing"
	"time"

	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text    string
		command string
		args    string
		ok      bool
	}{
		{"/start", "/start", "", true},
		{"/start s_abcd1234", "/start", "s_abcd1234", true},
		{"/Redeem@bar_bot  AB12CD ", "/redeem", "AB12CD", true},
		{"/staff_add 1 Олег | бармен", "/staff_add", "1 Олег | бармен", true},
		{"привет", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			command, args, ok := ParseCommand(tt.text)
			if command != tt.command || args != tt.args || ok != tt.ok {
				t.Errorf("ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.text, command, args, ok, tt.command, tt.args, tt.ok)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"already redeemed", errors.ErrCouponAlreadyRedeemed.WithContext("AB12CD"), "уже погашен"},
		{"expired", errors.ErrCouponExpired, "истек"},
		{"access denied", errors.ErrAccessDenied, "только сотрудникам"},
		{"validation", errors.NewBotError("INVALID_QUESTION", "вопрос не может быть пустым"), "вопрос не может быть пустым"},
		{"unknown", errors.NewBotError("SOMETHING", "x"), "попробуйте позже"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := userMessage(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("userMessage() = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestFormatCoupon(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(24 * time.Hour)

	coupon := &models.Coupon{Code: "AB12CD", Discount: 10, Status: models.CouponIssued, ExpiresAt: &expires}

	text := formatCoupon(coupon, now)
	for _, want := range []string{"AB12CD", "10%", "активен", "02.05.2024 12:00"} {
		if !strings.Contains(text, want) {
			t.Errorf("active coupon text %q missing %q", text, want)
		}
	}

	if text := formatCoupon(coupon, expires); !strings.Contains(text, "истек") {
		t.Errorf("expired coupon text %q", text)
	}

	coupon.Status = models.CouponRedeemed
	coupon.RedeemedAt = &now
	if text := formatCoupon(coupon, now); !strings.Contains(text, "погашен 01.05.2024 12:00") {
		t.Errorf("redeemed coupon text %q", text)
	}
}
