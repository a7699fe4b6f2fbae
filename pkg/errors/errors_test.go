package errors

import (
	"fmt"
	"testing"
)

func TestBotError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("redeem: %w", ErrCouponExpired.WithContext("ABC123"))

	if !Is(wrapped, ErrCouponExpired) {
		t.Fatal("expected wrapped copy to match ErrCouponExpired")
	}
	if Is(wrapped, ErrCouponNotFound) {
		t.Fatal("did not expect match with a different code")
	}
}

func TestBotError_ErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *BotError
		want string
	}{
		{
			name: "without cause",
			err:  ErrAccessDenied,
			want: "ACCESS_DENIED: недостаточно прав",
		},
		{
			name: "with cause",
			err:  ErrTelegramAPI.WithError(fmt.Errorf("timeout")),
			want: "TELEGRAM_API: ошибка Telegram API: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGetBotError_Unwraps(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := fmt.Errorf("ping: %w", ErrDatabaseConnection.WithError(cause))

	botErr, ok := GetBotError(err)
	if !ok {
		t.Fatal("expected BotError in chain")
	}
	if botErr.Code != "DATABASE_CONNECTION" {
		t.Errorf("unexpected code %s", botErr.Code)
	}
	if !Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !IsBotError(err) {
		t.Error("expected IsBotError to see through wrapping")
	}
}
