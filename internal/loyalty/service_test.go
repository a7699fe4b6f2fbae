package loyalty

import (
	"context"
	"strings"
	"testing"
	"time"

	tgmodels "github.com/go-telegram/bot/models"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/internal/storage/sqlite"
	"telegram_loyalty_bot/internal/testutil"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/metrics"
)

const adminID = 1000

func newTestService(t *testing.T) (*Service, *sqlite.SQLiteStorage, *testutil.FakeTelegram) {
	t.Helper()

	store := testutil.SetupTestDB(t)
	tg := testutil.NewFakeTelegram()
	log, _ := testutil.SetupTestLogger()

	svc := NewService(store, NewSubscriptionChecker(tg, "@bar_channel"), Config{
		Discount:    15,
		TTL:         24 * time.Hour,
		AdminIDs:    []int64{adminID},
		BotUsername: "bar_bot",
	}, log)

	return svc, store, tg
}

func TestIsMember(t *testing.T) {
	tests := []struct {
		name   string
		member *tgmodels.ChatMember
		want   bool
	}{
		{"nil", nil, false},
		{"member", &tgmodels.ChatMember{Type: tgmodels.ChatMemberTypeMember}, true},
		{"admin", &tgmodels.ChatMember{Type: tgmodels.ChatMemberTypeAdministrator}, true},
		{"owner", &tgmodels.ChatMember{Type: tgmodels.ChatMemberTypeOwner}, true},
		{"left", &tgmodels.ChatMember{Type: tgmodels.ChatMemberTypeLeft}, false},
		{"banned", &tgmodels.ChatMember{Type: tgmodels.ChatMemberTypeBanned}, false},
		{"restricted member", &tgmodels.ChatMember{
			Type:       tgmodels.ChatMemberTypeRestricted,
			Restricted: &tgmodels.ChatMemberRestricted{IsMember: true},
		}, true},
		{"restricted left", &tgmodels.ChatMember{
			Type:       tgmodels.ChatMemberTypeRestricted,
			Restricted: &tgmodels.ChatMemberRestricted{IsMember: false},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMember(tt.member); got != tt.want {
				t.Errorf("IsMember() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegister_KeepsFirstAttribution(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddStaff(ctx, 700, "Олег", "бармен"); err != nil {
		t.Fatal(err)
	}
	staff, _ := store.GetStaffByTelegramID(ctx, 700)

	user, created, err := svc.Register(ctx, Guest{TelegramID: 1, FirstName: "Анна"}, "s_"+staff.Code)
	if err != nil || !created {
		t.Fatalf("Register = %v, %v", created, err)
	}
	if user.Source != "staff:700" {
		t.Errorf("Source = %q", user.Source)
	}

	user, created, err = svc.Register(ctx, Guest{TelegramID: 1, FirstName: "Аня", Username: "anya"}, "r_55")
	if err != nil || created {
		t.Fatalf("second Register = %v, %v", created, err)
	}
	if user.Source != "staff:700" {
		t.Errorf("attribution overwritten: %q", user.Source)
	}
	if user.FirstName != "Аня" || user.Username != "anya" {
		t.Errorf("profile not refreshed: %+v", user)
	}
}

func TestRegister_InvalidID(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, _, err := svc.Register(context.Background(), Guest{}, ""); !errors.Is(err, errors.ErrInvalidTelegramID) {
		t.Errorf("expected ErrInvalidTelegramID, got %v", err)
	}
}

func TestClaimCoupon(t *testing.T) {
	svc, store, tg := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, Guest{TelegramID: 2}, ""); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.ClaimCoupon(ctx, 2); !errors.Is(err, errors.ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}

	tg.Subscribe(2)
	before := promtest.ToFloat64(metrics.CouponsIssued)

	coupon, created, err := svc.ClaimCoupon(ctx, 2)
	if err != nil || !created {
		t.Fatalf("ClaimCoupon = %v, %v", created, err)
	}
	if !IsCouponCode(coupon.Code) {
		t.Errorf("bad code %q", coupon.Code)
	}
	if coupon.Discount != 15 || coupon.ExpiresAt == nil {
		t.Errorf("unexpected coupon: %+v", coupon)
	}
	if got := promtest.ToFloat64(metrics.CouponsIssued) - before; got != 1 {
		t.Errorf("coupons issued metric delta = %v", got)
	}

	user, _ := store.GetUser(ctx, 2)
	if !user.Subscribed {
		t.Error("subscription not saved")
	}

	again, created, err := svc.ClaimCoupon(ctx, 2)
	if err != nil || created {
		t.Fatalf("repeated ClaimCoupon = %v, %v", created, err)
	}
	if again.Code != coupon.Code {
		t.Errorf("second claim issued a new code %q != %q", again.Code, coupon.Code)
	}
}

func TestClaimCoupon_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, _, err := svc.ClaimCoupon(context.Background(), 404); !errors.Is(err, errors.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRedeem(t *testing.T) {
	svc, _, tg := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddStaff(ctx, 700, "Олег", ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Register(ctx, Guest{TelegramID: 3}, ""); err != nil {
		t.Fatal(err)
	}
	tg.Subscribe(3)
	coupon, _, err := svc.ClaimCoupon(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Redeem(ctx, coupon.Code, 3); !errors.Is(err, errors.ErrAccessDenied) {
		t.Errorf("guest redeem = %v, want access denied", err)
	}
	if _, err := svc.Redeem(ctx, "bad", 700); !errors.Is(err, errors.ErrInvalidCode) {
		t.Errorf("invalid code = %v", err)
	}
	if _, err := svc.Redeem(ctx, "ZZZZZZ", 700); !errors.Is(err, errors.ErrCouponNotFound) {
		t.Errorf("unknown code = %v", err)
	}

	redeemed, err := svc.Redeem(ctx, " "+strings.ToLower(coupon.Code)+" ", 700)
	if err != nil {
		t.Fatal(err)
	}
	if !redeemed.IsRedeemed() || *redeemed.RedeemedBy != 700 {
		t.Errorf("unexpected redeemed coupon: %+v", redeemed)
	}

	if _, err := svc.Redeem(ctx, coupon.Code, adminID); !errors.Is(err, errors.ErrCouponAlreadyRedeemed) {
		t.Errorf("second redeem = %v", err)
	}
}

func TestRedeem_ExpiredAndInactiveStaff(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddStaff(ctx, 700, "Олег", ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Register(ctx, Guest{TelegramID: 4}, ""); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour).UTC()
	if err := store.IssueCoupon(ctx, &models.Coupon{UserID: 4, Code: "EXP234", Discount: 10, IssuedAt: past.Add(-time.Hour), ExpiresAt: &past}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Redeem(ctx, "EXP234", 700); !errors.Is(err, errors.ErrCouponExpired) {
		t.Errorf("expired redeem = %v", err)
	}

	if _, err := svc.SetStaffActive(ctx, 700, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Redeem(ctx, "EXP234", 700); !errors.Is(err, errors.ErrAccessDenied) {
		t.Errorf("inactive staff redeem = %v", err)
	}
}

func TestCouponCodeFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		if code := NewCouponCode(); !IsCouponCode(code) {
			t.Fatalf("NewCouponCode() = %q is not valid", code)
		}
	}

	for _, bad := range []string{"", "ABC", "ABCDE0", "ABCDEI", "abcdef", "ABCDEFG"} {
		if IsCouponCode(bad) {
			t.Errorf("IsCouponCode(%q) = true", bad)
		}
	}
}
