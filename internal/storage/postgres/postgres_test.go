package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
)

// newTestStorage подключается к PostgreSQL из POSTGRES_TEST_DSN и очищает таблицы
func newTestStorage(t *testing.T) *PostgresStorage {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	s, err := New(ctx, dsn, 2)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.pool.Exec(ctx, `TRUNCATE coupons, staff, users RESTART IDENTITY`); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}

	return s
}

func TestWhereBuilder(t *testing.T) {
	var w whereBuilder
	if w.String() != "" {
		t.Errorf("empty builder = %q", w.String())
	}

	w.add("created_at >= ?", 1)
	w.add("(source = ? OR source LIKE ?)", "staff", "staff:%")

	want := " WHERE created_at >= $1 AND (source = $2 OR source LIKE $3)"
	if w.String() != want {
		t.Errorf("String() = %q, want %q", w.String(), want)
	}
	if len(w.args) != 3 {
		t.Errorf("args = %d, want 3", len(w.args))
	}
}

func TestCreateUser_InsertIfAbsent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, &models.User{TelegramID: 1, FirstName: "Анна", Source: "staff:7"})
	if err != nil || !created {
		t.Fatalf("first CreateUser = %v, %v", created, err)
	}

	created, err = s.CreateUser(ctx, &models.User{TelegramID: 1, FirstName: "Другая", Source: "direct"})
	if err != nil || created {
		t.Fatalf("second CreateUser = %v, %v", created, err)
	}

	user, err := s.GetUser(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if user.Source != "staff:7" || user.FirstName != "Анна" {
		t.Errorf("first attribution overwritten: %+v", user)
	}

	if _, err := s.GetUser(ctx, 404); !errors.Is(err, errors.ErrUserNotFound) {
		t.Errorf("GetUser(404) = %v", err)
	}
}

func TestCouponRedeemOnce(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, &models.User{TelegramID: 5}); err != nil {
		t.Fatal(err)
	}

	coupon := &models.Coupon{UserID: 5, Code: "ABC234", Discount: 10}
	if err := s.IssueCoupon(ctx, coupon); err != nil {
		t.Fatal(err)
	}
	if coupon.ID == 0 {
		t.Error("coupon ID not assigned")
	}

	err := s.IssueCoupon(ctx, &models.Coupon{UserID: 5, Code: "XYZ789", Discount: 10})
	if !errors.Is(err, errors.ErrCouponAlreadyIssued) {
		t.Errorf("second IssueCoupon = %v", err)
	}

	redeemed, err := s.RedeemCoupon(ctx, "ABC234", 99, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if redeemed.Status != models.CouponRedeemed || redeemed.RedeemedBy == nil || *redeemed.RedeemedBy != 99 {
		t.Errorf("unexpected redeemed coupon: %+v", redeemed)
	}

	if _, err := s.RedeemCoupon(ctx, "ABC234", 99, time.Now()); !errors.Is(err, errors.ErrCouponAlreadyRedeemed) {
		t.Errorf("second RedeemCoupon = %v", err)
	}
}

func TestImportStaff_KeepsIDAndSyncsSequence(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ok, err := s.ImportStaff(ctx, &models.Staff{ID: 40, TelegramID: 100, Name: "Олег", Code: "oleg0001", Active: true})
	if err != nil || !ok {
		t.Fatalf("ImportStaff = %v, %v", ok, err)
	}
	if err := s.SyncSequences(ctx); err != nil {
		t.Fatal(err)
	}

	next := &models.Staff{TelegramID: 101, Name: "Ира", Code: "ira00001", Active: true}
	if err := s.CreateStaff(ctx, next); err != nil {
		t.Fatal(err)
	}
	if next.ID <= 40 {
		t.Errorf("sequence not synced, got id %d", next.ID)
	}
}
