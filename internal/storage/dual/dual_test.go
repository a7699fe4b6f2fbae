package dual

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"telegram_loyalty_bot/internal/storage"
	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/internal/storage/sqlite"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"
)

// brokenStorage имитирует недоступное резервное хранилище
type brokenStorage struct {
	storage.Storage
	broken bool
}

var errBroken = fmt.Errorf("disk I/O error")

func (b *brokenStorage) ImportUser(ctx context.Context, user *models.User) (bool, error) {
	if b.broken {
		return false, errBroken
	}
	return b.Storage.ImportUser(ctx, user)
}

func (b *brokenStorage) ImportCoupon(ctx context.Context, coupon *models.Coupon) (bool, error) {
	if b.broken {
		return false, errBroken
	}
	return b.Storage.ImportCoupon(ctx, coupon)
}

func (b *brokenStorage) RedeemCoupon(ctx context.Context, code string, by int64, at time.Time) (*models.Coupon, error) {
	if b.broken {
		return nil, errBroken
	}
	return b.Storage.RedeemCoupon(ctx, code, by, at)
}

func (b *brokenStorage) Ping(ctx context.Context) error {
	if b.broken {
		return errBroken
	}
	return b.Storage.Ping(ctx)
}

func newSQLite(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func setup(t *testing.T) (*Storage, *sqlite.SQLiteStorage, *brokenStorage, *observer.ObservedLogs) {
	t.Helper()

	primary := newSQLite(t)
	secondary := &brokenStorage{Storage: newSQLite(t)}

	core, logs := observer.New(zapcore.DebugLevel)
	d := New(primary, secondary, logger.NewFromZap(zap.New(core)))

	return d, primary, secondary, logs
}

func TestCreateUser_MirrorsToSecondary(t *testing.T) {
	d, _, secondary, _ := setup(t)
	ctx := context.Background()

	created, err := d.CreateUser(ctx, &models.User{TelegramID: 1, FirstName: "Анна", Source: "campaign:bar"})
	if err != nil || !created {
		t.Fatalf("CreateUser = %v, %v", created, err)
	}

	mirrored, err := secondary.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("user not mirrored: %v", err)
	}
	if mirrored.Source != "campaign:bar" {
		t.Errorf("mirrored source = %q", mirrored.Source)
	}
}

func TestCreateUser_SecondaryFailureNotReturned(t *testing.T) {
	d, primary, secondary, logs := setup(t)
	ctx := context.Background()
	secondary.broken = true

	created, err := d.CreateUser(ctx, &models.User{TelegramID: 2})
	if err != nil || !created {
		t.Fatalf("CreateUser = %v, %v", created, err)
	}

	if _, err := primary.GetUser(ctx, 2); err != nil {
		t.Errorf("primary lost the write: %v", err)
	}
	if n := logs.FilterMessage("secondary write failed").Len(); n != 1 {
		t.Errorf("expected 1 secondary failure log, got %d", n)
	}
}

func TestSetSubscribed_HealsMissingSecondaryRow(t *testing.T) {
	d, _, secondary, _ := setup(t)
	ctx := context.Background()

	secondary.broken = true
	if _, err := d.CreateUser(ctx, &models.User{TelegramID: 3}); err != nil {
		t.Fatal(err)
	}
	secondary.broken = false

	if err := d.SetSubscribed(ctx, 3, true); err != nil {
		t.Fatal(err)
	}

	user, err := secondary.GetUser(ctx, 3)
	if err != nil {
		t.Fatalf("row not healed: %v", err)
	}
	if !user.Subscribed {
		t.Error("healed row lost subscription")
	}
}

func TestIssueAndRedeem_SameCouponInBothStores(t *testing.T) {
	d, _, secondary, _ := setup(t)
	ctx := context.Background()

	if _, err := d.CreateUser(ctx, &models.User{TelegramID: 4}); err != nil {
		t.Fatal(err)
	}

	coupon := &models.Coupon{UserID: 4, Code: "QWE234", Discount: 15}
	if err := d.IssueCoupon(ctx, coupon); err != nil {
		t.Fatal(err)
	}

	mirrored, err := secondary.GetCouponByCode(ctx, "QWE234")
	if err != nil {
		t.Fatal(err)
	}
	if mirrored.ID != coupon.ID || mirrored.Discount != 15 {
		t.Errorf("mirrored coupon differs: %+v vs %+v", mirrored, coupon)
	}

	if _, err := d.RedeemCoupon(ctx, "QWE234", 77, time.Now()); err != nil {
		t.Fatal(err)
	}
	mirrored, _ = secondary.GetCouponByCode(ctx, "QWE234")
	if !mirrored.IsRedeemed() {
		t.Error("redemption not mirrored")
	}

	if _, err := d.RedeemCoupon(ctx, "QWE234", 77, time.Now()); !errors.Is(err, errors.ErrCouponAlreadyRedeemed) {
		t.Errorf("second redeem = %v", err)
	}
}

func TestIssueCoupon_MirrorsDespiteOccupiedID(t *testing.T) {
	d, _, secondary, logs := setup(t)
	ctx := context.Background()

	// В резервном хранилище ID 1 уже занят купоном, которого нет в основном
	if _, err := secondary.CreateUser(ctx, &models.User{TelegramID: 50}); err != nil {
		t.Fatal(err)
	}
	if err := secondary.IssueCoupon(ctx, &models.Coupon{UserID: 50, Code: "ZZZ999", Discount: 10}); err != nil {
		t.Fatal(err)
	}

	if _, err := d.CreateUser(ctx, &models.User{TelegramID: 4}); err != nil {
		t.Fatal(err)
	}
	coupon := &models.Coupon{UserID: 4, Code: "QWE234", Discount: 15}
	if err := d.IssueCoupon(ctx, coupon); err != nil {
		t.Fatal(err)
	}

	mirrored, err := secondary.GetCouponByCode(ctx, "QWE234")
	if err != nil {
		t.Fatalf("coupon not mirrored: %v", err)
	}
	if mirrored.UserID != 4 {
		t.Errorf("mirrored coupon user = %d", mirrored.UserID)
	}
	if n := logs.FilterMessage("secondary write failed").Len(); n != 0 {
		t.Errorf("unexpected secondary failures: %d", n)
	}
}

func TestRedeem_ImportsCouponMissingInSecondary(t *testing.T) {
	d, _, secondary, _ := setup(t)
	ctx := context.Background()

	secondary.broken = true
	if _, err := d.CreateUser(ctx, &models.User{TelegramID: 5}); err != nil {
		t.Fatal(err)
	}
	if err := d.IssueCoupon(ctx, &models.Coupon{UserID: 5, Code: "ZXC345", Discount: 10}); err != nil {
		t.Fatal(err)
	}
	secondary.broken = false

	if _, err := d.RedeemCoupon(ctx, "ZXC345", 1, time.Now()); err != nil {
		t.Fatal(err)
	}

	mirrored, err := secondary.GetCouponByCode(ctx, "ZXC345")
	if err != nil {
		t.Fatalf("coupon not imported: %v", err)
	}
	if !mirrored.IsRedeemed() {
		t.Error("imported coupon should be redeemed")
	}
}

func TestPing_SecondaryDownIsNotFatal(t *testing.T) {
	d, _, secondary, logs := setup(t)
	secondary.broken = true

	if err := d.Ping(context.Background()); err != nil {
		t.Errorf("Ping = %v, want nil", err)
	}
	if logs.FilterMessage("secondary storage unavailable").Len() != 1 {
		t.Error("expected warning about secondary storage")
	}
}

func TestReads_GoToPrimary(t *testing.T) {
	d, primary, secondary, _ := setup(t)
	ctx := context.Background()

	if _, err := primary.CreateUser(ctx, &models.User{TelegramID: 6}); err != nil {
		t.Fatal(err)
	}

	if _, err := d.GetUser(ctx, 6); err != nil {
		t.Errorf("GetUser from primary = %v", err)
	}
	if _, err := secondary.GetUser(ctx, 6); !errors.Is(err, errors.ErrUserNotFound) {
		t.Errorf("secondary unexpectedly has the row: %v", err)
	}
}
