package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/internal/storage/sqlite"
	"telegram_loyalty_bot/internal/testutil"
)

func int64Ptr(v int64) *int64 { return &v }

// seedReport наполняет базу: два гостя от сотрудника, реферал, прямой гость
// и старый гость вне периода
func seedReport(t *testing.T, now time.Time) *sqlite.SQLiteStorage {
	t.Helper()
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := store.CreateStaff(ctx, &models.Staff{TelegramID: 700, Name: "Олег", Code: "oleg0001", Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateStaff(ctx, &models.Staff{TelegramID: 701, Name: "Ира", Code: "ira00001", Active: false}); err != nil {
		t.Fatal(err)
	}

	users := []*models.User{
		{TelegramID: 1, FirstName: "Анна", Source: "staff:700", StaffID: int64Ptr(700), Subscribed: true, CreatedAt: now.Add(-2 * time.Hour)},
		{TelegramID: 2, Username: "boris", Source: "staff:700", StaffID: int64Ptr(700), CreatedAt: now.Add(-time.Hour)},
		{TelegramID: 3, Source: "referral:1", ReferrerID: int64Ptr(1), Subscribed: true, CreatedAt: now.Add(-30 * time.Minute)},
		{TelegramID: 4, Source: "direct", CreatedAt: now.Add(-10 * time.Minute)},
		{TelegramID: 5, Source: "campaign:old", CreatedAt: now.AddDate(0, 0, -40)},
	}
	for _, u := range users {
		if _, err := store.ImportUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	coupons := []*models.Coupon{
		{UserID: 1, Code: "AAA222", Discount: 10, IssuedAt: now.Add(-time.Hour)},
		{UserID: 3, Code: "BBB333", Discount: 10, IssuedAt: now.Add(-20 * time.Minute)},
		{UserID: 5, Code: "CCC444", Discount: 10, IssuedAt: now.AddDate(0, 0, -39)},
	}
	for _, c := range coupons {
		if err := store.IssueCoupon(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.RedeemCoupon(ctx, "AAA222", 700, now.Add(-5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	// Старый купон погашен в текущем периоде
	if _, err := store.RedeemCoupon(ctx, "CCC444", 700, now.Add(-4*time.Minute)); err != nil {
		t.Fatal(err)
	}

	return store
}

func TestBuilder_Summary(t *testing.T) {
	now := time.Now().UTC()
	store := seedReport(t, now)

	period, err := ParsePeriod("7d", now)
	if err != nil {
		t.Fatal(err)
	}

	summary, err := NewBuilder(store).Summary(context.Background(), period)
	if err != nil {
		t.Fatal(err)
	}

	if summary.NewGuests != 4 {
		t.Errorf("NewGuests = %d, want 4", summary.NewGuests)
	}
	if summary.Subscribed != 2 {
		t.Errorf("Subscribed = %d, want 2", summary.Subscribed)
	}
	wantSources := map[string]int{"direct": 1, "staff": 2, "referral": 1, "campaign": 0}
	for kind, want := range wantSources {
		if summary.BySource[kind] != want {
			t.Errorf("BySource[%s] = %d, want %d", kind, summary.BySource[kind], want)
		}
	}
	if summary.CouponsIssued != 2 || summary.CouponsRedeemed != 2 {
		t.Errorf("coupons issued/redeemed = %d/%d, want 2/2", summary.CouponsIssued, summary.CouponsRedeemed)
	}
	if summary.Conversion() != 1 {
		t.Errorf("Conversion = %v", summary.Conversion())
	}

	if len(summary.Staff) != 2 {
		t.Fatalf("staff rows = %d", len(summary.Staff))
	}
	top := summary.Staff[0]
	if top.TelegramID != 700 || top.Guests != 2 || top.Redeemed != 2 {
		t.Errorf("top staff = %+v", top)
	}

	text := FormatSummary(summary)
	for _, want := range []string{"Новых гостей: 4", "QR сотрудников: 2", "выдано 2, погашено 2", "Олег: гостей 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary text missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Ира") {
		t.Error("staff without activity should be omitted from text")
	}
}

func TestBuilder_GuestRows(t *testing.T) {
	now := time.Now().UTC()
	store := seedReport(t, now)

	rows, err := NewBuilder(store).GuestRows(context.Background(), Period{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}

	// Порядок по дате регистрации: самый старый гость первым
	if rows[0].TelegramID != 5 {
		t.Errorf("first row = %d, want 5", rows[0].TelegramID)
	}
	var anna GuestRow
	for _, r := range rows {
		if r.TelegramID == 1 {
			anna = r
		}
	}
	if anna.StaffName != "Олег" || anna.CouponStatus != models.CouponRedeemed || anna.RedeemedAt == nil {
		t.Errorf("unexpected row: %+v", anna)
	}

	cells := anna.Strings()
	if len(cells) != len(GuestHeader) {
		t.Fatalf("row width %d != header width %d", len(cells), len(GuestHeader))
	}
	if cells[0] != "1" || cells[5] != "да" || cells[8] != "AAA222" {
		t.Errorf("cells = %v", cells)
	}
}

func TestXLSXExporter(t *testing.T) {
	now := time.Now().UTC()
	store := seedReport(t, now)
	ctx := context.Background()
	builder := NewBuilder(store)

	summary, err := builder.Summary(ctx, Period{Label: "за все время"})
	if err != nil {
		t.Fatal(err)
	}
	guests, err := builder.GuestRows(ctx, Period{})
	if err != nil {
		t.Fatal(err)
	}

	data, err := XLSXExporter{}.Export(summary, guests)
	if err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != SummarySheet {
		t.Errorf("sheets = %v", sheets)
	}

	rows, err := f.GetRows(GuestsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 || rows[0][0] != GuestHeader[0] {
		t.Errorf("guests sheet rows = %d, header = %v", len(rows), rows[0])
	}

	staffRows, err := f.GetRows(StaffSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(staffRows) != 3 {
		t.Errorf("staff sheet rows = %d, want 3", len(staffRows))
	}
}
