package attribution

import (
	"context"
	"strings"
	"testing"

	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
)

type fakeStaff map[string]*models.Staff

func (f fakeStaff) GetStaffByCode(_ context.Context, code string) (*models.Staff, error) {
	if st, ok := f[code]; ok {
		return st, nil
	}
	return nil, errors.ErrStaffNotFound.WithContext(code)
}

func TestNewStaffCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewStaffCode()
		if len(code) != StaffCodeLength || !IsStaffCode(code) {
			t.Fatalf("bad code %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestDeepLink(t *testing.T) {
	tests := []struct {
		bot, payload, want string
	}{
		{"@bar_bot", "s_abc12345", "https://t.me/bar_bot?start=s_abc12345"},
		{"bar_bot", "", "https://t.me/bar_bot"},
		{"bar_bot", ReferralPayload(42), "https://t.me/bar_bot?start=r_42"},
	}

	for _, tt := range tests {
		if got := DeepLink(tt.bot, tt.payload); got != tt.want {
			t.Errorf("DeepLink(%q, %q) = %q, want %q", tt.bot, tt.payload, got, tt.want)
		}
	}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Payload
	}{
		{"empty", "", Payload{Kind: models.SourceDirect}},
		{"staff", "s_abc12345", Payload{Kind: models.SourceStaff, StaffCode: "abc12345"}},
		{"referral", "r_123456", Payload{Kind: models.SourceReferral, ReferrerID: 123456}},
		{"bad referral becomes campaign", "r_abc", Payload{Kind: models.SourceCampaign, Campaign: "r_abc"}},
		{"campaign", "summer-2024", Payload{Kind: models.SourceCampaign, Campaign: "summer-2024"}},
		{"spaces invalid", "hello world", Payload{Kind: models.SourceDirect}},
		{"too long", strings.Repeat("a", 65), Payload{Kind: models.SourceDirect}},
		{"trimmed", "  s_abc12345 ", Payload{Kind: models.SourceStaff, StaffCode: "abc12345"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePayload(tt.text); got != tt.want {
				t.Errorf("ParsePayload(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	staff := fakeStaff{
		"active01": {TelegramID: 700, Code: "active01", Active: true},
		"fired001": {TelegramID: 701, Code: "fired001", Active: false},
	}
	r := NewResolver(staff, nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		guest      int64
		text       string
		wantSource string
		wantStaff  int64
		wantRef    int64
	}{
		{"direct", 1, "", "direct", 0, 0},
		{"active staff", 1, "s_active01", "staff:700", 700, 0},
		{"inactive staff", 1, "s_fired001", "direct", 0, 0},
		{"unknown staff", 1, "s_nobody00", "direct", 0, 0},
		{"referral", 1, "r_55", "referral:55", 0, 55},
		{"self referral", 55, "r_55", "direct", 0, 0},
		{"campaign", 1, "instagram", "campaign:instagram", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.guest, tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
			if models.SourceKindOf(got.Source) != got.Kind {
				t.Errorf("Kind %q does not match source %q", got.Kind, got.Source)
			}
			if (got.StaffID != nil) != (tt.wantStaff != 0) || (got.StaffID != nil && *got.StaffID != tt.wantStaff) {
				t.Errorf("StaffID = %v, want %d", got.StaffID, tt.wantStaff)
			}
			if (got.ReferrerID != nil) != (tt.wantRef != 0) || (got.ReferrerID != nil && *got.ReferrerID != tt.wantRef) {
				t.Errorf("ReferrerID = %v, want %d", got.ReferrerID, tt.wantRef)
			}
		})
	}
}
