package loyalty

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"telegram_loyalty_bot/pkg/errors"
)

func TestStaffLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	staff, err := svc.AddStaff(ctx, 700, " Олег ", "бармен")
	if err != nil {
		t.Fatal(err)
	}
	if staff.Name != "Олег" || !staff.Active || staff.Code == "" {
		t.Errorf("unexpected staff: %+v", staff)
	}

	if _, err := svc.AddStaff(ctx, 700, "Олег", ""); !errors.Is(err, errors.ErrStaffAlreadyExists) {
		t.Errorf("duplicate AddStaff = %v", err)
	}

	oldCode := staff.Code
	regen, err := svc.RegenerateStaffCode(ctx, 700)
	if err != nil {
		t.Fatal(err)
	}
	if regen.Code == oldCode {
		t.Error("code not regenerated")
	}

	renamed, err := svc.RenameStaff(ctx, 700, "Олег Петров", "")
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Name != "Олег Петров" || renamed.Position != "бармен" {
		t.Errorf("rename result: %+v", renamed)
	}

	if _, err := svc.SetStaffActive(ctx, 700, false); err != nil {
		t.Fatal(err)
	}
	ok, err := svc.IsStaff(ctx, 700)
	if err != nil || ok {
		t.Errorf("IsStaff after deactivate = %v, %v", ok, err)
	}

	if err := svc.DeleteStaff(ctx, 700); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetStaff(ctx, 700); !errors.Is(err, errors.ErrStaffNotFound) {
		t.Errorf("GetStaff after delete = %v", err)
	}
}

func TestAddStaff_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddStaff(ctx, 0, "Олег", ""); !errors.Is(err, errors.ErrInvalidTelegramID) {
		t.Errorf("zero id = %v", err)
	}
	if _, err := svc.AddStaff(ctx, 1, "  ", ""); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestStaffQR_RequiresBotUsername(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.config.BotUsername = ""
	ctx := context.Background()

	staff, err := svc.AddStaff(ctx, 700, "Олег", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.StaffQR(staff); !errors.Is(err, errors.ErrConfigurationInvalid) {
		t.Errorf("StaffQR = %v, want ErrConfigurationInvalid", err)
	}
	if _, err := svc.ReferralQR(5); !errors.Is(err, errors.ErrConfigurationInvalid) {
		t.Errorf("ReferralQR = %v, want ErrConfigurationInvalid", err)
	}
	if _, err := svc.WriteStaffQR(ctx, t.TempDir()); !errors.Is(err, errors.ErrConfigurationInvalid) {
		t.Errorf("WriteStaffQR = %v, want ErrConfigurationInvalid", err)
	}
}

func TestStaffLinksAndQR(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	staff, err := svc.AddStaff(ctx, 700, "Олег", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddStaff(ctx, 701, "Ира", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetStaffActive(ctx, 701, false); err != nil {
		t.Fatal(err)
	}

	link := svc.StaffLink(staff)
	if link != "https://t.me/bar_bot?start=s_"+staff.Code {
		t.Errorf("StaffLink = %q", link)
	}
	if !strings.HasSuffix(svc.ReferralLink(5), "?start=r_5") {
		t.Errorf("ReferralLink = %q", svc.ReferralLink(5))
	}

	png, err := svc.StaffQR(staff)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("StaffQR is not a PNG")
	}

	dir := t.TempDir()
	paths, err := svc.WriteStaffQR(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected QR only for active staff, got %v", paths)
	}
	if _, err := os.Stat(filepath.Join(dir, staff.Code+"_700.png")); err != nil {
		t.Errorf("QR file missing: %v", err)
	}
}
