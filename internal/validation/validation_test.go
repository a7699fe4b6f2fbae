package validation

import (
	"strings"
	"testing"

	"telegram_loyalty_bot/pkg/errors"
)

func TestValidateTelegramID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{
			name:  "valid id",
			input: "123456789",
			want:  123456789,
		},
		{
			name:  "surrounding spaces",
			input: "  42 ",
			want:  42,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "zero",
			input:   "0",
			wantErr: true,
		},
		{
			name:    "negative number",
			input:   "-5",
			wantErr: true,
		},
		{
			name:    "not a number",
			input:   "abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateTelegramID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTelegramID() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !errors.Is(err, errors.ErrInvalidTelegramID) {
				t.Errorf("ValidateTelegramID() error = %v, want ErrInvalidTelegramID", err)
			}
			if got != tt.want {
				t.Errorf("ValidateTelegramID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateChatID(t *testing.T) {
	if err := ValidateChatID(0); err == nil {
		t.Error("ValidateChatID(0) should fail")
	}
	if err := ValidateChatID(-100123); err != nil {
		t.Errorf("ValidateChatID(group) error = %v", err)
	}
}

func TestParseStaffArgs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    StaffArgs
		wantErr bool
	}{
		{
			name:  "name only",
			input: "555 Олег",
			want:  StaffArgs{TelegramID: 555, Name: "Олег"},
		},
		{
			name:  "name with position",
			input: "555 Олег  Петров | старший бармен",
			want:  StaffArgs{TelegramID: 555, Name: "Олег Петров", Position: "старший бармен"},
		},
		{
			name:    "missing name",
			input:   "555",
			wantErr: true,
		},
		{
			name:    "bad id",
			input:   "олег бармен",
			wantErr: true,
		},
		{
			name:    "long position",
			input:   "555 Олег | " + strings.Repeat("я", MaxPositionLength+1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStaffArgs(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStaffArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStaffArgs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidateStaffName(t *testing.T) {
	if err := ValidateStaffName("   "); err == nil {
		t.Error("blank name should fail")
	}
	if err := ValidateStaffName(strings.Repeat("ж", MaxNameLength)); err != nil {
		t.Errorf("name at the limit should pass: %v", err)
	}
	if err := ValidateStaffName(strings.Repeat("ж", MaxNameLength+1)); err == nil {
		t.Error("name over the limit should fail")
	}
}

func TestValidateQuestion(t *testing.T) {
	got, err := ValidateQuestion("  Что есть из IPA?  ")
	if err != nil {
		t.Fatalf("ValidateQuestion() error = %v", err)
	}
	if got != "Что есть из IPA?" {
		t.Errorf("ValidateQuestion() = %q", got)
	}

	if _, err := ValidateQuestion(""); err == nil {
		t.Error("empty question should fail")
	}
	if _, err := ValidateQuestion(strings.Repeat("a", MaxQuestionLength+1)); err == nil {
		t.Error("long question should fail")
	}
}
