// Package attribution определяет источник привлечения гостя по payload
// команды /start: QR-код сотрудника, реферальная ссылка или метка кампании.
package attribution

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"
)

// Префиксы payload в deep link
const (
	StaffPrefix    = "s_"
	ReferralPrefix = "r_"
)

// StaffCodeLength длина кода сотрудника
const StaffCodeLength = 8

var (
	payloadPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	staffCodePattern = regexp.MustCompile(`^[a-z0-9]{4,32}$`)
)

// NewStaffCode генерирует код сотрудника из случайного UUID
func NewStaffCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:StaffCodeLength]
}

// IsStaffCode проверяет формат кода сотрудника
func IsStaffCode(code string) bool {
	return staffCodePattern.MatchString(code)
}

// StaffPayload payload для QR-кода сотрудника
func StaffPayload(code string) string {
	return StaffPrefix + code
}

// ReferralPayload payload для реферальной ссылки гостя
func ReferralPayload(telegramID int64) string {
	return ReferralPrefix + strconv.FormatInt(telegramID, 10)
}

// DeepLink собирает ссылку t.me с параметром start
func DeepLink(botUsername, payload string) string {
	link := "https://t.me/" + strings.TrimPrefix(botUsername, "@")
	if payload == "" {
		return link
	}
	return link + "?start=" + url.QueryEscape(payload)
}

// Payload разобранный параметр /start
type Payload struct {
	Kind       string
	StaffCode  string
	ReferrerID int64
	Campaign   string
}

// ParsePayload разбирает текст после /start
func ParsePayload(text string) Payload {
	text = strings.TrimSpace(text)
	if !payloadPattern.MatchString(text) {
		return Payload{Kind: models.SourceDirect}
	}

	if code, ok := strings.CutPrefix(text, StaffPrefix); ok && IsStaffCode(code) {
		return Payload{Kind: models.SourceStaff, StaffCode: code}
	}

	if raw, ok := strings.CutPrefix(text, ReferralPrefix); ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return Payload{Kind: models.SourceReferral, ReferrerID: id}
		}
	}

	return Payload{Kind: models.SourceCampaign, Campaign: text}
}

// Attribution итоговый источник гостя
type Attribution struct {
	Kind       string
	Source     string
	StaffID    *int64
	ReferrerID *int64
}

// Direct атрибуция без источника
func Direct() Attribution {
	return Attribution{Kind: models.SourceDirect, Source: models.SourceDirect}
}

// StaffLookup находит сотрудника по коду
type StaffLookup interface {
	GetStaffByCode(ctx context.Context, code string) (*models.Staff, error)
}

// Resolver превращает payload в атрибуцию, проверяя сотрудников по базе
type Resolver struct {
	staff  StaffLookup
	logger *logger.Logger
}

// NewResolver создает резолвер
func NewResolver(staff StaffLookup, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{staff: staff, logger: log}
}

// Resolve определяет источник гостя. Неизвестный или неактивный сотрудник
// и ссылка гостя на самого себя дают прямой источник.
func (r *Resolver) Resolve(ctx context.Context, guestID int64, text string) (Attribution, error) {
	payload := ParsePayload(text)

	switch payload.Kind {
	case models.SourceStaff:
		staff, err := r.staff.GetStaffByCode(ctx, payload.StaffCode)
		if err != nil {
			if errors.Is(err, errors.ErrStaffNotFound) {
				r.logger.Info("Unknown staff code in deep link",
					logger.String("code", payload.StaffCode),
					logger.Int64("guest_id", guestID),
				)
				return Direct(), nil
			}
			return Attribution{}, fmt.Errorf("failed to resolve staff code: %w", err)
		}
		if !staff.Active {
			r.logger.Info("Inactive staff code in deep link",
				logger.String("code", payload.StaffCode),
				logger.Int64("staff_id", staff.TelegramID),
			)
			return Direct(), nil
		}
		staffID := staff.TelegramID
		return Attribution{
			Kind:    models.SourceStaff,
			Source:  fmt.Sprintf("%s:%d", models.SourceStaff, staffID),
			StaffID: &staffID,
		}, nil

	case models.SourceReferral:
		if payload.ReferrerID == guestID {
			return Direct(), nil
		}
		referrerID := payload.ReferrerID
		return Attribution{
			Kind:       models.SourceReferral,
			Source:     fmt.Sprintf("%s:%d", models.SourceReferral, referrerID),
			ReferrerID: &referrerID,
		}, nil

	case models.SourceCampaign:
		return Attribution{
			Kind:   models.SourceCampaign,
			Source: models.SourceCampaign + ":" + payload.Campaign,
		}, nil
	}

	return Direct(), nil
}
