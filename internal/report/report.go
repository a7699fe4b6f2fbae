// Package report собирает статистику программы лояльности и выгружает ее
// в чат, XLSX и Google Sheets.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"telegram_loyalty_bot/internal/storage/models"
)

// Reader источник данных для отчетов
type Reader interface {
	ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
	ListCoupons(ctx context.Context, filter models.CouponFilter) ([]*models.Coupon, error)
	ListStaff(ctx context.Context) ([]*models.Staff, error)
}

// StaffStat показатели одного сотрудника за период
type StaffStat struct {
	TelegramID int64
	Name       string
	Position   string
	Code       string
	Active     bool
	Guests     int
	Redeemed   int
}

// Summary сводка за период
type Summary struct {
	Period          Period
	GeneratedAt     time.Time
	NewGuests       int
	Subscribed      int
	BySource        map[string]int
	Staff           []StaffStat
	CouponsIssued   int
	CouponsRedeemed int
}

// Conversion доля погашенных купонов от выданных за период
func (s *Summary) Conversion() float64 {
	if s.CouponsIssued == 0 {
		return 0
	}
	return float64(s.CouponsRedeemed) / float64(s.CouponsIssued)
}

// GuestRow строка выгрузки гостей
type GuestRow struct {
	TelegramID   int64
	Username     string
	Name         string
	Source       string
	StaffName    string
	Subscribed   bool
	RegisteredAt time.Time
	LastSeenAt   time.Time
	CouponCode   string
	CouponStatus string
	IssuedAt     *time.Time
	RedeemedAt   *time.Time
}

// GuestHeader заголовок таблицы гостей
var GuestHeader = []string{
	"Telegram ID", "Username", "Имя", "Источник", "Сотрудник", "Подписан",
	"Регистрация", "Последний визит", "Купон", "Статус купона", "Выдан", "Погашен",
}

const timeLayout = "2006-01-02 15:04"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func yesNo(v bool) string {
	if v {
		return "да"
	}
	return "нет"
}

// Strings строка в виде текстовых ячеек
func (r GuestRow) Strings() []string {
	username := ""
	if r.Username != "" {
		username = "@" + r.Username
	}
	return []string{
		fmt.Sprintf("%d", r.TelegramID),
		username,
		r.Name,
		r.Source,
		r.StaffName,
		yesNo(r.Subscribed),
		formatTime(r.RegisteredAt),
		formatTime(r.LastSeenAt),
		r.CouponCode,
		r.CouponStatus,
		formatTimePtr(r.IssuedAt),
		formatTimePtr(r.RedeemedAt),
	}
}

// Builder строит отчеты по данным хранилища
type Builder struct {
	reader Reader
	now    func() time.Time
}

// NewBuilder создает построитель отчетов
func NewBuilder(reader Reader) *Builder {
	return &Builder{reader: reader, now: time.Now}
}

// Summary считает сводку за период
func (b *Builder) Summary(ctx context.Context, period Period) (*Summary, error) {
	users, err := b.reader.ListUsers(ctx, models.UserFilter{From: period.From, To: period.To})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	// Купон мог быть выдан в одном периоде, а погашен в другом
	coupons, err := b.reader.ListCoupons(ctx, models.CouponFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}

	staffList, err := b.reader.ListStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}

	summary := &Summary{
		Period:      period,
		GeneratedAt: b.now(),
		NewGuests:   len(users),
		BySource: map[string]int{
			models.SourceDirect:   0,
			models.SourceStaff:    0,
			models.SourceReferral: 0,
			models.SourceCampaign: 0,
		},
	}

	stats := make(map[int64]*StaffStat, len(staffList))
	for _, st := range staffList {
		stats[st.TelegramID] = &StaffStat{
			TelegramID: st.TelegramID,
			Name:       st.Name,
			Position:   st.Position,
			Code:       st.Code,
			Active:     st.Active,
		}
	}

	for _, u := range users {
		summary.BySource[u.SourceKind()]++
		if u.Subscribed {
			summary.Subscribed++
		}
		if u.StaffID != nil {
			if st, ok := stats[*u.StaffID]; ok {
				st.Guests++
			}
		}
	}

	for _, c := range coupons {
		if period.Contains(c.IssuedAt) {
			summary.CouponsIssued++
		}
		if c.IsRedeemed() && period.ContainsPtr(c.RedeemedAt) {
			summary.CouponsRedeemed++
			if c.RedeemedBy != nil {
				if st, ok := stats[*c.RedeemedBy]; ok {
					st.Redeemed++
				}
			}
		}
	}

	for _, st := range stats {
		summary.Staff = append(summary.Staff, *st)
	}
	sort.Slice(summary.Staff, func(i, j int) bool {
		a, b := summary.Staff[i], summary.Staff[j]
		if a.Guests != b.Guests {
			return a.Guests > b.Guests
		}
		return a.Name < b.Name
	})

	return summary, nil
}

// GuestRows возвращает гостей периода вместе с купонами
func (b *Builder) GuestRows(ctx context.Context, period Period) ([]GuestRow, error) {
	users, err := b.reader.ListUsers(ctx, models.UserFilter{From: period.From, To: period.To})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	coupons, err := b.reader.ListCoupons(ctx, models.CouponFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	byUser := make(map[int64]*models.Coupon, len(coupons))
	for _, c := range coupons {
		byUser[c.UserID] = c
	}

	staffList, err := b.reader.ListStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	staffNames := make(map[int64]string, len(staffList))
	for _, st := range staffList {
		staffNames[st.TelegramID] = st.Name
	}

	rows := make([]GuestRow, 0, len(users))
	for _, u := range users {
		row := GuestRow{
			TelegramID:   u.TelegramID,
			Username:     u.Username,
			Name:         u.DisplayName(),
			Source:       u.Source,
			Subscribed:   u.Subscribed,
			RegisteredAt: u.CreatedAt,
			LastSeenAt:   u.LastSeenAt,
		}
		if u.StaffID != nil {
			row.StaffName = staffNames[*u.StaffID]
		}
		if c, ok := byUser[u.TelegramID]; ok {
			issued := c.IssuedAt
			row.CouponCode = c.Code
			row.CouponStatus = c.Status
			row.IssuedAt = &issued
			row.RedeemedAt = c.RedeemedAt
		}
		rows = append(rows, row)
	}

	return rows, nil
}
