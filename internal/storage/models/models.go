package models

import "time"

// Типы источников привлечения гостя
const (
	SourceDirect   = "direct"
	SourceStaff    = "staff"
	SourceReferral = "referral"
	SourceCampaign = "campaign"
)

// Статусы купона
const (
	CouponIssued   = "issued"
	CouponRedeemed = "redeemed"
)

// User представляет гостя бара
type User struct {
	TelegramID int64     `json:"telegram_id" db:"telegram_id"`
	Username   string    `json:"username" db:"username"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	Source     string    `json:"source" db:"source"`
	StaffID    *int64    `json:"staff_id,omitempty" db:"staff_id"`
	ReferrerID *int64    `json:"referrer_id,omitempty" db:"referrer_id"`
	Subscribed bool      `json:"subscribed" db:"subscribed"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// DisplayName возвращает имя гостя для отчетов и сообщений
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" && u.Username != "" {
		return "@" + u.Username
	}
	return name
}

// SourceKind возвращает тип источника без идентификатора ("staff:42" -> "staff")
func (u *User) SourceKind() string {
	return SourceKindOf(u.Source)
}

// SourceKindOf выделяет тип источника из строки источника
func SourceKindOf(source string) string {
	for i := 0; i < len(source); i++ {
		if source[i] == ':' {
			return source[:i]
		}
	}
	if source == "" {
		return SourceDirect
	}
	return source
}

// Staff представляет сотрудника с персональным QR-кодом
type Staff struct {
	ID         int64     `json:"id" db:"id"`
	TelegramID int64     `json:"telegram_id" db:"telegram_id"`
	Name       string    `json:"name" db:"name"`
	Position   string    `json:"position" db:"position"`
	Code       string    `json:"code" db:"code"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Coupon представляет купон на скидку, выданный гостю
type Coupon struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	Code       string     `json:"code" db:"code"`
	Discount   int        `json:"discount" db:"discount"`
	Status     string     `json:"status" db:"status"`
	IssuedAt   time.Time  `json:"issued_at" db:"issued_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty" db:"redeemed_at"`
	RedeemedBy *int64     `json:"redeemed_by,omitempty" db:"redeemed_by"`
}

// IsRedeemed проверяет, погашен ли купон
func (c *Coupon) IsRedeemed() bool {
	return c.Status == CouponRedeemed
}

// IsExpired проверяет, истек ли срок действия купона на момент now
func (c *Coupon) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// UserFilter задает выборку гостей; нулевые поля не ограничивают выборку
type UserFilter struct {
	From   time.Time
	To     time.Time
	Source string
}

// Match проверяет гостя на соответствие фильтру
func (f UserFilter) Match(u *User) bool {
	if !f.From.IsZero() && u.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !u.CreatedAt.Before(f.To) {
		return false
	}
	if f.Source != "" && u.Source != f.Source && u.SourceKind() != f.Source {
		return false
	}
	return true
}

// CouponFilter задает выборку купонов по дате выдачи и статусу
type CouponFilter struct {
	From   time.Time
	To     time.Time
	Status string
}

// Match проверяет купон на соответствие фильтру
func (f CouponFilter) Match(c *Coupon) bool {
	if !f.From.IsZero() && c.IssuedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !c.IssuedAt.Before(f.To) {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}
