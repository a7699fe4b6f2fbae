package storage

import (
	"context"
	"time"

	"telegram_loyalty_bot/internal/storage/models"
)

// UserRepository определяет интерфейс для работы с гостями
type UserRepository interface {
	// CreateUser вставляет гостя, если его еще нет; created=false для существующего
	CreateUser(ctx context.Context, user *models.User) (created bool, err error)
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	TouchUser(ctx context.Context, telegramID int64, at time.Time) error
	SetSubscribed(ctx context.Context, telegramID int64, subscribed bool) error
	ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
}

// StaffRepository определяет интерфейс для работы с сотрудниками
type StaffRepository interface {
	CreateStaff(ctx context.Context, staff *models.Staff) error
	GetStaffByCode(ctx context.Context, code string) (*models.Staff, error)
	GetStaffByTelegramID(ctx context.Context, telegramID int64) (*models.Staff, error)
	ListStaff(ctx context.Context) ([]*models.Staff, error)
	UpdateStaff(ctx context.Context, staff *models.Staff) error
	DeleteStaff(ctx context.Context, telegramID int64) error
}

// CouponRepository определяет интерфейс для работы с купонами
type CouponRepository interface {
	// IssueCoupon сохраняет купон; второй купон тому же гостю дает ErrCouponAlreadyIssued
	IssueCoupon(ctx context.Context, coupon *models.Coupon) error
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetCouponByUser(ctx context.Context, userID int64) (*models.Coupon, error)
	// RedeemCoupon переводит купон issued -> redeemed ровно один раз
	RedeemCoupon(ctx context.Context, code string, redeemedBy int64, at time.Time) (*models.Coupon, error)
	ListCoupons(ctx context.Context, filter models.CouponFilter) ([]*models.Coupon, error)
}

// Importer переносит строки с сохранением времени, пропуская уже существующие
// естественные ключи: telegram_id гостя и сотрудника, код купона
type Importer interface {
	ImportUser(ctx context.Context, user *models.User) (inserted bool, err error)
	ImportStaff(ctx context.Context, staff *models.Staff) (inserted bool, err error)
	ImportCoupon(ctx context.Context, coupon *models.Coupon) (inserted bool, err error)
}

// Storage объединяет все репозитории в единый интерфейс
type Storage interface {
	UserRepository
	StaffRepository
	CouponRepository
	Importer
	Close() error
	Ping(ctx context.Context) error
}
