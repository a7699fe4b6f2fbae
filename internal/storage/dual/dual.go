// Package dual дублирует записи в основное и резервное хранилища.
// Ошибки основного хранилища возвращаются вызывающему, ошибки резервного
// только логируются и считаются в метриках.
package dual

import (
	"context"
	"time"

	"telegram_loyalty_bot/internal/storage"
	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"
	"telegram_loyalty_bot/pkg/metrics"
)

// Storage реализует storage.Storage поверх двух хранилищ
type Storage struct {
	primary   storage.Storage
	secondary storage.Storage
	logger    *logger.Logger
}

// New создает двойное хранилище
func New(primary, secondary storage.Storage, log *logger.Logger) *Storage {
	if log == nil {
		log = logger.NewNop()
	}
	return &Storage{
		primary:   primary,
		secondary: secondary,
		logger:    log.Named("dual"),
	}
}

// secondaryFailed логирует и считает сбой резервной записи
func (s *Storage) secondaryFailed(op string, err error, fields ...logger.Field) {
	metrics.RecordSecondaryWriteFailure(op)
	metrics.RecordDatabaseOperation("secondary", op, "error")
	s.logger.Warn("secondary write failed",
		append([]logger.Field{logger.String("operation", op), logger.Error(err)}, fields...)...)
}

func primaryResult(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDatabaseOperation("primary", op, status)
}

// syncUser копирует строку гостя из основного хранилища в резервное
func (s *Storage) syncUser(ctx context.Context, telegramID int64) error {
	user, err := s.primary.GetUser(ctx, telegramID)
	if err != nil {
		return err
	}
	_, err = s.secondary.ImportUser(ctx, user)
	return err
}

// ensureSecondaryUser гарантирует наличие гостя в резервном хранилище
func (s *Storage) ensureSecondaryUser(ctx context.Context, telegramID int64) error {
	_, err := s.secondary.GetUser(ctx, telegramID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errors.ErrUserNotFound) {
		return err
	}
	return s.syncUser(ctx, telegramID)
}

// mirrorUser выполняет запись в резервное хранилище, досинхронизируя
// отсутствующего там гостя
func (s *Storage) mirrorUser(ctx context.Context, op string, telegramID int64, write func() error) {
	err := write()
	if errors.Is(err, errors.ErrUserNotFound) {
		err = s.syncUser(ctx, telegramID)
	}
	if err != nil {
		s.secondaryFailed(op, err, logger.Int64("telegram_id", telegramID))
	}
}

// CreateUser создает гостя в основном хранилище и копирует его в резервное
func (s *Storage) CreateUser(ctx context.Context, user *models.User) (bool, error) {
	created, err := s.primary.CreateUser(ctx, user)
	primaryResult("create_user", err)
	if err != nil {
		return false, err
	}

	if created {
		if _, err := s.secondary.ImportUser(ctx, user); err != nil {
			s.secondaryFailed("create_user", err, logger.Int64("telegram_id", user.TelegramID))
		}
	}

	return created, nil
}

// GetUser читает гостя из основного хранилища
func (s *Storage) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.primary.GetUser(ctx, telegramID)
}

// UpdateUser обновляет гостя в обоих хранилищах
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	err := s.primary.UpdateUser(ctx, user)
	primaryResult("update_user", err)
	if err != nil {
		return err
	}

	mirrored := *user
	s.mirrorUser(ctx, "update_user", user.TelegramID, func() error {
		return s.secondary.UpdateUser(ctx, &mirrored)
	})
	return nil
}

// TouchUser обновляет время визита в обоих хранилищах
func (s *Storage) TouchUser(ctx context.Context, telegramID int64, at time.Time) error {
	err := s.primary.TouchUser(ctx, telegramID, at)
	primaryResult("touch_user", err)
	if err != nil {
		return err
	}

	s.mirrorUser(ctx, "touch_user", telegramID, func() error {
		return s.secondary.TouchUser(ctx, telegramID, at)
	})
	return nil
}

// SetSubscribed сохраняет подписку в обоих хранилищах
func (s *Storage) SetSubscribed(ctx context.Context, telegramID int64, subscribed bool) error {
	err := s.primary.SetSubscribed(ctx, telegramID, subscribed)
	primaryResult("set_subscribed", err)
	if err != nil {
		return err
	}

	s.mirrorUser(ctx, "set_subscribed", telegramID, func() error {
		return s.secondary.SetSubscribed(ctx, telegramID, subscribed)
	})
	return nil
}

// ListUsers читает гостей из основного хранилища
func (s *Storage) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	return s.primary.ListUsers(ctx, filter)
}

// CreateStaff добавляет сотрудника и переносит его с тем же ID
func (s *Storage) CreateStaff(ctx context.Context, staff *models.Staff) error {
	err := s.primary.CreateStaff(ctx, staff)
	primaryResult("create_staff", err)
	if err != nil {
		return err
	}

	if _, err := s.secondary.ImportStaff(ctx, staff); err != nil {
		s.secondaryFailed("create_staff", err, logger.Int64("telegram_id", staff.TelegramID))
	}
	return nil
}

// GetStaffByCode читает сотрудника из основного хранилища
func (s *Storage) GetStaffByCode(ctx context.Context, code string) (*models.Staff, error) {
	return s.primary.GetStaffByCode(ctx, code)
}

// GetStaffByTelegramID читает сотрудника из основного хранилища
func (s *Storage) GetStaffByTelegramID(ctx context.Context, telegramID int64) (*models.Staff, error) {
	return s.primary.GetStaffByTelegramID(ctx, telegramID)
}

// ListStaff читает сотрудников из основного хранилища
func (s *Storage) ListStaff(ctx context.Context) ([]*models.Staff, error) {
	return s.primary.ListStaff(ctx)
}

// UpdateStaff обновляет сотрудника в обоих хранилищах
func (s *Storage) UpdateStaff(ctx context.Context, staff *models.Staff) error {
	err := s.primary.UpdateStaff(ctx, staff)
	primaryResult("update_staff", err)
	if err != nil {
		return err
	}

	mirrored := *staff
	err = s.secondary.UpdateStaff(ctx, &mirrored)
	if errors.Is(err, errors.ErrStaffNotFound) {
		var current *models.Staff
		if current, err = s.primary.GetStaffByTelegramID(ctx, staff.TelegramID); err == nil {
			_, err = s.secondary.ImportStaff(ctx, current)
		}
	}
	if err != nil {
		s.secondaryFailed("update_staff", err, logger.Int64("telegram_id", staff.TelegramID))
	}
	return nil
}

// DeleteStaff удаляет сотрудника из обоих хранилищ
func (s *Storage) DeleteStaff(ctx context.Context, telegramID int64) error {
	err := s.primary.DeleteStaff(ctx, telegramID)
	primaryResult("delete_staff", err)
	if err != nil {
		return err
	}

	if err := s.secondary.DeleteStaff(ctx, telegramID); err != nil && !errors.Is(err, errors.ErrStaffNotFound) {
		s.secondaryFailed("delete_staff", err, logger.Int64("telegram_id", telegramID))
	}
	return nil
}

// IssueCoupon выдает купон и переносит его с тем же ID и кодом
func (s *Storage) IssueCoupon(ctx context.Context, coupon *models.Coupon) error {
	err := s.primary.IssueCoupon(ctx, coupon)
	primaryResult("issue_coupon", err)
	if err != nil {
		return err
	}

	s.mirrorCoupon(ctx, "issue_coupon", coupon)
	return nil
}

func (s *Storage) mirrorCoupon(ctx context.Context, op string, coupon *models.Coupon) {
	err := s.ensureSecondaryUser(ctx, coupon.UserID)
	if err == nil {
		_, err = s.secondary.ImportCoupon(ctx, coupon)
	}
	if err != nil {
		s.secondaryFailed(op, err, logger.String("code", coupon.Code))
	}
}

// GetCouponByCode читает купон из основного хранилища
func (s *Storage) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return s.primary.GetCouponByCode(ctx, code)
}

// GetCouponByUser читает купон гостя из основного хранилища
func (s *Storage) GetCouponByUser(ctx context.Context, userID int64) (*models.Coupon, error) {
	return s.primary.GetCouponByUser(ctx, userID)
}

// RedeemCoupon гасит купон в основном хранилище и повторяет погашение в резервном
func (s *Storage) RedeemCoupon(ctx context.Context, code string, redeemedBy int64, at time.Time) (*models.Coupon, error) {
	coupon, err := s.primary.RedeemCoupon(ctx, code, redeemedBy, at)
	primaryResult("redeem_coupon", err)
	if err != nil {
		return nil, err
	}

	redeemedAt := at
	if coupon.RedeemedAt != nil {
		redeemedAt = *coupon.RedeemedAt
	}

	_, err = s.secondary.RedeemCoupon(ctx, code, redeemedBy, redeemedAt)
	switch {
	case err == nil, errors.Is(err, errors.ErrCouponAlreadyRedeemed):
	case errors.Is(err, errors.ErrCouponNotFound):
		s.mirrorCoupon(ctx, "redeem_coupon", coupon)
	default:
		s.secondaryFailed("redeem_coupon", err, logger.String("code", code))
	}

	return coupon, nil
}

// ListCoupons читает купоны из основного хранилища
func (s *Storage) ListCoupons(ctx context.Context, filter models.CouponFilter) ([]*models.Coupon, error) {
	return s.primary.ListCoupons(ctx, filter)
}

// ImportUser импортирует гостя в оба хранилища
func (s *Storage) ImportUser(ctx context.Context, user *models.User) (bool, error) {
	inserted, err := s.primary.ImportUser(ctx, user)
	primaryResult("import_user", err)
	if err != nil {
		return false, err
	}

	if _, err := s.secondary.ImportUser(ctx, user); err != nil {
		s.secondaryFailed("import_user", err, logger.Int64("telegram_id", user.TelegramID))
	}
	return inserted, nil
}

// ImportStaff импортирует сотрудника в оба хранилища
func (s *Storage) ImportStaff(ctx context.Context, staff *models.Staff) (bool, error) {
	inserted, err := s.primary.ImportStaff(ctx, staff)
	primaryResult("import_staff", err)
	if err != nil {
		return false, err
	}

	if _, err := s.secondary.ImportStaff(ctx, staff); err != nil {
		s.secondaryFailed("import_staff", err, logger.Int64("telegram_id", staff.TelegramID))
	}
	return inserted, nil
}

// ImportCoupon импортирует купон в оба хранилища
func (s *Storage) ImportCoupon(ctx context.Context, coupon *models.Coupon) (bool, error) {
	inserted, err := s.primary.ImportCoupon(ctx, coupon)
	primaryResult("import_coupon", err)
	if err != nil {
		return false, err
	}

	s.mirrorCoupon(ctx, "import_coupon", coupon)
	return inserted, nil
}

// Ping проверяет основное хранилище; недоступность резервного только логируется
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.primary.Ping(ctx); err != nil {
		return err
	}
	if err := s.secondary.Ping(ctx); err != nil {
		s.logger.Warn("secondary storage unavailable", logger.Error(err))
	}
	return nil
}

// Close закрывает оба хранилища
func (s *Storage) Close() error {
	return errors.Join(s.primary.Close(), s.secondary.Close())
}

var _ storage.Storage = (*Storage)(nil)
