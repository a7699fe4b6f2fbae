// Package migrate переносит строки между хранилищами без перезаписи
// уже существующих ключей.
package migrate

import (
	"context"
	"fmt"

	"telegram_loyalty_bot/internal/storage"
	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"
	"telegram_loyalty_bot/pkg/metrics"
)

// Source отдает все строки исходного хранилища
type Source interface {
	ListStaff(ctx context.Context) ([]*models.Staff, error)
	ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
	ListCoupons(ctx context.Context, filter models.CouponFilter) ([]*models.Coupon, error)
}

// Destination принимает импорт и умеет проверять наличие ключа
type Destination interface {
	storage.Importer
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	GetStaffByTelegramID(ctx context.Context, telegramID int64) (*models.Staff, error)
	GetStaffByCode(ctx context.Context, code string) (*models.Staff, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetCouponByUser(ctx context.Context, userID int64) (*models.Coupon, error)
}

// sequenceSyncer реализуется хранилищами с автоинкрементными последовательностями
type sequenceSyncer interface {
	SyncSequences(ctx context.Context) error
}

// TableStats счетчики по одной таблице
type TableStats struct {
	Read     int
	Inserted int
	Skipped  int
	Failed   int
}

func (t *TableStats) add(table string, result string) {
	switch result {
	case "inserted":
		t.Inserted++
	case "skipped":
		t.Skipped++
	case "failed":
		t.Failed++
	}
	metrics.RecordMigratedRow(table, result)
}

// Stats итог переноса
type Stats struct {
	Staff   TableStats
	Users   TableStats
	Coupons TableStats
}

// Failed возвращает общее число строк с ошибкой
func (s Stats) Failed() int {
	return s.Staff.Failed + s.Users.Failed + s.Coupons.Failed
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"staff: read=%d inserted=%d skipped=%d failed=%d; users: read=%d inserted=%d skipped=%d failed=%d; coupons: read=%d inserted=%d skipped=%d failed=%d",
		s.Staff.Read, s.Staff.Inserted, s.Staff.Skipped, s.Staff.Failed,
		s.Users.Read, s.Users.Inserted, s.Users.Skipped, s.Users.Failed,
		s.Coupons.Read, s.Coupons.Inserted, s.Coupons.Skipped, s.Coupons.Failed,
	)
}

// Copier переносит сотрудников, гостей и купоны
type Copier struct {
	DryRun bool
	logger *logger.Logger
}

// NewCopier создает копировщик
func NewCopier(log *logger.Logger, dryRun bool) *Copier {
	if log == nil {
		log = logger.NewNop()
	}
	return &Copier{DryRun: dryRun, logger: log}
}

// Copy переносит строки в порядке зависимостей: сотрудники, гости, купоны.
// Существующие в приемнике ключи пропускаются.
func (c *Copier) Copy(ctx context.Context, src Source, dst Destination) (Stats, error) {
	var stats Stats

	staff, err := src.ListStaff(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to read staff: %w", err)
	}
	stats.Staff.Read = len(staff)
	for _, st := range staff {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		result := c.apply("staff", func() (bool, error) {
			if c.DryRun {
				return c.planStaff(ctx, dst, st)
			}
			return dst.ImportStaff(ctx, st)
		}, logger.Int64("telegram_id", st.TelegramID))
		stats.Staff.add("staff", result)
	}

	users, err := src.ListUsers(ctx, models.UserFilter{})
	if err != nil {
		return stats, fmt.Errorf("failed to read users: %w", err)
	}
	stats.Users.Read = len(users)
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		result := c.apply("users", func() (bool, error) {
			if c.DryRun {
				return absent(dst.GetUser(ctx, u.TelegramID))
			}
			return dst.ImportUser(ctx, u)
		}, logger.Int64("telegram_id", u.TelegramID))
		stats.Users.add("users", result)
	}

	coupons, err := src.ListCoupons(ctx, models.CouponFilter{})
	if err != nil {
		return stats, fmt.Errorf("failed to read coupons: %w", err)
	}
	stats.Coupons.Read = len(coupons)
	for _, cp := range coupons {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		result := c.apply("coupons", func() (bool, error) {
			if c.DryRun {
				return c.planCoupon(ctx, dst, cp)
			}
			return dst.ImportCoupon(ctx, cp)
		}, logger.String("code", cp.Code))
		stats.Coupons.add("coupons", result)
	}

	if syncer, ok := dst.(sequenceSyncer); ok && !c.DryRun {
		if err := syncer.SyncSequences(ctx); err != nil {
			return stats, fmt.Errorf("failed to sync sequences: %w", err)
		}
	}

	c.logger.Info("Migration finished",
		logger.Bool("dry_run", c.DryRun),
		logger.String("stats", stats.String()),
	)

	return stats, nil
}

func (c *Copier) apply(table string, write func() (bool, error), fields ...logger.Field) string {
	inserted, err := write()
	if err != nil {
		c.logger.Warn("failed to copy row",
			append([]logger.Field{logger.String("table", table), logger.Error(err)}, fields...)...)
		return "failed"
	}
	if inserted {
		return "inserted"
	}
	return "skipped"
}

// planStaff повторяет для пробного прогона правила ImportStaff: существующий
// telegram_id пропускается, занятый другим сотрудником код дает ошибку
func (c *Copier) planStaff(ctx context.Context, dst Destination, st *models.Staff) (bool, error) {
	missing, err := absent(dst.GetStaffByTelegramID(ctx, st.TelegramID))
	if err != nil || !missing {
		return missing, err
	}
	free, err := absent(dst.GetStaffByCode(ctx, st.Code))
	if err != nil {
		return false, err
	}
	if !free {
		return false, fmt.Errorf("staff code %s belongs to another telegram_id", st.Code)
	}
	return true, nil
}

// planCoupon повторяет для пробного прогона правила ImportCoupon: существующий
// код пропускается, другой купон того же гостя дает ошибку
func (c *Copier) planCoupon(ctx context.Context, dst Destination, cp *models.Coupon) (bool, error) {
	missing, err := absent(dst.GetCouponByCode(ctx, cp.Code))
	if err != nil || !missing {
		return missing, err
	}
	free, err := absent(dst.GetCouponByUser(ctx, cp.UserID))
	if err != nil {
		return false, err
	}
	if !free {
		return false, fmt.Errorf("user %d already has another coupon", cp.UserID)
	}
	return true, nil
}

// absent превращает результат поиска в "была бы вставлена" для пробного прогона
func absent[T any](_ T, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if isNotFound(err) {
		return true, nil
	}
	return false, err
}

func isNotFound(err error) bool {
	return errors.Is(err, errors.ErrUserNotFound) ||
		errors.Is(err, errors.ErrStaffNotFound) ||
		errors.Is(err, errors.ErrCouponNotFound)
}
