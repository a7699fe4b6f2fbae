// Package loyalty реализует регистрацию гостей, выдачу и погашение купонов
// и управление сотрудниками.
package loyalty

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"telegram_loyalty_bot/internal/attribution"
	"telegram_loyalty_bot/internal/storage"
	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"
	"telegram_loyalty_bot/pkg/metrics"
)

// Алфавит кода купона без похожих символов (0/O, 1/I)
const (
	couponAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CouponCodeLength = 6
	maxCodeAttempts  = 5
)

// Checker проверяет подписку на канал
type Checker interface {
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
}

// Config параметры программы лояльности
type Config struct {
	Discount    int
	TTL         time.Duration
	AdminIDs    []int64
	BotUsername string
	QRDir       string
}

// Guest профиль гостя из Telegram
type Guest struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// Service бизнес-логика программы лояльности
type Service struct {
	storage  storage.Storage
	checker  Checker
	resolver *attribution.Resolver
	config   Config
	logger   *logger.Logger
	now      func() time.Time
}

// NewService создает сервис лояльности
func NewService(store storage.Storage, checker Checker, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		storage:  store,
		checker:  checker,
		resolver: attribution.NewResolver(store, log),
		config:   cfg,
		logger:   log.Named("loyalty"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Config возвращает параметры сервиса
func (s *Service) Config() Config {
	return s.config
}

// IsAdmin проверяет, является ли пользователь администратором
func (s *Service) IsAdmin(telegramID int64) bool {
	return slices.Contains(s.config.AdminIDs, telegramID)
}

// IsStaff проверяет, является ли пользователь активным сотрудником
func (s *Service) IsStaff(ctx context.Context, telegramID int64) (bool, error) {
	staff, err := s.storage.GetStaffByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, errors.ErrStaffNotFound) {
			return false, nil
		}
		return false, err
	}
	return staff.Active, nil
}

// Register регистрирует гостя при первом /start. Источник существующего
// гостя не перезаписывается, обновляются только профиль и время визита.
func (s *Service) Register(ctx context.Context, guest Guest, payload string) (*models.User, bool, error) {
	if guest.TelegramID <= 0 {
		return nil, false, errors.ErrInvalidTelegramID.WithContext(guest.TelegramID)
	}

	attr, err := s.resolver.Resolve(ctx, guest.TelegramID, payload)
	if err != nil {
		s.logger.Warn("Attribution failed, registering as direct",
			logger.Int64("telegram_id", guest.TelegramID),
			logger.Error(err),
		)
		attr = attribution.Direct()
	}

	user := &models.User{
		TelegramID: guest.TelegramID,
		Username:   guest.Username,
		FirstName:  guest.FirstName,
		LastName:   guest.LastName,
		Source:     attr.Source,
		StaffID:    attr.StaffID,
		ReferrerID: attr.ReferrerID,
	}

	created, err := s.storage.CreateUser(ctx, user)
	if err != nil {
		return nil, false, fmt.Errorf("failed to register user: %w", err)
	}

	if created {
		metrics.RecordGuestRegistration(attr.Kind)
		s.logger.Info("Guest registered",
			logger.Int64("telegram_id", user.TelegramID),
			logger.String("source", user.Source),
		)
		return user, true, nil
	}

	existing, err := s.storage.GetUser(ctx, guest.TelegramID)
	if err != nil {
		return nil, false, err
	}

	if existing.Username != guest.Username || existing.FirstName != guest.FirstName || existing.LastName != guest.LastName {
		existing.Username = guest.Username
		existing.FirstName = guest.FirstName
		existing.LastName = guest.LastName
		if err := s.storage.UpdateUser(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("failed to update profile: %w", err)
		}
	}

	now := s.now()
	if err := s.storage.TouchUser(ctx, guest.TelegramID, now); err != nil {
		return nil, false, err
	}
	existing.LastSeenAt = now

	return existing, false, nil
}

// ClaimCoupon выдает купон подписанному гостю. Повторный вызов
// возвращает уже выданный купон.
func (s *Service) ClaimCoupon(ctx context.Context, userID int64) (*models.Coupon, bool, error) {
	if _, err := s.storage.GetUser(ctx, userID); err != nil {
		return nil, false, err
	}

	existing, err := s.storage.GetCouponByUser(ctx, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, errors.ErrCouponNotFound) {
		return nil, false, err
	}

	subscribed, err := s.checker.IsSubscribed(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if err := s.storage.SetSubscribed(ctx, userID, subscribed); err != nil {
		s.logger.Warn("Failed to save subscription", logger.Int64("telegram_id", userID), logger.Error(err))
	}
	if !subscribed {
		return nil, false, errors.ErrNotSubscribed.WithContext(userID)
	}

	now := s.now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		coupon := &models.Coupon{
			UserID:   userID,
			Code:     NewCouponCode(),
			Discount: s.config.Discount,
			Status:   models.CouponIssued,
			IssuedAt: now,
		}
		if s.config.TTL > 0 {
			expires := now.Add(s.config.TTL)
			coupon.ExpiresAt = &expires
		}

		err := s.storage.IssueCoupon(ctx, coupon)
		switch {
		case err == nil:
			metrics.RecordCouponIssued()
			s.logger.Info("Coupon issued",
				logger.Int64("telegram_id", userID),
				logger.String("code", coupon.Code),
			)
			return coupon, true, nil
		case errors.Is(err, errors.ErrCouponCodeTaken):
			continue
		case errors.Is(err, errors.ErrCouponAlreadyIssued):
			existing, getErr := s.storage.GetCouponByUser(ctx, userID)
			return existing, false, getErr
		default:
			return nil, false, err
		}
	}

	return nil, false, fmt.Errorf("failed to generate unique coupon code after %d attempts", maxCodeAttempts)
}

// CouponStatus возвращает купон гостя
func (s *Service) CouponStatus(ctx context.Context, userID int64) (*models.Coupon, error) {
	return s.storage.GetCouponByUser(ctx, userID)
}

// Redeem гасит купон. Доступно только сотрудникам и администраторам.
func (s *Service) Redeem(ctx context.Context, code string, actorID int64) (*models.Coupon, error) {
	allowed := s.IsAdmin(actorID)
	if !allowed {
		isStaff, err := s.IsStaff(ctx, actorID)
		if err != nil {
			return nil, err
		}
		allowed = isStaff
	}
	if !allowed {
		metrics.RecordRedeemRejected("access_denied")
		return nil, errors.ErrAccessDenied.WithContext(actorID)
	}

	code = NormalizeCouponCode(code)
	if !IsCouponCode(code) {
		metrics.RecordRedeemRejected("invalid_code")
		return nil, errors.ErrInvalidCode.WithContext(code)
	}

	coupon, err := s.storage.RedeemCoupon(ctx, code, actorID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrCouponNotFound):
			metrics.RecordRedeemRejected("not_found")
		case errors.Is(err, errors.ErrCouponAlreadyRedeemed):
			metrics.RecordRedeemRejected("already_redeemed")
		case errors.Is(err, errors.ErrCouponExpired):
			metrics.RecordRedeemRejected("expired")
		}
		return nil, err
	}

	metrics.RecordCouponRedeemed()
	s.logger.Info("Coupon redeemed",
		logger.String("code", coupon.Code),
		logger.Int64("guest_id", coupon.UserID),
		logger.Int64("redeemed_by", actorID),
	)
	return coupon, nil
}

// NewCouponCode генерирует код купона из случайного UUID
func NewCouponCode() string {
	id := uuid.New()
	var b strings.Builder
	for i := 0; i < CouponCodeLength; i++ {
		b.WriteByte(couponAlphabet[int(id[i])%len(couponAlphabet)])
	}
	return b.String()
}

// NormalizeCouponCode приводит введенный код к каноническому виду
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsCouponCode проверяет формат кода купона
func IsCouponCode(code string) bool {
	if len(code) != CouponCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(couponAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
