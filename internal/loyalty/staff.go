package loyalty

import (
	"context"
	"fmt"
	"strings"

	"telegram_loyalty_bot/internal/attribution"
	"telegram_loyalty_bot/internal/qr"
	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"
)

// AddStaff добавляет сотрудника с новым уникальным кодом
func (s *Service) AddStaff(ctx context.Context, telegramID int64, name, position string) (*models.Staff, error) {
	if telegramID <= 0 {
		return nil, errors.ErrInvalidTelegramID.WithContext(telegramID)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("staff name is required")
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		staff := &models.Staff{
			TelegramID: telegramID,
			Name:       name,
			Position:   strings.TrimSpace(position),
			Code:       attribution.NewStaffCode(),
			Active:     true,
		}

		err := s.storage.CreateStaff(ctx, staff)
		if err == nil {
			s.logger.Info("Staff added",
				logger.Int64("telegram_id", telegramID),
				logger.String("code", staff.Code),
			)
			return staff, nil
		}
		if !errors.Is(err, errors.ErrStaffCodeTaken) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to generate unique staff code after %d attempts", maxCodeAttempts)
}

// SetStaffActive включает или отключает сотрудника. Отключенный код
// перестает приписывать новых гостей.
func (s *Service) SetStaffActive(ctx context.Context, telegramID int64, active bool) (*models.Staff, error) {
	staff, err := s.storage.GetStaffByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if staff.Active == active {
		return staff, nil
	}

	staff.Active = active
	if err := s.storage.UpdateStaff(ctx, staff); err != nil {
		return nil, err
	}

	s.logger.Info("Staff status changed",
		logger.Int64("telegram_id", telegramID),
		logger.Bool("active", active),
	)
	return staff, nil
}

// RenameStaff меняет имя и должность сотрудника
func (s *Service) RenameStaff(ctx context.Context, telegramID int64, name, position string) (*models.Staff, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("staff name is required")
	}

	staff, err := s.storage.GetStaffByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	staff.Name = name
	if position != "" {
		staff.Position = strings.TrimSpace(position)
	}
	if err := s.storage.UpdateStaff(ctx, staff); err != nil {
		return nil, err
	}
	return staff, nil
}

// RegenerateStaffCode выдает сотруднику новый код, старый QR перестает работать
func (s *Service) RegenerateStaffCode(ctx context.Context, telegramID int64) (*models.Staff, error) {
	staff, err := s.storage.GetStaffByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		staff.Code = attribution.NewStaffCode()
		err := s.storage.UpdateStaff(ctx, staff)
		if err == nil {
			s.logger.Info("Staff code regenerated",
				logger.Int64("telegram_id", telegramID),
				logger.String("code", staff.Code),
			)
			return staff, nil
		}
		if !errors.Is(err, errors.ErrStaffCodeTaken) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to generate unique staff code after %d attempts", maxCodeAttempts)
}

// DeleteStaff удаляет сотрудника. Гости сохраняют атрибуцию.
func (s *Service) DeleteStaff(ctx context.Context, telegramID int64) error {
	if err := s.storage.DeleteStaff(ctx, telegramID); err != nil {
		return err
	}
	s.logger.Info("Staff deleted", logger.Int64("telegram_id", telegramID))
	return nil
}

// ListStaff возвращает всех сотрудников
func (s *Service) ListStaff(ctx context.Context) ([]*models.Staff, error) {
	return s.storage.ListStaff(ctx)
}

// GetStaff возвращает сотрудника по Telegram ID
func (s *Service) GetStaff(ctx context.Context, telegramID int64) (*models.Staff, error) {
	return s.storage.GetStaffByTelegramID(ctx, telegramID)
}

// StaffLink ссылка на бота для QR сотрудника
func (s *Service) StaffLink(staff *models.Staff) string {
	return attribution.DeepLink(s.config.BotUsername, attribution.StaffPayload(staff.Code))
}

// ReferralLink персональная ссылка гостя для приглашения друзей
func (s *Service) ReferralLink(telegramID int64) string {
	return attribution.DeepLink(s.config.BotUsername, attribution.ReferralPayload(telegramID))
}

// LinksReady проверяет, что для ссылок известен username бота
func (s *Service) LinksReady() error {
	if s.config.BotUsername == "" {
		return errors.ErrConfigurationInvalid.WithError(fmt.Errorf("BOT_USERNAME is not set"))
	}
	return nil
}

// StaffQR рисует PNG с QR-кодом сотрудника
func (s *Service) StaffQR(staff *models.Staff) ([]byte, error) {
	if err := s.LinksReady(); err != nil {
		return nil, err
	}
	return qr.Encode(s.StaffLink(staff), qr.DefaultSize)
}

// ReferralQR рисует PNG с реферальной ссылкой гостя
func (s *Service) ReferralQR(telegramID int64) ([]byte, error) {
	if err := s.LinksReady(); err != nil {
		return nil, err
	}
	return qr.Encode(s.ReferralLink(telegramID), qr.DefaultSize)
}

// WriteStaffQR сохраняет QR активных сотрудников в каталог и возвращает пути
func (s *Service) WriteStaffQR(ctx context.Context, dir string) ([]string, error) {
	if err := s.LinksReady(); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = s.config.QRDir
	}

	list, err := s.storage.ListStaff(ctx)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, staff := range list {
		if !staff.Active {
			continue
		}
		name := fmt.Sprintf("%s_%d", staff.Code, staff.TelegramID)
		path, err := qr.WriteFile(dir, name, s.StaffLink(staff))
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}
