package errors

import (
	stderrors "errors"
	"fmt"
)

// BotError представляет ошибку бота с кодом и контекстом
type BotError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
	Context interface{} `json:"context,omitempty"`
}

// Error реализует интерфейс error
func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *BotError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, чтобы копии из WithError/WithContext
// совпадали с предопределенными ошибками
func (e *BotError) Is(target error) bool {
	t, ok := target.(*BotError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithContext добавляет контекст к ошибке
func (e *BotError) WithContext(ctx interface{}) *BotError {
	return &BotError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Context: ctx,
	}
}

// WithError добавляет underlying ошибку
func (e *BotError) WithError(err error) *BotError {
	return &BotError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
		Context: e.Context,
	}
}

// Предопределенные ошибки
var (
	// Ошибки гостей
	ErrUserNotFound = &BotError{
		Code:    "USER_NOT_FOUND",
		Message: "гость не найден",
	}

	// Ошибки сотрудников
	ErrStaffNotFound = &BotError{
		Code:    "STAFF_NOT_FOUND",
		Message: "сотрудник не найден",
	}

	ErrStaffAlreadyExists = &BotError{
		Code:    "STAFF_ALREADY_EXISTS",
		Message: "сотрудник уже добавлен",
	}

	ErrStaffCodeTaken = &BotError{
		Code:    "STAFF_CODE_TAKEN",
		Message: "код сотрудника уже занят",
	}

	// Ошибки купонов
	ErrCouponNotFound = &BotError{
		Code:    "COUPON_NOT_FOUND",
		Message: "купон не найден",
	}

	ErrCouponAlreadyIssued = &BotError{
		Code:    "COUPON_ALREADY_ISSUED",
		Message: "купон уже выдан",
	}

	ErrCouponAlreadyRedeemed = &BotError{
		Code:    "COUPON_ALREADY_REDEEMED",
		Message: "купон уже погашен",
	}

	ErrCouponCodeTaken = &BotError{
		Code:    "COUPON_CODE_TAKEN",
		Message: "код купона уже занят",
	}

	ErrCouponExpired = &BotError{
		Code:    "COUPON_EXPIRED",
		Message: "срок действия купона истек",
	}

	ErrNotSubscribed = &BotError{
		Code:    "NOT_SUBSCRIBED",
		Message: "гость не подписан на канал",
	}

	// Ошибки доступа и валидации
	ErrAccessDenied = &BotError{
		Code:    "ACCESS_DENIED",
		Message: "недостаточно прав",
	}

	ErrInvalidCode = &BotError{
		Code:    "INVALID_CODE",
		Message: "некорректный код",
	}

	ErrInvalidPeriod = &BotError{
		Code:    "INVALID_PERIOD",
		Message: "некорректный период отчета",
	}

	ErrInvalidTelegramID = &BotError{
		Code:    "INVALID_TELEGRAM_ID",
		Message: "некорректный Telegram ID",
	}

	// Системные ошибки
	ErrDatabaseConnection = &BotError{
		Code:    "DATABASE_CONNECTION",
		Message: "ошибка подключения к базе данных",
	}

	ErrConfigurationInvalid = &BotError{
		Code:    "CONFIGURATION_INVALID",
		Message: "некорректная конфигурация",
	}

	ErrTelegramAPI = &BotError{
		Code:    "TELEGRAM_API",
		Message: "ошибка Telegram API",
	}

	ErrExportNotConfigured = &BotError{
		Code:    "EXPORT_NOT_CONFIGURED",
		Message: "экспорт не настроен",
	}

	ErrPersonaDisabled = &BotError{
		Code:    "PERSONA_DISABLED",
		Message: "AI-ассистент отключен",
	}
)

// NewBotError создает новую ошибку бота
func NewBotError(code, message string) *BotError {
	return &BotError{
		Code:    code,
		Message: message,
	}
}

// IsBotError проверяет, является ли ошибка BotError
func IsBotError(err error) bool {
	var botErr *BotError
	return stderrors.As(err, &botErr)
}

// GetBotError извлекает BotError из цепочки ошибок
func GetBotError(err error) (*BotError, bool) {
	var botErr *BotError
	ok := stderrors.As(err, &botErr)
	return botErr, ok
}

// Is и As реэкспортированы, чтобы пакетам хватало одного импорта
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
