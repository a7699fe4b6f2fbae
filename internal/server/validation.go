package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"mime"
	"net/http"
	"unicode/utf8"

	"telegram_loyalty_bot/internal/validation"

	tgmodels "github.com/go-telegram/bot/models"
)

const (
	// MaxMessageTextLength лимит Telegram на длину текста сообщения
	MaxMessageTextLength = 4096
	// MaxCallbackDataLength лимит Telegram на callback_data
	MaxCallbackDataLength = 64
)

// ErrUnsupportedUpdate обновление корректно, но бот его не обрабатывает
var ErrUnsupportedUpdate = stderrors.New("unsupported update type")

// ValidationError описывает отклоненный запрос
type ValidationError struct {
	Field   string
	Message string
	Status  int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RequestValidator проверяет входящие webhook запросы
type RequestValidator struct {
	maxBodySize int64
}

// NewRequestValidator создает валидатор с ограничением размера тела
func NewRequestValidator(maxBodySize int64) *RequestValidator {
	return &RequestValidator{maxBodySize: maxBodySize}
}

// ValidateWebhookRequest разбирает и проверяет update из тела запроса
func (v *RequestValidator) ValidateWebhookRequest(w http.ResponseWriter, r *http.Request) (*tgmodels.Update, error) {
	if r.Method != http.MethodPost {
		return nil, &ValidationError{Field: "method", Message: "only POST is allowed", Status: http.StatusMethodNotAllowed}
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return nil, &ValidationError{Field: "content_type", Message: "expected application/json", Status: http.StatusUnsupportedMediaType}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, v.maxBodySize)

	var update tgmodels.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return nil, &ValidationError{Field: "body", Message: "request body too large", Status: http.StatusRequestEntityTooLarge}
		}
		return nil, &ValidationError{Field: "body", Message: "invalid JSON: " + err.Error(), Status: http.StatusBadRequest}
	}

	if err := v.validateUpdate(&update); err != nil {
		return &update, err
	}

	return &update, nil
}

func (v *RequestValidator) validateUpdate(update *tgmodels.Update) error {
	if update.ID <= 0 {
		return &ValidationError{Field: "update_id", Message: "must be positive", Status: http.StatusBadRequest}
	}

	switch {
	case update.Message != nil:
		if err := validation.ValidateChatID(update.Message.Chat.ID); err != nil {
			return &ValidationError{Field: "message.chat.id", Message: err.Error(), Status: http.StatusBadRequest}
		}
		if utf8.RuneCountInString(update.Message.Text) > MaxMessageTextLength {
			return &ValidationError{Field: "message.text", Message: "text too long", Status: http.StatusBadRequest}
		}
	case update.CallbackQuery != nil:
		if update.CallbackQuery.From.ID <= 0 {
			return &ValidationError{Field: "callback_query.from.id", Message: "must be positive", Status: http.StatusBadRequest}
		}
		if len(update.CallbackQuery.Data) > MaxCallbackDataLength {
			return &ValidationError{Field: "callback_query.data", Message: "data too long", Status: http.StatusBadRequest}
		}
	default:
		return ErrUnsupportedUpdate
	}

	return nil
}
