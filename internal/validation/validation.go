package validation

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"telegram_loyalty_bot/pkg/errors"
)

// Ограничения на пользовательский ввод
const (
	MaxNameLength     = 100
	MaxPositionLength = 100
	MaxQuestionLength = 1000
)

// ValidateTelegramID валидирует Telegram ID, введенный администратором
func ValidateTelegramID(idStr string) (int64, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return 0, errors.ErrInvalidTelegramID.WithContext("Telegram ID не может быть пустым")
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, errors.ErrInvalidTelegramID.WithError(err).WithContext(map[string]interface{}{
			"input": idStr,
		})
	}

	if id <= 0 {
		return 0, errors.ErrInvalidTelegramID.WithContext(map[string]interface{}{
			"input":  idStr,
			"reason": "ID должен быть положительным числом",
		})
	}

	return id, nil
}

// ValidateChatID валидирует Telegram Chat ID
func ValidateChatID(chatID int64) error {
	if chatID == 0 {
		return errors.NewBotError("INVALID_CHAT_ID", "Chat ID не может быть равен нулю")
	}
	return nil
}

// ValidateStaffName валидирует имя сотрудника
func ValidateStaffName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewBotError("INVALID_STAFF_NAME", "имя сотрудника не может быть пустым")
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		return errors.NewBotError("INVALID_STAFF_NAME", "имя сотрудника слишком длинное (максимум 100 символов)")
	}

	return nil
}

// StaffArgs аргументы команды добавления сотрудника
type StaffArgs struct {
	TelegramID int64
	Name       string
	Position   string
}

// ParseStaffArgs разбирает строку вида "<telegram_id> <имя> [| должность]"
func ParseStaffArgs(args string) (StaffArgs, error) {
	idPart, rest, _ := strings.Cut(strings.TrimSpace(args), " ")

	id, err := ValidateTelegramID(idPart)
	if err != nil {
		return StaffArgs{}, err
	}

	name, position, _ := strings.Cut(rest, "|")
	name = strings.Join(strings.Fields(name), " ")
	position = strings.Join(strings.Fields(position), " ")

	if err := ValidateStaffName(name); err != nil {
		return StaffArgs{}, err
	}

	if utf8.RuneCountInString(position) > MaxPositionLength {
		return StaffArgs{}, errors.NewBotError("INVALID_STAFF_POSITION", "должность слишком длинная (максимум 100 символов)")
	}

	return StaffArgs{TelegramID: id, Name: name, Position: position}, nil
}

// ValidateQuestion валидирует вопрос к ассистенту и возвращает его без лишних пробелов
func ValidateQuestion(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.NewBotError("INVALID_QUESTION", "вопрос не может быть пустым")
	}

	if utf8.RuneCountInString(question) > MaxQuestionLength {
		return "", errors.NewBotError("INVALID_QUESTION", "вопрос слишком длинный (максимум 1000 символов)")
	}

	return question, nil
}
