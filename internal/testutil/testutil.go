// Package testutil общие помощники для тестов пакетов бота.
package testutil

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"telegram_loyalty_bot/internal/storage/sqlite"
	"telegram_loyalty_bot/pkg/logger"
)

// SetupTestDB создает in-memory SQLite базу данных для тестов
func SetupTestDB(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()

	storage, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

// SetupTestLogger создает логгер, записи которого можно проверить в тесте
func SetupTestLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.NewFromZap(zap.New(core)), logs
}

// TestContext создает контекст для тестов
func TestContext() context.Context {
	return context.Background()
}

// AssertEqual сравнивает значения через reflect.DeepEqual
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

// AssertNoError проверяет отсутствие ошибки
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// AssertTrue проверяет истинность условия
func AssertTrue(t *testing.T, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Error(msg)
	}
}

// AssertFalse проверяет ложность условия
func AssertFalse(t *testing.T, cond bool, msg string) {
	t.Helper()
	if cond {
		t.Error(msg)
	}
}

// Eventually ждет выполнения условия не дольше timeout
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

// Sent одно отправленное ботом сообщение
type Sent struct {
	Kind     string
	ChatID   any
	Text     string
	Markup   tgmodels.ReplyMarkup
	Filename string
	Data     []byte
}

// FakeTelegram записывает вызовы Telegram API вместо отправки
type FakeTelegram struct {
	mu sync.Mutex

	Members  map[int64]*tgmodels.ChatMember
	Sent     []Sent
	Answered []string
	Deleted  []int
	Err      error
}

// NewFakeTelegram создает фейковый Telegram API
func NewFakeTelegram() *FakeTelegram {
	return &FakeTelegram{Members: make(map[int64]*tgmodels.ChatMember)}
}

// Subscribe отмечает пользователя участником канала
func (f *FakeTelegram) Subscribe(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Members[userID] = &tgmodels.ChatMember{Type: tgmodels.ChatMemberTypeMember}
}

// Messages возвращает копию отправленных сообщений
func (f *FakeTelegram) Messages() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.Sent...)
}

// Last возвращает последнее отправленное сообщение
func (f *FakeTelegram) Last() (Sent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return Sent{}, false
	}
	return f.Sent[len(f.Sent)-1], true
}

func (f *FakeTelegram) record(s Sent) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Sent = append(f.Sent, s)
	return &tgmodels.Message{ID: len(f.Sent)}, nil
}

func (f *FakeTelegram) GetChatMember(_ context.Context, params *bot.GetChatMemberParams) (*tgmodels.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if member, ok := f.Members[params.UserID]; ok {
		return member, nil
	}
	return &tgmodels.ChatMember{Type: tgmodels.ChatMemberTypeLeft}, nil
}

func (f *FakeTelegram) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	return f.record(Sent{Kind: "message", ChatID: params.ChatID, Text: params.Text, Markup: params.ReplyMarkup})
}

func (f *FakeTelegram) SendPhoto(_ context.Context, params *bot.SendPhotoParams) (*tgmodels.Message, error) {
	s := Sent{Kind: "photo", ChatID: params.ChatID, Text: params.Caption, Markup: params.ReplyMarkup}
	if upload, ok := params.Photo.(*tgmodels.InputFileUpload); ok {
		s.Filename = upload.Filename
	}
	return f.record(s)
}

func (f *FakeTelegram) SendDocument(_ context.Context, params *bot.SendDocumentParams) (*tgmodels.Message, error) {
	s := Sent{Kind: "document", ChatID: params.ChatID, Text: params.Caption}
	if upload, ok := params.Document.(*tgmodels.InputFileUpload); ok {
		s.Filename = upload.Filename
	}
	return f.record(s)
}

func (f *FakeTelegram) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Answered = append(f.Answered, params.CallbackQueryID)
	return true, nil
}

func (f *FakeTelegram) DeleteMessage(_ context.Context, params *bot.DeleteMessageParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, params.MessageID)
	return true, nil
}
