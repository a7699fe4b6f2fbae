// Package persona отвечает на вопросы гостей о меню от лица бармена.
package persona

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"telegram_loyalty_bot/internal/state"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"
	"telegram_loyalty_bot/pkg/metrics"
)

const basePrompt = `Ты дружелюбный бармен бара. Отвечай коротко, по-русски, на "ты".
Рассказывай только о напитках, блюдах и ценах из меню ниже. Если чего-то нет в меню, честно скажи об этом.
Не обещай скидок, кроме купона за подписку на канал (команда /coupon).`

const maxQuestionLength = 1000

// Completer часть клиента OpenAI, нужная ассистенту
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config параметры ассистента
type Config struct {
	Model       string
	MaxTokens   int
	HistorySize int
	Temperature float32
}

// Persona AI-ассистент с меню бара
type Persona struct {
	client  Completer
	config  Config
	menu    string
	history state.Store
	logger  *logger.Logger
}

// New создает ассистента. client == nil отключает ответы.
func New(client Completer, cfg Config, menu string, history state.Store, log *logger.Logger) *Persona {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.6
	}
	return &Persona{
		client:  client,
		config:  cfg,
		menu:    strings.TrimSpace(menu),
		history: history,
		logger:  log.Named("persona"),
	}
}

// NewClient создает клиента OpenAI; baseURL позволяет указать совместимый прокси
func NewClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// LoadMenu читает текст меню из файла
func LoadMenu(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read menu: %w", err)
	}
	return string(data), nil
}

// Enabled сообщает, настроен ли ассистент
func (p *Persona) Enabled() bool {
	return p != nil && p.client != nil
}

// SystemPrompt собирает системное сообщение с меню
func (p *Persona) SystemPrompt() string {
	if p.menu == "" {
		return basePrompt + "\n\nМеню сейчас недоступно, предложи спросить у бармена."
	}
	return basePrompt + "\n\nМеню:\n" + p.menu
}

// Messages собирает запрос: системное сообщение, история и новый вопрос
func (p *Persona) Messages(history []state.Exchange, question string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2+2*len(history))
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.SystemPrompt()})
	for _, ex := range history {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: ex.Question},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: ex.Answer},
		)
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question})
}

// Ask задает вопрос от имени гостя и сохраняет обмен в истории
func (p *Persona) Ask(ctx context.Context, userID int64, question string) (string, error) {
	if !p.Enabled() {
		return "", errors.ErrPersonaDisabled
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("empty question")
	}
	if r := []rune(question); len(r) > maxQuestionLength {
		question = string(r[:maxQuestionLength])
	}

	var history []state.Exchange
	if p.history != nil && p.config.HistorySize > 0 {
		var err error
		history, err = p.history.History(ctx, userID, p.config.HistorySize)
		if err != nil {
			p.logger.Warn("Failed to load history", logger.Int64("user_id", userID), logger.Error(err))
		}
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    p.Messages(history, question),
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		User:        fmt.Sprintf("%d", userID),
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordAIRequest("error", elapsed)
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.RecordAIRequest("empty", elapsed)
		return "", fmt.Errorf("openai: empty response")
	}
	metrics.RecordAIRequest("success", elapsed)

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)

	if p.history != nil && p.config.HistorySize > 0 {
		ex := state.Exchange{Question: question, Answer: answer, At: time.Now().UTC()}
		if err := p.history.AppendHistory(ctx, userID, ex, p.config.HistorySize); err != nil {
			p.logger.Warn("Failed to save history", logger.Int64("user_id", userID), logger.Error(err))
		}
	}

	return answer, nil
}
