// Package state хранит состояние диалогов и историю вопросов к AI-ассистенту.
package state

import (
	"context"
	"time"
)

// Состояния диалога
const (
	AwaitingRedeemCode = "awaiting_redeem_code"
	AwaitingStaffAdd   = "awaiting_staff_add"
	AwaitingQuestion   = "awaiting_question"
)

// DefaultTTL время жизни незавершенного диалога
const DefaultTTL = 10 * time.Minute

// historyTTL время хранения истории вопросов
const historyTTL = 7 * 24 * time.Hour

// Exchange один вопрос гостя и ответ ассистента
type Exchange struct {
	Question string    `json:"q"`
	Answer   string    `json:"a"`
	At       time.Time `json:"at"`
}

// Store хранилище состояний и истории
type Store interface {
	// Get возвращает текущее состояние или пустую строку
	Get(ctx context.Context, userID int64) (string, error)
	Set(ctx context.Context, userID int64, state string, ttl time.Duration) error
	Clear(ctx context.Context, userID int64) error

	// AppendHistory добавляет обмен и оставляет последние limit записей
	AppendHistory(ctx context.Context, userID int64, ex Exchange, limit int) error
	// History возвращает до limit последних обменов в хронологическом порядке
	History(ctx context.Context, userID int64, limit int) ([]Exchange, error)

	Close() error
}
