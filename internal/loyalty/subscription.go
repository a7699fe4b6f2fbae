package loyalty

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/metrics"
)

// ChatMemberGetter часть Telegram API для проверки участников канала
type ChatMemberGetter interface {
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*tgmodels.ChatMember, error)
}

// SubscriptionChecker проверяет подписку гостя на канал бара
type SubscriptionChecker struct {
	api       ChatMemberGetter
	channelID string
}

// NewSubscriptionChecker создает проверку подписки
func NewSubscriptionChecker(api ChatMemberGetter, channelID string) *SubscriptionChecker {
	return &SubscriptionChecker{api: api, channelID: channelID}
}

// IsSubscribed возвращает true для участника, администратора, владельца
// или ограниченного участника, который остался в канале
func (c *SubscriptionChecker) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	member, err := c.api.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: c.channelID,
		UserID: userID,
	})
	if err != nil {
		metrics.RecordSubscriptionCheck("error")
		return false, errors.ErrTelegramAPI.WithError(fmt.Errorf("getChatMember: %w", err))
	}

	subscribed := IsMember(member)
	if subscribed {
		metrics.RecordSubscriptionCheck("subscribed")
	} else {
		metrics.RecordSubscriptionCheck("not_subscribed")
	}
	return subscribed, nil
}

// IsMember разбирает статус участника канала
func IsMember(member *tgmodels.ChatMember) bool {
	if member == nil {
		return false
	}

	switch member.Type {
	case tgmodels.ChatMemberTypeOwner, tgmodels.ChatMemberTypeAdministrator, tgmodels.ChatMemberTypeMember:
		return true
	case tgmodels.ChatMemberTypeRestricted:
		return member.Restricted != nil && member.Restricted.IsMember
	}
	return false
}
