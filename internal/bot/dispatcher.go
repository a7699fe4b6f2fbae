package bot

import (
	"context"

	"telegram_loyalty_bot/internal/bot/handlers"
	"telegram_loyalty_bot/internal/bot/service"
	"telegram_loyalty_bot/pkg/logger"
	"telegram_loyalty_bot/pkg/metrics"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Dispatcher управляет обработкой входящих обновлений от Telegram
type Dispatcher struct {
	service         *service.Service
	startHandler    *handlers.StartHandler
	couponHandler   *handlers.CouponHandler
	staffHandler    *handlers.StaffHandler
	adminHandler    *handlers.AdminHandler
	stateHandler    *handlers.StateHandler
	callbackHandler *handlers.CallbackHandler
	defaultHandler  *handlers.DefaultHandler
	logger          *logger.Logger
}

// NewDispatcher создает новый диспетчер обновлений
func NewDispatcher(svc *service.Service) *Dispatcher {
	coupon := handlers.NewCouponHandler(svc)
	staff := handlers.NewStaffHandler(svc)
	admin := handlers.NewAdminHandler(svc)
	def := handlers.NewDefaultHandler(svc)

	return &Dispatcher{
		service:         svc,
		startHandler:    handlers.NewStartHandler(svc),
		couponHandler:   coupon,
		staffHandler:    staff,
		adminHandler:    admin,
		stateHandler:    handlers.NewStateHandler(svc, staff, admin, def),
		callbackHandler: handlers.NewCallbackHandler(svc, coupon, def),
		defaultHandler:  def,
		logger:          svc.Logger(),
	}
}

// HandleUpdate обрабатывает входящее обновление от Telegram.
// Сигнатура совпадает с bot.HandlerFunc, ответы идут через service.
func (d *Dispatcher) HandleUpdate(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	userID, ok := senderID(update)
	if !ok {
		d.logger.Debug("Received unsupported update", logger.Int64("update_id", update.ID))
		metrics.RecordUpdate("unknown", "skipped")
		return
	}

	if !d.service.AllowUser(userID) {
		if update.CallbackQuery != nil {
			d.service.AnswerCallbackQuery(ctx, update.CallbackQuery.ID, "Слишком много запросов, подождите немного")
		}
		metrics.RecordUpdate("any", "rate_limited")
		return
	}

	if update.CallbackQuery != nil {
		d.logger.Debug("Received callback query",
			logger.Int64("user_id", userID),
			logger.String("data", update.CallbackQuery.Data),
		)
		d.callbackHandler.Handle(ctx, update)
		metrics.RecordUpdate("callback", "success")
		return
	}

	d.logger.Debug("Received message", logger.Int64("user_id", userID))
	metrics.RecordUpdate(d.route(ctx, update), "success")
}

// route выбирает обработчик сообщения и возвращает его имя для метрик
func (d *Dispatcher) route(ctx context.Context, update *models.Update) string {
	msg := update.Message

	if command, _, ok := handlers.ParseCommand(msg.Text); ok {
		// Новая команда прерывает незавершенный диалог
		if err := d.service.ClearState(ctx, msg.From.ID); err != nil {
			d.logger.Warn("Failed to clear dialog state", logger.Int64("user_id", msg.From.ID), logger.Error(err))
		}

		switch command {
		case "/start":
			d.startHandler.Handle(ctx, update)
			return "start"
		case "/coupon":
			d.couponHandler.Handle(ctx, update)
			return "coupon"
		case "/menu":
			d.defaultHandler.PromptQuestion(ctx, msg.Chat.ID, msg.From.ID)
			return "menu"
		case "/redeem":
			d.staffHandler.HandleRedeem(ctx, update)
			return "redeem"
		case "/myqr":
			d.staffHandler.HandleMyQR(ctx, update)
			return "myqr"
		case "/cancel":
			d.service.SendSimpleMessage(ctx, msg.Chat.ID, "Отменено.")
			return "cancel"
		case "/report", "/export", "/xlsx", "/staff_add", "/staff_list", "/staff_qr", "/staff_off", "/staff_on":
			d.adminHandler.Handle(ctx, update)
			return "admin"
		}

		d.defaultHandler.Help(ctx, msg.Chat.ID)
		return "unknown_command"
	}

	if msg.Text != "" {
		if st := d.service.TakeState(ctx, msg.From.ID); st != "" {
			d.stateHandler.Handle(ctx, update, st)
			return "state"
		}
	}

	d.defaultHandler.Handle(ctx, update)
	return "default"
}

// senderID возвращает отправителя сообщения или нажатия кнопки
func senderID(update *models.Update) (int64, bool) {
	switch {
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID, true
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID, true
	}
	return 0, false
}
