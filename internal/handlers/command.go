package handlers

import (
	"context"
	"fmt"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/internal/i18n"
	"github.com/coffee-ai-tgbot-go/internal/middleware"
	"github.com/coffee-ai-tgbot-go/internal/services/cache"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// HistoryClearer forgets a user's conversation.
type HistoryClearer interface {
	Clear(ctx context.Context, userID int64) error
}

// CommandHandler handles telegram commands
type CommandHandler struct {
	responder
	history HistoryClearer
	cache   cache.Service
	metrics *middleware.Metrics
	logger  *logrus.Logger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	cfg *config.Config,
	bot middleware.BotAPI,
	history HistoryClearer,
	cache cache.Service,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *CommandHandler {
	return &CommandHandler{
		responder: responder{
			bot:       bot,
			config:    cfg,
			localizer: localizer,
		},
		history: history,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// Handles reports whether command is one of ours. Other commands are
// treated as questions.
func (h *CommandHandler) Handles(command string) bool {
	switch command {
	case "start", "help", "clear":
		return true
	}
	return false
}

// HandleCommand processes telegram commands
func (h *CommandHandler) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil {
		return nil
	}
	chatID := message.Chat.ID
	userID := message.From.ID
	lang := message.From.LanguageCode
	command := message.Command()

	h.metrics.RecordCommandExecuted(command)

	switch command {
	case "start":
		return h.handleStart(ctx, chatID, message.From, lang)
	case "help":
		_, err := h.sendHTML(chatID, h.text(lang, i18n.MsgHelp, message.From), h.backKeyboard(lang))
		return err
	case "clear":
		return h.handleClear(ctx, chatID, userID, lang)
	default:
		return nil
	}
}

func (h *CommandHandler) handleStart(ctx context.Context, chatID int64, user *tgbotapi.User, lang string) error {
	text, keyboard := h.welcome(ctx, user, lang)
	_, err := h.sendHTML(chatID, text, keyboard)
	return err
}

func (h *CommandHandler) handleClear(ctx context.Context, chatID int64, userID int64, lang string) error {
	if err := h.history.Clear(ctx, userID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to clear history")
		_, sendErr := h.sendHTML(chatID, h.text(lang, i18n.MsgInternalError, nil), nil)
		if sendErr != nil {
			return sendErr
		}
		return err
	}

	_, err := h.sendPlain(chatID, h.localizer.Get(lang, i18n.MsgContextCleared, nil))
	return err
}

// welcome picks the greeting for the user's subscription state.
func (h *CommandHandler) welcome(ctx context.Context, user *tgbotapi.User, lang string) (string, tgbotapi.InlineKeyboardMarkup) {
	if h.cache.IsSubscribed(ctx, user.ID) {
		return h.text(lang, i18n.MsgWelcomeSubscribed, user), h.helpKeyboard(lang)
	}
	return h.text(lang, i18n.MsgWelcomeGuest, user), h.mainMenuKeyboard(lang)
}

// HandleCallbackQuery processes inline keyboard callbacks
func (h *CommandHandler) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback.From == nil || callback.Message == nil {
		return h.answerCallback(callback.ID, "")
	}

	user := callback.From
	lang := user.LanguageCode
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	switch callback.Data {
	case CallbackCheckSubscription, CallbackBackToMain, CallbackHelp:
		h.metrics.RecordCommandExecuted("callback_" + callback.Data)
	}

	switch callback.Data {
	case CallbackCheckSubscription:
		return h.handleCheckSubscription(ctx, callback.ID, chatID, messageID, user, lang)
	case CallbackBackToMain:
		text, keyboard := h.welcome(ctx, user, lang)
		if err := h.editHTML(chatID, messageID, text, &keyboard); err != nil {
			return err
		}
		return h.answerCallback(callback.ID, "")
	case CallbackHelp:
		keyboard := h.backKeyboard(lang)
		if err := h.editHTML(chatID, messageID, h.text(lang, i18n.MsgHelp, user), &keyboard); err != nil {
			return err
		}
		return h.answerCallback(callback.ID, "")
	default:
		return h.answerCallback(callback.ID, "")
	}
}

// handleCheckSubscription always asks the platform; a user who has just
// subscribed must not be answered from a stale cache entry.
func (h *CommandHandler) handleCheckSubscription(ctx context.Context, callbackID string, chatID int64, messageID int, user *tgbotapi.User, lang string) error {
	log := h.logger.WithField("user_id", user.ID)
	h.cache.Forget(user.ID)

	if !h.cache.IsSubscribed(ctx, user.ID) {
		keyboard := h.mainMenuKeyboard(lang)
		if err := h.editHTML(chatID, messageID, h.text(lang, i18n.MsgSubscriptionRequired, user), &keyboard); err != nil {
			return h.checkFailed(callbackID, lang, log, err)
		}
		return h.answerCallback(callbackID, h.localizer.Get(lang, i18n.MsgToastSubscribeFirst, nil))
	}

	if err := h.editHTML(chatID, messageID, h.text(lang, i18n.MsgAccessGranted, user), nil); err != nil {
		return h.checkFailed(callbackID, lang, log, err)
	}
	if err := h.answerCallback(callbackID, h.localizer.Get(lang, i18n.MsgToastConfirmed, nil)); err != nil {
		log.WithError(err).Warn("Failed to answer callback")
	}
	_, err := h.sendHTML(chatID, h.text(lang, i18n.MsgReady, user), nil)
	return err
}

func (h *CommandHandler) checkFailed(callbackID, lang string, log *logrus.Entry, cause error) error {
	log.WithError(cause).Error("Subscription check failed")
	if err := h.answerCallback(callbackID, h.localizer.Get(lang, i18n.MsgToastCheckFailed, nil)); err != nil {
		log.WithError(err).Warn("Failed to answer callback")
	}
	return fmt.Errorf("check subscription: %w", cause)
}
