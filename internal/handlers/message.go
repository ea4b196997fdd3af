package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/internal/i18n"
	"github.com/coffee-ai-tgbot-go/internal/middleware"
	"github.com/coffee-ai-tgbot-go/internal/services/ai"
	"github.com/coffee-ai-tgbot-go/internal/services/cache"
	"github.com/coffee-ai-tgbot-go/internal/services/session"
	"github.com/coffee-ai-tgbot-go/pkg/logger"
	"github.com/coffee-ai-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Pipeline outcomes reported to metrics.
const (
	outcomeAnswered      = "answered"
	outcomeBusy          = "busy"
	outcomeNotSubscribed = "not_subscribed"
	outcomeRateLimited   = "rate_limited"
	outcomeTimeout       = "timeout"
	outcomeConnection    = "connection_error"
	outcomeNoAnswer      = "no_answer"
	outcomeInternal      = "internal_error"
)

// MessageHandler runs a user question through busy, subscription and rate
// checks before asking the completion backend.
type MessageHandler struct {
	responder
	aiService   ai.Service
	cache       cache.Service
	rateLimiter middleware.RateLimiter
	tracker     *session.Tracker
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	cfg *config.Config,
	bot middleware.BotAPI,
	aiService ai.Service,
	cache cache.Service,
	rateLimiter middleware.RateLimiter,
	tracker *session.Tracker,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *MessageHandler {
	return &MessageHandler{
		responder: responder{
			bot:       bot,
			config:    cfg,
			localizer: localizer,
		},
		aiService:   aiService,
		cache:       cache,
		rateLimiter: rateLimiter,
		tracker:     tracker,
		metrics:     metrics,
		logger:      logger,
	}
}

// HandleMessage processes a plain text question. Messages without text are ignored.
func (h *MessageHandler) HandleMessage(ctx context.Context, message *tgbotapi.Message) (err error) {
	if message == nil || message.From == nil || message.Text == "" {
		return nil
	}

	chatID := message.Chat.ID
	userID := message.From.ID
	lang := message.From.LanguageCode
	log := logger.WithContext(h.logger, chatID, userID)
	log.WithField("text", message.Text).Info("Question received")

	if !h.tracker.TryAcquire(userID) {
		log.Info("Previous request still in flight, dropping message")
		h.metrics.RecordBusyDropped()
		h.metrics.RecordMessageProcessed(outcomeBusy)
		return nil
	}
	release := sync.OnceFunc(func() { h.tracker.Release(userID) })
	defer release()

	defer func() {
		if r := recover(); r != nil {
			release()
			log.WithField("panic", r).Error("Panic while handling message")
			h.metrics.RecordMessageProcessed(outcomeInternal)
			if _, sendErr := h.sendHTML(chatID, h.text(lang, i18n.MsgInternalError, message.From), nil); sendErr != nil {
				log.WithError(sendErr).Error("Failed to send internal error message")
			}
			err = fmt.Errorf("panic while handling message: %v", r)
		}
	}()

	if !h.cache.IsSubscribed(ctx, userID) {
		h.metrics.RecordMessageProcessed(outcomeNotSubscribed)
		_, err := h.sendHTML(chatID, h.text(lang, i18n.MsgAccessRestricted, message.From), h.mainMenuKeyboard(lang))
		return err
	}

	if allowed, reason := h.rateLimiter.Allow(userID); !allowed {
		h.metrics.RecordRateLimitExceeded()
		h.metrics.RecordMessageProcessed(outcomeRateLimited)
		_, err := h.sendPlain(chatID, "⚠️ "+reason)
		return err
	}

	notice, err := h.sendPlain(chatID, h.localizer.Get(lang, i18n.MsgProcessing, nil))
	if err != nil {
		release()
		h.metrics.RecordMessageProcessed(outcomeInternal)
		if _, sendErr := h.sendHTML(chatID, h.text(lang, i18n.MsgInternalError, message.From), nil); sendErr != nil {
			log.WithError(sendErr).Error("Failed to send internal error message")
		}
		return fmt.Errorf("send processing notice: %w", err)
	}

	answer, completeErr := h.aiService.Complete(ctx, message.Text, userID)

	if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, notice.MessageID)); err != nil {
		log.WithError(err).Debug("Failed to delete processing notice")
	}
	release()

	switch {
	case completeErr == nil:
		h.metrics.RecordMessageProcessed(outcomeAnswered)
		return h.sendAnswer(chatID, answer, log)
	case errors.Is(completeErr, ai.ErrTimeout):
		h.metrics.RecordMessageProcessed(outcomeTimeout)
		_, err = h.sendHTML(chatID, h.text(lang, i18n.MsgTimeout, message.From), nil)
	case errors.Is(completeErr, ai.ErrConnection):
		h.metrics.RecordMessageProcessed(outcomeConnection)
		_, err = h.sendHTML(chatID, h.text(lang, i18n.MsgConnectionError, message.From), nil)
	default:
		h.metrics.RecordMessageProcessed(outcomeNoAnswer)
		_, err = h.sendHTML(chatID, h.text(lang, i18n.MsgError, message.From), nil)
	}
	return err
}

// sendAnswer sends the sanitized answer as HTML. If Telegram rejects the
// markup the answer is resent with all tags stripped.
func (h *MessageHandler) sendAnswer(chatID int64, answer string, log *logrus.Entry) error {
	msg := tgbotapi.NewMessage(chatID, answer)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Failed to send formatted answer, falling back to plain text")
		if _, err := h.sendPlain(chatID, markdown.StripTags(answer)); err != nil {
			return fmt.Errorf("send answer: %w", err)
		}
	}
	return nil
}
