package middleware

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// BotAPI is the subset of the Telegram client used by the handlers.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// ThrottledBot spaces outbound Bot API calls with one process-wide token bucket
// so bursts of replies stay under Telegram's flood limits.
type ThrottledBot struct {
	bot     BotAPI
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledBot wraps bot. Waiting stops once ctx is cancelled.
func NewThrottledBot(ctx context.Context, bot BotAPI, perSecond float64, burst int) *ThrottledBot {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &ThrottledBot{
		bot:     bot,
		limiter: rate.NewLimiter(limit, burst),
		ctx:     ctx,
	}
}

func (t *ThrottledBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := t.limiter.Wait(t.ctx); err != nil {
		return tgbotapi.Message{}, err
	}
	return t.bot.Send(c)
}

func (t *ThrottledBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if err := t.limiter.Wait(t.ctx); err != nil {
		return nil, err
	}
	return t.bot.Request(c)
}

func (t *ThrottledBot) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	if err := t.limiter.Wait(t.ctx); err != nil {
		return tgbotapi.ChatMember{}, err
	}
	return t.bot.GetChatMember(config)
}

var _ BotAPI = (*tgbotapi.BotAPI)(nil)
