package handlers

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/internal/i18n"
	"github.com/coffee-ai-tgbot-go/internal/middleware"
	"github.com/coffee-ai-tgbot-go/internal/services/ai"
	"github.com/coffee-ai-tgbot-go/internal/services/session"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failSend func(c tgbotapi.Chattable) error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSend != nil {
		if err := b.failSend(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	b.sent = append(b.sent, c)
	return tgbotapi.Message{MessageID: 100 + len(b.sent)}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	return tgbotapi.ChatMember{}, errors.New("not used")
}

func (b *fakeBot) messages() []tgbotapi.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range b.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (b *fakeBot) edits() []tgbotapi.EditMessageTextConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range b.sent {
		if edit, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, edit)
		}
	}
	return out
}

func (b *fakeBot) callbacks() []tgbotapi.CallbackConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range b.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}

type fakeSubscriptions struct {
	subscribed map[int64]bool
	checks     int
	forgotten  []int64
}

func (s *fakeSubscriptions) IsSubscribed(ctx context.Context, userID int64) bool {
	s.checks++
	return s.subscribed[userID]
}

func (s *fakeSubscriptions) Forget(userID int64) {
	s.forgotten = append(s.forgotten, userID)
}

type fakeLimiter struct {
	deny    bool
	message string
}

func (l *fakeLimiter) Allow(userID int64) (bool, string) {
	if l.deny {
		return false, l.message
	}
	return true, ""
}

func (l *fakeLimiter) Reset(userID int64) {}

func (l *fakeLimiter) ActiveUsers() int { return 0 }

type fakeAI struct {
	answer  string
	err     error
	calls   int
	onCall  func()
	prompts []string
}

func (a *fakeAI) Complete(ctx context.Context, prompt string, userID int64) (string, error) {
	a.calls++
	a.prompts = append(a.prompts, prompt)
	if a.onCall != nil {
		a.onCall()
	}
	return a.answer, a.err
}

type fakeHistory struct {
	cleared []int64
	err     error
}

func (h *fakeHistory) Clear(ctx context.Context, userID int64) error {
	h.cleared = append(h.cleared, userID)
	return h.err
}

const testUserID int64 = 7

func testConfig() *config.Config {
	return &config.Config{
		Bot:       config.BotConfig{Channel: "@AIwithCoffee"},
		RateLimit: config.RateLimitConfig{Enabled: true, Requests: 15, Window: time.Hour},
		I18n:      config.I18nConfig{DefaultLanguage: "ru", Languages: []string{"ru", "en"}},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type pipeline struct {
	handler *MessageHandler
	bot     *fakeBot
	subs    *fakeSubscriptions
	limiter *fakeLimiter
	ai      *fakeAI
	tracker *session.Tracker
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	cfg := testConfig()
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	require.NoError(t, err)

	p := &pipeline{
		bot:     &fakeBot{},
		subs:    &fakeSubscriptions{subscribed: map[int64]bool{testUserID: true}},
		limiter: &fakeLimiter{message: "limit reached"},
		ai:      &fakeAI{answer: "<b>42</b>"},
		tracker: session.NewTracker(),
	}
	p.handler = NewMessageHandler(cfg, p.bot, p.ai, p.subs, p.limiter, p.tracker, localizer, middleware.NewMetrics(), quietLogger())
	return p
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: testUserID, FirstName: "Ann", LanguageCode: "en"},
		Chat:      &tgbotapi.Chat{ID: testUserID, Type: "private"},
		Text:      text,
	}
}

func TestHandleMessageAnswers(t *testing.T) {
	p := newPipeline(t)
	busyDuringCall := false
	p.ai.onCall = func() { busyDuringCall = p.tracker.IsBusy(testUserID) }

	require.NoError(t, p.handler.HandleMessage(context.Background(), textMessage("meaning of life?")))

	assert.True(t, busyDuringCall)
	assert.False(t, p.tracker.IsBusy(testUserID))
	assert.Equal(t, []string{"meaning of life?"}, p.ai.prompts)

	msgs := p.bot.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Text, "Processing your request")
	assert.Equal(t, "<b>42</b>", msgs[1].Text)
	assert.Equal(t, tgbotapi.ModeHTML, msgs[1].ParseMode)

	require.Len(t, p.bot.requests, 1)
	del, ok := p.bot.requests[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	assert.Equal(t, 101, del.MessageID)
}

func TestHandleMessageDropsWhileBusy(t *testing.T) {
	p := newPipeline(t)
	require.True(t, p.tracker.TryAcquire(testUserID))

	require.NoError(t, p.handler.HandleMessage(context.Background(), textMessage("again")))

	assert.Empty(t, p.bot.sent)
	assert.Zero(t, p.ai.calls)
	assert.Zero(t, p.subs.checks)
	assert.True(t, p.tracker.IsBusy(testUserID))
}

func TestHandleMessageRequiresSubscription(t *testing.T) {
	p := newPipeline(t)
	p.subs.subscribed[testUserID] = false

	require.NoError(t, p.handler.HandleMessage(context.Background(), textMessage("hi")))

	assert.Zero(t, p.ai.calls)
	assert.False(t, p.tracker.IsBusy(testUserID))

	msgs := p.bot.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "<b>Access restricted</b>")
	assert.Contains(t, msgs[0].Text, "@AIwithCoffee")

	keyboard, ok := msgs[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 3)
	require.NotNil(t, keyboard.InlineKeyboard[0][0].URL)
	assert.Equal(t, "https://t.me/AIwithCoffee", *keyboard.InlineKeyboard[0][0].URL)
	assert.Equal(t, CallbackCheckSubscription, *keyboard.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, CallbackHelp, *keyboard.InlineKeyboard[2][0].CallbackData)
}

func TestHandleMessageRateLimited(t *testing.T) {
	p := newPipeline(t)
	p.limiter.deny = true

	require.NoError(t, p.handler.HandleMessage(context.Background(), textMessage("hi")))

	assert.Zero(t, p.ai.calls)
	assert.False(t, p.tracker.IsBusy(testUserID))
	msgs := p.bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "⚠️ limit reached", msgs[0].Text)
}

func TestHandleMessageFailureMessages(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"timeout":    {err: ai.ErrTimeout, want: "Request timed out"},
		"connection": {err: ai.ErrConnection, want: "Connection problems"},
		"no answer":  {err: ai.ErrNoAnswer, want: "Sorry, something went wrong"},
		"wrapped":    {err: errors.Join(errors.New("boom"), ai.ErrTimeout), want: "Request timed out"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := newPipeline(t)
			p.ai.err = tc.err

			require.NoError(t, p.handler.HandleMessage(context.Background(), textMessage("hi")))

			msgs := p.bot.messages()
			require.Len(t, msgs, 2)
			assert.Contains(t, msgs[1].Text, tc.want)
			assert.False(t, p.tracker.IsBusy(testUserID))
		})
	}
}

func TestHandleMessageFallsBackToPlainText(t *testing.T) {
	p := newPipeline(t)
	p.ai.answer = "<b>bold</b> and <code>x</code>"
	p.bot.failSend = func(c tgbotapi.Chattable) error {
		if msg, ok := c.(tgbotapi.MessageConfig); ok && msg.ParseMode == tgbotapi.ModeHTML && msg.Text == p.ai.answer {
			return errors.New("Bad Request: can't parse entities")
		}
		return nil
	}

	require.NoError(t, p.handler.HandleMessage(context.Background(), textMessage("hi")))

	msgs := p.bot.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "bold and x", msgs[1].Text)
	assert.Empty(t, msgs[1].ParseMode)
}

func TestHandleMessageNoticeFailure(t *testing.T) {
	p := newPipeline(t)
	p.bot.failSend = func(c tgbotapi.Chattable) error {
		if msg, ok := c.(tgbotapi.MessageConfig); ok && msg.ParseMode == "" {
			return errors.New("network down")
		}
		return nil
	}

	err := p.handler.HandleMessage(context.Background(), textMessage("hi"))

	assert.Error(t, err)
	assert.Zero(t, p.ai.calls)
	assert.False(t, p.tracker.IsBusy(testUserID))
	msgs := p.bot.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Internal bot error")
}

func TestHandleMessageRecoversFromPanic(t *testing.T) {
	p := newPipeline(t)
	p.ai.onCall = func() { panic("unexpected") }

	err := p.handler.HandleMessage(context.Background(), textMessage("hi"))

	assert.Error(t, err)
	assert.False(t, p.tracker.IsBusy(testUserID))
	msgs := p.bot.messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1].Text, "Internal bot error")
}

func TestHandleMessageIgnoresNonText(t *testing.T) {
	p := newPipeline(t)
	msg := textMessage("")

	require.NoError(t, p.handler.HandleMessage(context.Background(), msg))
	assert.Empty(t, p.bot.sent)
	assert.Zero(t, p.subs.checks)
}

func TestHandleMessageUsesDefaultLanguage(t *testing.T) {
	p := newPipeline(t)
	p.ai.err = ai.ErrTimeout
	msg := textMessage("hi")
	msg.From.LanguageCode = ""

	require.NoError(t, p.handler.HandleMessage(context.Background(), msg))

	msgs := p.bot.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "Время ожидания истекло")
}
