package middleware

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBot struct {
	sends    int
	requests int
	lookups  int
}

func (b *countingBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sends++
	return tgbotapi.Message{MessageID: b.sends}, nil
}

func (b *countingBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *countingBot) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	b.lookups++
	return tgbotapi.ChatMember{Status: "member"}, nil
}

func TestThrottledBotDelegates(t *testing.T) {
	inner := &countingBot{}
	bot := NewThrottledBot(context.Background(), inner, 0, 0)

	msg, err := bot.Send(tgbotapi.NewMessage(1, "hi"))
	require.NoError(t, err)
	assert.Equal(t, 1, msg.MessageID)

	_, err = bot.Request(tgbotapi.NewDeleteMessage(1, 1))
	require.NoError(t, err)

	member, err := bot.GetChatMember(tgbotapi.GetChatMemberConfig{})
	require.NoError(t, err)
	assert.Equal(t, "member", member.Status)

	assert.Equal(t, 1, inner.sends)
	assert.Equal(t, 1, inner.requests)
	assert.Equal(t, 1, inner.lookups)
}

func TestThrottledBotStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := &countingBot{}
	bot := NewThrottledBot(ctx, inner, 0.001, 1)

	_, err := bot.Send(tgbotapi.NewMessage(1, "first"))
	require.NoError(t, err)

	cancel()
	_, err = bot.Send(tgbotapi.NewMessage(1, "second"))
	assert.Error(t, err)
	assert.Equal(t, 1, inner.sends)
}
