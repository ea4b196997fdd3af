package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLoggerRedactsSecrets(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "text"}, "123:ABC", "")
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithError(errors.New(`Post "https://api.telegram.org/bot123:ABC/sendMessage": EOF`)).
		WithField("url", "https://api.telegram.org/bot123:ABC/getMe").
		Error("token 123:ABC leaked")

	out := buf.String()
	assert.NotContains(t, out, "123:ABC")
	assert.Contains(t, out, "[REDACTED]")
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	log, err := NewLogger(&config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "file",
		File:   config.FileConfig{Path: path, MaxSize: 1, MaxBackups: 1, MaxAge: 1},
	})
	require.NoError(t, err)

	log.Info("started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"started"`)
}
