package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/internal/middleware"
	"github.com/coffee-ai-tgbot-go/internal/models"
	"github.com/coffee-ai-tgbot-go/pkg/markdown"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Outcomes other than an answer. Each maps to its own user-facing message.
var (
	ErrNoAnswer   = errors.New("no answer from completion backend")
	ErrTimeout    = errors.New("completion request timed out")
	ErrConnection = errors.New("completion backend unreachable")
)

// Service represents the completion service interface
type Service interface {
	Complete(ctx context.Context, prompt string, userID int64) (string, error)
}

// HistoryStore is the conversation memory the client reads and extends.
type HistoryStore interface {
	Append(ctx context.Context, userID int64, role, content string) error
	Recent(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error)
	Trim(ctx context.Context, userID int64) error
}

type chatRequest struct {
	Model            string           `json:"model"`
	Messages         []models.Message `json:"messages"`
	Temperature      float64          `json:"temperature"`
	MaxTokens        int              `json:"max_tokens"`
	TopP             float64          `json:"top_p"`
	FrequencyPenalty float64          `json:"frequency_penalty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompletionClient talks to an OpenAI-compatible chat/completions endpoint and
// walks the persona's model list until one answers.
type CompletionClient struct {
	config   *config.CompletionConfig
	personas PersonaSelector
	history  HistoryStore
	client   *resty.Client
	metrics  *middleware.Metrics
	logger   *logrus.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	overrides map[int]Action
}

// NewCompletionClient creates a new completion client
func NewCompletionClient(cfg *config.CompletionConfig, history HistoryStore, metrics *middleware.Metrics, logger *logrus.Logger) *CompletionClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	if cfg.Referer != "" {
		client.SetHeader("HTTP-Referer", cfg.Referer)
	}
	if cfg.Title != "" {
		client.SetHeader("X-Title", cfg.Title)
	}

	logger.WithFields(logrus.Fields{
		"baseURL": cfg.BaseURL,
		"coding":  len(cfg.Coding.Models),
		"general": len(cfg.General.Models),
	}).Info("Completion client initialized")

	return &CompletionClient{
		config:   cfg,
		personas: NewPersonaSelector(cfg),
		history:  history,
		client:   client,
		metrics:  metrics,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// WithStatusOverrides changes how specific backend statuses are handled,
// e.g. stopping on 401 instead of trying the next model.
func (s *CompletionClient) WithStatusOverrides(overrides map[int]Action) *CompletionClient {
	s.overrides = overrides
	return s
}

// Complete answers prompt for userID. On success the prompt and the sanitized
// answer are appended to the user's history.
func (s *CompletionClient) Complete(ctx context.Context, prompt string, userID int64) (string, error) {
	persona := s.personas.Select(prompt)

	history, err := s.history.Recent(ctx, userID, s.config.HistoryTurns)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoAnswer, err)
	}
	messages := buildMessages(persona.SystemPrompt, history, prompt)

	policy := Policy{Candidates: persona.Models, Delay: s.config.Backoff, Overrides: s.overrides}
	log := s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"persona": persona.Name,
	})

	for _, model := range policy.Candidates {
		status, content, err := s.attempt(ctx, model, messages)
		if err != nil {
			log.WithError(err).WithField("model", model).Error("Completion request failed")
			return "", err
		}

		switch action := policy.ActionFor(status); action {
		case ActionAccept:
			answer := markdown.Sanitize(content)
			if answer == "" {
				log.WithField("model", model).Warn("Model returned an empty answer")
				return "", fmt.Errorf("%w: empty answer from %s", ErrNoAnswer, model)
			}
			if err := s.remember(ctx, userID, prompt, answer); err != nil {
				return "", fmt.Errorf("%w: %v", ErrNoAnswer, err)
			}
			log.WithField("model", model).Info("Completion succeeded")
			return answer, nil
		case ActionRetryWithDelay:
			log.WithFields(logrus.Fields{
				"model":  model,
				"status": status,
			}).Warn("Model unavailable, backing off")
			if err := s.sleep(ctx, policy.Delay); err != nil {
				return "", fmt.Errorf("%w: %v", ErrNoAnswer, err)
			}
		case ActionStop:
			log.WithFields(logrus.Fields{
				"model":  model,
				"status": status,
			}).Error("Model rejected request, giving up")
			return "", fmt.Errorf("%w: %s returned %d", ErrNoAnswer, model, status)
		default:
			log.WithFields(logrus.Fields{
				"model":  model,
				"status": status,
			}).Warn("Model unavailable")
		}
	}

	log.Error("All models unavailable")
	return "", ErrNoAnswer
}

// attempt performs a single request. A non-nil error is already classified
// and ends the fallback loop.
func (s *CompletionClient) attempt(ctx context.Context, model string, messages []models.Message) (int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.logger.WithField("model", model).Debug("Sending completion request")
	start := time.Now()

	resp, err := s.client.R().
		SetContext(reqCtx).
		SetBody(chatRequest{
			Model:            model,
			Messages:         messages,
			Temperature:      s.config.Temperature,
			MaxTokens:        s.config.MaxTokens,
			TopP:             s.config.TopP,
			FrequencyPenalty: s.config.FrequencyPenalty,
		}).
		Post("/chat/completions")
	elapsed := time.Since(start)
	if err != nil {
		s.recordAttempt(model, "transport_error", elapsed)
		return 0, "", classifyTransportError(err)
	}

	status := resp.StatusCode()
	s.recordAttempt(model, strconv.Itoa(status), elapsed)
	s.logger.WithFields(logrus.Fields{
		"model":    model,
		"status":   status,
		"duration": elapsed,
	}).Debug("Completion response received")

	if status != 200 {
		return status, "", nil
	}

	var result chatResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return status, "", fmt.Errorf("%w: failed to parse response from %s: %v", ErrNoAnswer, model, err)
	}
	if len(result.Choices) == 0 {
		return status, "", fmt.Errorf("%w: no choices from %s", ErrNoAnswer, model)
	}
	return status, result.Choices[0].Message.Content, nil
}

func (s *CompletionClient) remember(ctx context.Context, userID int64, prompt, answer string) error {
	if err := s.history.Append(ctx, userID, models.RoleUser, prompt); err != nil {
		return err
	}
	if err := s.history.Append(ctx, userID, models.RoleAssistant, answer); err != nil {
		return err
	}
	return s.history.Trim(ctx, userID)
}

func (s *CompletionClient) recordAttempt(model, status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordAIRequest(model, status, d)
	}
}

func buildMessages(systemPrompt string, history []models.HistoryEntry, prompt string) []models.Message {
	messages := make([]models.Message, 0, len(history)+2)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	for _, entry := range history {
		messages = append(messages, entry.AsMessage())
	}
	return append(messages, models.Message{Role: models.RoleUser, Content: prompt})
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case isConnectionError(err):
		return fmt.Errorf("%w: %v", ErrConnection, err)
	default:
		return fmt.Errorf("%w: %v", ErrNoAnswer, err)
	}
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &opErr) ||
		errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
