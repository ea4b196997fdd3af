package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/internal/middleware"
	"github.com/coffee-ai-tgbot-go/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Storage is a conversation history backend. Every call is independent and
// auto-committing.
type Storage interface {
	Append(ctx context.Context, entry models.HistoryEntry) error
	// Recent returns up to limit newest entries of a user, oldest first.
	Recent(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error)
	// Trim deletes all but the keep newest entries of a user.
	Trim(ctx context.Context, userID int64, keep int) error
	Clear(ctx context.Context, userID int64) error
	Close() error
}

// Manager manages different storage backends
type Manager struct {
	storage     Storage
	retention   int
	logger      *logrus.Logger
	metrics     *middleware.Metrics
	redisClient *redis.Client // Store redis client reference
	now         func() time.Time
}

// NewManager creates a new storage manager
func NewManager(cfg *config.Config, logger *logrus.Logger, metrics *middleware.Metrics) (*Manager, error) {
	var storage Storage

	manager := &Manager{
		retention: cfg.History.Retention,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}

	switch cfg.Storage.Type {
	case "sqlite":
		sqliteStorage, err := NewSQLiteStorage(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, err
		}
		storage = sqliteStorage
	case "redis":
		redisStorage, err := NewRedisStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		storage = redisStorage
		manager.redisClient = redisStorage.client
	case "memory":
		storage = NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	manager.storage = storage

	logger.WithFields(logrus.Fields{
		"type":      cfg.Storage.Type,
		"retention": manager.retention,
	}).Info("History storage initialized")

	return manager, nil
}

// NewManagerWithStorage wraps an already constructed backend.
func NewManagerWithStorage(storage Storage, retention int, logger *logrus.Logger, metrics *middleware.Metrics) *Manager {
	return &Manager{
		storage:   storage,
		retention: retention,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Append persists one turn stamped with the current time and then purges
// everything beyond the retention limit for that user.
func (m *Manager) Append(ctx context.Context, userID int64, role, content string) error {
	start := time.Now()
	err := m.storage.Append(ctx, models.HistoryEntry{
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: m.now().UTC(),
	})
	m.record("append", start, err)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return m.Trim(ctx, userID)
}

// Recent returns the limit most recent entries in chronological order.
func (m *Manager) Recent(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	start := time.Now()
	entries, err := m.storage.Recent(ctx, userID, limit)
	m.record("recent", start, err)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

// Trim keeps only the newest retention entries of a user.
func (m *Manager) Trim(ctx context.Context, userID int64) error {
	start := time.Now()
	err := m.storage.Trim(ctx, userID, m.retention)
	m.record("trim", start, err)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

// Clear removes the whole history of a user.
func (m *Manager) Clear(ctx context.Context, userID int64) error {
	start := time.Now()
	err := m.storage.Clear(ctx, userID)
	m.record("clear", start, err)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close releases the underlying backend.
func (m *Manager) Close() error {
	return m.storage.Close()
}

// GetRedisClient returns the Redis client if available
func (m *Manager) GetRedisClient() *redis.Client {
	return m.redisClient
}

func (m *Manager) record(operation string, start time.Time, err error) {
	if m.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordStorageOperation(operation, status, time.Since(start))
}
