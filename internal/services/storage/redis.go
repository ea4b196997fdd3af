package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const redisSequenceKey = "history:seq"

// RedisStorage keeps one JSON list per user.
type RedisStorage struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.Config, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		logger: logger,
	}, nil
}

func historyKey(userID int64) string {
	return fmt.Sprintf("history:%d", userID)
}

func (r *RedisStorage) Append(ctx context.Context, entry models.HistoryEntry) error {
	id, err := r.client.Incr(ctx, redisSequenceKey).Result()
	if err != nil {
		return err
	}
	entry.ID = id

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, historyKey(entry.UserID), data).Err()
}

func (r *RedisStorage) Recent(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error) {
	items, err := r.client.LRange(ctx, historyKey(userID), int64(-limit), -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(items))
	for _, item := range items {
		var entry models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			r.logger.WithError(err).WithField("user_id", userID).Warn("Skipping corrupt history entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisStorage) Trim(ctx context.Context, userID int64, keep int) error {
	if keep <= 0 {
		return r.Clear(ctx, userID)
	}
	return r.client.LTrim(ctx, historyKey(userID), int64(-keep), -1).Err()
}

func (r *RedisStorage) Clear(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, historyKey(userID)).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

var _ Storage = (*RedisStorage)(nil)
