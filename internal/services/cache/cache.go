package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/internal/middleware"
	"github.com/coffee-ai-tgbot-go/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service answers whether a user may use the bot.
type Service interface {
	IsSubscribed(ctx context.Context, userID int64) bool
	Forget(userID int64)
}

// MemberLookup queries channel membership on the chat platform.
type MemberLookup interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

var subscribedStatuses = map[string]bool{
	"member":        true,
	"administrator": true,
	"creator":       true,
}

// SubscriptionCache memoizes channel membership checks for a TTL.
type SubscriptionCache struct {
	cache   *cache.Cache
	lookup  MemberLookup
	channel string
	ttl     time.Duration
	metrics *middleware.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

// NewCache creates a subscription cache for the configured channel
func NewCache(cfg *config.Config, lookup MemberLookup, metrics *middleware.Metrics, logger *logrus.Logger) *SubscriptionCache {
	ttl := cfg.Subscription.TTL
	return &SubscriptionCache{
		cache:   cache.New(2*ttl, 2*ttl),
		lookup:  lookup,
		channel: cfg.Bot.Channel,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// IsSubscribed returns the cached answer while it is fresh and otherwise asks
// the platform. Lookup failures count as not subscribed and are not cached.
func (c *SubscriptionCache) IsSubscribed(ctx context.Context, userID int64) bool {
	key := strconv.FormatInt(userID, 10)
	now := c.now()

	if val, found := c.cache.Get(key); found {
		entry := val.(*models.SubscriptionEntry)
		if age := now.Sub(entry.CheckedAt); age < c.ttl {
			c.recordHit()
			c.logger.WithFields(logrus.Fields{
				"user_id":    userID,
				"subscribed": entry.Subscribed,
				"age":        age,
			}).Debug("Subscription cache hit")
			return entry.Subscribed
		}
	}
	c.recordMiss()

	member, err := c.lookup.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: c.channel,
			UserID:             userID,
		},
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordSubscriptionFailure()
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"channel": c.channel,
		}).Error("Subscription check failed")
		return false
	}

	subscribed := subscribedStatuses[member.Status]
	c.cache.SetDefault(key, &models.SubscriptionEntry{
		CheckedAt:  now,
		Subscribed: subscribed,
	})
	c.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"status":     member.Status,
		"subscribed": subscribed,
	}).Debug("Subscription checked")

	return subscribed
}

// Forget drops the cached answer for a user.
func (c *SubscriptionCache) Forget(userID int64) {
	c.cache.Delete(strconv.FormatInt(userID, 10))
}

func (c *SubscriptionCache) recordHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
}

func (c *SubscriptionCache) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
}
