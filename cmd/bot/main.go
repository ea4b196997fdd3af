package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/internal/handlers"
	"github.com/coffee-ai-tgbot-go/internal/i18n"
	"github.com/coffee-ai-tgbot-go/internal/middleware"
	"github.com/coffee-ai-tgbot-go/internal/services/ai"
	"github.com/coffee-ai-tgbot-go/internal/services/cache"
	"github.com/coffee-ai-tgbot-go/internal/services/session"
	"github.com/coffee-ai-tgbot-go/internal/services/storage"
	"github.com/coffee-ai-tgbot-go/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging, cfg.Bot.Token, cfg.Completion.APIKey)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting Telegram Bot...")

	// Initialize bot
	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to create bot")
	}

	bot.Debug = cfg.Logging.Level == "debug"
	log.WithField("username", bot.Self.UserName).Info("Bot authorized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Outbound sends outlive ctx so in-flight handlers can still reply while
	// shutting down.
	sendCtx, stopSending := context.WithCancel(context.Background())
	defer stopSending()
	throttled := middleware.NewThrottledBot(sendCtx, bot, cfg.Bot.SendRate, cfg.Bot.SendBurst)

	// Initialize metrics
	metrics := middleware.NewMetrics()

	// Initialize storage
	storageManager, err := storage.NewManager(cfg, log, metrics)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	subscriptions := cache.NewCache(cfg, throttled, metrics, log)

	limitMessage := localizer.Get(cfg.I18n.DefaultLanguage, i18n.MsgRateLimitExceeded, map[string]interface{}{
		"Limit":  cfg.RateLimit.Requests,
		"Window": localizer.Window(cfg.I18n.DefaultLanguage, cfg.RateLimit.Window),
	})
	rateLimiter := middleware.NewRateLimiter(cfg, limitMessage, log)

	tracker := session.NewTracker()
	aiService := ai.NewCompletionClient(&cfg.Completion, storageManager, metrics, log)

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Initialize handlers
	commandHandler := handlers.NewCommandHandler(
		cfg,
		throttled,
		storageManager,
		subscriptions,
		localizer,
		metrics,
		log,
	)

	messageHandler := handlers.NewMessageHandler(
		cfg,
		throttled,
		aiService,
		subscriptions,
		rateLimiter,
		tracker,
		localizer,
		metrics,
		log,
	)

	// Setup update channel
	var updates tgbotapi.UpdatesChannel

	if cfg.Bot.Webhook.Enabled {
		webhookURL := fmt.Sprintf("%s/%s", cfg.Bot.Webhook.URL, bot.Token)
		webhook, err := tgbotapi.NewWebhook(webhookURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to create webhook")
		}

		if _, err := bot.Request(webhook); err != nil {
			log.WithError(err).Fatal("Failed to set webhook")
		}

		updates = bot.ListenForWebhook("/" + bot.Token)
		go func() {
			if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Bot.Webhook.Port), nil); err != nil {
				log.WithError(err).Error("Webhook server failed")
			}
		}()
		log.WithField("port", cfg.Bot.Webhook.Port).Info("Webhook set")
	} else {
		// Use long polling
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Bot.UpdateTimeout

		updates = bot.GetUpdatesChan(u)
		log.Info("Using long polling")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var inFlight sync.WaitGroup

	// Main bot loop. Each update gets its own goroutine; per-user ordering is
	// enforced by the busy tracker.
	go func() {
		for update := range updates {
			if ctx.Err() != nil {
				return
			}
			inFlight.Add(1)
			go func(update tgbotapi.Update) {
				defer inFlight.Done()
				handleUpdate(ctx, update, commandHandler, messageHandler, metrics, log)
			}(update)
		}
	}()

	// Start periodic tasks
	go startPeriodicTasks(ctx, rateLimiter, tracker, metrics)

	// Wait for shutdown signal
	<-sigChan
	log.Info("Shutdown signal received")

	// Cleanup
	if cfg.Bot.Webhook.Enabled {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.WithError(err).Error("Failed to delete webhook")
		}
	} else {
		bot.StopReceivingUpdates()
	}

	// Cancel context to stop all goroutines
	cancel()

	done := make(chan struct{})
	go func() {
		inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("Timed out waiting for in-flight requests")
	}

	if err := storageManager.Close(); err != nil {
		log.WithError(err).Error("Failed to close storage")
	}

	log.Info("Bot stopped")
}

func handleUpdate(
	ctx context.Context,
	update tgbotapi.Update,
	commandHandler *handlers.CommandHandler,
	messageHandler *handlers.MessageHandler,
	metrics *middleware.Metrics,
	log *logrus.Logger,
) {
	// Handle callback queries
	if update.CallbackQuery != nil {
		if err := commandHandler.HandleCallbackQuery(ctx, update.CallbackQuery); err != nil {
			log.WithError(err).Error("Failed to handle callback query")
		}
		return
	}

	// Skip if no message
	if update.Message == nil {
		return
	}

	chatType := "private"
	if update.Message.Chat.IsGroup() || update.Message.Chat.IsSuperGroup() {
		chatType = "group"
	}
	metrics.RecordMessageReceived(chatType)

	// Handle commands
	if update.Message.IsCommand() && commandHandler.Handles(update.Message.Command()) {
		if err := commandHandler.HandleCommand(ctx, update.Message); err != nil {
			log.WithError(err).Error("Failed to handle command")
		}
		return
	}

	// Handle regular messages
	if err := messageHandler.HandleMessage(ctx, update.Message); err != nil {
		log.WithError(err).Error("Failed to handle message")
	}
}

// startPeriodicTasks starts periodic background tasks
func startPeriodicTasks(ctx context.Context, limiter middleware.RateLimiter, tracker *session.Tracker, metrics *middleware.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetActiveUsers(float64(limiter.ActiveUsers()))
			metrics.SetInFlight(float64(tracker.Count()))
		}
	}
}
