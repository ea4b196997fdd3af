package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot          BotConfig          `mapstructure:"bot"`
	Completion   CompletionConfig   `mapstructure:"completion"`
	History      HistoryConfig      `mapstructure:"history"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	I18n         I18nConfig         `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string        `mapstructure:"token"`
	Channel       string        `mapstructure:"channel"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
	UpdateTimeout int           `mapstructure:"update_timeout"`
	// Outbound Bot API calls per second shared by every handler.
	SendRate  float64 `mapstructure:"send_rate"`
	SendBurst int     `mapstructure:"send_burst"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Port    int    `mapstructure:"port"`
}

type CompletionConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Referer          string        `mapstructure:"referer"`
	Title            string        `mapstructure:"title"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Backoff          time.Duration `mapstructure:"backoff"`
	Temperature      float64       `mapstructure:"temperature"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	TopP             float64       `mapstructure:"top_p"`
	FrequencyPenalty float64       `mapstructure:"frequency_penalty"`
	HistoryTurns     int           `mapstructure:"history_turns"`
	CodingKeywords   []string      `mapstructure:"coding_keywords"`
	Coding           PersonaConfig `mapstructure:"coding"`
	General          PersonaConfig `mapstructure:"general"`
}

type PersonaConfig struct {
	SystemPrompt string   `mapstructure:"system_prompt"`
	Models       []string `mapstructure:"models"`
}

type HistoryConfig struct {
	Retention int `mapstructure:"retention"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SubscriptionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

var defaultModels = []string{
	"meta-llama/llama-3.3-70b-instruct:free",
	"nousresearch/hermes-3-llama-3.1-405b:free",
	"neversleep/llama-3.1-lumimaid-70b:free",
	"microsoft/wizardlm-2-7b:free",
	"google/gemma-2-27b-it:free",
	"google/gemma-2-9b-it:free",
	"meta-llama/llama-3-70b-instruct:free",
	"meta-llama/llama-3-8b-instruct:free",
	"mistralai/mistral-7b-instruct:free",
	"openchat/openchat-7b:free",
}

var defaultCodingKeywords = []string{
	"код", "script", "unity", "c#", "csharp", "python", "javascript", "js",
	"java", "cpp", "c++", "php", "ruby", "go", "rust", "swift", "kotlin",
	"скрипт", "программа", "функция", "метод", "класс",
}

const defaultCodingPrompt = `Ты Qwen Coder, специализированная модель для программирования.
Ты должен писать только рабочий, протестированный код.
Не придумывай код, который не работает.
Объясняй код по шагам.
Используй правильный синтаксис.
Отвечай на русском языке.`

const defaultGeneralPrompt = `Ты Qwen, продвинутая языковая модель.
Будь полезным, точным и дружелюбным.
Отвечай на русском языке.
Если не знаешь ответа — скажи честно.`

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.channel", "@AIwithCoffee")
	v.SetDefault("bot.update_timeout", 60)
	v.SetDefault("bot.send_rate", 25.0)
	v.SetDefault("bot.send_burst", 5)

	v.SetDefault("completion.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("completion.timeout", 25*time.Second)
	v.SetDefault("completion.backoff", time.Second)
	v.SetDefault("completion.temperature", 0.5)
	v.SetDefault("completion.max_tokens", 1000)
	v.SetDefault("completion.top_p", 0.9)
	v.SetDefault("completion.frequency_penalty", 0.1)
	v.SetDefault("completion.history_turns", 10)
	v.SetDefault("completion.coding_keywords", defaultCodingKeywords)
	v.SetDefault("completion.coding.system_prompt", defaultCodingPrompt)
	v.SetDefault("completion.coding.models", defaultModels)
	v.SetDefault("completion.general.system_prompt", defaultGeneralPrompt)
	v.SetDefault("completion.general.models", defaultModels)

	v.SetDefault("history.retention", 20)

	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.sqlite.path", "bot_history.db")
	v.SetDefault("storage.redis.addr", "localhost:6379")

	v.SetDefault("subscription.ttl", 300*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 15)
	v.SetDefault("rate_limit.window", time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "ru")
	v.SetDefault("i18n.languages", []string{"ru", "en"})
}

// LoadConfig loads configuration from an optional YAML file and environment variables.
// An empty configPath or a missing file leaves the built-in defaults in place.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.BindEnv("bot.token", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
	v.BindEnv("bot.channel", "CHANNEL_USERNAME")
	v.BindEnv("completion.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("storage.sqlite.path", "HISTORY_DB_PATH")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")
	v.BindEnv("logging.level", "LOG_LEVEL")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set in the environment")
	}
	if cfg.Completion.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is not set in the environment")
	}
	if !strings.HasPrefix(cfg.Bot.Channel, "@") {
		return fmt.Errorf("bot channel must start with @, got %q", cfg.Bot.Channel)
	}
	if len(cfg.Completion.Coding.Models) == 0 || len(cfg.Completion.General.Models) == 0 {
		return fmt.Errorf("at least one completion model is required per persona")
	}
	switch cfg.Storage.Type {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if cfg.History.Retention <= 0 {
		return fmt.Errorf("history retention must be positive")
	}
	return nil
}

// ChannelURL returns the public t.me link for the gated channel.
func (c BotConfig) ChannelURL() string {
	return "https://t.me/" + strings.TrimPrefix(c.Channel, "@")
}
