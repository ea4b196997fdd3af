package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/pkg/markdown"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	defaultTag, err := language.Parse(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", cfg.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// Load language files
	for _, lang := range cfg.Languages {
		path := fmt.Sprintf("locales/%s.json", lang)
		buf, err := locales.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
		if _, err := bundle.ParseMessageFileBytes(buf, path); err != nil {
			return nil, fmt.Errorf("failed to parse language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang, cfg.DefaultLanguage)
	}
	if _, ok := localizers[cfg.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("default language %s is not in the language list", cfg.DefaultLanguage)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// resolve picks the localizer for a Telegram language code such as "en-US".
func (l *Localizer) resolve(lang string) *i18n.Localizer {
	if localizer, ok := l.localizers[lang]; ok {
		return localizer
	}
	if tag, err := language.Parse(lang); err == nil {
		base, _ := tag.Base()
		if localizer, ok := l.localizers[base.String()]; ok {
			return localizer
		}
	}
	return l.localizers[l.defaultLanguage]
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	msg, err := l.resolve(lang).Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// HTML returns the localized message rendered from Markdown to Telegram HTML.
func (l *Localizer) HTML(lang, messageID string, data map[string]interface{}) string {
	return markdown.ToTelegramHTML(l.Get(lang, messageID, data))
}

// Window renders a rate-limit window as "1 hour", "30 minutes" and so on.
func (l *Localizer) Window(lang string, d time.Duration) string {
	id, count := MsgWindowMinutes, int(d/time.Minute)
	if d >= time.Hour && d%time.Hour == 0 {
		id, count = MsgWindowHours, int(d/time.Hour)
	}
	msg, err := l.resolve(lang).Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		PluralCount:  count,
		TemplateData: map[string]interface{}{"Count": count},
	})
	if err != nil {
		return d.String()
	}
	return msg
}

// Message IDs
const (
	MsgWelcomeSubscribed    = "welcome_subscribed"
	MsgWelcomeGuest         = "welcome_guest"
	MsgHelp                 = "help"
	MsgAccessRestricted     = "access_restricted"
	MsgSubscriptionRequired = "subscription_required"
	MsgAccessGranted        = "access_granted"
	MsgReady                = "ready"
	MsgRateLimitExceeded    = "rate_limit_exceeded"
	MsgProcessing           = "processing"
	MsgTimeout              = "timeout"
	MsgConnectionError      = "connection_error"
	MsgError                = "error"
	MsgInternalError        = "internal_error"
	MsgContextCleared       = "context_cleared"
	MsgToastConfirmed       = "toast_confirmed"
	MsgToastSubscribeFirst  = "toast_subscribe_first"
	MsgToastCheckFailed     = "toast_check_failed"
	MsgButtonSubscribe      = "button_subscribe"
	MsgButtonCheck          = "button_check"
	MsgButtonHelp           = "button_help"
	MsgButtonBack           = "button_back"
	MsgDefaultName          = "default_name"
	MsgWindowHours          = "window_hours"
	MsgWindowMinutes        = "window_minutes"
)
