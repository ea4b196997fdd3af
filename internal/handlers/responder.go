package handlers

import (
	"html"
	"strings"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/coffee-ai-tgbot-go/internal/i18n"
	"github.com/coffee-ai-tgbot-go/internal/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data carried by inline buttons.
const (
	CallbackCheckSubscription = "check_subscription"
	CallbackBackToMain        = "back_to_main"
	CallbackHelp              = "help"
)

// responder renders localized texts and keyboards and sends them.
type responder struct {
	bot       middleware.BotAPI
	config    *config.Config
	localizer *i18n.Localizer
}

// templateData is shared by every localized text.
func (r *responder) templateData(lang string, user *tgbotapi.User) map[string]interface{} {
	name := ""
	if user != nil {
		name = strings.TrimSpace(user.FirstName)
	}
	if name == "" {
		name = r.localizer.Get(lang, i18n.MsgDefaultName, nil)
	}
	return map[string]interface{}{
		"Name":    html.EscapeString(name),
		"Channel": r.config.Bot.Channel,
		"Limit":   r.config.RateLimit.Requests,
		"Window":  r.localizer.Window(lang, r.config.RateLimit.Window),
	}
}

func (r *responder) text(lang, messageID string, user *tgbotapi.User) string {
	return r.localizer.HTML(lang, messageID, r.templateData(lang, user))
}

func (r *responder) sendHTML(chatID int64, text string, markup interface{}) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return r.bot.Send(msg)
}

func (r *responder) sendPlain(chatID int64, text string) (tgbotapi.Message, error) {
	return r.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *responder) editHTML(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = markup
	_, err := r.bot.Send(edit)
	if err != nil && isNotModified(err) {
		return nil
	}
	return err
}

func (r *responder) answerCallback(callbackID, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// isNotModified reports Telegram's rejection of an edit that changes nothing.
func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// mainMenuKeyboard offers the channel link, the subscription check and help.
func (r *responder) mainMenuKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(r.localizer.Get(lang, i18n.MsgButtonSubscribe, nil), r.config.Bot.ChannelURL()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.localizer.Get(lang, i18n.MsgButtonCheck, nil), CallbackCheckSubscription),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.localizer.Get(lang, i18n.MsgButtonHelp, nil), CallbackHelp),
		),
	)
}

func (r *responder) helpKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.localizer.Get(lang, i18n.MsgButtonHelp, nil), CallbackHelp),
		),
	)
}

func (r *responder) backKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.localizer.Get(lang, i18n.MsgButtonBack, nil), CallbackBackToMain),
		),
	)
}
