package services

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramSender delivers plain text to a linked chat.
type TelegramSender interface {
	SendMessage(chatID int64, text string) error
}

type TelegramService struct {
	bot *tgbotapi.BotAPI
	log *zap.Logger
}

// NewTelegramService connects to the Bot API. An empty token yields a
// service that silently skips every send.
func NewTelegramService(botToken string, log *zap.Logger) (*TelegramService, error) {
	if botToken == "" {
		return &TelegramService{log: log}, nil
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	log.Info("[tg][init] authorized", zap.String("bot", bot.Self.UserName))
	return &TelegramService{bot: bot, log: log}, nil
}

func (t *TelegramService) SendMessage(chatID int64, text string) error {
	if t == nil || t.bot == nil || chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Warn("[tg][send] failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *TelegramService) SetWebhook(url string) error {
	if t == nil || t.bot == nil || url == "" {
		return nil
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram webhook: %w", err)
	}
	if _, err := t.bot.Request(wh); err != nil {
		return fmt.Errorf("telegram set webhook: %w", err)
	}
	t.log.Info("[tg][setWebhook] registered", zap.String("url", url))
	return nil
}

// BotName is the bot's username, empty when Telegram is not configured.
func (t *TelegramService) BotName() string {
	if t == nil || t.bot == nil {
		return ""
	}
	return t.bot.Self.UserName
}
