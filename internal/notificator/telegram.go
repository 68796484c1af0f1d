package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/coinstore/pkg/logger"
)

// TelegramNotificator posts admin notifications to the operators chat.
type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot
}

// NewTelegramNotificator starts the bot in the background until ctx is done.
func NewTelegramNotificator(ctx context.Context, logger *logger.Logger, token string) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger: logger,
	}
	opts := []bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	go b.Start(ctx)
	provider.bot = b

	return provider, nil
}

func (t *TelegramNotificator) SendNotification(chatId, message string) {
	params := &bot.SendMessageParams{
		ChatID: chatId,
		Text:   message,
	}
	_, err := t.bot.SendMessage(context.Background(), params)
	if err != nil {
		t.logger.Error("Failed to send notification", "chat", chatId, "error", err)
	}
}

// handler answers /start with the chat id, which operators put in TELEGRAM_ADMIN_CHAT_ID.
func (t *TelegramNotificator) handler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	t.logger.Debug("Telegram update", "username", update.Message.From.Username, "text", update.Message.Text)
	if update.Message.Text != "/start" {
		return
	}
	chatID := fmt.Sprint(update.Message.Chat.ID)
	t.logger.Info("Telegram chat registered", "username", update.Message.From.Username, "chat", chatID)
	t.SendNotification(chatID, "Coin Store admin notifications. Chat ID: "+chatID)
}
