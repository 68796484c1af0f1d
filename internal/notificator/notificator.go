package notificator

import (
	"runtime/debug"
	"sync"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/pkg/logger"
)

type chatSender interface {
	SendNotification(chatID, message string)
}

type mailSender interface {
	SendNotification(to, subject, message string) error
}

// Notificator routes admin notifications to the operators Telegram chat and
// user notifications to email. Either channel may be disabled by passing nil.
type Notificator struct {
	logger *logger.Logger

	TelegramNotificator chatSender
	EmailNotificator    mailSender
	adminChatID         string

	wg sync.WaitGroup
}

func NewNotificator(logger *logger.Logger, telNotif chatSender, emailNotif mailSender, adminChatID string) *Notificator {
	return &Notificator{
		logger:              logger,
		TelegramNotificator: telNotif,
		EmailNotificator:    emailNotif,
		adminChatID:         adminChatID,
	}
}

// safeCall runs a function with panic recovery
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// SendNotification delivers in the background so a slow channel never holds up a request.
func (n *Notificator) SendNotification(notification *models.Notification) {
	if notification == nil {
		return
	}
	switch notification.Audience {
	case models.AudienceAdmin:
		if n.TelegramNotificator == nil || n.adminChatID == "" {
			n.logger.Debug("Admin notification dropped, telegram disabled", "subject", notification.Subject)
			return
		}
		chatID := n.adminChatID
		message := notification.String()
		n.goSafe(func() { n.TelegramNotificator.SendNotification(chatID, message) }, "telegramNotification")
	case models.AudienceUser:
		if n.EmailNotificator == nil || notification.Email == "" {
			n.logger.Debug("User notification dropped, email disabled", "subject", notification.Subject)
			return
		}
		email, subject, message := notification.Email, notification.Subject, notification.Message
		n.goSafe(func() {
			if err := n.EmailNotificator.SendNotification(email, subject, message); err != nil {
				n.logger.Error("Failed to send email", "to", email, "error", err)
			}
		}, "emailNotification")
	default:
		n.logger.Warn("Unknown notification audience", "audience", notification.Audience)
	}
}

func (n *Notificator) goSafe(fn func(), context string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.safeCall(fn, context)
	}()
}

// Wait blocks until every notification in flight has been handed off.
func (n *Notificator) Wait() {
	n.wg.Wait()
}
