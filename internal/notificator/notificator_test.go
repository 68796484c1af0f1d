package notificator

import (
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/pkg/logger"
)

type fakeChat struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (f *fakeChat) SendNotification(chatID, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string][]string{}
	}
	f.sent[chatID] = append(f.sent[chatID], message)
}

type fakeMail struct {
	mu      sync.Mutex
	to      []string
	subject []string
	panics  bool
}

func (f *fakeMail) SendNotification(to, subject, message string) error {
	if f.panics {
		panic("smtp exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.subject = append(f.subject, subject)
	return nil
}

func TestRoutesByAudience(t *testing.T) {
	chat, mail := &fakeChat{}, &fakeMail{}
	n := NewNotificator(logger.NewNop(), chat, mail, "-100")

	n.SendNotification(&models.Notification{Audience: models.AudienceAdmin, Subject: "New order", Message: "Order 1"})
	n.SendNotification(&models.Notification{Audience: models.AudienceUser, Email: "alice@example.com", Subject: "Deposit confirmed", Message: "ok"})
	n.SendNotification(&models.Notification{Audience: models.AudienceUser, Subject: "no address"})
	n.Wait()

	require.Len(t, chat.sent["-100"], 1)
	assert.Equal(t, "New order\n\nOrder 1", chat.sent["-100"][0])
	assert.Equal(t, []string{"alice@example.com"}, mail.to)
	assert.Equal(t, []string{"Deposit confirmed"}, mail.subject)
}

func TestDisabledChannelsAreSkipped(t *testing.T) {
	n := NewNotificator(logger.NewNop(), nil, nil, "")

	assert.NotPanics(t, func() {
		n.SendNotification(&models.Notification{Audience: models.AudienceAdmin, Message: "x"})
		n.SendNotification(&models.Notification{Audience: models.AudienceUser, Email: "a@b.c", Message: "x"})
		n.SendNotification(nil)
		n.Wait()
	})
}

func TestPanicIsRecovered(t *testing.T) {
	n := NewNotificator(logger.NewNop(), nil, &fakeMail{panics: true}, "")

	assert.NotPanics(t, func() {
		n.SendNotification(&models.Notification{Audience: models.AudienceUser, Email: "a@b.c", Message: "x"})
		n.Wait()
	})
}

func TestEmailFormatsMessage(t *testing.T) {
	e := NewEmailNotificator(logger.NewNop(), "smtp.example.com", 587, "user", "secret", "store@example.com")
	var gotAddr string
	var gotMsg []byte
	e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		return nil
	}

	require.NoError(t, e.SendNotification("alice@example.com", "", "hello"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.True(t, strings.HasPrefix(string(gotMsg), "From: store@example.com\r\nTo: alice@example.com\r\nSubject: Notification\r\n\r\nhello"))

	e.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.Error(t, e.SendNotification("alice@example.com", "s", "m"))
}
