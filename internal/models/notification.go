package models

type Audience string

const (
	// AudienceAdmin messages go to the store operators chat.
	AudienceAdmin Audience = "admin"
	// AudienceUser messages go to the user's email.
	AudienceUser Audience = "user"
)

type Notification struct {
	Audience Audience `json:"audience"`
	Email    string   `json:"email,omitempty"`
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
}

func (n *Notification) String() string {
	if n.Subject == "" {
		return n.Message
	}
	return n.Subject + "\n\n" + n.Message
}

type NotificationService interface {
	SendNotification(notification *Notification)
}
