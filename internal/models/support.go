package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TicketCategory string

const (
	TicketEnquiry    TicketCategory = "enquiry"
	TicketComplaint  TicketCategory = "complaint"
	TicketRequest    TicketCategory = "request"
	TicketOrderIssue TicketCategory = "order_issue"
	TicketOther      TicketCategory = "other"
)

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// SupportTicket is a customer conversation with the store operators.
type SupportTicket struct {
	ID           string         `json:"id" gorm:"column:id;primaryKey;size:36"`
	TicketNumber string         `json:"ticketNumber" gorm:"column:ticket_number;size:32;uniqueIndex;not null"`
	UserID       string         `json:"userId" gorm:"column:user_id;size:36;not null;index"`
	User         *User          `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Category     TicketCategory `json:"category" gorm:"column:category;size:16;not null;index"`
	Subject      string         `json:"subject" gorm:"column:subject;not null"`
	Description  string         `json:"description" gorm:"column:description;not null"`
	OrderID      *string        `json:"orderId,omitempty" gorm:"column:order_id;size:36;index"`
	Order        *Order         `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	Priority     TicketPriority `json:"priority" gorm:"column:priority;size:16;not null;index"`
	Status       TicketStatus   `json:"status" gorm:"column:status;size:16;not null;index"`

	Messages []TicketMessage `json:"messages" gorm:"foreignKey:TicketID"`

	AssignedTo *string `json:"assignedTo,omitempty" gorm:"column:assigned_to;size:36"`
	Assignee   *User   `json:"assignee,omitempty" gorm:"foreignKey:AssignedTo"`
	AdminNotes string  `json:"adminNotes,omitempty" gorm:"column:admin_notes"`

	ResolvedAt *time.Time `json:"resolvedAt,omitempty" gorm:"column:resolved_at"`
	ClosedAt   *time.Time `json:"closedAt,omitempty" gorm:"column:closed_at"`
	CreatedAt  time.Time  `json:"createdAt" gorm:"column:created_at;index"`
	UpdatedAt  time.Time  `json:"updatedAt" gorm:"column:updated_at"`
}

func (t *SupportTicket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// TicketMessage is one append-only entry of a ticket conversation.
type TicketMessage struct {
	ID         uint      `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	TicketID   string    `json:"-" gorm:"column:ticket_id;size:36;not null;index"`
	SenderID   string    `json:"senderId" gorm:"column:sender_id;size:36;not null"`
	Sender     *User     `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	SenderRole Role      `json:"senderRole" gorm:"column:sender_role;size:16;not null"`
	Message    string    `json:"message" gorm:"column:message;not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"column:created_at"`
}

// NewTicket is the customer input for opening a ticket.
type NewTicket struct {
	Category    TicketCategory `json:"category" validate:"required,oneof=enquiry complaint request order_issue other"`
	Subject     string         `json:"subject" validate:"required"`
	Description string         `json:"description" validate:"required"`
	OrderID     string         `json:"orderId"`
	Priority    TicketPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// TicketFilter narrows ticket listings. Zero values mean no filter.
type TicketFilter struct {
	Status   TicketStatus
	Category TicketCategory
	Priority TicketPriority
}

// TicketCount is one group of the ticket statistics.
type TicketCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type TicketStatistics struct {
	Total      int64         `json:"total"`
	Open       int64         `json:"open"`
	InProgress int64         `json:"inProgress"`
	Resolved   int64         `json:"resolved"`
	Closed     int64         `json:"closed"`
	ByCategory []TicketCount `json:"byCategory"`
	ByPriority []TicketCount `json:"byPriority"`
}
