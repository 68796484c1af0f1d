package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentRequestStatus string

const (
	PaymentRequestPending  PaymentRequestStatus = "pending"
	PaymentRequestAccepted PaymentRequestStatus = "accepted"
	PaymentRequestRejected PaymentRequestStatus = "rejected"
)

func (s PaymentRequestStatus) Terminal() bool {
	return s == PaymentRequestAccepted || s == PaymentRequestRejected
}

// PaymentRequest is an admin-proposed extra charge tied to an order.
// No money moves until the target user accepts it.
type PaymentRequest struct {
	ID          string               `json:"id" gorm:"column:id;primaryKey;size:36"`
	OrderID     string               `json:"orderId" gorm:"column:order_id;size:36;not null;index"`
	Order       *Order               `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	UserID      string               `json:"userId" gorm:"column:user_id;size:36;not null;index"`
	User        *User                `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Amount      decimal.Decimal      `json:"amount" gorm:"column:amount;type:numeric(14,2);not null"`
	Reason      string               `json:"reason" gorm:"column:reason;not null"`
	Description string               `json:"description" gorm:"column:description"`
	CreatedBy   string               `json:"createdBy" gorm:"column:created_by;size:36;not null"`
	Status      PaymentRequestStatus `json:"status" gorm:"column:status;size:16;not null;index"`
	RespondedAt *time.Time           `json:"respondedAt,omitempty" gorm:"column:responded_at"`
	CreatedAt   time.Time            `json:"createdAt" gorm:"column:created_at;index"`
	UpdatedAt   time.Time            `json:"updatedAt" gorm:"column:updated_at"`
}

func (p *PaymentRequest) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// NewPaymentRequest is the admin input for a payment request.
type NewPaymentRequest struct {
	OrderID     string          `json:"orderId" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason" binding:"required"`
	Description string          `json:"description"`
}

// AcceptResult is returned when a payment request is accepted.
type AcceptResult struct {
	PaymentRequest *PaymentRequest `json:"paymentRequest"`
	Transaction    *Transaction    `json:"transaction"`
	NewBalance     decimal.Decimal `json:"newBalance"`
}
