package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionDeposit TransactionType = "deposit"
	TransactionPayment TransactionType = "payment"
	TransactionRefund  TransactionType = "refund"
)

func (t TransactionType) Valid() bool {
	return t == TransactionDeposit || t == TransactionPayment || t == TransactionRefund
}

// Credits reports whether a completed entry of this type increases the balance.
func (t TransactionType) Credits() bool {
	return t == TransactionDeposit || t == TransactionRefund
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Valid() bool {
	return s == TransactionPending || s == TransactionCompleted || s == TransactionFailed
}

func (s TransactionStatus) Terminal() bool {
	return s == TransactionCompleted || s == TransactionFailed
}

type DepositMethod string

const (
	DepositCash     DepositMethod = "cash"
	DepositGiftCard DepositMethod = "giftcard"
)

// Transaction is an immutable ledger entry. Amount is always positive,
// the direction is carried by Type.
type Transaction struct {
	ID          string            `json:"id" gorm:"column:id;primaryKey;size:36"`
	UserID      string            `json:"userId" gorm:"column:user_id;size:36;not null;index"`
	User        *User             `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Type        TransactionType   `json:"type" gorm:"column:type;size:16;not null;index"`
	Amount      decimal.Decimal   `json:"amount" gorm:"column:amount;type:numeric(14,2);not null"`
	Status      TransactionStatus `json:"status" gorm:"column:status;size:16;not null;index"`
	Description string            `json:"description" gorm:"column:description;not null"`
	OrderID     *string           `json:"orderId,omitempty" gorm:"column:order_id;size:36;index"`

	DepositMethod DepositMethod `json:"depositMethod,omitempty" gorm:"column:deposit_method;size:16"`
	GiftCardType  string        `json:"giftCardType,omitempty" gorm:"column:gift_card_type"`
	GiftCardImage string        `json:"giftCardImage,omitempty" gorm:"column:gift_card_image"`
	GiftCardCode  string        `json:"giftCardCode,omitempty" gorm:"column:gift_card_code"`
	AdminNotes    string        `json:"adminNotes,omitempty" gorm:"column:admin_notes"`

	SettledAt *time.Time `json:"settledAt,omitempty" gorm:"column:settled_at"`
	CreatedAt time.Time  `json:"createdAt" gorm:"column:created_at;index"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Effect is the signed change this entry applies to the balance once completed.
func (t *Transaction) Effect() decimal.Decimal {
	if t.Status != TransactionCompleted {
		return decimal.Zero
	}
	if t.Type.Credits() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// DepositMeta describes how a deposit is funded.
type DepositMeta struct {
	Method        DepositMethod
	GiftCardType  string
	GiftCardImage string
	GiftCardCode  string
}

// TransactionFilter narrows ledger listings. Zero values mean no filter.
type TransactionFilter struct {
	Status TransactionStatus
	Type   TransactionType
	Limit  int
}

// DepositRequest is a user request to top up the wallet.
type DepositRequest struct {
	UserID string
	Amount decimal.Decimal
	Meta   DepositMeta
}
