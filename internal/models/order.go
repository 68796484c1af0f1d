package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentWallet PaymentMethod = "wallet"
	PaymentCrypto PaymentMethod = "crypto"
)

const (
	// WalletCurrency and WalletAccount are recorded on orders settled from the internal wallet.
	WalletCurrency = "WALLET"
	WalletAccount  = "Internal Wallet"
)

// ShippingAddress is stored inline on the order.
type ShippingAddress struct {
	FullName string `json:"fullName" gorm:"column:full_name" validate:"required"`
	Address  string `json:"address" gorm:"column:address" validate:"required"`
	City     string `json:"city" gorm:"column:city" validate:"required"`
	State    string `json:"state" gorm:"column:state" validate:"required"`
	ZipCode  string `json:"zipCode" gorm:"column:zip_code" validate:"required"`
	Country  string `json:"country" gorm:"column:country" validate:"required"`
	Phone    string `json:"phone" gorm:"column:phone" validate:"required"`
}

// Order is a purchase. TotalAmount is frozen at creation.
type Order struct {
	ID     string `json:"id" gorm:"column:id;primaryKey;size:36"`
	UserID string `json:"userId" gorm:"column:user_id;size:36;not null;index"`
	User   *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`

	Items       []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	TotalAmount decimal.Decimal `json:"totalAmount" gorm:"column:total_amount;type:numeric(14,2);not null"`

	PaymentMethod   PaymentMethod `json:"paymentMethod" gorm:"column:payment_method;size:16;not null"`
	Cryptocurrency  string        `json:"cryptocurrency" gorm:"column:cryptocurrency"`
	WalletAddress   string        `json:"walletAddress" gorm:"column:wallet_address"`
	TransactionHash string        `json:"transactionHash" gorm:"column:transaction_hash"`
	PaymentVerified bool          `json:"paymentVerified" gorm:"column:payment_verified;not null"`

	Status         OrderStatus        `json:"status" gorm:"column:status;size:16;not null;index"`
	StatusHistory  []OrderStatusEntry `json:"statusHistory" gorm:"foreignKey:OrderID"`
	TrackingNumber string             `json:"trackingNumber,omitempty" gorm:"column:tracking_number"`
	Notes          string             `json:"notes,omitempty" gorm:"column:notes"`

	ShippingAddress ShippingAddress `json:"shippingAddress" gorm:"embedded;embeddedPrefix:shipping_"`

	CreatedAt time.Time `json:"createdAt" gorm:"column:created_at;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"column:updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// OrderItem is a line item with the product name and unit price captured at order time.
type OrderItem struct {
	ID        uint            `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   string          `json:"-" gorm:"column:order_id;size:36;not null;index"`
	ProductID string          `json:"productId" gorm:"column:product_id;size:36;not null;index"`
	Product   *Product        `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Name      string          `json:"name" gorm:"column:name;not null"`
	Price     decimal.Decimal `json:"price" gorm:"column:price;type:numeric(14,2);not null"`
	Quantity  int             `json:"quantity" gorm:"column:quantity;not null"`
}

// Subtotal is price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderStatusEntry is one append-only record of the order status history.
type OrderStatusEntry struct {
	ID        uint        `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   string      `json:"-" gorm:"column:order_id;size:36;not null;index"`
	Status    OrderStatus `json:"status" gorm:"column:status;size:16;not null"`
	Note      string      `json:"note" gorm:"column:note"`
	UpdatedBy string      `json:"updatedBy" gorm:"column:updated_by;size:36"`
	Timestamp time.Time   `json:"timestamp" gorm:"column:timestamp;not null"`
}

// LineItem is a requested product and quantity.
type LineItem struct {
	ProductID string `json:"product" binding:"required" validate:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1" validate:"min=1"`
}

// CryptoPayment holds the free-form, unverified fields of the crypto payment path.
type CryptoPayment struct {
	Cryptocurrency  string `json:"cryptocurrency"`
	WalletAddress   string `json:"walletAddress"`
	TransactionHash string `json:"transactionHash"`
}

// CreateOrderInput is the checkout request.
type CreateOrderInput struct {
	UserID          string     `validate:"required"`
	Items           []LineItem `validate:"required,min=1,dive"`
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod `validate:"required,oneof=wallet crypto"`
	Crypto          CryptoPayment
}

// OrderUpdate is an admin edit. Nil fields are left unchanged.
type OrderUpdate struct {
	Status          *OrderStatus `json:"status"`
	PaymentVerified *bool        `json:"paymentVerified"`
	Notes           *string      `json:"notes"`
	TrackingNumber  *string      `json:"trackingNumber"`
	StatusNote      string       `json:"statusNote"`
}
