package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a store customer or administrator.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// Name is the display name of the user.
	Name string `json:"name" gorm:"column:name;not null"`
	// Email is the login and notification address of the user.
	Email string `json:"email" gorm:"column:email;uniqueIndex;not null"`
	// Role is either user or admin.
	Role Role `json:"role" gorm:"column:role;size:16;not null;index"`
	// WalletBalance is the cached balance of the internal wallet.
	// The ledger is authoritative, see reconcile.Engine.
	WalletBalance decimal.Decimal `json:"walletBalance" gorm:"column:wallet_balance;type:numeric(14,2);not null;default:0"`
	CreatedAt     time.Time       `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" gorm:"column:updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess reports whether the actor owns the resource or is an admin.
func (a Actor) CanAccess(ownerID string) bool {
	return a.IsAdmin() || a.UserID == ownerID
}

// UserBalance is a row of the admin balances listing.
type UserBalance struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	WalletBalance decimal.Decimal `json:"walletBalance"`
	CreatedAt     time.Time       `json:"createdAt"`
}
