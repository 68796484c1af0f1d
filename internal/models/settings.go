package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultGiftCardTypes is the allow-list used until an admin changes it.
var DefaultGiftCardTypes = StringList{"Amazon", "iTunes", "Google Play", "Steam", "Visa"}

// WalletAddresses are the crypto receiving addresses shown at checkout.
type WalletAddresses struct {
	BTC  string `json:"BTC" gorm:"column:btc"`
	ETH  string `json:"ETH" gorm:"column:eth"`
	USDT string `json:"USDT" gorm:"column:usdt"`
}

// Settings is the single row of site-wide configuration.
type Settings struct {
	ID              uint            `json:"-" gorm:"column:id;primaryKey"`
	WalletAddresses WalletAddresses `json:"walletAddresses" gorm:"embedded;embeddedPrefix:wallet_"`
	GiftCardTypes   StringList      `json:"giftCardTypes" gorm:"column:gift_card_types;type:text"`
	SiteName        string          `json:"siteName" gorm:"column:site_name"`
	SiteDescription string          `json:"siteDescription" gorm:"column:site_description"`
	UpdatedAt       time.Time       `json:"updatedAt" gorm:"column:updated_at"`
}

// AllowsGiftCard reports whether the brand is on the allow-list.
func (s *Settings) AllowsGiftCard(brand string) bool {
	for _, t := range s.GiftCardTypes {
		if t == brand {
			return true
		}
	}
	return false
}

// SettingsUpdate is an admin edit. Nil fields are left unchanged.
type SettingsUpdate struct {
	WalletAddresses *struct {
		BTC  *string `json:"BTC"`
		ETH  *string `json:"ETH"`
		USDT *string `json:"USDT"`
	} `json:"walletAddresses"`
	GiftCardTypes   []string `json:"giftCardTypes"`
	SiteName        *string  `json:"siteName"`
	SiteDescription *string  `json:"siteDescription"`
}

// StringList is stored as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode StringList: %w", err)
	}
	*l = out
	return nil
}
