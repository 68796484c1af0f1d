package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog item. Stock is mutated only by the inventory guard and catalog edits.
type Product struct {
	ID          string          `json:"id" gorm:"column:id;primaryKey;size:36"`
	Name        string          `json:"name" gorm:"column:name;not null"`
	Description string          `json:"description" gorm:"column:description"`
	Category    string          `json:"category" gorm:"column:category;index"`
	ImageURL    string          `json:"imageUrl" gorm:"column:image_url"`
	Price       decimal.Decimal `json:"price" gorm:"column:price;type:numeric(14,2);not null"`
	Stock       int             `json:"stock" gorm:"column:stock;not null;check:chk_products_stock,stock >= 0"`
	Active      bool            `json:"active" gorm:"column:active;not null;index"`
	CreatedAt   time.Time       `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" gorm:"column:updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ProductUpdate carries the catalog fields an admin may change. Nil means unchanged.
type ProductUpdate struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	ImageURL    *string          `json:"imageUrl"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Active      *bool            `json:"active"`
}
