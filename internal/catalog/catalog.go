// Package catalog manages the products offered in the store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/pkg/logger"
)

// Filter narrows the product listing.
type Filter struct {
	Category   string
	Search     string
	ActiveOnly bool
}

type Catalog struct {
	logger *logger.Logger
	store  *repository.Store
}

func New(store *repository.Store, logger *logger.Logger) *Catalog {
	return &Catalog{store: store, logger: logger}
}

// Create adds a product. New products are active.
func (c *Catalog) Create(ctx context.Context, product *models.Product, actor models.Actor) (*models.Product, error) {
	if !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}
	product.Name = strings.TrimSpace(product.Name)
	if err := checkProduct(product.Name, product.Price, product.Stock); err != nil {
		return nil, err
	}
	product.Price = product.Price.Round(2)
	product.Active = true

	if err := c.store.DB(ctx).Create(product).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	c.logger.Info("Product created", "id", product.ID, "name", product.Name, "stock", product.Stock)
	return product, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := c.store.DB(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFound("product", id)
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return &product, nil
}

func (c *Catalog) List(ctx context.Context, filter Filter) ([]models.Product, error) {
	query := c.store.DB(ctx).Model(&models.Product{})
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var products []models.Product
	if err := query.Order("created_at DESC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Update applies an admin edit. Setting stock here is an absolute restock,
// checkout decrements go through the inventory guard.
func (c *Catalog) Update(ctx context.Context, id string, update models.ProductUpdate, actor models.Actor) (*models.Product, error) {
	if !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}

	var product *models.Product
	err := c.store.WithTx(ctx, func(tx *gorm.DB) error {
		var current models.Product
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NotFound("product", id)
			}
			return fmt.Errorf("failed to get product %s: %w", id, err)
		}

		changes := map[string]interface{}{}
		name, price, stock := current.Name, current.Price, current.Stock
		if update.Name != nil {
			name = strings.TrimSpace(*update.Name)
			changes["name"] = name
		}
		if update.Price != nil {
			price = update.Price.Round(2)
			changes["price"] = price
		}
		if update.Stock != nil {
			stock = *update.Stock
			changes["stock"] = stock
		}
		if err := checkProduct(name, price, stock); err != nil {
			return err
		}
		if update.Description != nil {
			changes["description"] = *update.Description
		}
		if update.Category != nil {
			changes["category"] = *update.Category
		}
		if update.ImageURL != nil {
			changes["image_url"] = *update.ImageURL
		}
		if update.Active != nil {
			changes["active"] = *update.Active
		}

		if len(changes) > 0 {
			if err := tx.Model(&current).Updates(changes).Error; err != nil {
				return fmt.Errorf("failed to update product %s: %w", id, err)
			}
		}
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to reload product %s: %w", id, err)
		}
		product = &current
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Product updated", "id", id, "by", actor.UserID)
	return product, nil
}

// Delete removes a product. A product that past orders still reference is
// deactivated instead, deleted reports which of the two happened.
func (c *Catalog) Delete(ctx context.Context, id string, actor models.Actor) (deleted bool, err error) {
	if !actor.IsAdmin() {
		return false, models.ErrForbidden
	}

	err = c.store.WithTx(ctx, func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Select("id").First(&product, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NotFound("product", id)
			}
			return fmt.Errorf("failed to get product %s: %w", id, err)
		}

		var referenced int64
		if err := tx.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&referenced).Error; err != nil {
			return fmt.Errorf("failed to count order items of product %s: %w", id, err)
		}
		if referenced > 0 {
			if err := tx.Model(&models.Product{}).Where("id = ?", id).Update("active", false).Error; err != nil {
				return fmt.Errorf("failed to deactivate product %s: %w", id, err)
			}
			return nil
		}

		if err := tx.Delete(&models.Product{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete product %s: %w", id, err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	c.logger.Info("Product removed", "id", id, "deleted", deleted, "by", actor.UserID)
	return deleted, nil
}

// Count returns the number of products, used by the admin dashboard.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := c.store.DB(ctx).Model(&models.Product{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

func checkProduct(name string, price decimal.Decimal, stock int) error {
	if name == "" {
		return models.NewValidationError("name", "name is required")
	}
	if price.IsNegative() {
		return models.NewValidationError("price", "price must not be negative")
	}
	if stock < 0 {
		return models.NewValidationError("stock", "stock must not be negative")
	}
	return nil
}
