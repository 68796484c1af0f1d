// Package inventory guards product stock. Every decrement is a conditional
// update, so stock never goes below zero no matter how many checkouts race.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/pkg/logger"
)

type Guard struct {
	logger *logger.Logger
}

func NewGuard(logger *logger.Logger) *Guard {
	return &Guard{logger: logger}
}

// Reserve decrements stock for every line item and returns order item snapshots
// carrying the current product name and price. Either every line is reserved
// or none is: a failing line rolls back the lines before it.
func (g *Guard) Reserve(ctx context.Context, tx *gorm.DB, items []models.LineItem) ([]models.OrderItem, error) {
	if len(items) == 0 {
		return nil, models.NewValidationError("items", "order must contain at least one item")
	}

	var reserved []models.OrderItem
	err := tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reserved = make([]models.OrderItem, 0, len(items))
		for _, item := range items {
			snapshot, err := g.reserveOne(tx, item)
			if err != nil {
				return err
			}
			reserved = append(reserved, *snapshot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

func (g *Guard) reserveOne(tx *gorm.DB, item models.LineItem) (*models.OrderItem, error) {
	if item.Quantity < 1 {
		return nil, models.NewValidationError("quantity", "quantity must be at least 1")
	}

	product, err := loadProduct(tx, item.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, models.NewValidationError("product", "%s is not available", product.Name)
	}

	result := tx.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", product.ID, item.Quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", item.Quantity))
	if result.Error != nil {
		return nil, fmt.Errorf("failed to reserve stock of product %s: %w", product.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		// the stock may have moved since the read, report what is there now
		if current, err := loadProduct(tx, product.ID); err == nil {
			product = current
		}
		return nil, &models.InsufficientStockError{
			ProductID: product.ID,
			Name:      product.Name,
			Available: product.Stock,
			Requested: item.Quantity,
		}
	}

	g.logger.Debug("Stock reserved", "product", product.ID, "quantity", item.Quantity)
	return &models.OrderItem{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Quantity:  item.Quantity,
	}, nil
}

// Release returns reserved units to stock. Products deleted since the
// reservation are skipped.
func (g *Guard) Release(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	return tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if item.Quantity < 1 {
				continue
			}
			result := tx.Model(&models.Product{}).
				Where("id = ?", item.ProductID).
				UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity))
			if result.Error != nil {
				return fmt.Errorf("failed to release stock of product %s: %w", item.ProductID, result.Error)
			}
			if result.RowsAffected == 0 {
				g.logger.Warn("Product missing on stock release", "product", item.ProductID, "quantity", item.Quantity)
				continue
			}
			g.logger.Debug("Stock released", "product", item.ProductID, "quantity", item.Quantity)
		}
		return nil
	})
}

func loadProduct(tx *gorm.DB, id string) (*models.Product, error) {
	var product models.Product
	if err := tx.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFound("product", id)
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return &product, nil
}
