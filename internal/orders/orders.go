// Package orders owns the order state machine and coordinates stock
// reservation and wallet settlement at checkout.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/events"
	"github.com/core-coin/coinstore/internal/inventory"
	"github.com/core-coin/coinstore/internal/metrics"
	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/internal/wallet"
	"github.com/core-coin/coinstore/pkg/logger"
)

// Options tune the order lifecycle.
type Options struct {
	// RefundOnCancel credits the wallet back when a wallet-paid order is cancelled.
	RefundOnCancel bool
}

type Manager struct {
	logger    *logger.Logger
	store     *repository.Store
	inventory *inventory.Guard
	wallet    *wallet.Service
	notifier  models.NotificationService
	events    models.EventPublisher
	validate  *validator.Validate
	opts      Options
}

func NewManager(store *repository.Store, guard *inventory.Guard, wallet *wallet.Service, notifier models.NotificationService, publisher models.EventPublisher, opts Options, logger *logger.Logger) *Manager {
	return &Manager{
		logger:    logger,
		store:     store,
		inventory: guard,
		wallet:    wallet,
		notifier:  notifier,
		events:    publisher,
		validate:  validator.New(),
		opts:      opts,
	}
}

// CreateOrder reserves stock, settles wallet payment and persists the order
// in one transaction. Any failure leaves stock, balance and ledger untouched.
func (m *Manager) CreateOrder(ctx context.Context, input models.CreateOrderInput) (*models.Order, error) {
	if err := m.checkInput(&input); err != nil {
		metrics.CheckoutFailed("validation")
		return nil, err
	}

	orderID := uuid.NewString()
	err := m.store.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.User{}, "id = ?", input.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NotFound("user", input.UserID)
			}
			return fmt.Errorf("failed to get user %s: %w", input.UserID, err)
		}

		items, err := m.inventory.Reserve(ctx, tx, input.Items)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.Subtotal())
		}

		order := &models.Order{
			ID:              orderID,
			UserID:          input.UserID,
			Items:           items,
			TotalAmount:     total.Round(2),
			PaymentMethod:   input.PaymentMethod,
			Status:          models.OrderPending,
			ShippingAddress: input.ShippingAddress,
			StatusHistory: []models.OrderStatusEntry{{
				Status:    models.OrderPending,
				Note:      "Order placed",
				UpdatedBy: input.UserID,
				Timestamp: time.Now().UTC(),
			}},
		}

		switch input.PaymentMethod {
		case models.PaymentWallet:
			// free orders are settled without a ledger entry
			if order.TotalAmount.IsPositive() {
				txn, _, err := m.wallet.Debit(ctx, tx, input.UserID, order.TotalAmount, "Payment for order "+orderID, &orderID)
				if err != nil {
					return err
				}
				order.TransactionHash = txn.ID
			}
			order.Cryptocurrency = models.WalletCurrency
			order.WalletAddress = models.WalletAccount
			order.PaymentVerified = true
		case models.PaymentCrypto:
			order.Cryptocurrency = input.Crypto.Cryptocurrency
			order.WalletAddress = input.Crypto.WalletAddress
			order.TransactionHash = input.Crypto.TransactionHash
			order.PaymentVerified = false
		}

		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		m.checkoutFailed(input, err)
		return nil, err
	}

	order, err := m.load(m.store.DB(ctx), orderID)
	if err != nil {
		return nil, err
	}

	metrics.OrderCreated(string(order.PaymentMethod))
	m.logger.Info("Order created", "order", order.ID, "user", order.UserID, "total", order.TotalAmount, "payment", order.PaymentMethod)
	events.Emit(ctx, m.events, m.logger, models.EventOrderCreated, order.ID, order)
	m.notify(&models.Notification{
		Audience: models.AudienceAdmin,
		Subject:  "New order",
		Message: fmt.Sprintf("Order %s by %s: $%s via %s (%d items)",
			order.ID, order.User.Email, order.TotalAmount.StringFixed(2), order.PaymentMethod, len(order.Items)),
	})
	return order, nil
}

func (m *Manager) checkInput(input *models.CreateOrderInput) error {
	if err := m.validate.Struct(input); err != nil {
		return validationError(err, "order")
	}
	if err := m.validate.Struct(input.ShippingAddress); err != nil {
		return validationError(err, "shippingAddress")
	}
	if input.PaymentMethod == models.PaymentCrypto {
		input.Crypto.Cryptocurrency = strings.TrimSpace(input.Crypto.Cryptocurrency)
		input.Crypto.WalletAddress = strings.TrimSpace(input.Crypto.WalletAddress)
		if input.Crypto.Cryptocurrency == "" || input.Crypto.WalletAddress == "" {
			return models.NewValidationError("cryptocurrency", "cryptocurrency and wallet address are required for crypto payments")
		}
	}
	return nil
}

func (m *Manager) checkoutFailed(input models.CreateOrderInput, err error) {
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		metrics.CheckoutFailed("insufficient_stock")
		m.logger.Info("Checkout refused", "user", input.UserID, "error", err)
	case errors.Is(err, models.ErrInsufficientFunds):
		metrics.CheckoutFailed("insufficient_funds")
		m.logger.Info("Checkout refused", "user", input.UserID, "error", err)
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrNotFound):
		metrics.CheckoutFailed("validation")
		m.logger.Info("Checkout refused", "user", input.UserID, "error", err)
	default:
		metrics.CheckoutFailed("error")
		m.logger.Error("Checkout failed", "user", input.UserID, "error", err)
	}
}

// UpdateOrder applies an admin edit. A history entry is appended only when the
// status changes or a tracking number is added.
func (m *Manager) UpdateOrder(ctx context.Context, orderID string, update models.OrderUpdate, actor models.Actor) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, fmt.Errorf("order status %q: %w", *update.Status, models.ErrInvalidStatus)
	}

	var order *models.Order
	err := m.store.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := m.load(tx, orderID)
		if err != nil {
			return err
		}

		changes := map[string]interface{}{}
		var entry *models.OrderStatusEntry
		cancelling := false

		tracking := current.TrackingNumber
		if update.TrackingNumber != nil {
			tracking = strings.TrimSpace(*update.TrackingNumber)
		}

		if update.Status != nil && *update.Status != current.Status {
			next := *update.Status
			if current.Status == models.OrderCancelled {
				return fmt.Errorf("order %s is cancelled: %w", orderID, models.ErrInvalidTransition)
			}
			if next == models.OrderCancelled {
				if current.Status != models.OrderPending {
					return fmt.Errorf("order %s is %s, only pending orders can be cancelled: %w", orderID, current.Status, models.ErrInvalidTransition)
				}
				cancelling = true
			}
			if next == models.OrderShipped && tracking == "" {
				tracking = NewTrackingNumber()
			}

			note := strings.TrimSpace(update.StatusNote)
			if note == "" {
				note = fmt.Sprintf("Order status updated to %s", next)
				if next == models.OrderShipped && tracking != "" {
					note += " - Tracking: " + tracking
				}
			}
			changes["status"] = next
			entry = &models.OrderStatusEntry{OrderID: orderID, Status: next, Note: note, UpdatedBy: actor.UserID, Timestamp: time.Now().UTC()}
		} else if tracking != "" && tracking != current.TrackingNumber {
			entry = &models.OrderStatusEntry{
				OrderID:   orderID,
				Status:    current.Status,
				Note:      "Tracking number added: " + tracking,
				UpdatedBy: actor.UserID,
				Timestamp: time.Now().UTC(),
			}
		}

		if tracking != current.TrackingNumber {
			changes["tracking_number"] = tracking
		}
		if update.PaymentVerified != nil {
			changes["payment_verified"] = *update.PaymentVerified
		}
		if update.Notes != nil {
			changes["notes"] = *update.Notes
		}

		if len(changes) > 0 {
			if err := m.transition(tx, orderID, current.Status, changes); err != nil {
				return err
			}
		}
		if cancelling {
			if err := m.undo(ctx, tx, current); err != nil {
				return err
			}
		}
		if entry != nil {
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("failed to append status history of order %s: %w", orderID, err)
			}
		}

		order, err = m.load(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Order updated", "order", orderID, "status", order.Status, "by", actor.UserID)
	eventType := models.EventOrderUpdated
	if order.Status == models.OrderCancelled {
		eventType = models.EventOrderCancelled
	}
	events.Emit(ctx, m.events, m.logger, eventType, order.ID, order)
	return order, nil
}

// CancelOrder lets the owner cancel a pending order. Reserved stock is returned.
func (m *Manager) CancelOrder(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error) {
	var order *models.Order
	err := m.store.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := m.load(tx, orderID)
		if err != nil {
			return err
		}
		if current.UserID != actor.UserID {
			return models.ErrForbidden
		}
		if current.Status != models.OrderPending {
			return fmt.Errorf("order %s is %s, only pending orders can be cancelled: %w", orderID, current.Status, models.ErrInvalidTransition)
		}

		if err := m.transition(tx, orderID, models.OrderPending, map[string]interface{}{"status": models.OrderCancelled}); err != nil {
			return err
		}
		if err := m.undo(ctx, tx, current); err != nil {
			return err
		}
		entry := &models.OrderStatusEntry{
			OrderID:   orderID,
			Status:    models.OrderCancelled,
			Note:      "Order cancelled by customer",
			UpdatedBy: actor.UserID,
			Timestamp: time.Now().UTC(),
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to append status history of order %s: %w", orderID, err)
		}

		order, err = m.load(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Order cancelled", "order", orderID, "by", actor.UserID)
	events.Emit(ctx, m.events, m.logger, models.EventOrderCancelled, order.ID, order)
	return order, nil
}

// transition writes changes only while the order is still in status from.
// A concurrent transition that committed first makes it fail, so stock is
// never released twice for the same order.
func (m *Manager) transition(tx *gorm.DB, orderID string, from models.OrderStatus, changes map[string]interface{}) error {
	result := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(changes)
	if result.Error != nil {
		return fmt.Errorf("failed to update order %s: %w", orderID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %s changed concurrently: %w", orderID, models.ErrInvalidTransition)
	}
	return nil
}

// undo releases the stock of a cancelled order and, when enabled, refunds a wallet payment.
func (m *Manager) undo(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if err := m.inventory.Release(ctx, tx, order.Items); err != nil {
		return err
	}
	if m.opts.RefundOnCancel && order.PaymentMethod == models.PaymentWallet && order.PaymentVerified && order.TotalAmount.IsPositive() {
		orderID := order.ID
		if _, _, err := m.wallet.Refund(ctx, tx, order.UserID, order.TotalAmount, "Refund for cancelled order "+orderID, &orderID); err != nil {
			return err
		}
	}
	return nil
}

// Get returns an order to its owner or an admin.
func (m *Manager) Get(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error) {
	order, err := m.load(m.store.DB(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order.UserID) {
		return nil, models.ErrForbidden
	}
	return order, nil
}

// ListForUser returns a user's orders newest first.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := preload(m.store.DB(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of user %s: %w", userID, err)
	}
	return orders, nil
}

// ListAll returns every order, optionally narrowed to one status.
func (m *Manager) ListAll(ctx context.Context, status models.OrderStatus, actor models.Actor) ([]models.Order, error) {
	if !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}
	query := preload(m.store.DB(ctx))
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("order status %q: %w", status, models.ErrInvalidStatus)
		}
		query = query.Where("status = ?", status)
	}
	var orders []models.Order
	if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (m *Manager) load(db *gorm.DB, orderID string) (*models.Order, error) {
	var order models.Order
	if err := preload(db).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFound("order", orderID)
		}
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return &order, nil
}

func preload(db *gorm.DB) *gorm.DB {
	return db.
		Preload("User").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
}

func (m *Manager) notify(n *models.Notification) {
	if m.notifier != nil {
		m.notifier.SendNotification(n)
	}
}

// NewTrackingNumber returns TRK followed by the unix time in milliseconds and four random digits.
func NewTrackingNumber() string {
	return fmt.Sprintf("TRK%d%04d", time.Now().UnixMilli(), rand.IntN(10000))
}

func validationError(err error, scope string) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := fe.Field()
		if scope == "shippingAddress" {
			field = scope + "." + field
		}
		return models.NewValidationError(field, "failed on the %s rule", fe.Tag())
	}
	return models.NewValidationError(scope, "%s", err.Error())
}
