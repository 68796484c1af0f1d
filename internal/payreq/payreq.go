// Package payreq implements admin-proposed charges that a user has to accept
// before any money moves.
package payreq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/events"
	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/internal/wallet"
	"github.com/core-coin/coinstore/pkg/logger"
)

type Flow struct {
	logger   *logger.Logger
	store    *repository.Store
	wallet   *wallet.Service
	notifier models.NotificationService
	events   models.EventPublisher
}

func NewFlow(store *repository.Store, wallet *wallet.Service, notifier models.NotificationService, publisher models.EventPublisher, logger *logger.Logger) *Flow {
	return &Flow{
		logger:   logger,
		store:    store,
		wallet:   wallet,
		notifier: notifier,
		events:   publisher,
	}
}

// Create stores a pending request against the owner of the order.
func (f *Flow) Create(ctx context.Context, input models.NewPaymentRequest, admin models.Actor) (*models.PaymentRequest, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}
	input.Amount = input.Amount.Round(2)
	if !input.Amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		return nil, models.NewValidationError("reason", "reason is required")
	}

	var request *models.PaymentRequest
	err := f.store.WithTx(ctx, func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Select("id", "user_id").First(&order, "id = ?", input.OrderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NotFound("order", input.OrderID)
			}
			return fmt.Errorf("failed to get order %s: %w", input.OrderID, err)
		}

		request = &models.PaymentRequest{
			OrderID:     order.ID,
			UserID:      order.UserID,
			Amount:      input.Amount,
			Reason:      input.Reason,
			Description: input.Description,
			CreatedBy:   admin.UserID,
			Status:      models.PaymentRequestPending,
		}
		if err := tx.Create(request).Error; err != nil {
			return fmt.Errorf("failed to create payment request: %w", err)
		}
		var err error
		request, err = load(tx, request.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info("Payment request created", "id", request.ID, "order", request.OrderID, "user", request.UserID, "amount", request.Amount)
	events.Emit(ctx, f.events, f.logger, models.EventPaymentRequestCreated, request.ID, request)
	if request.User != nil {
		f.notify(&models.Notification{
			Audience: models.AudienceUser,
			Email:    request.User.Email,
			Subject:  "Payment request for your order",
			Message: fmt.Sprintf("A payment of $%s was requested for order %s: %s\n\n%s",
				request.Amount.StringFixed(2), request.OrderID, request.Reason, request.Description),
		})
	}
	return request, nil
}

// Accept charges the wallet and marks the request accepted. On insufficient
// funds the request stays pending and the error carries the shortfall.
func (f *Flow) Accept(ctx context.Context, requestID string, actor models.Actor) (*models.AcceptResult, error) {
	var result *models.AcceptResult
	err := f.store.WithTx(ctx, func(tx *gorm.DB) error {
		request, err := f.pendingFor(tx, requestID, actor)
		if err != nil {
			return err
		}

		orderID := request.OrderID
		description := fmt.Sprintf("Payment fee for order %s: %s", orderID, request.Reason)
		txn, balance, err := f.wallet.Debit(ctx, tx, request.UserID, request.Amount, description, &orderID)
		if err != nil {
			return err
		}
		if err := respond(tx, request, models.PaymentRequestAccepted); err != nil {
			return err
		}
		result = &models.AcceptResult{PaymentRequest: request, Transaction: txn, NewBalance: balance}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			f.logger.Info("Payment request not covered", "id", requestID, "user", actor.UserID, "error", err)
		}
		return nil, err
	}

	f.logger.Info("Payment request accepted", "id", requestID, "user", actor.UserID, "balance", result.NewBalance)
	f.responded(ctx, result.PaymentRequest)
	return result, nil
}

// Reject closes the request without any ledger effect.
func (f *Flow) Reject(ctx context.Context, requestID string, actor models.Actor) (*models.PaymentRequest, error) {
	var request *models.PaymentRequest
	err := f.store.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if request, err = f.pendingFor(tx, requestID, actor); err != nil {
			return err
		}
		return respond(tx, request, models.PaymentRequestRejected)
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info("Payment request rejected", "id", requestID, "user", actor.UserID)
	f.responded(ctx, request)
	return request, nil
}

// Delete removes a request that has not been answered yet.
func (f *Flow) Delete(ctx context.Context, requestID string, admin models.Actor) error {
	if !admin.IsAdmin() {
		return models.ErrForbidden
	}
	return f.store.WithTx(ctx, func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND status = ?", requestID, models.PaymentRequestPending).Delete(&models.PaymentRequest{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete payment request %s: %w", requestID, result.Error)
		}
		if result.RowsAffected > 0 {
			f.logger.Info("Payment request deleted", "id", requestID, "by", admin.UserID)
			return nil
		}
		request, err := load(tx, requestID)
		if err != nil {
			return err
		}
		return fmt.Errorf("payment request %s is %s: %w", requestID, request.Status, models.ErrAlreadyTerminal)
	})
}

func (f *Flow) ListForUser(ctx context.Context, userID string) ([]models.PaymentRequest, error) {
	var requests []models.PaymentRequest
	err := f.store.DB(ctx).
		Preload("Order").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests of user %s: %w", userID, err)
	}
	return requests, nil
}

func (f *Flow) ListAll(ctx context.Context, status models.PaymentRequestStatus, admin models.Actor) ([]models.PaymentRequest, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}
	query := f.store.DB(ctx).Preload("User").Preload("Order")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var requests []models.PaymentRequest
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	return requests, nil
}

func (f *Flow) pendingFor(tx *gorm.DB, requestID string, actor models.Actor) (*models.PaymentRequest, error) {
	request, err := load(tx, requestID)
	if err != nil {
		return nil, err
	}
	if request.UserID != actor.UserID {
		return nil, models.ErrForbidden
	}
	if request.Status.Terminal() {
		return nil, fmt.Errorf("payment request %s is %s: %w", requestID, request.Status, models.ErrAlreadyTerminal)
	}
	return request, nil
}

func (f *Flow) responded(ctx context.Context, request *models.PaymentRequest) {
	events.Emit(ctx, f.events, f.logger, models.EventPaymentRequestResponded, request.ID, request)
	f.notify(&models.Notification{
		Audience: models.AudienceAdmin,
		Subject:  "Payment request " + string(request.Status),
		Message: fmt.Sprintf("Payment request %s of $%s for order %s was %s",
			request.ID, request.Amount.StringFixed(2), request.OrderID, request.Status),
	})
}

func (f *Flow) notify(n *models.Notification) {
	if f.notifier != nil {
		f.notifier.SendNotification(n)
	}
}

// respond moves a pending request to its final status. The status guard makes
// a concurrent second response fail instead of double charging.
func respond(tx *gorm.DB, request *models.PaymentRequest, status models.PaymentRequestStatus) error {
	now := time.Now().UTC()
	result := tx.Model(&models.PaymentRequest{}).
		Where("id = ? AND status = ?", request.ID, models.PaymentRequestPending).
		Updates(map[string]interface{}{"status": status, "responded_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to update payment request %s: %w", request.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment request %s was already answered: %w", request.ID, models.ErrAlreadyTerminal)
	}
	request.Status = status
	request.RespondedAt = &now
	return nil
}

func load(db *gorm.DB, requestID string) (*models.PaymentRequest, error) {
	var request models.PaymentRequest
	if err := db.Preload("User").First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFound("payment request", requestID)
		}
		return nil, fmt.Errorf("failed to get payment request %s: %w", requestID, err)
	}
	return &request, nil
}
