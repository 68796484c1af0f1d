// Package wallet applies ledger entries to the cached user balance. It is the
// only writer of User.WalletBalance besides the reconciliation engine.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/events"
	"github.com/core-coin/coinstore/internal/ledger"
	"github.com/core-coin/coinstore/internal/metrics"
	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/internal/settings"
	"github.com/core-coin/coinstore/pkg/logger"
)

// RecentTransactions is the number of entries returned with the wallet summary.
const RecentTransactions = 50

var minDeposit = decimal.NewFromInt(1)

// Summary is the wallet view of a user.
type Summary struct {
	Balance      decimal.Decimal      `json:"balance"`
	Transactions []models.Transaction `json:"transactions"`
}

type Service struct {
	logger   *logger.Logger
	store    *repository.Store
	ledger   *ledger.Ledger
	settings *settings.Store
	notifier models.NotificationService
	events   models.EventPublisher
}

func NewService(store *repository.Store, ledger *ledger.Ledger, settings *settings.Store, notifier models.NotificationService, publisher models.EventPublisher, logger *logger.Logger) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		ledger:   ledger,
		settings: settings,
		notifier: notifier,
		events:   publisher,
	}
}

// GetBalance reads the cached balance. It may lag the ledger until reconciliation runs.
func (s *Service) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	user, err := loadUser(s.store.DB(ctx), userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.WalletBalance, nil
}

func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	txns, err := s.ledger.ListForUser(ctx, userID, models.TransactionFilter{Limit: RecentTransactions})
	if err != nil {
		return nil, err
	}
	return &Summary{Balance: balance, Transactions: txns}, nil
}

func (s *Service) Transactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]models.Transaction, error) {
	return s.ledger.ListForUser(ctx, userID, filter)
}

// PendingDeposits lists deposits waiting for admin review.
func (s *Service) PendingDeposits(ctx context.Context, actor models.Actor) ([]models.Transaction, error) {
	if !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}
	return s.ledger.ListAll(ctx, models.TransactionFilter{Type: models.TransactionDeposit, Status: models.TransactionPending})
}

func (s *Service) AllTransactions(ctx context.Context, actor models.Actor, filter models.TransactionFilter) ([]models.Transaction, error) {
	if !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}
	return s.ledger.ListAll(ctx, filter)
}

// Debit charges the wallet inside tx. The balance decrement, the payment entry
// and its settlement commit or roll back together with the caller's transaction.
// When the balance does not cover amount nothing is written and an
// *models.InsufficientFundsError is returned.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, userID string, amount decimal.Decimal, description string, orderID *string) (*models.Transaction, decimal.Decimal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, decimal.Zero, models.ErrInvalidAmount
	}

	var (
		txn        *models.Transaction
		newBalance decimal.Decimal
	)
	err := tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the conditional decrement is the only balance check
		result := tx.Model(&models.User{}).
			Where("id = ? AND wallet_balance >= ?", userID, amount).
			UpdateColumn("wallet_balance", gorm.Expr("wallet_balance - ?", amount))
		if result.Error != nil {
			return fmt.Errorf("failed to debit wallet of user %s: %w", userID, result.Error)
		}
		if result.RowsAffected == 0 {
			user, err := loadUser(tx, userID)
			if err != nil {
				return err
			}
			return &models.InsufficientFundsError{Required: amount, Available: user.WalletBalance}
		}

		pending, err := s.ledger.Append(ctx, tx, ledger.Entry{
			UserID:      userID,
			Type:        models.TransactionPayment,
			Amount:      amount,
			Description: description,
			OrderID:     orderID,
		})
		if err != nil {
			return err
		}
		txn, err = s.ledger.Settle(ctx, tx, pending.ID, models.TransactionCompleted, "")
		if err != nil {
			return err
		}
		newBalance, err = balanceOf(tx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			s.logger.Info("Wallet debit refused", "user", userID, "amount", amount, "error", err)
		}
		return nil, decimal.Zero, err
	}

	metrics.LedgerSettled(string(models.TransactionPayment), string(models.TransactionCompleted))
	s.logger.Info("Wallet debited", "user", userID, "amount", amount, "transaction", txn.ID, "balance", newBalance)
	return txn, newBalance, nil
}

// Refund credits the wallet inside tx with a completed refund entry.
func (s *Service) Refund(ctx context.Context, tx *gorm.DB, userID string, amount decimal.Decimal, description string, orderID *string) (*models.Transaction, decimal.Decimal, error) {
	var (
		txn        *models.Transaction
		newBalance decimal.Decimal
	)
	err := tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.ledger.Append(ctx, tx, ledger.Entry{
			UserID:      userID,
			Type:        models.TransactionRefund,
			Amount:      amount,
			Status:      models.TransactionCompleted,
			Description: description,
			OrderID:     orderID,
		})
		if err != nil {
			return err
		}
		if err := credit(tx, userID, txn.Amount); err != nil {
			return err
		}
		newBalance, err = balanceOf(tx, userID)
		return err
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	metrics.LedgerSettled(string(models.TransactionRefund), string(models.TransactionCompleted))
	s.logger.Info("Wallet refunded", "user", userID, "amount", txn.Amount, "transaction", txn.ID, "balance", newBalance)
	return txn, newBalance, nil
}

// RequestDeposit records a pending deposit. The balance changes only once an admin confirms it.
func (s *Service) RequestDeposit(ctx context.Context, req models.DepositRequest) (*models.Transaction, error) {
	if req.Amount.LessThan(minDeposit) {
		return nil, models.NewValidationError("amount", "minimum deposit is $%s", minDeposit.StringFixed(2))
	}
	amount := req.Amount.Round(2)

	meta := req.Meta
	if meta.Method == "" {
		meta.Method = models.DepositCash
	}
	meta.GiftCardType = strings.TrimSpace(meta.GiftCardType)
	meta.GiftCardImage = strings.TrimSpace(meta.GiftCardImage)

	description := fmt.Sprintf("Deposit request of $%s", amount.StringFixed(2))
	switch meta.Method {
	case models.DepositCash:
		meta.GiftCardType, meta.GiftCardImage, meta.GiftCardCode = "", "", ""
	case models.DepositGiftCard:
		if meta.GiftCardType == "" {
			return nil, models.NewValidationError("giftCardType", "gift card type is required")
		}
		if meta.GiftCardImage == "" {
			return nil, models.NewValidationError("giftCardImage", "gift card image is required")
		}
		allowed, err := s.settings.Get(ctx)
		if err != nil {
			return nil, err
		}
		if !allowed.AllowsGiftCard(meta.GiftCardType) {
			return nil, models.NewValidationError("giftCardType", "%s gift cards are not accepted", meta.GiftCardType)
		}
		description = fmt.Sprintf("%s gift card deposit of $%s", meta.GiftCardType, amount.StringFixed(2))
	default:
		return nil, models.NewValidationError("method", "unknown deposit method %q", meta.Method)
	}

	var (
		txn  *models.Transaction
		user *models.User
	)
	err := s.store.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if user, err = loadUser(tx, req.UserID); err != nil {
			return err
		}
		txn, err = s.ledger.Append(ctx, tx, ledger.Entry{
			UserID:      req.UserID,
			Type:        models.TransactionDeposit,
			Amount:      amount,
			Description: description,
			Deposit:     &meta,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Deposit requested", "user", req.UserID, "amount", amount, "method", meta.Method, "transaction", txn.ID)
	events.Emit(ctx, s.events, s.logger, models.EventDepositRequested, txn.ID, txn)
	s.notify(&models.Notification{
		Audience: models.AudienceAdmin,
		Subject:  "New deposit request",
		Message:  fmt.Sprintf("%s (%s) requested a deposit: %s", user.Name, user.Email, description),
	})
	return txn, nil
}

// ConfirmDeposit settles a pending deposit as completed and credits the user.
func (s *Service) ConfirmDeposit(ctx context.Context, transactionID string, admin models.Actor, notes string) (*models.Transaction, error) {
	return s.settleDeposit(ctx, transactionID, admin, notes, models.TransactionCompleted)
}

// RejectDeposit settles a pending deposit as failed. The balance is unchanged.
func (s *Service) RejectDeposit(ctx context.Context, transactionID string, admin models.Actor, notes string) (*models.Transaction, error) {
	return s.settleDeposit(ctx, transactionID, admin, notes, models.TransactionFailed)
}

func (s *Service) settleDeposit(ctx context.Context, transactionID string, admin models.Actor, notes string, outcome models.TransactionStatus) (*models.Transaction, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}

	var (
		txn  *models.Transaction
		user *models.User
	)
	err := s.store.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.ledger.Get(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if current.Type != models.TransactionDeposit {
			return models.NewValidationError("transaction", "%s is not a deposit", transactionID)
		}
		if txn, err = s.ledger.Settle(ctx, tx, transactionID, outcome, notes); err != nil {
			return err
		}
		if outcome == models.TransactionCompleted {
			if err := credit(tx, txn.UserID, txn.Amount); err != nil {
				return err
			}
		}
		user, err = loadUser(tx, txn.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerSettled(string(models.TransactionDeposit), string(outcome))
	s.logger.Info("Deposit settled", "transaction", txn.ID, "user", txn.UserID, "status", outcome, "by", admin.UserID, "balance", user.WalletBalance)
	events.Emit(ctx, s.events, s.logger, models.EventDepositSettled, txn.ID, txn)

	message := fmt.Sprintf("Your deposit of $%s has been confirmed. New balance: $%s", txn.Amount.StringFixed(2), user.WalletBalance.StringFixed(2))
	subject := "Deposit confirmed"
	if outcome == models.TransactionFailed {
		message = fmt.Sprintf("Your deposit of $%s has been rejected.", txn.Amount.StringFixed(2))
		subject = "Deposit rejected"
	}
	if notes != "" {
		message += "\n\nNote: " + notes
	}
	s.notify(&models.Notification{Audience: models.AudienceUser, Email: user.Email, Subject: subject, Message: message})
	return txn, nil
}

func (s *Service) notify(n *models.Notification) {
	if s.notifier != nil {
		s.notifier.SendNotification(n)
	}
}

func credit(tx *gorm.DB, userID string, amount decimal.Decimal) error {
	result := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("wallet_balance", gorm.Expr("wallet_balance + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("failed to credit wallet of user %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NotFound("user", userID)
	}
	return nil
}

func balanceOf(tx *gorm.DB, userID string) (decimal.Decimal, error) {
	user, err := loadUser(tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.WalletBalance, nil
}

func loadUser(db *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFound("user", userID)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return &user, nil
}
