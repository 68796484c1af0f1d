// Package ledger records wallet transactions. Entries are append-only: the only
// mutation is the single move out of pending into completed or failed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/pkg/logger"
)

// Entry is a new ledger line. Status defaults to pending.
type Entry struct {
	UserID      string
	Type        models.TransactionType
	Amount      decimal.Decimal
	Status      models.TransactionStatus
	Description string
	OrderID     *string
	Deposit     *models.DepositMeta
}

type Ledger struct {
	logger *logger.Logger
	store  *repository.Store
}

func New(store *repository.Store, logger *logger.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Append writes a new entry inside tx.
func (l *Ledger) Append(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	// amounts are stored in cents, so the check applies to the rounded value
	entry.Amount = entry.Amount.Round(2)
	if !entry.Amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if !entry.Type.Valid() {
		return nil, fmt.Errorf("transaction type %q: %w", entry.Type, models.ErrInvalidStatus)
	}
	if entry.Status == "" {
		entry.Status = models.TransactionPending
	}
	if !entry.Status.Valid() {
		return nil, fmt.Errorf("transaction status %q: %w", entry.Status, models.ErrInvalidStatus)
	}

	txn := &models.Transaction{
		UserID:      entry.UserID,
		Type:        entry.Type,
		Amount:      entry.Amount,
		Status:      entry.Status,
		Description: entry.Description,
		OrderID:     entry.OrderID,
	}
	if entry.Status.Terminal() {
		now := time.Now().UTC()
		txn.SettledAt = &now
	}
	if entry.Deposit != nil {
		txn.DepositMethod = entry.Deposit.Method
		txn.GiftCardType = entry.Deposit.GiftCardType
		txn.GiftCardImage = entry.Deposit.GiftCardImage
		txn.GiftCardCode = entry.Deposit.GiftCardCode
	}

	if err := tx.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, fmt.Errorf("failed to append %s transaction: %w", entry.Type, err)
	}
	l.logger.Debug("Ledger entry appended", "id", txn.ID, "user", txn.UserID, "type", txn.Type, "status", txn.Status, "amount", txn.Amount)
	return txn, nil
}

// Settle moves a pending entry to a terminal status. A second settle of the
// same entry fails with ErrAlreadyTerminal.
func (l *Ledger) Settle(ctx context.Context, tx *gorm.DB, id string, outcome models.TransactionStatus, notes string) (*models.Transaction, error) {
	if !outcome.Terminal() {
		return nil, fmt.Errorf("settle outcome %q: %w", outcome, models.ErrInvalidStatus)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     outcome,
		"settled_at": now,
	}
	if notes != "" {
		updates["admin_notes"] = notes
	}

	db := tx.WithContext(ctx)
	result := db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionPending).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to settle transaction %s: %w", id, result.Error)
	}

	txn, err := l.get(db, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("transaction %s is %s: %w", id, txn.Status, models.ErrAlreadyTerminal)
	}
	l.logger.Debug("Ledger entry settled", "id", id, "status", outcome)
	return txn, nil
}

// Get loads one entry using tx, or the base connection when tx is nil.
func (l *Ledger) Get(ctx context.Context, tx *gorm.DB, id string) (*models.Transaction, error) {
	if tx == nil {
		tx = l.store.DB(ctx)
	}
	return l.get(tx.WithContext(ctx), id)
}

func (l *Ledger) get(db *gorm.DB, id string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := db.First(&txn, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFound("transaction", id)
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return &txn, nil
}

// ListForUser returns a user's entries newest first.
func (l *Ledger) ListForUser(ctx context.Context, userID string, filter models.TransactionFilter) ([]models.Transaction, error) {
	query := applyFilter(l.store.DB(ctx).Where("user_id = ?", userID), filter)
	var txns []models.Transaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions of user %s: %w", userID, err)
	}
	return txns, nil
}

// ListAll returns entries of every user with the owner attached.
func (l *Ledger) ListAll(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	query := applyFilter(l.store.DB(ctx).Preload("User"), filter)
	var txns []models.Transaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

func applyFilter(query *gorm.DB, filter models.TransactionFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return query.Order("created_at DESC").Order("id DESC")
}

// SumCompleted folds every completed entry of a user into a balance and
// returns it together with the number of entries processed.
func (l *Ledger) SumCompleted(ctx context.Context, tx *gorm.DB, userID string) (decimal.Decimal, int, error) {
	var txns []models.Transaction
	err := tx.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.TransactionCompleted).
		Find(&txns).Error
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to load ledger of user %s: %w", userID, err)
	}

	sum := decimal.Zero
	for i := range txns {
		sum = sum.Add(txns[i].Effect())
	}
	return sum, len(txns), nil
}
