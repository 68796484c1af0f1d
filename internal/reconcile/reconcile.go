// Package reconcile rebuilds cached wallet balances from the ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/core-coin/coinstore/internal/events"
	"github.com/core-coin/coinstore/internal/ledger"
	"github.com/core-coin/coinstore/internal/metrics"
	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/pkg/logger"
)

// Result describes one recalculation.
type Result struct {
	UserID                string          `json:"userId"`
	OldBalance            decimal.Decimal `json:"oldBalance"`
	NewBalance            decimal.Decimal `json:"newBalance"`
	Difference            decimal.Decimal `json:"difference"`
	TransactionsProcessed int             `json:"transactionsProcessed"`
}

// Discrepancy is a user whose cached balance disagrees with the ledger.
type Discrepancy struct {
	UserID        string          `json:"userId"`
	Email         string          `json:"email"`
	CachedBalance decimal.Decimal `json:"cachedBalance"`
	LedgerBalance decimal.Decimal `json:"ledgerBalance"`
	Difference    decimal.Decimal `json:"difference"`
}

type Engine struct {
	logger *logger.Logger
	store  *repository.Store
	ledger *ledger.Ledger
	events models.EventPublisher
}

func NewEngine(store *repository.Store, ledger *ledger.Ledger, publisher models.EventPublisher, logger *logger.Logger) *Engine {
	return &Engine{store: store, ledger: ledger, events: publisher, logger: logger}
}

// Recalculate overwrites the cached balance with the sum of completed ledger
// entries. Running it twice without ledger activity reports no difference.
func (e *Engine) Recalculate(ctx context.Context, userID string, admin models.Actor) (*Result, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrForbidden
	}

	var result *Result
	err := e.store.WithTx(ctx, func(tx *gorm.DB) error {
		var user models.User
		if err := lockUser(tx, &user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NotFound("user", userID)
			}
			return fmt.Errorf("failed to get user %s: %w", userID, err)
		}

		balance, count, err := e.ledger.SumCompleted(ctx, tx, userID)
		if err != nil {
			return err
		}
		balance = balance.Round(2)

		if err := tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumn("wallet_balance", balance).Error; err != nil {
			return fmt.Errorf("failed to store balance of user %s: %w", userID, err)
		}

		result = &Result{
			UserID:                userID,
			OldBalance:            user.WalletBalance,
			NewBalance:            balance,
			Difference:            balance.Sub(user.WalletBalance),
			TransactionsProcessed: count,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Difference.IsZero() {
		metrics.BalanceCorrected()
		e.logger.Warn("Balance corrected from ledger", "user", userID, "old", result.OldBalance, "new", result.NewBalance, "difference", result.Difference)
	} else {
		e.logger.Info("Balance verified against ledger", "user", userID, "balance", result.NewBalance, "transactions", result.TransactionsProcessed)
	}
	events.Emit(ctx, e.events, e.logger, models.EventBalanceRecalculated, userID, result)
	return result, nil
}

// lockUser reads the user row FOR UPDATE. Wallet credits and debits update the
// same row, so none of them can commit between the ledger sum and the write.
func lockUser(tx *gorm.DB, user *models.User, userID string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(user, "id = ?", userID)
}

// Report lists every user whose cached balance differs from the ledger. It changes nothing.
func (e *Engine) Report(ctx context.Context) ([]Discrepancy, error) {
	db := e.store.DB(ctx)

	var users []models.User
	if err := db.Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var report []Discrepancy
	for _, user := range users {
		balance, _, err := e.ledger.SumCompleted(ctx, db, user.ID)
		if err != nil {
			return nil, err
		}
		if balance.Equal(user.WalletBalance) {
			continue
		}
		report = append(report, Discrepancy{
			UserID:        user.ID,
			Email:         user.Email,
			CachedBalance: user.WalletBalance,
			LedgerBalance: balance,
			Difference:    balance.Sub(user.WalletBalance),
		})
	}
	return report, nil
}
