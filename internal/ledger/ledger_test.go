package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/internal/repository/repotest"
	"github.com/core-coin/coinstore/pkg/logger"
)

func setup(t *testing.T) (*Ledger, *repository.Store, *models.User) {
	store := repotest.NewStore(t)
	user := repotest.CreateUser(t, store, "alice", "0")
	return New(store, logger.NewNop()), store, user
}

func appendEntry(t *testing.T, l *Ledger, store *repository.Store, entry Entry) *models.Transaction {
	t.Helper()
	var txn *models.Transaction
	err := store.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		txn, err = l.Append(context.Background(), tx, entry)
		return err
	})
	require.NoError(t, err)
	return txn
}

func TestAppendDefaultsToPending(t *testing.T) {
	l, store, user := setup(t)

	txn := appendEntry(t, l, store, Entry{
		UserID:      user.ID,
		Type:        models.TransactionDeposit,
		Amount:      decimal.RequireFromString("25.50"),
		Description: "Deposit request of $25.50",
		Deposit:     &models.DepositMeta{Method: models.DepositCash},
	})

	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, models.TransactionPending, txn.Status)
	assert.Equal(t, models.DepositCash, txn.DepositMethod)
	assert.Nil(t, txn.SettledAt)
}

func TestAppendRejectsNonPositiveAmount(t *testing.T) {
	l, store, user := setup(t)

	for _, amount := range []string{"0", "-5", "0.004"} {
		err := store.WithTx(context.Background(), func(tx *gorm.DB) error {
			_, err := l.Append(context.Background(), tx, Entry{
				UserID: user.ID,
				Type:   models.TransactionPayment,
				Amount: decimal.RequireFromString(amount),
			})
			return err
		})
		assert.ErrorIs(t, err, models.ErrInvalidAmount, amount)
	}
	assert.Zero(t, repotest.CountTransactions(t, store, user.ID))
}

func TestAppendRoundsToCents(t *testing.T) {
	l, store, user := setup(t)

	var txn *models.Transaction
	err := store.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		txn, err = l.Append(context.Background(), tx, Entry{
			UserID: user.ID,
			Type:   models.TransactionDeposit,
			Amount: decimal.RequireFromString("0.005"),
		})
		return err
	})
	require.NoError(t, err)
	repotest.AmountEqual(t, "0.01", txn.Amount)
}

func TestSettleOnce(t *testing.T) {
	l, store, user := setup(t)
	ctx := context.Background()

	txn := appendEntry(t, l, store, Entry{UserID: user.ID, Type: models.TransactionDeposit, Amount: decimal.NewFromInt(10)})

	err := store.WithTx(ctx, func(tx *gorm.DB) error {
		settled, err := l.Settle(ctx, tx, txn.ID, models.TransactionCompleted, "cash received")
		if err != nil {
			return err
		}
		assert.Equal(t, models.TransactionCompleted, settled.Status)
		assert.Equal(t, "cash received", settled.AdminNotes)
		assert.NotNil(t, settled.SettledAt)
		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := l.Settle(ctx, tx, txn.ID, models.TransactionFailed, "")
		return err
	})
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)

	got, err := l.Get(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, got.Status)
}

func TestSettleErrors(t *testing.T) {
	l, store, user := setup(t)
	ctx := context.Background()

	txn := appendEntry(t, l, store, Entry{UserID: user.ID, Type: models.TransactionDeposit, Amount: decimal.NewFromInt(10)})

	err := store.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := l.Settle(ctx, tx, txn.ID, models.TransactionPending, "")
		return err
	})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)

	err = store.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := l.Settle(ctx, tx, "missing", models.TransactionCompleted, "")
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSumCompletedIgnoresPendingAndFailed(t *testing.T) {
	l, store, user := setup(t)
	ctx := context.Background()

	appendEntry(t, l, store, Entry{UserID: user.ID, Type: models.TransactionDeposit, Amount: decimal.NewFromInt(100), Status: models.TransactionCompleted})
	appendEntry(t, l, store, Entry{UserID: user.ID, Type: models.TransactionPayment, Amount: decimal.NewFromInt(30), Status: models.TransactionCompleted})
	appendEntry(t, l, store, Entry{UserID: user.ID, Type: models.TransactionRefund, Amount: decimal.NewFromInt(5), Status: models.TransactionCompleted})
	appendEntry(t, l, store, Entry{UserID: user.ID, Type: models.TransactionDeposit, Amount: decimal.NewFromInt(50)})
	appendEntry(t, l, store, Entry{UserID: user.ID, Type: models.TransactionDeposit, Amount: decimal.NewFromInt(70), Status: models.TransactionFailed})

	sum, count, err := l.SumCompleted(ctx, store.DB(ctx), user.ID)
	require.NoError(t, err)
	repotest.AmountEqual(t, "75", sum)
	assert.Equal(t, 3, count)
}

func TestListForUserFilters(t *testing.T) {
	l, store, user := setup(t)
	other := repotest.CreateUser(t, store, "bob", "0")
	ctx := context.Background()

	first := appendEntry(t, l, store, Entry{UserID: user.ID, Type: models.TransactionDeposit, Amount: decimal.NewFromInt(1)})
	time.Sleep(5 * time.Millisecond)
	second := appendEntry(t, l, store, Entry{UserID: user.ID, Type: models.TransactionPayment, Amount: decimal.NewFromInt(2), Status: models.TransactionCompleted})
	appendEntry(t, l, store, Entry{UserID: other.ID, Type: models.TransactionDeposit, Amount: decimal.NewFromInt(3)})

	all, err := l.ListForUser(ctx, user.ID, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	deposits, err := l.ListForUser(ctx, user.ID, models.TransactionFilter{Type: models.TransactionDeposit, Status: models.TransactionPending})
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, first.ID, deposits[0].ID)

	limited, err := l.ListForUser(ctx, user.ID, models.TransactionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	everyone, err := l.ListAll(ctx, models.TransactionFilter{Type: models.TransactionDeposit})
	require.NoError(t, err)
	require.Len(t, everyone, 2)
	for _, txn := range everyone {
		require.NotNil(t, txn.User)
	}
}
