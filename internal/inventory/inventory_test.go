package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository/repotest"
	"github.com/core-coin/coinstore/pkg/logger"
)

func TestReserveSnapshotsProduct(t *testing.T) {
	store := repotest.NewStore(t)
	guard := NewGuard(logger.NewNop())
	widget := repotest.CreateProduct(t, store, "Widget", "40.00", 10)

	var items []models.OrderItem
	err := store.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		items, err = guard.Reserve(context.Background(), tx, []models.LineItem{{ProductID: widget.ID, Quantity: 3}})
		return err
	})
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "Widget", items[0].Name)
	repotest.AmountEqual(t, "40", items[0].Price)
	repotest.AmountEqual(t, "120", items[0].Subtotal())
	assert.Equal(t, 7, repotest.Stock(t, store, widget.ID))
}

func TestReserveIsAllOrNothing(t *testing.T) {
	store := repotest.NewStore(t)
	guard := NewGuard(logger.NewNop())
	a := repotest.CreateProduct(t, store, "A", "10.00", 5)
	b := repotest.CreateProduct(t, store, "B", "10.00", 1)

	err := store.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := guard.Reserve(context.Background(), tx, []models.LineItem{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 2},
		})
		return err
	})

	var stockErr *models.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Equal(t, "B", stockErr.Name)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 2, stockErr.Requested)

	assert.Equal(t, 5, repotest.Stock(t, store, a.ID))
	assert.Equal(t, 1, repotest.Stock(t, store, b.ID))
}

func TestReserveRejectsBadInput(t *testing.T) {
	store := repotest.NewStore(t)
	guard := NewGuard(logger.NewNop())
	widget := repotest.CreateProduct(t, store, "Widget", "1.00", 1)
	hidden := repotest.CreateProduct(t, store, "Hidden", "1.00", 5)
	require.NoError(t, store.Conn.Model(hidden).Update("active", false).Error)

	cases := []struct {
		name  string
		items []models.LineItem
		want  error
	}{
		{"empty", nil, models.ErrValidation},
		{"zero quantity", []models.LineItem{{ProductID: widget.ID, Quantity: 0}}, models.ErrValidation},
		{"unknown product", []models.LineItem{{ProductID: "nope", Quantity: 1}}, models.ErrNotFound},
		{"inactive product", []models.LineItem{{ProductID: hidden.ID, Quantity: 1}}, models.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := guard.Reserve(context.Background(), tx, tc.items)
				return err
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 1, repotest.Stock(t, store, widget.ID))
	assert.Equal(t, 5, repotest.Stock(t, store, hidden.ID))
}

func TestReserveNeverOversells(t *testing.T) {
	store := repotest.NewStore(t)
	guard := NewGuard(logger.NewNop())
	widget := repotest.CreateProduct(t, store, "Widget", "1.00", 1)
	// The test store has a single connection, so the attempts commit one after
	// another. The losers are refused by the conditional update, not by a read.

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := guard.Reserve(context.Background(), tx, []models.LineItem{{ProductID: widget.ID, Quantity: 1}})
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, models.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, repotest.Stock(t, store, widget.ID))
}

func TestRelease(t *testing.T) {
	store := repotest.NewStore(t)
	guard := NewGuard(logger.NewNop())
	widget := repotest.CreateProduct(t, store, "Widget", "1.00", 2)

	err := store.WithTx(context.Background(), func(tx *gorm.DB) error {
		return guard.Release(context.Background(), tx, []models.OrderItem{
			{ProductID: widget.ID, Quantity: 3},
			{ProductID: "deleted", Quantity: 1},
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 5, repotest.Stock(t, store, widget.ID))
}
