package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository/repotest"
	"github.com/core-coin/coinstore/pkg/logger"
)

var (
	admin    = models.Actor{UserID: "admin", Role: models.RoleAdmin}
	customer = models.Actor{UserID: "user", Role: models.RoleUser}
)

func ptr[T any](v T) *T { return &v }

func TestCreateAndList(t *testing.T) {
	store := repotest.NewStore(t)
	c := New(store, logger.NewNop())
	ctx := context.Background()

	_, err := c.Create(ctx, &models.Product{Name: "Widget", Price: decimal.NewFromInt(5)}, customer)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = c.Create(ctx, &models.Product{Name: "Broken", Price: decimal.NewFromInt(5), Stock: -1}, admin)
	assert.ErrorIs(t, err, models.ErrValidation)

	widget, err := c.Create(ctx, &models.Product{Name: "Widget", Description: "A small widget", Category: "tools", Price: decimal.RequireFromString("19.999"), Stock: 4}, admin)
	require.NoError(t, err)
	assert.True(t, widget.Active)
	repotest.AmountEqual(t, "20", widget.Price)

	_, err = c.Create(ctx, &models.Product{Name: "Gadget", Category: "toys", Price: decimal.NewFromInt(1), Stock: 1}, admin)
	require.NoError(t, err)

	tools, err := c.List(ctx, Filter{Category: "tools"})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, widget.ID, tools[0].ID)

	found, err := c.List(ctx, Filter{Search: "SMALL"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestUpdate(t *testing.T) {
	store := repotest.NewStore(t)
	c := New(store, logger.NewNop())
	ctx := context.Background()
	widget := repotest.CreateProduct(t, store, "Widget", "10.00", 3)

	updated, err := c.Update(ctx, widget.ID, models.ProductUpdate{Stock: ptr(12), Active: ptr(false)}, admin)
	require.NoError(t, err)
	assert.Equal(t, 12, updated.Stock)
	assert.False(t, updated.Active)

	active, err := c.List(ctx, Filter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = c.Update(ctx, widget.ID, models.ProductUpdate{Stock: ptr(-2)}, admin)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 12, repotest.Stock(t, store, widget.ID))

	_, err = c.Update(ctx, "missing", models.ProductUpdate{Name: ptr("x")}, admin)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = c.Update(ctx, widget.ID, models.ProductUpdate{Name: ptr("x")}, customer)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestDeleteKeepsOrderedProducts(t *testing.T) {
	store := repotest.NewStore(t)
	c := New(store, logger.NewNop())
	ctx := context.Background()
	buyer := repotest.CreateUser(t, store, "buyer", "0")
	unsold := repotest.CreateProduct(t, store, "Unsold", "3.00", 1)
	sold := repotest.CreateProduct(t, store, "Sold", "4.00", 1)

	order := &models.Order{
		UserID:        buyer.ID,
		TotalAmount:   decimal.NewFromInt(4),
		PaymentMethod: models.PaymentWallet,
		Status:        models.OrderPending,
		Items:         []models.OrderItem{{ProductID: sold.ID, Name: sold.Name, Price: sold.Price, Quantity: 1}},
	}
	require.NoError(t, store.Conn.Create(order).Error)

	_, err := c.Delete(ctx, unsold.ID, customer)
	assert.ErrorIs(t, err, models.ErrForbidden)

	deleted, err := c.Delete(ctx, unsold.ID, admin)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = c.Get(ctx, unsold.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	deleted, err = c.Delete(ctx, sold.ID, admin)
	require.NoError(t, err)
	assert.False(t, deleted)
	kept, err := c.Get(ctx, sold.ID)
	require.NoError(t, err)
	assert.False(t, kept.Active)

	_, err = c.Delete(ctx, "missing", admin)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
