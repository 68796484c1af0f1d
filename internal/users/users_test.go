package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository/repotest"
	"github.com/core-coin/coinstore/pkg/logger"
)

func TestCreateAndFind(t *testing.T) {
	store := repotest.NewStore(t)
	dir := NewDirectory(store, logger.NewNop())
	ctx := context.Background()

	user, err := dir.Create(ctx, NewUser{Name: "Alice", Email: " Alice@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "alice@example.com", user.Email)
	repotest.AmountEqual(t, "0", user.WalletBalance)

	found, err := dir.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = dir.Create(ctx, NewUser{Name: "Other", Email: "alice@example.com"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = dir.Create(ctx, NewUser{Name: "Bad", Email: "not-an-email"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = dir.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListBalances(t *testing.T) {
	store := repotest.NewStore(t)
	dir := NewDirectory(store, logger.NewNop())
	repotest.CreateUser(t, store, "poor", "5")
	repotest.CreateUser(t, store, "rich", "500")
	repotest.CreateAdmin(t, store)

	balances, err := dir.ListBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "rich", balances[0].Name)
	repotest.AmountEqual(t, "500", balances[0].WalletBalance)
	assert.Equal(t, "poor", balances[1].Name)

	emails, err := dir.AdminEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin@example.com"}, emails)
}
