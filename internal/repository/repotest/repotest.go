// Package repotest opens throwaway in-memory databases for component tests.
package repotest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/pkg/logger"
)

// NewStore returns a migrated store backed by a private in-memory SQLite database.
func NewStore(t *testing.T) *repository.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormLogger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and private to this test
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, repository.Migrate(db))

	store := repository.FromDB(db, logger.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// CreateUser inserts a user holding the given cached balance.
func CreateUser(t *testing.T, store *repository.Store, name string, balance string) *models.User {
	t.Helper()

	user := &models.User{
		Name:          name,
		Email:         name + "@example.com",
		Role:          models.RoleUser,
		WalletBalance: decimal.RequireFromString(balance),
	}
	require.NoError(t, store.Conn.Create(user).Error)
	return user
}

// CreateAdmin inserts an administrator.
func CreateAdmin(t *testing.T, store *repository.Store) *models.User {
	t.Helper()

	admin := &models.User{Name: "admin", Email: "admin@example.com", Role: models.RoleAdmin}
	require.NoError(t, store.Conn.Create(admin).Error)
	return admin
}

// CreateProduct inserts an active product.
func CreateProduct(t *testing.T, store *repository.Store, name, price string, stock int) *models.Product {
	t.Helper()

	product := &models.Product{
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
	require.NoError(t, store.Conn.Create(product).Error)
	return product
}

// Stock reads the current stock of a product.
func Stock(t *testing.T, store *repository.Store, productID string) int {
	t.Helper()

	var product models.Product
	require.NoError(t, store.Conn.First(&product, "id = ?", productID).Error)
	return product.Stock
}

// Balance reads the cached wallet balance of a user.
func Balance(t *testing.T, store *repository.Store, userID string) decimal.Decimal {
	t.Helper()

	var user models.User
	require.NoError(t, store.Conn.First(&user, "id = ?", userID).Error)
	return user.WalletBalance
}

// AmountEqual fails the test unless got equals want numerically.
func AmountEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "amount: want %s, got %s", want, got)
}

// CountTransactions counts every ledger entry of a user.
func CountTransactions(t *testing.T, store *repository.Store, userID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, store.Conn.Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}
