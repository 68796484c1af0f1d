package orders

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/core-coin/coinstore/internal/events"
	"github.com/core-coin/coinstore/internal/inventory"
	"github.com/core-coin/coinstore/internal/ledger"
	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/repository"
	"github.com/core-coin/coinstore/internal/repository/repotest"
	"github.com/core-coin/coinstore/internal/settings"
	"github.com/core-coin/coinstore/internal/wallet"
	"github.com/core-coin/coinstore/pkg/logger"
)

type notifications struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (n *notifications) SendNotification(notification *models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

var admin = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}

type fixture struct {
	store   *repository.Store
	manager *Manager
	notes   *notifications
	user    *models.User
	a, b    *models.Product
}

func setup(t *testing.T, balance string, opts Options) *fixture {
	store := repotest.NewStore(t)
	log := logger.NewNop()
	notes := &notifications{}
	wallets := wallet.NewService(store, ledger.New(store, log), settings.NewStore(store, log), notes, events.Nop{}, log)
	return &fixture{
		store:   store,
		manager: NewManager(store, inventory.NewGuard(log), wallets, notes, events.Nop{}, opts, log),
		notes:   notes,
		user:    repotest.CreateUser(t, store, "alice", balance),
		a:       repotest.CreateProduct(t, store, "Ledger Nano", "40.00", 10),
		b:       repotest.CreateProduct(t, store, "Hoodie", "40.00", 5),
	}
}

func address() models.ShippingAddress {
	return models.ShippingAddress{
		FullName: "Alice Doe",
		Address:  "1 Main St",
		City:     "Springfield",
		State:    "IL",
		ZipCode:  "62701",
		Country:  "US",
		Phone:    "555-0100",
	}
}

func (f *fixture) walletOrder() models.CreateOrderInput {
	return models.CreateOrderInput{
		UserID:          f.user.ID,
		Items:           []models.LineItem{{ProductID: f.a.ID, Quantity: 1}, {ProductID: f.b.ID, Quantity: 2}},
		ShippingAddress: address(),
		PaymentMethod:   models.PaymentWallet,
	}
}

func (f *fixture) actor() models.Actor {
	return models.Actor{UserID: f.user.ID, Role: models.RoleUser}
}

func TestCreateWalletOrder(t *testing.T) {
	f := setup(t, "500.00", Options{})

	order, err := f.manager.CreateOrder(context.Background(), f.walletOrder())
	require.NoError(t, err)

	repotest.AmountEqual(t, "120", order.TotalAmount)
	assert.True(t, order.PaymentVerified)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, models.WalletCurrency, order.Cryptocurrency)
	assert.Equal(t, models.WalletAccount, order.WalletAddress)
	require.NotNil(t, order.User)
	assert.Equal(t, f.user.Email, order.User.Email)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Ledger Nano", order.Items[0].Name)
	require.NotNil(t, order.Items[0].Product)
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, "Order placed", order.StatusHistory[0].Note)

	repotest.AmountEqual(t, "380", repotest.Balance(t, f.store, f.user.ID))
	assert.Equal(t, 9, repotest.Stock(t, f.store, f.a.ID))
	assert.Equal(t, 3, repotest.Stock(t, f.store, f.b.ID))

	var txns []models.Transaction
	require.NoError(t, f.store.Conn.Where("user_id = ?", f.user.ID).Find(&txns).Error)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionPayment, txns[0].Type)
	assert.Equal(t, models.TransactionCompleted, txns[0].Status)
	repotest.AmountEqual(t, "120", txns[0].Amount)
	require.NotNil(t, txns[0].OrderID)
	assert.Equal(t, order.ID, *txns[0].OrderID)
	assert.Equal(t, txns[0].ID, order.TransactionHash)

	f.notes.mu.Lock()
	defer f.notes.mu.Unlock()
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, models.AudienceAdmin, f.notes.sent[0].Audience)
}

func TestFreeWalletOrderWritesNoLedgerEntry(t *testing.T) {
	f := setup(t, "10.00", Options{RefundOnCancel: true})
	sticker := repotest.CreateProduct(t, f.store, "Sticker", "0.00", 3)
	input := models.CreateOrderInput{
		UserID:          f.user.ID,
		Items:           []models.LineItem{{ProductID: sticker.ID, Quantity: 1}},
		ShippingAddress: address(),
		PaymentMethod:   models.PaymentWallet,
	}

	order, err := f.manager.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.IsZero())
	assert.True(t, order.PaymentVerified)
	assert.Empty(t, order.TransactionHash)
	assert.Equal(t, 2, repotest.Stock(t, f.store, sticker.ID))
	repotest.AmountEqual(t, "10", repotest.Balance(t, f.store, f.user.ID))
	assert.Zero(t, repotest.CountTransactions(t, f.store, f.user.ID))

	_, err = f.manager.CancelOrder(context.Background(), order.ID, f.actor())
	require.NoError(t, err)
	assert.Equal(t, 3, repotest.Stock(t, f.store, sticker.ID))
	assert.Zero(t, repotest.CountTransactions(t, f.store, f.user.ID))
}

func TestInsufficientFundsRollsBack(t *testing.T) {
	f := setup(t, "50.00", Options{})

	_, err := f.manager.CreateOrder(context.Background(), f.walletOrder())

	var fundsErr *models.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	repotest.AmountEqual(t, "120", fundsErr.Required)
	repotest.AmountEqual(t, "50", fundsErr.Available)

	assert.Equal(t, 10, repotest.Stock(t, f.store, f.a.ID))
	assert.Equal(t, 5, repotest.Stock(t, f.store, f.b.ID))
	repotest.AmountEqual(t, "50", repotest.Balance(t, f.store, f.user.ID))
	assert.Zero(t, repotest.CountTransactions(t, f.store, f.user.ID))

	var orders int64
	require.NoError(t, f.store.Conn.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
	var items int64
	require.NoError(t, f.store.Conn.Model(&models.OrderItem{}).Count(&items).Error)
	assert.Zero(t, items)
}

func TestInsufficientStockCreatesNothing(t *testing.T) {
	f := setup(t, "5000.00", Options{})
	input := f.walletOrder()
	input.Items[1].Quantity = 6

	_, err := f.manager.CreateOrder(context.Background(), input)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	assert.Equal(t, 10, repotest.Stock(t, f.store, f.a.ID))
	assert.Equal(t, 5, repotest.Stock(t, f.store, f.b.ID))
	repotest.AmountEqual(t, "5000", repotest.Balance(t, f.store, f.user.ID))
	assert.Zero(t, repotest.CountTransactions(t, f.store, f.user.ID))
}

func TestCreateOrderValidation(t *testing.T) {
	f := setup(t, "500.00", Options{})

	noItems := f.walletOrder()
	noItems.Items = nil

	badAddress := f.walletOrder()
	badAddress.ShippingAddress.City = ""

	badMethod := f.walletOrder()
	badMethod.PaymentMethod = "paypal"

	badQuantity := f.walletOrder()
	badQuantity.Items[0].Quantity = 0

	cryptoMissing := f.walletOrder()
	cryptoMissing.PaymentMethod = models.PaymentCrypto

	ghost := f.walletOrder()
	ghost.UserID = "ghost"

	for name, input := range map[string]models.CreateOrderInput{
		"no items":       noItems,
		"bad address":    badAddress,
		"bad method":     badMethod,
		"bad quantity":   badQuantity,
		"crypto missing": cryptoMissing,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.manager.CreateOrder(context.Background(), input)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}

	_, err := f.manager.CreateOrder(context.Background(), ghost)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, 10, repotest.Stock(t, f.store, f.a.ID))
	repotest.AmountEqual(t, "500", repotest.Balance(t, f.store, f.user.ID))
}

func TestCreateCryptoOrder(t *testing.T) {
	f := setup(t, "0", Options{})
	input := f.walletOrder()
	input.PaymentMethod = models.PaymentCrypto
	input.Crypto = models.CryptoPayment{Cryptocurrency: "BTC", WalletAddress: "bc1qexample", TransactionHash: "abc123"}

	order, err := f.manager.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	assert.False(t, order.PaymentVerified)
	assert.Equal(t, "BTC", order.Cryptocurrency)
	assert.Equal(t, "abc123", order.TransactionHash)
	assert.Zero(t, repotest.CountTransactions(t, f.store, f.user.ID))
	assert.Equal(t, 9, repotest.Stock(t, f.store, f.a.ID))
}

func TestCancelRestoresStock(t *testing.T) {
	f := setup(t, "0", Options{})
	widget := repotest.CreateProduct(t, f.store, "Widget", "1.00", 10)
	input := models.CreateOrderInput{
		UserID:          f.user.ID,
		Items:           []models.LineItem{{ProductID: widget.ID, Quantity: 3}},
		ShippingAddress: address(),
		PaymentMethod:   models.PaymentCrypto,
		Crypto:          models.CryptoPayment{Cryptocurrency: "ETH", WalletAddress: "0xabc"},
	}
	order, err := f.manager.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 7, repotest.Stock(t, f.store, widget.ID))

	_, err = f.manager.CancelOrder(context.Background(), order.ID, models.Actor{UserID: "someone-else", Role: models.RoleUser})
	assert.ErrorIs(t, err, models.ErrForbidden)

	cancelled, err := f.manager.CancelOrder(context.Background(), order.ID, f.actor())
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	require.Len(t, cancelled.StatusHistory, 2)
	assert.Equal(t, models.OrderCancelled, cancelled.StatusHistory[1].Status)
	assert.Equal(t, 10, repotest.Stock(t, f.store, widget.ID))

	_, err = f.manager.CancelOrder(context.Background(), order.ID, f.actor())
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, 10, repotest.Stock(t, f.store, widget.ID))

	_, err = f.manager.CancelOrder(context.Background(), "missing", f.actor())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancelKeepsWalletDebitByDefault(t *testing.T) {
	f := setup(t, "500.00", Options{})
	order, err := f.manager.CreateOrder(context.Background(), f.walletOrder())
	require.NoError(t, err)

	_, err = f.manager.CancelOrder(context.Background(), order.ID, f.actor())
	require.NoError(t, err)

	repotest.AmountEqual(t, "380", repotest.Balance(t, f.store, f.user.ID))
	assert.EqualValues(t, 1, repotest.CountTransactions(t, f.store, f.user.ID))
}

func TestCancelRefundsWhenEnabled(t *testing.T) {
	f := setup(t, "500.00", Options{RefundOnCancel: true})
	order, err := f.manager.CreateOrder(context.Background(), f.walletOrder())
	require.NoError(t, err)

	_, err = f.manager.CancelOrder(context.Background(), order.ID, f.actor())
	require.NoError(t, err)

	repotest.AmountEqual(t, "500", repotest.Balance(t, f.store, f.user.ID))
	var refund models.Transaction
	require.NoError(t, f.store.Conn.First(&refund, "type = ?", models.TransactionRefund).Error)
	assert.Equal(t, models.TransactionCompleted, refund.Status)
	repotest.AmountEqual(t, "120", refund.Amount)
	assert.Equal(t, 10, repotest.Stock(t, f.store, f.a.ID))
}

func TestUpdateOrderLifecycle(t *testing.T) {
	f := setup(t, "500.00", Options{})
	ctx := context.Background()
	order, err := f.manager.CreateOrder(ctx, f.walletOrder())
	require.NoError(t, err)

	_, err = f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: ptr(models.OrderConfirmed)}, f.actor())
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: ptr(models.OrderStatus("lost"))}, admin)
	assert.ErrorIs(t, err, models.ErrInvalidStatus)

	_, err = f.manager.UpdateOrder(ctx, "missing", models.OrderUpdate{Status: ptr(models.OrderConfirmed)}, admin)
	assert.ErrorIs(t, err, models.ErrNotFound)

	updated, err := f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: ptr(models.OrderConfirmed), Notes: ptr("gift wrap")}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, updated.Status)
	assert.Equal(t, "gift wrap", updated.Notes)
	require.Len(t, updated.StatusHistory, 2)
	assert.Equal(t, "Order status updated to confirmed", updated.StatusHistory[1].Note)
	assert.Equal(t, admin.UserID, updated.StatusHistory[1].UpdatedBy)

	// same status again appends nothing
	updated, err = f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: ptr(models.OrderConfirmed)}, admin)
	require.NoError(t, err)
	assert.Len(t, updated.StatusHistory, 2)

	shipped, err := f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: ptr(models.OrderShipped)}, admin)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^TRK\d{13}\d{4}$`), shipped.TrackingNumber)
	require.Len(t, shipped.StatusHistory, 3)
	assert.Equal(t, "Order status updated to shipped - Tracking: "+shipped.TrackingNumber, shipped.StatusHistory[2].Note)

	tracked, err := f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{TrackingNumber: ptr("UPS123")}, admin)
	require.NoError(t, err)
	assert.Equal(t, "UPS123", tracked.TrackingNumber)
	require.Len(t, tracked.StatusHistory, 4)
	assert.Equal(t, models.OrderShipped, tracked.StatusHistory[3].Status)
	assert.Equal(t, "Tracking number added: UPS123", tracked.StatusHistory[3].Note)

	_, err = f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: ptr(models.OrderCancelled)}, admin)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, 9, repotest.Stock(t, f.store, f.a.ID))
}

func TestAdminCancelFromPendingReleasesStock(t *testing.T) {
	f := setup(t, "500.00", Options{})
	ctx := context.Background()
	order, err := f.manager.CreateOrder(ctx, f.walletOrder())
	require.NoError(t, err)

	cancelled, err := f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: ptr(models.OrderCancelled), StatusNote: "out of region"}, admin)
	require.NoError(t, err)
	assert.Equal(t, "out of region", cancelled.StatusHistory[1].Note)
	assert.Equal(t, 10, repotest.Stock(t, f.store, f.a.ID))
	assert.Equal(t, 5, repotest.Stock(t, f.store, f.b.ID))

	_, err = f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: ptr(models.OrderConfirmed)}, admin)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestTransitionRefusesStaleStatus(t *testing.T) {
	f := setup(t, "500.00", Options{RefundOnCancel: true})
	ctx := context.Background()
	order, err := f.manager.CreateOrder(ctx, f.walletOrder())
	require.NoError(t, err)

	_, err = f.manager.CancelOrder(ctx, order.ID, f.actor())
	require.NoError(t, err)

	// an admin cancel that read the order while it was still pending
	err = f.store.WithTx(ctx, func(tx *gorm.DB) error {
		return f.manager.transition(tx, order.ID, models.OrderPending, map[string]interface{}{"status": models.OrderCancelled})
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.manager.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: ptr(models.OrderCancelled)}, admin)
	require.NoError(t, err)
	assert.Equal(t, 10, repotest.Stock(t, f.store, f.a.ID))
	assert.Equal(t, 5, repotest.Stock(t, f.store, f.b.ID))
	repotest.AmountEqual(t, "500", repotest.Balance(t, f.store, f.user.ID))
	assert.EqualValues(t, 2, repotest.CountTransactions(t, f.store, f.user.ID))
}

func TestGetAndList(t *testing.T) {
	f := setup(t, "500.00", Options{})
	ctx := context.Background()
	order, err := f.manager.CreateOrder(ctx, f.walletOrder())
	require.NoError(t, err)

	got, err := f.manager.Get(ctx, order.ID, f.actor())
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.manager.Get(ctx, order.ID, models.Actor{UserID: "stranger", Role: models.RoleUser})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.manager.Get(ctx, order.ID, admin)
	require.NoError(t, err)

	mine, err := f.manager.ListForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	pending, err := f.manager.ListAll(ctx, models.OrderPending, admin)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	shipped, err := f.manager.ListAll(ctx, models.OrderShipped, admin)
	require.NoError(t, err)
	assert.Empty(t, shipped)

	_, err = f.manager.ListAll(ctx, "", f.actor())
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestCompetingCheckoutsNeverOversell(t *testing.T) {
	f := setup(t, "1000.00", Options{})
	last := repotest.CreateProduct(t, f.store, "Last one", "10.00", 1)
	input := models.CreateOrderInput{
		UserID:          f.user.ID,
		Items:           []models.LineItem{{ProductID: last.ID, Quantity: 1}},
		ShippingAddress: address(),
		PaymentMethod:   models.PaymentWallet,
	}

	// The test store has a single connection, so the attempts commit one after
	// another. The losers are refused by the conditional update, not by a read.
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.manager.CreateOrder(context.Background(), input)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, models.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, repotest.Stock(t, f.store, last.ID))
	repotest.AmountEqual(t, "990", repotest.Balance(t, f.store, f.user.ID))
}

func ptr[T any](v T) *T { return &v }
