package http_api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/core-coin/coinstore/internal/catalog"
	"github.com/core-coin/coinstore/internal/models"
)

// CreateOrderRequest represents the JSON body for checkout
type CreateOrderRequest struct {
	Items           []models.LineItem      `json:"items" binding:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   models.PaymentMethod   `json:"paymentMethod" binding:"required"`
	Cryptocurrency  string                 `json:"cryptocurrency"`
	WalletAddress   string                 `json:"walletAddress"`
	TransactionHash string                 `json:"transactionHash"`
}

// DepositRequest represents the JSON body for a cash deposit
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// GiftCardDepositRequest represents the JSON body for a gift card deposit.
// GiftCardImage is a reference to an already uploaded proof image.
type GiftCardDepositRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	GiftCardType  string          `json:"giftCardType" binding:"required"`
	GiftCardImage string          `json:"giftCardImage"`
	GiftCardCode  string          `json:"giftCardCode"`
}

// AdminNotesRequest is the optional body of deposit confirm and reject
type AdminNotesRequest struct {
	AdminNotes string `json:"adminNotes"`
}

// ProductRequest represents the JSON body for creating a product
type ProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" binding:"min=0"`
}

// bindOptional binds a JSON body that may be absent.
func bindOptional(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func transactionFilter(c *gin.Context) models.TransactionFilter {
	filter := models.TransactionFilter{
		Status: models.TransactionStatus(c.Query("status")),
		Type:   models.TransactionType(c.Query("type")),
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	return filter
}

// listProducts is a handler for the public catalog.
func (s *HTTPServer) listProducts(c *gin.Context) {
	products, err := s.services.Catalog.List(c.Request.Context(), catalog.Filter{
		Category:   c.Query("category"),
		Search:     c.Query("search"),
		ActiveOnly: true,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (s *HTTPServer) getProduct(c *gin.Context) {
	product, err := s.services.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (s *HTTPServer) getSettings(c *gin.Context) {
	settings, err := s.services.Settings.Get(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *HTTPServer) giftCardTypes(c *gin.Context) {
	types, err := s.services.Settings.GiftCardTypes(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"giftCardTypes": types})
}

// createOrder is a handler for checkout.
func (s *HTTPServer) createOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	actor := actorFrom(c)
	order, err := s.services.Orders.CreateOrder(c.Request.Context(), models.CreateOrderInput{
		UserID:          actor.UserID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Crypto: models.CryptoPayment{
			Cryptocurrency:  req.Cryptocurrency,
			WalletAddress:   req.WalletAddress,
			TransactionHash: req.TransactionHash,
		},
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	response := gin.H{
		"success": true,
		"message": "Order created successfully",
		"order":   order,
	}
	if order.PaymentMethod == models.PaymentWallet {
		balance, err := s.services.Wallet.GetBalance(c.Request.Context(), actor.UserID)
		if err == nil {
			response["newBalance"] = balance
		}
	}
	c.JSON(http.StatusCreated, response)
}

func (s *HTTPServer) myOrders(c *gin.Context) {
	orders, err := s.services.Orders.ListForUser(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	order, err := s.services.Orders.Get(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	order, err := s.services.Orders.CancelOrder(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order cancelled successfully",
		"order":   order,
	})
}

func (s *HTTPServer) walletSummary(c *gin.Context) {
	summary, err := s.services.Wallet.Summary(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *HTTPServer) myTransactions(c *gin.Context) {
	txns, err := s.services.Wallet.Transactions(c.Request.Context(), actorFrom(c).UserID, transactionFilter(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func (s *HTTPServer) requestCashDeposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.requestDeposit(c, models.DepositRequest{
		UserID: actorFrom(c).UserID,
		Amount: req.Amount,
		Meta:   models.DepositMeta{Method: models.DepositCash},
	})
}

func (s *HTTPServer) requestGiftCardDeposit(c *gin.Context) {
	var req GiftCardDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.requestDeposit(c, models.DepositRequest{
		UserID: actorFrom(c).UserID,
		Amount: req.Amount,
		Meta: models.DepositMeta{
			Method:        models.DepositGiftCard,
			GiftCardType:  req.GiftCardType,
			GiftCardImage: req.GiftCardImage,
			GiftCardCode:  req.GiftCardCode,
		},
	})
}

func (s *HTTPServer) requestDeposit(c *gin.Context, req models.DepositRequest) {
	txn, err := s.services.Wallet.RequestDeposit(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"message":     "Deposit request submitted. Awaiting admin confirmation.",
		"transaction": txn,
	})
}

func (s *HTTPServer) myPaymentRequests(c *gin.Context) {
	requests, err := s.services.PaymentRequests.ListForUser(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (s *HTTPServer) acceptPaymentRequest(c *gin.Context) {
	result, err := s.services.PaymentRequests.Accept(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Payment completed successfully",
		"paymentRequest": result.PaymentRequest,
		"transaction":    result.Transaction,
		"newBalance":     result.NewBalance,
	})
}

func (s *HTTPServer) rejectPaymentRequest(c *gin.Context) {
	request, err := s.services.PaymentRequests.Reject(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Payment request rejected",
		"paymentRequest": request,
	})
}
