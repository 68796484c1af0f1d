package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/coinstore/internal/models"
)

func (s *HTTPServer) allOrders(c *gin.Context) {
	orders, err := s.services.Orders.ListAll(c.Request.Context(), models.OrderStatus(c.Query("status")), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *HTTPServer) updateOrder(c *gin.Context) {
	var req models.OrderUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	order, err := s.services.Orders.UpdateOrder(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order updated successfully",
		"order":   order,
	})
}

func (s *HTTPServer) pendingDeposits(c *gin.Context) {
	deposits, err := s.services.Wallet.PendingDeposits(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": deposits})
}

func (s *HTTPServer) confirmDeposit(c *gin.Context) {
	var req AdminNotesRequest
	if err := bindOptional(c, &req); err != nil {
		s.badRequest(c, err)
		return
	}
	txn, err := s.services.Wallet.ConfirmDeposit(c.Request.Context(), c.Param("id"), actorFrom(c), req.AdminNotes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Deposit confirmed",
		"transaction": txn,
	})
}

func (s *HTTPServer) rejectDeposit(c *gin.Context) {
	var req AdminNotesRequest
	if err := bindOptional(c, &req); err != nil {
		s.badRequest(c, err)
		return
	}
	txn, err := s.services.Wallet.RejectDeposit(c.Request.Context(), c.Param("id"), actorFrom(c), req.AdminNotes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Deposit rejected",
		"transaction": txn,
	})
}

func (s *HTTPServer) allTransactions(c *gin.Context) {
	txns, err := s.services.Wallet.AllTransactions(c.Request.Context(), actorFrom(c), transactionFilter(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func (s *HTTPServer) userBalances(c *gin.Context) {
	balances, err := s.services.Users.ListBalances(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": balances})
}

func (s *HTTPServer) recalculateBalance(c *gin.Context) {
	result, err := s.services.Reconcile.Recalculate(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":               true,
		"message":               "Balance recalculated",
		"oldBalance":            result.OldBalance,
		"newBalance":            result.NewBalance,
		"difference":            result.Difference,
		"transactionsProcessed": result.TransactionsProcessed,
	})
}

func (s *HTTPServer) reconciliationReport(c *gin.Context) {
	report, err := s.services.Reconcile.Report(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discrepancies": report})
}

func (s *HTTPServer) createPaymentRequest(c *gin.Context) {
	var req models.NewPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	request, err := s.services.PaymentRequests.Create(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":        true,
		"message":        "Payment request created successfully",
		"paymentRequest": request,
	})
}

func (s *HTTPServer) allPaymentRequests(c *gin.Context) {
	requests, err := s.services.PaymentRequests.ListAll(c.Request.Context(), models.PaymentRequestStatus(c.Query("status")), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (s *HTTPServer) deletePaymentRequest(c *gin.Context) {
	if err := s.services.PaymentRequests.Delete(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment request deleted"})
}

func (s *HTTPServer) updateSettings(c *gin.Context) {
	var req models.SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	settings, err := s.services.Settings.Update(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Settings updated successfully",
		"settings": settings,
	})
}

func (s *HTTPServer) createProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	product, err := s.services.Catalog.Create(c.Request.Context(), &models.Product{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Price:       req.Price,
		Stock:       req.Stock,
	}, actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (s *HTTPServer) updateProduct(c *gin.Context) {
	var req models.ProductUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	product, err := s.services.Catalog.Update(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (s *HTTPServer) deleteProduct(c *gin.Context) {
	deleted, err := s.services.Catalog.Delete(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	message := "Product deleted"
	if !deleted {
		message = "Product has orders and was deactivated"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "deleted": deleted})
}
