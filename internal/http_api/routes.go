package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/coinstore/internal/metrics"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.router.GET("/metrics", metrics.Handler())

	api := s.router.Group("/api/v1")
	api.GET("/products", s.listProducts)
	api.GET("/products/:id", s.getProduct)
	api.GET("/settings", s.getSettings)
	api.GET("/wallet/giftcard-types", s.giftCardTypes)

	auth := api.Group("", s.authenticate())
	auth.POST("/orders", s.idempotent("orders"), s.createOrder)
	auth.GET("/orders", s.myOrders)
	auth.GET("/orders/:id", s.getOrder)
	auth.POST("/orders/:id/cancel", s.cancelOrder)
	auth.GET("/wallet", s.walletSummary)
	auth.GET("/wallet/transactions", s.myTransactions)
	auth.POST("/wallet/deposit", s.requestCashDeposit)
	auth.POST("/wallet/deposit/giftcard", s.requestGiftCardDeposit)
	auth.GET("/payment-requests", s.myPaymentRequests)
	auth.POST("/payment-requests/:id/accept", s.acceptPaymentRequest)
	auth.POST("/payment-requests/:id/reject", s.rejectPaymentRequest)
	auth.POST("/support/tickets", s.openTicket)
	auth.GET("/support/tickets", s.myTickets)
	auth.GET("/support/tickets/:id", s.getTicket)
	auth.POST("/support/tickets/:id/messages", s.replyTicket)
	auth.POST("/support/tickets/:id/close", s.closeTicket)

	admin := auth.Group("/admin", requireAdmin())
	admin.GET("/orders", s.allOrders)
	admin.PUT("/orders/:id", s.updateOrder)
	admin.GET("/deposits/pending", s.pendingDeposits)
	admin.POST("/deposits/:id/confirm", s.confirmDeposit)
	admin.POST("/deposits/:id/reject", s.rejectDeposit)
	admin.GET("/transactions", s.allTransactions)
	admin.GET("/users/balances", s.userBalances)
	admin.POST("/users/:id/recalculate-balance", s.recalculateBalance)
	admin.GET("/reconciliation", s.reconciliationReport)
	admin.POST("/payment-requests", s.createPaymentRequest)
	admin.GET("/payment-requests", s.allPaymentRequests)
	admin.DELETE("/payment-requests/:id", s.deletePaymentRequest)
	admin.PUT("/settings", s.updateSettings)
	admin.POST("/products", s.createProduct)
	admin.PUT("/products/:id", s.updateProduct)
	admin.DELETE("/products/:id", s.deleteProduct)
	admin.GET("/support/tickets", s.allTickets)
	admin.GET("/support/statistics", s.ticketStatistics)
	admin.PUT("/support/tickets/:id/status", s.setTicketStatus)
	admin.PUT("/support/tickets/:id/priority", s.setTicketPriority)
	admin.PUT("/support/tickets/:id/assign", s.assignTicket)
	admin.PUT("/support/tickets/:id/notes", s.setTicketNotes)
}
