package http_api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/coinstore/internal/models"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyTerminal),
		errors.Is(err, models.ErrDuplicateRequest):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err as {"success": false, "error": ...}. Refusals carry the
// amounts the client needs to show what is missing.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"success": false, "error": err.Error()}

	var funds *models.InsufficientFundsError
	if errors.As(err, &funds) {
		body["required"] = funds.Required
		body["available"] = funds.Available
		body["shortfall"] = funds.Shortfall()
	}
	var stock *models.InsufficientStockError
	if errors.As(err, &stock) {
		body["product"] = stock.ProductID
		body["available"] = stock.Available
		body["requested"] = stock.Requested
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		body["error"] = "Internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *HTTPServer) badRequest(c *gin.Context, err error) {
	s.logger.Debug("Invalid request body", "error", err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request body: " + err.Error(),
	})
}
