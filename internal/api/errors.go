package api

import (
	"errors"
	"net/http"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrCartNotFound, http.StatusNotFound},
	{service.ErrOrderNotFound, http.StatusNotFound},
	{service.ErrOrderNotEligible, http.StatusNotFound},
	{service.ErrTransactionNotFound, http.StatusNotFound},
	{service.ErrProductNotFound, http.StatusNotFound},
	{service.ErrCartItemNotFound, http.StatusNotFound},
	{service.ErrNotRefundable, http.StatusNotFound},

	{service.ErrEmptyCart, http.StatusBadRequest},
	{service.ErrInvalidPhoneFormat, http.StatusBadRequest},
	{service.ErrInvalidShippingAddress, http.StatusBadRequest},
	{service.ErrInvalidQuantity, http.StatusBadRequest},
	{service.ErrInvalidCallbackURL, http.StatusBadRequest},
	{service.ErrInvalidRefundAmount, http.StatusBadRequest},
	{service.ErrInsufficientStock, http.StatusBadRequest},
	{service.ErrInvalidSignature, http.StatusBadRequest},
	{service.ErrMalformedWebhook, http.StatusBadRequest},
	{service.ErrGatewayRejected, http.StatusBadRequest},

	{service.ErrInitializationUnavailable, http.StatusBadGateway},
	{service.ErrVerificationUnavailable, http.StatusBadGateway},
	{service.ErrRefundUnavailable, http.StatusBadGateway},
}

// statusFor maps a service error to an HTTP status
func statusFor(err error) int {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Internal errors are
// logged and not echoed to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
