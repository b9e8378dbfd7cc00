package api

import (
	"net/http"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// initializePayment opens a gateway checkout session for a pending order
func (h *Handler) initializePayment(c *gin.Context) {
	var req service.InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	res, err := h.payments.Initialize(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// verifyPayment settles a reference from the gateway's verdict
func (h *Handler) verifyPayment(c *gin.Context) {
	res, err := h.payments.Verify(c.Request.Context(), currentUser(c).ID, c.Param("reference"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      res.Transaction.Status,
		"applied":     res.Applied,
		"transaction": res.Transaction,
	})
}

// refundPayment refunds a successful transaction
func (h *Handler) refundPayment(c *gin.Context) {
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	res, err := h.payments.Refund(c.Request.Context(), currentUser(c).ID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// paymentMethods lists the supported channels
func (h *Handler) paymentMethods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"methods": h.payments.PaymentMethods()})
}

// listTransactions lists the caller's payment attempts
func (h *Handler) listTransactions(c *gin.Context) {
	txs, err := h.payments.ListTransactions(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// getTransaction returns one of the caller's payment attempts
func (h *Handler) getTransaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid transaction ID", nil)
		return
	}

	txn, err := h.payments.GetTransaction(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}
