package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// paymentWebhook receives gateway callbacks. The body is read raw because
// the signature covers the exact bytes sent. Any non-2xx makes the gateway
// retry delivery.
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		badRequest(c, "Unreadable body", nil)
		return
	}

	if _, err := h.webhooks.Ingest(c.Request.Context(), body, c.GetHeader(h.signatureHeader)); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
