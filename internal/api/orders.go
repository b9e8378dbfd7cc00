package api

import (
	"net/http"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// createOrder handles order creation from the caller's cart
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), currentUser(c).ID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listOrders handles listing the caller's orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid order ID", nil)
		return
	}

	details, err := h.orders.GetOrder(c.Request.Context(), currentUser(c).ID, orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// cancelOrder handles cancelling a pending order
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid order ID", nil)
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), currentUser(c).ID, orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
