package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	userIDHeader  = "X-User-ID"
	userKey       = "user"
	maxBodyBytes  = 1 << 20
	defaultHeader = "X-Paystack-Signature"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies wires the handler to the services
type Dependencies struct {
	Users           service.UserStore
	Orders          *service.OrderService
	Payments        *service.PaymentService
	Webhooks        *service.WebhookService
	Catalog         *service.CatalogService
	SignatureHeader string
	ReadyChecks     map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	users           service.UserStore
	orders          *service.OrderService
	payments        *service.PaymentService
	webhooks        *service.WebhookService
	catalog         *service.CatalogService
	signatureHeader string
	readyChecks     map[string]Pinger
	logger          *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	header := deps.SignatureHeader
	if header == "" {
		header = defaultHeader
	}
	return &Handler{
		users:           deps.Users,
		orders:          deps.Orders,
		payments:        deps.Payments,
		webhooks:        deps.Webhooks,
		catalog:         deps.Catalog,
		signatureHeader: header,
		readyChecks:     deps.ReadyChecks,
		logger:          util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// The gateway calls this without user credentials; the signature is the auth.
	v1.POST("/payments/webhook", h.paymentWebhook)

	v1.GET("/products", h.listProducts)
	v1.GET("/products/:id", h.getProduct)
	v1.GET("/payments/methods", h.paymentMethods)

	authed := v1.Group("", h.RequireUser())
	{
		authed.GET("/cart", h.getCart)
		authed.POST("/cart/items", h.addCartItem)
		authed.PUT("/cart/items/:product_id", h.updateCartItem)
		authed.DELETE("/cart/items/:product_id", h.removeCartItem)
		authed.POST("/cart/clear", h.clearCart)

		authed.POST("/orders", h.createOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.POST("/orders/:id/cancel", h.cancelOrder)

		authed.POST("/payments/initialize", h.initializePayment)
		authed.GET("/payments/verify/:reference", h.verifyPayment)
		authed.POST("/payments/refunds", h.refundPayment)
		authed.GET("/transactions", h.listTransactions)
		authed.GET("/transactions/:id", h.getTransaction)
	}
}

// RequireUser resolves the caller from the header set by the upstream
// authentication proxy.
func (h *Handler) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(userIDHeader), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		user, err := h.users.GetUserByID(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(userKey).(*models.User)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(gin.H, len(h.readyChecks))
	ready := true
	for name, dep := range h.readyChecks {
		if err := dep.Ping(ctx); err != nil {
			ready = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
