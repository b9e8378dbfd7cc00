package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxReferenceAttempts = 3

// PaymentService drives payment attempts against the gateway
type PaymentService struct {
	store          Store
	gateway        PaymentGateway
	reconciler     *Reconciler
	eventPublisher EventPublisher
	currency       string
	logger         *zap.Logger
	now            func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(store Store, gw PaymentGateway, reconciler *Reconciler, eventPublisher EventPublisher, currency string) *PaymentService {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &PaymentService{
		store:          store,
		gateway:        gw,
		reconciler:     reconciler,
		eventPublisher: eventPublisher,
		currency:       currency,
		logger:         util.GetLogger(),
		now:            time.Now,
	}
}

// InitializeRequest starts a payment for one of the caller's orders
type InitializeRequest struct {
	OrderID     uuid.UUID              `json:"order_id" binding:"required"`
	CallbackURL string                 `json:"callback_url"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// InitializeResult is what the client needs to redirect the payer
type InitializeResult struct {
	AuthorizationURL string    `json:"authorization_url"`
	AccessCode       string    `json:"access_code"`
	Reference        string    `json:"reference"`
	TransactionID    uuid.UUID `json:"transaction_id"`
}

// VerifyResult is the transaction after a verification attempt
type VerifyResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Applied     bool                `json:"applied"`
	Shortfalls  []StockShortfall    `json:"-"`
}

// RefundRequest refunds a successful transaction, fully unless Amount is set
type RefundRequest struct {
	Reference    string              `json:"transaction_reference" binding:"required"`
	Amount       decimal.NullDecimal `json:"amount"`
	CustomerNote string              `json:"customer_note"`
	MerchantNote string              `json:"merchant_note"`
}

// RefundResult is the accepted refund
type RefundResult struct {
	Reference string          `json:"reference"`
	RefundID  int64           `json:"refund_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Full      bool            `json:"full"`
}

// PaymentMethod describes a channel shown at checkout
type PaymentMethod struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var paymentMethods = []PaymentMethod{
	{Code: "card", Name: "Card", Description: "Visa, Mastercard and Verve cards"},
	{Code: "mobile_money", Name: "Mobile Money", Description: "MTN MoMo, Vodafone Cash and AirtelTigo Money"},
	{Code: "bank_transfer", Name: "Bank Transfer", Description: "Pay by transfer to a one-time account"},
	{Code: "ussd", Name: "USSD", Description: "Dial a short code from any phone"},
	{Code: "qr", Name: "QR", Description: "Scan with a banking or GhQR app"},
}

// PaymentMethods lists the channels offered at checkout
func (ps *PaymentService) PaymentMethods() []PaymentMethod {
	return paymentMethods
}

// Initialize creates a pending transaction for a pending order and opens a
// checkout session with the gateway. If the gateway call does not succeed
// the transaction is marked failed and the order stays pending.
func (ps *PaymentService) Initialize(ctx context.Context, user *models.User, req *InitializeRequest) (*InitializeResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Initialize",
		attribute.String("order_id", req.OrderID.String()),
		attribute.Int64("user_id", user.ID))
	defer span.End()

	if req.CallbackURL != "" && !validCallbackURL(req.CallbackURL) {
		util.PaymentInitializationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCallbackURL
	}

	order, err := ps.store.GetOrderForUser(ctx, req.OrderID, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		util.PaymentInitializationsTotal.WithLabelValues("not_eligible").Inc()
		return nil, ErrOrderNotEligible
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.Status != models.OrderStatusPending {
		util.PaymentInitializationsTotal.WithLabelValues("not_eligible").Inc()
		return nil, ErrOrderNotEligible
	}

	txn, err := ps.createTransaction(ctx, order)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("reference", txn.Reference))

	metadata := make(map[string]interface{}, len(req.Metadata)+4)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["order_id"] = order.ID.String()
	metadata["order_number"] = order.OrderNumber
	metadata["user_id"] = user.ID
	metadata["transaction_id"] = txn.ID.String()

	session, err := ps.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       user.Email,
		Amount:      txn.Amount,
		Reference:   txn.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, ps.failInitialization(ctx, txn, err)
	}

	// Session reference is written once; later settlements never overwrite it.
	if err := ps.store.SetGatewayReference(ctx, txn.ID, session.AccessCode); err != nil {
		ps.logger.Error("Failed to store gateway reference",
			zap.String("reference", txn.Reference),
			zap.Error(err))
	}

	util.PaymentInitializationsTotal.WithLabelValues("success").Inc()
	ps.logger.Info("Payment initialized",
		zap.String("order_id", order.ID.String()),
		zap.String("reference", txn.Reference),
		zap.String("amount", txn.Amount.StringFixed(2)))

	event := &models.PaymentInitializedEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypePaymentInitialized),
		OrderID:       order.ID,
		TransactionID: txn.ID,
		Reference:     txn.Reference,
		Amount:        txn.Amount,
	}
	if err := ps.eventPublisher.PublishPaymentInitialized(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentInitialized event", zap.Error(err))
	}

	return &InitializeResult{
		AuthorizationURL: session.AuthorizationURL,
		AccessCode:       session.AccessCode,
		Reference:        txn.Reference,
		TransactionID:    txn.ID,
	}, nil
}

// createTransaction inserts a pending attempt, regenerating the reference on
// the rare collision.
func (ps *PaymentService) createTransaction(ctx context.Context, order *models.Order) (*models.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		txn := &models.Transaction{
			ID:        uuid.New(),
			OrderID:   order.ID,
			UserID:    order.UserID,
			Reference: models.NewTransactionReference(ps.now()),
			Amount:    order.TotalAmount,
			Currency:  ps.currency,
			Status:    models.TransactionStatusPending,
		}
		err := ps.store.CreateTransaction(ctx, txn)
		if err == nil {
			return txn, nil
		}
		if !errors.Is(err, store.ErrDuplicateReference) {
			return nil, fmt.Errorf("failed to create transaction: %w", err)
		}
		lastErr = err
		ps.logger.Warn("Transaction reference collision, regenerating",
			zap.String("reference", txn.Reference),
			zap.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("failed to create transaction: %w", lastErr)
}

// failInitialization records the gateway failure on the transaction and maps
// the error for the caller.
func (ps *PaymentService) failInitialization(ctx context.Context, txn *models.Transaction, cause error) error {
	var rejected *gateway.RejectedError
	outcome := "unavailable"
	if errors.As(cause, &rejected) {
		outcome = "rejected"
	}
	util.PaymentInitializationsTotal.WithLabelValues(outcome).Inc()

	ps.logger.Warn("Payment initialization failed",
		zap.String("reference", txn.Reference),
		zap.String("outcome", outcome),
		zap.Error(cause))

	// The caller may already be gone; the failure must still be recorded.
	if err := ps.store.FailPendingTransaction(context.WithoutCancel(ctx), txn.ID, cause.Error()); err != nil {
		ps.logger.Error("Failed to mark transaction failed",
			zap.String("reference", txn.Reference),
			zap.Error(err))
	}

	if rejected != nil {
		return fmt.Errorf("%w: %s", ErrGatewayRejected, rejected.Message)
	}
	return fmt.Errorf("%w: %v", ErrInitializationUnavailable, cause)
}

// Verify asks the gateway for the verdict on one of the caller's references
// and settles it. A transaction already in success is returned without a
// gateway call. Gateway trouble never changes the transaction.
func (ps *PaymentService) Verify(ctx context.Context, userID int64, reference string) (*VerifyResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Verify", attribute.String("reference", reference))
	defer span.End()

	txn, err := ps.store.GetTransactionByReference(ctx, reference)
	if errors.Is(err, store.ErrNotFound) || (err == nil && txn.UserID != userID) {
		util.VerificationsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	if txn.Status == models.TransactionStatusSuccess {
		util.VerificationsTotal.WithLabelValues("already_settled").Inc()
		return &VerifyResult{Transaction: txn}, nil
	}

	res, err := ps.gateway.Verify(ctx, reference)
	if err != nil {
		var rejected *gateway.RejectedError
		if errors.As(err, &rejected) {
			util.VerificationsTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, rejected.Message)
		}
		util.VerificationsTotal.WithLabelValues("unavailable").Inc()
		ps.logger.Warn("Payment verification unavailable",
			zap.String("reference", reference),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	if !res.Amount.Equal(txn.Amount) {
		ps.logger.Warn("Gateway amount differs from transaction amount",
			zap.String("reference", reference),
			zap.String("expected", txn.Amount.StringFixed(2)),
			zap.String("reported", res.Amount.StringFixed(2)))
	}

	status, ok := SettlementStatus(res.Status)
	if !ok {
		util.VerificationsTotal.WithLabelValues("no_verdict").Inc()
		ps.logger.Info("Gateway has no verdict yet",
			zap.String("reference", reference),
			zap.String("gateway_status", res.Status))
		return &VerifyResult{Transaction: txn}, nil
	}

	settled, err := ps.reconciler.Settle(ctx, models.Settlement{
		Reference:        reference,
		Status:           status,
		Channel:          res.Channel,
		GatewayReference: strconv.FormatInt(res.ID, 10),
		RawPayload:       res.Raw,
	}, SourceVerify)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.VerificationsTotal.WithLabelValues(settled.Transaction.Status).Inc()
	return &VerifyResult{
		Transaction: settled.Transaction,
		Applied:     settled.Applied,
		Shortfalls:  settled.Shortfalls,
	}, nil
}

// SettlementStatus maps a gateway transaction status to a settlement status.
// It returns false while the gateway is still waiting on the payer.
func SettlementStatus(gatewayStatus string) (string, bool) {
	switch strings.ToLower(gatewayStatus) {
	case "success":
		return models.TransactionStatusSuccess, true
	case "failed", "reversed":
		return models.TransactionStatusFailed, true
	case "abandoned":
		return models.TransactionStatusAbandoned, true
	default:
		return "", false
	}
}

// Refund returns money for one of the caller's successful transactions.
// A full refund moves the order from paid to refunded.
func (ps *PaymentService) Refund(ctx context.Context, userID int64, req *RefundRequest) (*RefundResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Refund", attribute.String("reference", req.Reference))
	defer span.End()

	txn, err := ps.store.GetTransactionByReference(ctx, req.Reference)
	if errors.Is(err, store.ErrNotFound) {
		util.RefundsTotal.WithLabelValues("not_refundable").Inc()
		return nil, ErrNotRefundable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn.UserID != userID || txn.Status != models.TransactionStatusSuccess {
		util.RefundsTotal.WithLabelValues("not_refundable").Inc()
		return nil, ErrNotRefundable
	}

	amount := txn.Amount
	if req.Amount.Valid {
		if !req.Amount.Decimal.IsPositive() || req.Amount.Decimal.GreaterThan(txn.Amount) {
			util.RefundsTotal.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidRefundAmount
		}
		amount = req.Amount.Decimal
	}
	full := amount.Equal(txn.Amount)

	res, err := ps.gateway.Refund(ctx, gateway.RefundRequest{
		Reference:    txn.Reference,
		Amount:       req.Amount,
		CustomerNote: req.CustomerNote,
		MerchantNote: req.MerchantNote,
	})
	if err != nil {
		var rejected *gateway.RejectedError
		if errors.As(err, &rejected) {
			util.RefundsTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, rejected.Message)
		}
		util.RefundsTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", ErrRefundUnavailable, err)
	}

	if full {
		if _, err := ps.store.TransitionOrderStatus(ctx, txn.OrderID, models.OrderStatusPaid, models.OrderStatusRefunded); err != nil {
			ps.logger.Error("Failed to mark order refunded",
				zap.String("order_id", txn.OrderID.String()),
				zap.Error(err))
		}
	}

	util.RefundsTotal.WithLabelValues("success").Inc()
	ps.logger.Info("Refund accepted",
		zap.String("reference", txn.Reference),
		zap.String("amount", amount.StringFixed(2)),
		zap.Bool("full", full))

	event := &models.PaymentRefundedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentRefunded),
		OrderID:   txn.OrderID,
		Reference: txn.Reference,
		Amount:    amount,
	}
	if err := ps.eventPublisher.PublishPaymentRefunded(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentRefunded event", zap.Error(err))
	}

	return &RefundResult{
		Reference: txn.Reference,
		RefundID:  res.ID,
		Status:    res.Status,
		Amount:    amount,
		Full:      full,
	}, nil
}

// ListTransactions returns the caller's payment attempts, newest first
func (ps *PaymentService) ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	return ps.store.ListTransactionsByUser(ctx, userID)
}

// GetTransaction returns one of the caller's payment attempts
func (ps *PaymentService) GetTransaction(ctx context.Context, userID int64, id uuid.UUID) (*models.Transaction, error) {
	txn, err := ps.store.GetTransactionForUser(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	return txn, err
}

func validCallbackURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
