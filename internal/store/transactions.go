package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// CreateTransaction inserts a new payment attempt
func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, order_id, user_id, reference, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		t.ID, t.OrderID, t.UserID, t.Reference, t.Amount, t.Currency, t.Status,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

// SetGatewayReference records the gateway's reference if none is set yet
func (s *Store) SetGatewayReference(ctx context.Context, id uuid.UUID, gatewayRef string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET gateway_reference = $1, updated_at = NOW()
		WHERE id = $2 AND gateway_reference = ''`,
		gatewayRef, id)
	return err
}

// FailPendingTransaction marks a still-pending transaction failed
func (s *Store) FailPendingTransaction(ctx context.Context, id uuid.UUID, gatewayResponse string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = $1, gateway_response = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.TransactionStatusFailed, gatewayResponse, id, models.TransactionStatusPending)
	return err
}

// GetTransactionByReference retrieves a transaction by its reference
func (s *Store) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.GetContext(ctx, &t, "SELECT * FROM transactions WHERE reference = $1", reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", reference, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransactionForUser retrieves a transaction by ID owned by a user
func (s *Store) GetTransactionForUser(ctx context.Context, id uuid.UUID, userID int64) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.GetContext(ctx, &t,
		"SELECT * FROM transactions WHERE id = $1 AND user_id = $2", id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransactionsByUser retrieves a user's transactions, newest first
func (s *Store) ListTransactionsByUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.SelectContext(ctx, &txs,
		"SELECT * FROM transactions WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return txs, err
}

// ListTransactionsByOrder retrieves every attempt made against an order
func (s *Store) ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.SelectContext(ctx, &txs,
		"SELECT * FROM transactions WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return txs, err
}

// SettleTransaction applies a settlement under a row lock (FOR UPDATE).
// The transaction and its order are updated in the same database
// transaction; a terminal transaction is returned as-is with applied=false.
func (s *Store) SettleTransaction(ctx context.Context, settlement models.Settlement) (*models.Transaction, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var current models.Transaction
	err = tx.GetContext(ctx, &current,
		"SELECT * FROM transactions WHERE reference = $1 FOR UPDATE", settlement.Reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("transaction %s: %w", settlement.Reference, ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock transaction: %w", err)
	}

	next, applied := current.Apply(settlement)
	if !applied {
		return &current, false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, payment_method = $2, gateway_reference = $3,
		    gateway_response = $4, paid_at = $5, updated_at = $6
		WHERE id = $7 AND status = $8`,
		next.Status, next.PaymentMethod, next.GatewayReference,
		next.GatewayResponse, next.PaidAt, next.UpdatedAt,
		next.ID, models.TransactionStatusPending)
	if err != nil {
		return nil, false, fmt.Errorf("failed to settle transaction: %w", err)
	}

	if next.Status == models.TransactionStatusSuccess {
		_, err = tx.ExecContext(ctx,
			"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
			models.OrderStatusPaid, next.OrderID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to mark order paid: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &next, true, nil
}
