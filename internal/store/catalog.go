package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListActiveProducts retrieves all products that are for sale
func (s *Store) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE is_active ORDER BY created_at DESC")
	return products, err
}

// DecrementStock takes qty units of a product in one conditional update.
// Stock never goes negative: a shortfall leaves the row untouched.
func (s *Store) DecrementStock(ctx context.Context, productID int64, qty int) (int, error) {
	var remaining int
	err := s.db.GetContext(ctx, &remaining, `
		UPDATE products
		SET stock_quantity = stock_quantity - $1, updated_at = NOW()
		WHERE id = $2 AND stock_quantity >= $1
		RETURNING stock_quantity`,
		qty, productID)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to decrement stock: %w", err)
	}

	var available int
	err = s.db.GetContext(ctx, &available, "SELECT stock_quantity FROM products WHERE id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return available, ErrInsufficientStock
}
