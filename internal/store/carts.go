package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// GetCartByUserID loads a user's cart with its lines
func (s *Store) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE user_id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &cart.Items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cart.ID); err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrCreateCart returns the user's cart, creating an empty one if needed
func (s *Store) GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return s.GetCartByUserID(ctx, userID)
}

// AddCartItem adds qty of a product, incrementing an existing line
func (s *Store) AddCartItem(ctx context.Context, cartID, productID int64, qty int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		cartID, productID, qty)
	return err
}

// SetCartItemQuantity overwrites the quantity of an existing line
func (s *Store) SetCartItemQuantity(ctx context.Context, cartID, productID int64, qty int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE cart_id = $2 AND product_id = $3",
		qty, cartID, productID)
	if err != nil {
		return err
	}
	return expectRow(res, "cart item")
}

// RemoveCartItem deletes one line
func (s *Store) RemoveCartItem(ctx context.Context, cartID, productID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	if err != nil {
		return err
	}
	return expectRow(res, "cart item")
}

// ClearCart removes every line of a cart
func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
