package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	listCartItemsSQL = `SELECT product_id, quantity FROM cart_items
		WHERE user_id = $1 ORDER BY added_at, product_id`

	addCartItemSQL = `INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING product_id, quantity`

	setCartItemQuantitySQL = `UPDATE cart_items SET quantity = $3
		WHERE user_id = $1 AND product_id = $2
		RETURNING product_id, quantity`

	removeCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// List returns the user's cart lines in insertion order.
func (r *CartRepository) List(ctx context.Context, userID string) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, listCartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartItem)
}

// Add upserts a cart line, adding quantity to an existing one.
func (r *CartRepository) Add(ctx context.Context, userID, productID string, quantity int) (cart.Item, error) {
	rows, err := r.pool.Query(ctx, addCartItemSQL, userID, productID, quantity)
	if err != nil {
		return cart.Item{}, fmt.Errorf("adding %q to cart of %q: %w", productID, userID, err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	if err != nil {
		return cart.Item{}, fmt.Errorf("adding %q to cart of %q: %w", productID, userID, err)
	}
	return item, nil
}

// SetQuantity overwrites the quantity of an existing cart line.
func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int) (cart.Item, error) {
	rows, err := r.pool.Query(ctx, setCartItemQuantitySQL, userID, productID, quantity)
	if err != nil {
		return cart.Item{}, fmt.Errorf("setting quantity of %q in cart of %q: %w", productID, userID, err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	if errors.Is(err, pgx.ErrNoRows) {
		return cart.Item{}, cart.ErrItemNotFound
	}
	if err != nil {
		return cart.Item{}, fmt.Errorf("setting quantity of %q in cart of %q: %w", productID, userID, err)
	}
	return item, nil
}

// Remove deletes a cart line. Removing an absent line is not an error.
func (r *CartRepository) Remove(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, removeCartItemSQL, userID, productID); err != nil {
		return fmt.Errorf("removing %q from cart of %q: %w", productID, userID, err)
	}
	return nil
}

// Clear empties the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		item cart.Item
		qty  int32
	)
	err := row.Scan(&item.ProductID, &qty)
	item.Quantity = int(qty)
	return item, err
}
