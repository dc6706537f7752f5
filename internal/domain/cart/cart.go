// Package cart manages per-user shopping carts.
package cart

import (
	"context"

	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/product"
)

var (
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = fault.New(fault.KindInvalidInput, "quantity must be greater than 0")
	// ErrItemNotFound is returned when a product is not in the cart.
	ErrItemNotFound = fault.New(fault.KindNotFound, "cart item not found")
)

// Item is one product line in a user's cart.
type Item struct {
	ProductID string
	Quantity  int
}

// Line is a cart item resolved against the current catalog.
type Line struct {
	Item
	Product product.Product
}

// Repository persists cart items keyed by (user, product).
type Repository interface {
	List(ctx context.Context, userID string) ([]Item, error)
	// Add merges quantity into an existing line, or creates it.
	Add(ctx context.Context, userID, productID string, quantity int) (Item, error)
	// SetQuantity replaces the quantity of an existing line and fails with
	// ErrItemNotFound when there is none.
	SetQuantity(ctx context.Context, userID, productID string, quantity int) (Item, error)
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}
