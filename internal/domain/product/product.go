// Package product holds the read-only catalog view used by carts and checkout.
package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/fault"
)

// ErrNotFound is returned for unknown and deactivated products alike, so
// customers cannot tell retired SKUs apart from unknown ones.
var ErrNotFound = fault.New(fault.KindNotFound, "product not found")

// Product is a catalog entry. Price is in the store currency.
type Product struct {
	ID       string
	SKU      string
	Name     string
	Price    decimal.Decimal
	Category string
	Stock    int
	Active   bool
}

// Sellable reports whether the product may be added to carts and orders.
func (p Product) Sellable() bool {
	return p.Active && p.Price.IsPositive()
}

// Index maps products by ID.
func Index(products []Product) map[string]Product {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}

// Repository reads the catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs omits unknown ids from the result.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
