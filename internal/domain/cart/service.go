package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
)

// Service exposes cart operations to authorized callers.
type Service struct {
	items    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(items Repository, products product.Repository) *Service {
	return &Service{items: items, products: products}
}

// Add puts quantity units of a product in the caller's cart, merging with an
// existing line for the same product.
func (s *Service) Add(ctx context.Context, p auth.Principal, productID string, quantity int) (Item, error) {
	if err := auth.Authorize(p, auth.ActionManageCart).Err(); err != nil {
		return Item{}, err
	}
	if quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}

	prod, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return Item{}, errors.Wrap(err, "get product")
	}
	if !prod.Sellable() {
		return Item{}, product.ErrNotFound
	}

	item, err := s.items.Add(ctx, p.UserID, productID, quantity)
	if err != nil {
		return Item{}, errors.Wrap(err, "add cart item")
	}
	return item, nil
}

// SetQuantity replaces the quantity of a product already in the caller's
// cart.
func (s *Service) SetQuantity(ctx context.Context, p auth.Principal, productID string, quantity int) (Item, error) {
	if err := auth.Authorize(p, auth.ActionManageCart).Err(); err != nil {
		return Item{}, err
	}
	if quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	item, err := s.items.SetQuantity(ctx, p.UserID, productID, quantity)
	if err != nil {
		return Item{}, errors.Wrap(err, "set cart item quantity")
	}
	return item, nil
}

// Clear empties the caller's cart.
func (s *Service) Clear(ctx context.Context, p auth.Principal) error {
	if err := auth.Authorize(p, auth.ActionManageCart).Err(); err != nil {
		return err
	}
	if err := s.items.Clear(ctx, p.UserID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Remove deletes a product line from the caller's cart.
func (s *Service) Remove(ctx context.Context, p auth.Principal, productID string) error {
	if err := auth.Authorize(p, auth.ActionManageCart).Err(); err != nil {
		return err
	}
	if err := s.items.Remove(ctx, p.UserID, productID); err != nil {
		return errors.Wrap(err, "remove cart item")
	}
	return nil
}

// View returns the caller's cart resolved against current prices. Lines whose
// product has since been removed from the catalog are skipped.
func (s *Service) View(ctx context.Context, p auth.Principal) ([]Line, error) {
	if err := auth.Authorize(p, auth.ActionManageCart).Err(); err != nil {
		return nil, err
	}

	items, err := s.items.List(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := product.Index(fetched)

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		prod, ok := byID[it.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, Line{Item: it, Product: prod})
	}
	return lines, nil
}
