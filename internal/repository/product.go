package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/product"
)

const selectProductSQL = `SELECT id, sku, name, price, category, stock, active FROM products`

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository reads the catalog. Inactive rows are returned as-is and
// filtered by the callers.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, _ := r.pool.Query(ctx, selectProductSQL+` WHERE id = $1`, id)
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, product.ErrNotFound
	case err != nil:
		return nil, errors.Wrapf(err, "get product %s", id)
	}
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, _ := r.pool.Query(ctx, selectProductSQL+` WHERE id = ANY($1) ORDER BY sku`, ids)
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	return products, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		stock int32
	)
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Category, &stock, &p.Active); err != nil {
		return product.Product{}, err
	}
	p.Stock = int(stock)
	return p, nil
}
