package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_percent, valid_until, max_uses, used_count, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	getCouponByIDSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE id = $1`

	createCouponSQL = `INSERT INTO coupons (id, code, discount_percent, valid_until, max_uses, used_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	importCouponSQL = `INSERT INTO coupons (id, code, discount_percent, valid_until, max_uses, used_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
		ON CONFLICT ((UPPER(code))) DO NOTHING`

	listCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons ORDER BY created_at DESC, code`

	// updateCouponSQL refuses to cap a coupon below its current redemptions.
	// used_count is never written here.
	updateCouponSQL = `UPDATE coupons
		SET code = $2, discount_percent = $3, valid_until = $4, max_uses = $5
		WHERE id = $1 AND ($5::integer IS NULL OR used_count <= $5::integer)
		RETURNING used_count`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	// redeemCouponSQL only counts a use while the coupon is still
	// redeemable, so concurrent checkouts cannot exceed max_uses.
	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND valid_until > $2 AND (max_uses IS NULL OR used_count < max_uses)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCoupon(ctx, r.pool, getCouponByCodeSQL, coupon.NormalizeCode(code))
}

// GetByID looks up a coupon by id.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return findCoupon(ctx, r.pool, getCouponByIDSQL, id)
}

// List returns all coupons, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, _ := r.pool.Query(ctx, listCouponsSQL)
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Create inserts a new coupon. A code that differs from an existing one only
// by case is a duplicate.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	maxUses, err := maxUsesArg(c.MaxUses)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, createCouponSQL,
		c.ID, c.Code, c.DiscountPercent, c.ValidUntil, maxUses, c.UsedCount, c.CreatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update stores the editable attributes of c and refreshes c.UsedCount.
// A cap below the stored used count yields coupon.ErrMaxUsesBelowUsed even
// when a redemption raced the caller's read.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	maxUses, err := maxUsesArg(c.MaxUses)
	if err != nil {
		return err
	}
	var used int32
	err = r.pool.QueryRow(ctx, updateCouponSQL,
		c.ID, c.Code, c.DiscountPercent, c.ValidUntil, maxUses,
	).Scan(&used)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := r.GetByID(ctx, c.ID); err != nil {
			return err
		}
		return coupon.ErrMaxUsesBelowUsed
	case pgErrorCode(err) == codeUniqueViolation:
		return coupon.ErrDuplicateCode
	case err != nil:
		return errors.Wrapf(err, "update coupon %s", c.ID)
	}
	c.UsedCount = int(used)
	return nil
}

// Delete removes a coupon. Coupons referenced by orders are kept and
// reported as coupon.ErrInUse.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	switch {
	case pgErrorCode(err) == codeForeignKeyViolation:
		return coupon.ErrInUse
	case err != nil:
		return errors.Wrapf(err, "delete coupon %s", id)
	case tag.RowsAffected() == 0:
		return coupon.ErrNotFound
	}
	return nil
}

// Import inserts coupons in one batch, skipping codes that already exist.
// It returns how many were inserted.
func (r *CouponRepository) Import(ctx context.Context, coupons []coupon.Coupon) (int, error) {
	batch := &pgx.Batch{}
	for _, c := range coupons {
		maxUses, err := maxUsesArg(c.MaxUses)
		if err != nil {
			return 0, errors.Wrapf(err, "import coupon %s", c.Code)
		}
		batch.Queue(importCouponSQL,
			c.ID, coupon.NormalizeCode(c.Code), c.DiscountPercent, c.ValidUntil, maxUses, c.CreatedAt,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	inserted := 0
	for _, c := range coupons {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("importing coupon %q: %w", c.Code, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// maxUsesArg narrows a cap to the INTEGER column without wrapping.
func maxUsesArg(v *int) (*int32, error) {
	if v == nil {
		return nil, nil
	}
	if *v < 0 || *v > coupon.MaxUsesLimit {
		return nil, coupon.ErrInvalidCoupon
	}
	n := int32(*v)
	return &n, nil
}

func findCoupon(ctx context.Context, q querier, sql string, arg string) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c       coupon.Coupon
		maxUses *int32
		used    int32
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountPercent, &c.ValidUntil, &maxUses, &used, &c.CreatedAt)
	if maxUses != nil {
		v := int(*maxUses)
		c.MaxUses = &v
	}
	c.UsedCount = int(used)
	return c, err
}
