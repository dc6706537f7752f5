package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
)

const (
	orderColumns = `id, code, user_id, subtotal, discount_amount, shipping_cost, total,
		status, coupon_id, payment_method, payment_status, created_at, updated_at`

	nextOrderCodeSQL = `SELECT nextval('order_code_seq')`

	createOrderSQL = `INSERT INTO orders (id, code, user_id, subtotal, discount_amount, shipping_cost, total,
		status, coupon_id, payment_method, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR user_id = $1)
		ORDER BY created_at DESC, id
		LIMIT $2`

	listOrderItemsSQL = `SELECT order_id, product_id, name, unit_price, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1 RETURNING ` + orderColumns

	syncOrderPaymentSQL = `UPDATE orders SET status = $2, payment_status = $3,
		payment_method = COALESCE(NULLIF($4, ''), payment_method), updated_at = NOW()
		WHERE id = $1 RETURNING ` + orderColumns
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its items in one transaction. The coupon,
// if any, is redeemed first so a coupon that ran out in the meantime aborts
// the whole order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if o.CouponID != "" {
			if err := redeemCoupon(ctx, tx, o.CouponID, o.CreatedAt); err != nil {
				return err
			}
		}

		var seq int64
		if err := tx.QueryRow(ctx, nextOrderCodeSQL).Scan(&seq); err != nil {
			return fmt.Errorf("allocating order code: %w", err)
		}
		o.Code = order.EncodeCode(seq)
		o.UpdatedAt = o.CreatedAt

		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.Code, o.UserID, o.Subtotal, o.DiscountAmount, o.ShippingCost, o.Total,
			string(o.Status), nullable(o.CouponID), o.PaymentMethod, string(o.PaymentStatus), o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, item := range o.Items {
			batch.Queue(createOrderItemSQL, o.ID, i, item.ProductID, item.Name, item.UnitPrice, item.Quantity)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting order items: %w", err)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "creating order %q", o.ID)
	}
	return nil
}

// redeemCoupon counts one use of the coupon, or reports why it cannot be
// redeemed at now.
func redeemCoupon(ctx context.Context, tx pgx.Tx, couponID string, now time.Time) error {
	tag, err := tx.Exec(ctx, redeemCouponSQL, couponID, now)
	if err != nil {
		return fmt.Errorf("redeeming coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	c, err := findCoupon(ctx, tx, getCouponByIDSQL, couponID)
	if err != nil {
		return err
	}
	if res := coupon.Validate(*c, now); !res.Valid {
		return res.Err()
	}
	return coupon.ErrUsageLimitReached
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderByIDSQL, id)
}

// List returns orders newest first, optionally restricted to one user.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, listOrdersSQL, f.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := attachItems(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus overwrites the lifecycle status of an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	return getOrder(ctx, r.pool, updateOrderStatusSQL, id, string(status))
}

// SyncPayment records the latest payment status on the order under a row
// lock, so concurrent deliveries for the same order apply one at a time.
func (r *OrderRepository) SyncPayment(ctx context.Context, id string, status payment.Status, method string) (*order.Order, error) {
	var out *order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockOrderSQL, id)
		if err != nil {
			return fmt.Errorf("locking order: %w", err)
		}
		cur, err := pgx.CollectExactlyOneRow(rows, scanOrder)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return fmt.Errorf("locking order: %w", err)
		}

		next := order.NextStatus(cur.Status, status)
		out, err = getOrder(ctx, tx, syncOrderPaymentSQL, id, string(next), string(status), method)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "syncing payment of order %q", id)
	}
	return out, nil
}

func getOrder(ctx context.Context, q querier, sql string, args ...any) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	orders := []order.Order{o}
	if err := attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// attachItems loads the items of all given orders with a single query.
func attachItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			item    order.Item
			qty     int32
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.UnitPrice, &qty); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		item.Quantity = int(qty)
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		couponID      *string
		paymentStatus string
	)
	err := row.Scan(
		&o.ID, &o.Code, &o.UserID, &o.Subtotal, &o.DiscountAmount, &o.ShippingCost, &o.Total,
		&status, &couponID, &o.PaymentMethod, &paymentStatus, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentStatus = payment.Status(paymentStatus)
	if couponID != nil {
		o.CouponID = *couponID
	}
	return o, err
}
