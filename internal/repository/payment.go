package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/payment"
)

const (
	paymentColumns = `id, external_id, preference_id, order_id, amount, currency,
		status, method, transaction_id, raw, created_at, updated_at`

	// upsertPaymentSQL keeps the original creation time and overwrites
	// everything the gateway reports.
	upsertPaymentSQL = `INSERT INTO payments (external_id, preference_id, order_id, amount, currency,
		status, method, transaction_id, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id) DO UPDATE SET
			preference_id = COALESCE(NULLIF(EXCLUDED.preference_id, ''), payments.preference_id),
			order_id = EXCLUDED.order_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			method = EXCLUDED.method,
			transaction_id = EXCLUDED.transaction_id,
			raw = EXCLUDED.raw,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	getPaymentByExternalIDSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE external_id = $1`

	listPaymentsByOrderSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE order_id = $1 ORDER BY created_at, id`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Upsert inserts or refreshes a payment keyed by its external id.
func (r *PaymentRepository) Upsert(ctx context.Context, p *payment.Payment) error {
	var raw []byte
	if len(p.Raw) > 0 {
		raw = p.Raw
	}
	err := r.pool.QueryRow(ctx, upsertPaymentSQL,
		p.ExternalID, p.PreferenceID, p.OrderID, p.Amount, p.Currency,
		string(p.Status), p.Method, p.TransactionID, raw,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == codeForeignKeyViolation {
			return errors.Wrapf(payment.ErrOrderNotFound, "payment %q order %q", p.ExternalID, p.OrderID)
		}
		return fmt.Errorf("upserting payment %q: %w", p.ExternalID, err)
	}
	return nil
}

// GetByExternalID returns a payment by its gateway or preference id.
func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, getPaymentByExternalIDSQL, externalID)
	if err != nil {
		return nil, fmt.Errorf("getting payment %q: %w", externalID, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment %q: %w", externalID, err)
	}
	return &p, nil
}

// ListByOrder returns every payment recorded for an order, oldest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]payment.Payment, error) {
	rows, err := r.pool.Query(ctx, listPaymentsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing payments of order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		status string
	)
	err := row.Scan(
		&p.ID, &p.ExternalID, &p.PreferenceID, &p.OrderID, &p.Amount, &p.Currency,
		&status, &p.Method, &p.TransactionID, &p.Raw, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Status = payment.Status(status)
	return p, err
}
