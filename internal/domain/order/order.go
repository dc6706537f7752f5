package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/payment"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = fault.New(fault.KindNotFound, "order not found")
	// ErrInvalidStatus is returned for unknown order status values.
	ErrInvalidStatus = fault.New(fault.KindInvalidInput, "invalid order status")
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusPaid       Status = "PAID"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// ParseStatus validates an order status value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return st, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
}

// Order is a placed customer order. Items are a snapshot taken at checkout
// and are never modified afterwards.
type Order struct {
	ID             string
	Code           string
	UserID         string
	Items          []Item
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
	Status         Status
	CouponID       string
	PaymentMethod  string
	PaymentStatus  payment.Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is an order line with the product name and price captured at order
// time.
type Item struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns UnitPrice * Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Filter narrows order listings. An empty UserID lists all orders.
type Filter struct {
	UserID string
	Limit  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists o with its items and assigns o.Code. When o.CouponID is
	// set, the coupon is redeemed in the same transaction; a coupon that is
	// no longer redeemable at o.CreatedAt fails the whole creation with a
	// coupon error.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	// SyncPayment mirrors the latest payment status onto the order and moves
	// its lifecycle status according to NextStatus, under a row lock.
	SyncPayment(ctx context.Context, id string, status payment.Status, method string) (*Order, error)
}
