package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/payment"
)

const defaultListLimit = 100

// PaymentLister lists the gateway payments recorded against an order.
type PaymentLister interface {
	ListByOrder(ctx context.Context, orderID string) ([]payment.Payment, error)
}

// Service encapsulates order reads and administrative status changes.
type Service struct {
	orders   Repository
	payments PaymentLister
	tasks    notify.Publisher
	now      func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository, payments PaymentLister, tasks notify.Publisher) *Service {
	return &Service{
		orders:   orders,
		payments: payments,
		tasks:    tasks,
		now:      time.Now,
	}
}

// Get returns an order visible to p.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if err := auth.AuthorizeOwner(p, o.UserID).Err(); err != nil {
		// Do not reveal that someone else's order exists.
		if auth.Authorize(p, auth.ActionReadOwnOrders).Allowed {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// Detail returns an order visible to p together with its payments, oldest
// first.
func (s *Service) Detail(ctx context.Context, p auth.Principal, id string) (*Order, []payment.Payment, error) {
	o, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, nil, err
	}
	payments, err := s.payments.ListByOrder(ctx, o.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list order payments")
	}
	return o, payments, nil
}

// List returns the caller's own orders, or every order for roles that may
// read all orders, newest first.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]Order, error) {
	f := Filter{Limit: defaultListLimit}
	if !auth.Authorize(p, auth.ActionReadAllOrders).Allowed {
		if err := auth.Authorize(p, auth.ActionReadOwnOrders).Err(); err != nil {
			return nil, err
		}
		f.UserID = p.UserID
	}
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus sets the lifecycle status of an order and queues a status
// update notification for its owner.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id string, status Status) (*Order, error) {
	if err := auth.Authorize(p, auth.ActionUpdateOrderStatus).Err(); err != nil {
		return nil, err
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	o, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	task := notify.Task{
		ID:        uuid.New().String(),
		Kind:      notify.KindOrderStatusUpdate,
		OrderID:   o.ID,
		Status:    string(o.Status),
		CreatedAt: s.now(),
	}
	if err := s.tasks.Publish(ctx, task); err != nil {
		zctx.From(ctx).Warn("Publish order status notification",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
	return o, nil
}
