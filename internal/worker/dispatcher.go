// Package worker renders notification tasks into template emails and
// delivers them.
package worker

import (
	"context"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/user"
)

// Templates maps task kinds to provider template ids. A zero id disables
// that kind.
type Templates struct {
	OrderPlaced   int64
	PaymentStatus int64
	OrderStatus   int64
}

func (t Templates) forKind(k notify.Kind) int64 {
	switch k {
	case notify.KindOrderPlaced:
		return t.OrderPlaced
	case notify.KindPaymentStatus:
		return t.PaymentStatus
	case notify.KindOrderStatusUpdate:
		return t.OrderStatus
	default:
		return 0
	}
}

// Config configures Dispatcher.
type Config struct {
	Templates   Templates
	FrontendURL string
	MaxAttempts uint
	// Backoff builds the retry schedule of one delivery. Defaults to an
	// exponential backoff.
	Backoff func() backoff.BackOff
}

// Deps groups the collaborators of Dispatcher.
type Deps struct {
	Orders   order.Repository
	Users    user.Repository
	Payments payment.Repository
	Mailer   notify.Mailer
}

// Dispatcher turns tasks into emails. Tasks that can never be delivered are
// logged and acknowledged so they do not block the queue.
type Dispatcher struct {
	deps Deps
	cfg  Config
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Deps, cfg Config) *Dispatcher {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff == nil {
		cfg.Backoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		}
	}
	return &Dispatcher{deps: deps, cfg: cfg}
}

// temporary is implemented by delivery errors that know whether a retry can
// help.
type temporary interface {
	Temporary() bool
}

var errUnknownKind = errors.New("unknown task kind")

// undeliverable reports whether rendering can never succeed for a task: the
// order, user or payment it names is gone, or its kind is not handled.
func undeliverable(err error) bool {
	return fault.KindOf(err) == fault.KindNotFound || errors.Is(err, errUnknownKind)
}

// Handle processes one encoded task. Undeliverable tasks are logged and
// acknowledged. It returns an error, leaving the message uncommitted for
// redelivery, when ctx is done or when loading the task's data keeps
// failing for every attempt.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) error {
	lg := zctx.From(ctx)

	task, err := notify.UnmarshalTask(payload)
	if err != nil {
		lg.Error("Dropping malformed notification task", zap.Error(err))
		return nil
	}
	lg = lg.With(
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.String("order_id", task.OrderID),
	)

	templateID := d.cfg.Templates.forKind(task.Kind)
	if templateID == 0 {
		lg.Debug("Notification kind disabled")
		return nil
	}

	renders := 0
	email, err := backoff.Retry(ctx, func() (notify.Email, error) {
		renders++
		email, err := d.render(ctx, task)
		if err != nil && undeliverable(err) {
			return email, backoff.Permanent(err)
		}
		return email, err
	},
		backoff.WithBackOff(d.cfg.Backoff()),
		backoff.WithMaxTries(d.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			lg.Warn("Loading notification data failed, retrying",
				zap.Error(err),
				zap.Int("attempt", renders),
				zap.Duration("next", next),
			)
		}),
	)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case undeliverable(err):
		lg.Error("Dropping notification task", zap.Error(err))
		return nil
	default:
		return errors.Wrapf(err, "render task %s after %d attempts", task.ID, renders)
	}
	email.TemplateID = templateID

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := d.deps.Mailer.Send(ctx, email)
		var t temporary
		if err != nil && errors.As(err, &t) && !t.Temporary() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(d.cfg.Backoff()),
		backoff.WithMaxTries(d.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			lg.Warn("Notification delivery failed, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
			)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lg.Error("Notification delivery failed", zap.Error(err), zap.Int("attempts", attempt))
		return nil
	}

	lg.Info("Notification sent", zap.String("to", email.To.Email), zap.Int("attempts", attempt))
	return nil
}

// render loads the current order state and builds the email for task.
func (d *Dispatcher) render(ctx context.Context, task notify.Task) (notify.Email, error) {
	o, err := d.deps.Orders.GetByID(ctx, task.OrderID)
	if err != nil {
		return notify.Email{}, errors.Wrap(err, "get order")
	}
	u, err := d.deps.Users.GetByID(ctx, o.UserID)
	if err != nil {
		return notify.Email{}, errors.Wrap(err, "get user")
	}

	email := notify.Email{
		To: notify.Recipient{Email: u.Email, Name: u.Name},
	}
	link := d.orderLink(o.ID)

	switch task.Kind {
	case notify.KindOrderPlaced:
		lines := make([]notify.LineParams, len(o.Items))
		for i, item := range o.Items {
			lines[i] = notify.LineParams{
				Name:      item.Name,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				Subtotal:  item.Subtotal(),
			}
		}
		email.Params = notify.OrderPlacedParams{
			CustomerName:   u.Name,
			OrderCode:      o.Code,
			OrderDate:      o.CreatedAt.UTC().Format(time.RFC3339),
			Items:          lines,
			Subtotal:       o.Subtotal,
			DiscountAmount: o.DiscountAmount,
			ShippingCost:   o.ShippingCost,
			Total:          o.Total,
			PaymentMethod:  o.PaymentMethod,
			OrderLink:      link,
		}
	case notify.KindPaymentStatus:
		params := notify.PaymentStatusParams{
			CustomerName:  u.Name,
			OrderCode:     o.Code,
			PaymentStatus: task.Status,
			Amount:        o.Total,
			TransactionID: task.PaymentID,
			OrderLink:     link,
		}
		if task.PaymentID != "" {
			p, err := d.deps.Payments.GetByExternalID(ctx, task.PaymentID)
			switch {
			case err == nil:
				params.Amount = p.Amount
				if p.TransactionID != "" {
					params.TransactionID = p.TransactionID
				}
			case !errors.Is(err, payment.ErrNotFound):
				return notify.Email{}, errors.Wrap(err, "get payment")
			}
		}
		if params.PaymentStatus == "" {
			params.PaymentStatus = string(o.PaymentStatus)
		}
		email.Params = params
	case notify.KindOrderStatusUpdate:
		status := task.Status
		if status == "" {
			status = string(o.Status)
		}
		email.Params = notify.OrderStatusParams{
			CustomerName: u.Name,
			OrderCode:    o.Code,
			Status:       status,
			OrderLink:    link,
		}
	default:
		return notify.Email{}, errors.Wrapf(errUnknownKind, "%q", task.Kind)
	}
	return email, nil
}

func (d *Dispatcher) orderLink(orderID string) string {
	link, err := url.JoinPath(d.cfg.FrontendURL, "orders", orderID)
	if err != nil {
		return d.cfg.FrontendURL + "/orders/" + orderID
	}
	return link
}
