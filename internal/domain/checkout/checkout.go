// Package checkout turns a user's cart into a placed order and a payment
// preference at the gateway.
package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	// ErrEmptyCart is returned when checking out a cart without items.
	ErrEmptyCart = fault.New(fault.KindInvalidInput, "cart is empty")
	// ErrPaymentUnavailable is returned when the gateway preference could
	// not be created. The order is cancelled.
	ErrPaymentUnavailable = fault.New(fault.KindInternal, "payment provider unavailable")
)

// ProductNotFoundError indicates a cart references a product that no longer
// exists or is no longer sold.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Kind implements fault.Classified.
func (e *ProductNotFoundError) Kind() fault.Kind { return fault.KindNotFound }

// Config holds deployment settings for checkout.
type Config struct {
	// Currency is the ISO code sent to the gateway.
	Currency string
	// APIURL is the public base URL of this service, used for the gateway
	// notification callback.
	APIURL string
	// FrontendURL is the storefront base URL for redirects after payment.
	FrontendURL string
	// WebhookPath is appended to APIURL for the notification callback.
	WebhookPath string
	// Sandbox selects the gateway's sandbox checkout URL.
	Sandbox bool
	// Shipping prices delivery. Defaults to order.FreeShipping.
	Shipping order.ShippingPolicy
}

// Request holds caller input for a checkout.
type Request struct {
	CouponCode string
}

// Result is a placed order and where to send the customer to pay for it.
type Result struct {
	Order        *order.Order
	PaymentURL   string
	PreferenceID string
}

// Deps groups the collaborators of Service.
type Deps struct {
	Carts    cart.Repository
	Products product.Repository
	Coupons  coupon.Repository
	Orders   order.Repository
	Payments payment.Repository
	Users    user.Repository
	Gateway  payment.Gateway
	Tasks    notify.Publisher
}

// Service orchestrates checkout.
type Service struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	tracer    trace.Tracer
	checkouts metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(deps Deps, cfg Config, tp trace.TracerProvider, mp metric.MeterProvider) (*Service, error) {
	if cfg.Shipping == nil {
		cfg.Shipping = order.FreeShipping
	}
	if cfg.Currency == "" {
		cfg.Currency = "MXN"
	}
	meter := mp.Meter("storefront/checkout")
	checkouts, err := meter.Int64Counter("storefront.checkout.count",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout counter")
	}
	return &Service{
		deps:      deps,
		cfg:       cfg,
		now:       time.Now,
		tracer:    tp.Tracer("storefront/checkout"),
		checkouts: checkouts,
	}, nil
}

// Checkout places an order for the caller's cart. Coupon redemption, order
// code assignment and order persistence happen in one transaction; the cart
// is cleared only once the order and its payment preference exist.
func (s *Service) Checkout(ctx context.Context, p auth.Principal, req Request) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "Checkout", trace.WithAttributes(
		attribute.String("user.id", p.UserID),
		attribute.Bool("coupon", req.CouponCode != ""),
	))
	defer func() {
		outcome := "ok"
		if rerr != nil {
			outcome = fault.KindOf(rerr).String()
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	if err := auth.Authorize(p, auth.ActionCheckout).Err(); err != nil {
		return nil, err
	}

	items, err := s.deps.Carts.List(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	lines, err := s.resolveLines(ctx, items)
	if err != nil {
		return nil, err
	}

	now := s.now()

	var c *coupon.Coupon
	if code := coupon.NormalizeCode(req.CouponCode); code != "" {
		c, err = s.deps.Coupons.FindByCode(ctx, code)
		if err != nil {
			return nil, errors.Wrap(err, "find coupon")
		}
		if err := coupon.Validate(*c, now).Err(); err != nil {
			return nil, err
		}
	}

	buyer, err := s.deps.Users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get buyer")
	}

	o := s.newOrder(p.UserID, lines, c, now)
	if err := s.deps.Orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.String("order.code", o.Code))

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID), zap.String("order_code", o.Code))

	pref, err := s.deps.Gateway.CreatePreference(ctx, s.preferenceRequest(o, buyer))
	if err != nil {
		lg.Error("Create payment preference", zap.Error(err))
		s.abandon(ctx, lg, o)
		return nil, errors.Wrap(ErrPaymentUnavailable, "create preference")
	}

	pending := &payment.Payment{
		ExternalID:   pref.ID,
		PreferenceID: pref.ID,
		OrderID:      o.ID,
		Amount:       o.Total,
		Currency:     s.cfg.Currency,
		Status:       payment.StatusPending,
		Method:       payment.MethodAccountMoney,
		Raw:          pref.Raw,
	}
	if err := s.deps.Payments.Upsert(ctx, pending); err != nil {
		s.abandon(ctx, lg, o)
		return nil, errors.Wrap(err, "record pending payment")
	}

	// The order exists from here on; failing now would invite a retry that
	// places a duplicate order.
	if err := s.deps.Carts.Clear(ctx, p.UserID); err != nil {
		lg.Error("Clear cart after checkout", zap.Error(err))
	}

	task := notify.Task{
		ID:        uuid.New().String(),
		Kind:      notify.KindOrderPlaced,
		OrderID:   o.ID,
		CreatedAt: now,
	}
	if err := s.deps.Tasks.Publish(ctx, task); err != nil {
		lg.Warn("Publish order placed notification", zap.Error(err))
	}

	lg.Info("Order placed",
		zap.String("total", o.Total.StringFixed(2)),
		zap.String("preference_id", pref.ID),
	)

	return &Result{
		Order:        o,
		PaymentURL:   pref.RedirectURL(s.cfg.Sandbox),
		PreferenceID: pref.ID,
	}, nil
}

// resolveLines fetches products for all cart items in a single batch.
func (s *Service) resolveLines(ctx context.Context, items []cart.Item) ([]order.Item, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	fetched, err := s.deps.Products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := product.Index(fetched)

	lines := make([]order.Item, len(items))
	for i, it := range items {
		prod, ok := byID[it.ProductID]
		if !ok || !prod.Sellable() {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if it.Quantity <= 0 {
			return nil, cart.ErrInvalidQuantity
		}
		lines[i] = order.Item{
			ProductID: prod.ID,
			Name:      prod.Name,
			UnitPrice: prod.Price,
			Quantity:  it.Quantity,
		}
	}
	return lines, nil
}

func (s *Service) newOrder(userID string, items []order.Item, c *coupon.Coupon, now time.Time) *order.Order {
	priced := make([]order.Line, len(items))
	for i, it := range items {
		priced[i] = order.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}

	percent := decimal.Zero
	couponID := ""
	if c != nil {
		percent = c.DiscountPercent
		couponID = c.ID
	}

	subtotal := order.Price(priced, decimal.Zero, decimal.Zero).Subtotal
	totals := order.Price(priced, percent, s.cfg.Shipping(subtotal))

	return &order.Order{
		ID:             uuid.New().String(),
		UserID:         userID,
		Items:          items,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		ShippingCost:   totals.ShippingCost,
		Total:          totals.Total,
		Status:         order.StatusPending,
		CouponID:       couponID,
		PaymentStatus:  payment.StatusPending,
		PaymentMethod:  payment.MethodAccountMoney,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Service) preferenceRequest(o *order.Order, buyer *user.User) payment.PreferenceRequest {
	items := make([]payment.PreferenceItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = payment.PreferenceItem{
			ID:         it.ProductID,
			Title:      it.Name,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
			CurrencyID: s.cfg.Currency,
		}
	}

	frontend := strings.TrimRight(s.cfg.FrontendURL, "/")
	return payment.PreferenceRequest{
		Items: items,
		Payer: payment.Payer{Email: buyer.Email, Name: buyer.Name},
		BackURLs: payment.BackURLs{
			Success: frontend + "/checkout/success",
			Failure: frontend + "/checkout/failure",
			Pending: frontend + "/checkout/pending",
		},
		NotificationURL:   joinURL(s.cfg.APIURL, s.cfg.WebhookPath),
		ExternalReference: o.ID,
		IdempotencyKey:    o.ID,
	}
}

// abandon cancels an order whose payment could not be set up. The coupon use
// stays counted.
func (s *Service) abandon(ctx context.Context, lg *zap.Logger, o *order.Order) {
	if _, err := s.deps.Orders.UpdateStatus(ctx, o.ID, order.StatusCancelled); err != nil {
		lg.Error("Cancel order after payment setup failure", zap.Error(err))
		return
	}
	o.Status = order.StatusCancelled
}

func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	u, err := url.JoinPath(base, path)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return u
}
