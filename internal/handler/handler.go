// Package handler exposes the storefront over HTTP.
package handler

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/webhook"
)

// DefaultWebhookPath is where payment notifications are received.
const DefaultWebhookPath = "/webhooks/mercadopago"

// CartService manages the caller's cart.
type CartService interface {
	Add(ctx context.Context, p auth.Principal, productID string, quantity int) (cart.Item, error)
	SetQuantity(ctx context.Context, p auth.Principal, productID string, quantity int) (cart.Item, error)
	Remove(ctx context.Context, p auth.Principal, productID string) error
	Clear(ctx context.Context, p auth.Principal) error
	View(ctx context.Context, p auth.Principal) ([]cart.Line, error)
}

// CheckoutService turns the caller's cart into an order.
type CheckoutService interface {
	Checkout(ctx context.Context, p auth.Principal, req checkout.Request) (*checkout.Result, error)
}

// OrderService reads and administers orders.
type OrderService interface {
	Detail(ctx context.Context, p auth.Principal, id string) (*order.Order, []payment.Payment, error)
	List(ctx context.Context, p auth.Principal) ([]order.Order, error)
	UpdateStatus(ctx context.Context, p auth.Principal, id string, status order.Status) (*order.Order, error)
}

// CouponService validates and administers coupons.
type CouponService interface {
	Check(ctx context.Context, p auth.Principal, code string) (*coupon.Coupon, coupon.Result, error)
	List(ctx context.Context, p auth.Principal) ([]coupon.Coupon, error)
	Get(ctx context.Context, p auth.Principal, id string) (*coupon.Coupon, error)
	Create(ctx context.Context, p auth.Principal, req coupon.CreateRequest) (*coupon.Coupon, error)
	Update(ctx context.Context, p auth.Principal, id string, req coupon.UpdateRequest) (*coupon.Coupon, error)
	Delete(ctx context.Context, p auth.Principal, id string) error
}

// WebhookReconciler applies payment notifications.
type WebhookReconciler interface {
	Handle(ctx context.Context, body []byte, signature string) (webhook.Outcome, error)
}

// Deps groups the services behind the HTTP surface.
type Deps struct {
	Carts    CartService
	Checkout CheckoutService
	Orders   OrderService
	Coupons  CouponService
	Webhooks WebhookReconciler
	APIKeys  auth.Repository
}

// Config holds non-dependency configuration for Handler.
type Config struct {
	WebhookPath  string
	APIKeyPepper []byte
	// MaxBodyBytes bounds request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Handler serves the API routes.
type Handler struct {
	deps Deps
	cfg  Config
	auth *Authenticator
}

// NewHandler creates a Handler.
func NewHandler(deps Deps, cfg Config) *Handler {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = DefaultWebhookPath
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		deps: deps,
		cfg:  cfg,
		auth: NewAuthenticator(deps.APIKeys, cfg.APIKeyPepper),
	}
}

// Register adds all API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	h.handle(mux, "GET /api/cart", h.auth.Require(h.getCart))
	h.handle(mux, "DELETE /api/cart", h.auth.Require(h.clearCart))
	h.handle(mux, "POST /api/cart/items", h.auth.Require(h.addCartItem))
	h.handle(mux, "PATCH /api/cart/items/{productId}", h.auth.Require(h.setCartItemQuantity))
	h.handle(mux, "DELETE /api/cart/items/{productId}", h.auth.Require(h.removeCartItem))

	h.handle(mux, "POST /api/orders/checkout", h.auth.Require(h.checkout))
	h.handle(mux, "GET /api/orders", h.auth.Require(h.listOrders))
	h.handle(mux, "GET /api/orders/{id}", h.auth.Require(h.getOrder))
	h.handle(mux, "PATCH /api/orders/{id}/status", h.auth.Require(h.updateOrderStatus))

	h.handle(mux, "GET /api/coupons/{code}/validate", h.auth.Require(h.validateCoupon))
	h.handle(mux, "GET /api/coupons", h.auth.Require(h.listCoupons))
	h.handle(mux, "POST /api/coupons", h.auth.Require(h.createCoupon))
	h.handle(mux, "GET /api/coupons/{id}", h.auth.Require(h.getCoupon))
	h.handle(mux, "PUT /api/coupons/{id}", h.auth.Require(h.updateCoupon))
	h.handle(mux, "DELETE /api/coupons/{id}", h.auth.Require(h.deleteCoupon))

	h.handle(mux, "POST "+h.cfg.WebhookPath, h.paymentWebhook)
}

// handle registers fn and names the request span after the route pattern.
func (h *Handler) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		span.SetName(pattern)
		span.SetAttributes(attribute.String("http.route", pattern))
		fn(w, r)
	})
}
