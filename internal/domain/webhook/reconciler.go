// Package webhook reconciles asynchronous payment gateway notifications with
// local payment and order state.
package webhook

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
)

var (
	// ErrInvalidSignature is returned when a delivery is not signed with the
	// configured secret.
	ErrInvalidSignature = fault.New(fault.KindUnauthorized, "invalid webhook signature")
	// ErrMalformedEvent is returned when a delivery body cannot be parsed.
	ErrMalformedEvent = fault.New(fault.KindInvalidInput, "malformed webhook event")
)

// Outcome describes how a delivery was handled.
type Outcome string

const (
	OutcomeEmpty     Outcome = "empty"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeOrphan    Outcome = "orphan"
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
)

// Orders is the order persistence the reconciler needs.
type Orders interface {
	SyncPayment(ctx context.Context, id string, status payment.Status, method string) (*order.Order, error)
}

// Deps groups the collaborators of Reconciler.
type Deps struct {
	Events   EventLog
	Gateway  payment.Gateway
	Payments payment.Repository
	Orders   Orders
	Tasks    notify.Publisher
}

// Reconciler applies gateway notifications. Handling the same delivery any
// number of times leaves the same payment and order state.
type Reconciler struct {
	deps   Deps
	secret []byte
	now    func() time.Time

	tracer     trace.Tracer
	deliveries metric.Int64Counter
}

// NewReconciler creates a Reconciler. An empty secret disables signature
// verification.
func NewReconciler(deps Deps, secret string, tp trace.TracerProvider, mp metric.MeterProvider) (*Reconciler, error) {
	deliveries, err := mp.Meter("storefront/webhook").Int64Counter("storefront.webhook.deliveries",
		metric.WithDescription("Webhook deliveries by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "deliveries counter")
	}
	return &Reconciler{
		deps:       deps,
		secret:     []byte(secret),
		now:        time.Now,
		tracer:     tp.Tracer("storefront/webhook"),
		deliveries: deliveries,
	}, nil
}

// Handle processes one raw delivery. A nil error means the delivery is
// acknowledged; any error asks the gateway to redeliver.
func (r *Reconciler) Handle(ctx context.Context, body []byte, signature string) (outcome Outcome, rerr error) {
	ctx, span := r.tracer.Start(ctx, "Webhook", trace.WithSpanKind(trace.SpanKindConsumer))
	defer func() {
		if rerr != nil {
			outcome = OutcomeFailed
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.SetAttributes(attribute.String("webhook.outcome", string(outcome)))
		r.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
		span.End()
	}()

	if len(body) == 0 {
		return OutcomeEmpty, nil
	}

	verified := len(r.secret) > 0
	if verified && !verifySignature(r.secret, body, signature) {
		return "", ErrInvalidSignature
	}

	lg := zctx.From(ctx)
	n, parseErr := ParseNotification(body)
	eventID := n.ID
	if eventID == "" {
		eventID = n.DataID
	}
	if eventID == "" {
		eventID = uuid.New().String()
	}
	eventType := n.Type
	if parseErr != nil {
		eventType = "unknown"
	}
	span.SetAttributes(
		attribute.String("webhook.event_id", eventID),
		attribute.String("webhook.type", eventType),
	)
	lg = lg.With(zap.String("event_id", eventID), zap.String("event_type", eventType))

	// The raw delivery is recorded before anything else can fail. A failed
	// append does not stop processing: reconciliation is idempotent and the
	// gateway keeps its own delivery history.
	if err := r.deps.Events.Append(ctx, Event{
		EventID:        eventID,
		Type:           eventType,
		Payload:        body,
		SignatureValid: verified,
		ReceivedAt:     r.now(),
	}); err != nil {
		lg.Error("Append webhook event", zap.Error(err))
	}

	if parseErr != nil {
		return "", errors.Wrap(ErrMalformedEvent, parseErr.Error())
	}
	if !n.IsPayment() || n.DataID == "" {
		lg.Debug("Ignoring webhook event")
		return OutcomeIgnored, nil
	}

	gp, err := r.deps.Gateway.GetPayment(ctx, n.DataID)
	if err != nil {
		return "", errors.Wrapf(err, "get payment %s", n.DataID)
	}
	if gp.ExternalReference == "" {
		lg.Info("Ignoring payment without order reference", zap.String("payment_id", gp.ID))
		return OutcomeOrphan, nil
	}
	lg = lg.With(zap.String("payment_id", gp.ID), zap.String("order_id", gp.ExternalReference))

	p := &payment.Payment{
		ExternalID:    gp.ID,
		PreferenceID:  gp.PreferenceID,
		OrderID:       gp.ExternalReference,
		Amount:        gp.TransactionAmount,
		Currency:      gp.CurrencyID,
		Status:        gp.Status,
		Method:        gp.PaymentTypeID,
		TransactionID: gp.ID,
		Raw:           gp.Raw,
	}
	if err := r.deps.Payments.Upsert(ctx, p); err != nil {
		if errors.Is(err, payment.ErrOrderNotFound) {
			lg.Warn("Ignoring payment for unknown order")
			return OutcomeOrphan, nil
		}
		return "", errors.Wrap(err, "upsert payment")
	}

	o, err := r.deps.Orders.SyncPayment(ctx, gp.ExternalReference, gp.Status, gp.PaymentTypeID)
	if err != nil {
		return "", errors.Wrap(err, "sync order payment")
	}

	lg.Info("Payment reconciled",
		zap.String("payment_status", string(gp.Status)),
		zap.String("order_status", string(o.Status)),
	)

	if gp.Status.Notifiable() {
		task := notify.Task{
			ID:        uuid.New().String(),
			Kind:      notify.KindPaymentStatus,
			OrderID:   o.ID,
			PaymentID: gp.ID,
			Status:    string(gp.Status),
			CreatedAt: r.now(),
		}
		if err := r.deps.Tasks.Publish(ctx, task); err != nil {
			lg.Warn("Publish payment status notification", zap.Error(err))
		}
	}

	return OutcomeProcessed, nil
}
