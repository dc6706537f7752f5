// Package notify defines outbound notification tasks. Services publish tasks
// to a bus; a separate worker renders and delivers them, so delivery failures
// are retried without affecting the request that caused them.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Kind selects the message sent for a task.
type Kind string

const (
	KindOrderPlaced       Kind = "order_placed"
	KindOrderStatusUpdate Kind = "order_status_update"
	KindPaymentStatus     Kind = "payment_status"
)

// Task references the entities a notification is about. The worker loads
// current state when rendering, except Status which is captured at publish
// time.
type Task struct {
	ID        string
	Kind      Kind
	OrderID   string
	PaymentID string
	Status    string
	CreatedAt time.Time
}

// Publisher enqueues tasks for delivery.
type Publisher interface {
	Publish(ctx context.Context, t Task) error
}

// LogPublisher drops tasks after logging them. Used when no bus is configured.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(ctx context.Context, t Task) error {
	zctx.From(ctx).Info("Notification task dropped: no bus configured",
		zap.String("task_id", t.ID),
		zap.String("kind", string(t.Kind)),
		zap.String("order_id", t.OrderID),
	)
	return nil
}

// Encode writes t as a JSON object.
func (t Task) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(t.ID) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(t.Kind)) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(t.OrderID) })
		if t.PaymentID != "" {
			e.Field("payment_id", func(e *jx.Encoder) { e.Str(t.PaymentID) })
		}
		if t.Status != "" {
			e.Field("status", func(e *jx.Encoder) { e.Str(t.Status) })
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(t.CreatedAt.UTC().Format(time.RFC3339Nano)) })
	})
}

// Decode reads t from a JSON object. Unknown fields are skipped.
func (t *Task) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			t.ID, err = d.Str()
		case "kind":
			var s string
			s, err = d.Str()
			t.Kind = Kind(s)
		case "order_id":
			t.OrderID, err = d.Str()
		case "payment_id":
			t.PaymentID, err = d.Str()
		case "status":
			t.Status, err = d.Str()
		case "created_at":
			var s string
			if s, err = d.Str(); err == nil {
				t.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
}

// MarshalTask encodes t for the wire.
func MarshalTask(t Task) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	t.Encode(e)
	return append([]byte(nil), e.Bytes()...)
}

// UnmarshalTask decodes a task and checks that it can be dispatched.
func UnmarshalTask(data []byte) (Task, error) {
	var t Task
	if err := t.Decode(jx.DecodeBytes(data)); err != nil {
		return Task{}, errors.Wrap(err, "decode task")
	}
	switch t.Kind {
	case KindOrderPlaced, KindOrderStatusUpdate, KindPaymentStatus:
	default:
		return Task{}, errors.Errorf("unknown task kind %q", t.Kind)
	}
	if t.OrderID == "" {
		return Task{}, errors.New("task without order id")
	}
	return t, nil
}
