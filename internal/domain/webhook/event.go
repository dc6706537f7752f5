package webhook

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Event is one raw webhook delivery as recorded in the audit log.
type Event struct {
	EventID        string
	Type           string
	Payload        []byte
	SignatureValid bool
	ReceivedAt     time.Time
}

// EventLog is the append-only record of webhook deliveries. Entries are never
// updated or deleted; redeliveries append new entries.
type EventLog interface {
	Append(ctx context.Context, e Event) error
}

// Notification is the part of a gateway notification the reconciler acts
// on. Payment details are always fetched from the gateway.
type Notification struct {
	ID     string
	Type   string
	Action string
	DataID string
}

// IsPayment reports whether the notification concerns a payment.
func (n Notification) IsPayment() bool {
	return strings.HasPrefix(n.Type, "payment")
}

// ParseNotification extracts identifiers from a notification body. Ids may
// be JSON strings or numbers. Legacy notifications carry "topic" instead of
// "type".
func ParseNotification(body []byte) (Notification, error) {
	var (
		n     Notification
		topic string
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			n.ID, err = decodeID(d)
		case "type":
			n.Type, err = decodeOptStr(d)
		case "topic":
			topic, err = decodeOptStr(d)
		case "action":
			n.Action, err = decodeOptStr(d)
		case "data":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				if key != "id" {
					return d.Skip()
				}
				var err error
				n.DataID, err = decodeID(d)
				return err
			})
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return Notification{}, err
	}
	if n.Type == "" {
		n.Type = topic
	}
	if n.Type == "" {
		n.Type = "unknown"
	}
	return n, nil
}

func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		num, err := d.Num()
		if err != nil {
			return "", err
		}
		return num.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", d.Skip()
	}
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
