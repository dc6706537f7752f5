// Package payment models gateway payments and the gateway collaborator.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/fault"
)

var (
	// ErrNotFound is returned when a payment does not exist locally or at the
	// gateway.
	ErrNotFound = fault.New(fault.KindNotFound, "payment not found")
	// ErrOrderNotFound is returned when a payment references an unknown order.
	ErrOrderNotFound = fault.New(fault.KindNotFound, "payment references unknown order")
)

// Status is the gateway-defined payment status.
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusAuthorized  Status = "authorized"
	StatusInProcess   Status = "in_process"
	StatusInMediation Status = "in_mediation"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
	StatusChargedBack Status = "charged_back"
)

// ParseStatus accepts any status the gateway reports. Unknown values are kept
// verbatim so newer gateway states are mirrored rather than rejected.
func ParseStatus(s string) Status {
	return Status(s)
}

// Notifiable reports whether customers are told about this status.
func (s Status) Notifiable() bool {
	switch s {
	case StatusApproved, StatusCancelled, StatusPending, StatusRefunded, StatusRejected:
		return true
	default:
		return false
	}
}

// MethodAccountMoney is recorded on pending rows created at checkout, before
// the customer has picked a payment method.
const MethodAccountMoney = "account_money"

// Payment is the local record of a gateway payment or preference.
type Payment struct {
	ID            int64
	ExternalID    string
	PreferenceID  string
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	Status        Status
	Method        string
	TransactionID string
	// Raw is the gateway payload stored verbatim.
	Raw       []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository persists payments keyed by ExternalID.
type Repository interface {
	// Upsert inserts p or, when a row with the same ExternalID exists,
	// overwrites its gateway-reported fields. ID and timestamps are filled in.
	Upsert(ctx context.Context, p *Payment) error
	GetByExternalID(ctx context.Context, externalID string) (*Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
}
