package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the payment provider as seen by checkout and reconciliation.
type Gateway interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	GetPayment(ctx context.Context, id string) (*GatewayPayment, error)
}

// PreferenceRequest describes what the customer pays for and where the
// gateway sends them and its notifications afterwards.
type PreferenceRequest struct {
	Items             []PreferenceItem
	Payer             Payer
	BackURLs          BackURLs
	NotificationURL   string
	ExternalReference string
	// IdempotencyKey makes retried creation requests return the same
	// preference instead of creating a second one.
	IdempotencyKey string
}

// PreferenceItem is one purchasable line.
type PreferenceItem struct {
	ID         string
	Title      string
	UnitPrice  decimal.Decimal
	Quantity   int
	CurrencyID string
}

// Payer is the customer contact attached to a preference.
type Payer struct {
	Email string
	Name  string
}

// BackURLs are the redirect targets after checkout at the gateway.
type BackURLs struct {
	Success string
	Failure string
	Pending string
}

// Preference is the gateway-side checkout object.
type Preference struct {
	ID               string
	InitPoint        string
	SandboxInitPoint string
	// Raw is the gateway response body, kept on the pending payment row.
	Raw []byte
}

// RedirectURL selects the checkout URL for the deployment mode, falling back
// to the other one when the preferred URL is absent.
func (p *Preference) RedirectURL(sandbox bool) string {
	if sandbox && p.SandboxInitPoint != "" {
		return p.SandboxInitPoint
	}
	if !sandbox && p.InitPoint != "" {
		return p.InitPoint
	}
	if p.InitPoint != "" {
		return p.InitPoint
	}
	return p.SandboxInitPoint
}

// GatewayPayment is the authoritative payment state fetched from the gateway.
type GatewayPayment struct {
	ID                string
	Status            Status
	PaymentTypeID     string
	TransactionAmount decimal.Decimal
	CurrencyID        string
	ExternalReference string
	PreferenceID      string
	Raw               []byte
}
