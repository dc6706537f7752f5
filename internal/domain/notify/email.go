package notify

import (
	"context"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Recipient is an email destination.
type Recipient struct {
	Email string
	Name  string
}

// Params is a template parameter object.
type Params interface {
	Encode(e *jx.Encoder)
}

// Email is a template-based transactional email.
type Email struct {
	TemplateID int64
	To         Recipient
	Params     Params
}

// Mailer sends transactional emails through the provider.
type Mailer interface {
	Send(ctx context.Context, m Email) error
}

// LineParams is one order line in OrderPlacedParams.
type LineParams struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// OrderPlacedParams fill the order confirmation template.
type OrderPlacedParams struct {
	CustomerName   string
	OrderCode      string
	OrderDate      string
	Items          []LineParams
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
	PaymentMethod  string
	OrderLink      string
}

// Encode implements Params.
func (p OrderPlacedParams) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("customerName", func(e *jx.Encoder) { e.Str(p.CustomerName) })
		e.Field("orderCode", func(e *jx.Encoder) { e.Str(p.OrderCode) })
		e.Field("orderDate", func(e *jx.Encoder) { e.Str(p.OrderDate) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range p.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
						e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, it.Subtotal) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, p.Subtotal) })
		e.Field("discountAmount", func(e *jx.Encoder) { encodeMoney(e, p.DiscountAmount) })
		e.Field("shippingCost", func(e *jx.Encoder) { encodeMoney(e, p.ShippingCost) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, p.Total) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(p.PaymentMethod) })
		e.Field("orderLink", func(e *jx.Encoder) { e.Str(p.OrderLink) })
	})
}

// PaymentStatusParams fill the payment status template.
type PaymentStatusParams struct {
	CustomerName  string
	OrderCode     string
	PaymentStatus string
	Amount        decimal.Decimal
	TransactionID string
	OrderLink     string
}

// Encode implements Params.
func (p PaymentStatusParams) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("customerName", func(e *jx.Encoder) { e.Str(p.CustomerName) })
		e.Field("orderCode", func(e *jx.Encoder) { e.Str(p.OrderCode) })
		e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(p.PaymentStatus) })
		e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, p.Amount) })
		e.Field("transactionId", func(e *jx.Encoder) { e.Str(p.TransactionID) })
		e.Field("orderLink", func(e *jx.Encoder) { e.Str(p.OrderLink) })
	})
}

// OrderStatusParams fill the order status update template.
type OrderStatusParams struct {
	CustomerName string
	OrderCode    string
	Status       string
	OrderLink    string
}

// Encode implements Params.
func (p OrderStatusParams) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("customerName", func(e *jx.Encoder) { e.Str(p.CustomerName) })
		e.Field("orderCode", func(e *jx.Encoder) { e.Str(p.OrderCode) })
		e.Field("status", func(e *jx.Encoder) { e.Str(p.Status) })
		e.Field("orderLink", func(e *jx.Encoder) { e.Str(p.OrderLink) })
	})
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}
