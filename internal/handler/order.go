package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
)

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req checkout.Request
	if err := decodeObject(body, true, func(d *jx.Decoder, key string) error {
		if key != "couponCode" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		req.CouponCode, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.deps.Checkout.Checkout(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
			e.Field("paymentUrl", func(e *jx.Encoder) { e.Str(res.PaymentURL) })
			e.Field("preferenceId", func(e *jx.Encoder) { e.Str(res.PreferenceID) })
		})
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Orders.List(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, payments, err := h.deps.Orders.Detail(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodeOrderFields(e, o)
			e.Field("payments", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range payments {
						encodePayment(e, &payments[i])
					}
				})
			})
		})
	})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var raw string
	if err := decodeObject(body, false, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := order.ParseStatus(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.deps.Orders.UpdateStatus(r.Context(), principal(r), r.PathValue("id"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) { encodeOrderFields(e, o) })
}

func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("code", func(e *jx.Encoder) { e.Str(o.Code) })
	e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
	e.Field("items", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
					e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, it.Subtotal()) })
				})
			}
		})
	})
	e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
	e.Field("discountAmount", func(e *jx.Encoder) { encodeMoney(e, o.DiscountAmount) })
	e.Field("shippingCost", func(e *jx.Encoder) { encodeMoney(e, o.ShippingCost) })
	e.Field("total", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	if o.CouponID != "" {
		e.Field("couponId", func(e *jx.Encoder) { e.Str(o.CouponID) })
	}
	if o.PaymentMethod != "" {
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
	}
	if o.PaymentStatus != "" {
		e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
	}
	e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
	e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
}

// encodePayment leaves out the raw gateway payload.
func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("externalId", func(e *jx.Encoder) { e.Str(p.ExternalID) })
		if p.PreferenceID != "" {
			e.Field("preferenceId", func(e *jx.Encoder) { e.Str(p.PreferenceID) })
		}
		e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, p.Amount) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(p.Currency) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(p.Status)) })
		if p.Method != "" {
			e.Field("method", func(e *jx.Encoder) { e.Str(p.Method) })
		}
		if p.TransactionID != "" {
			e.Field("transactionId", func(e *jx.Encoder) { e.Str(p.TransactionID) })
		}
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, p.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, p.UpdatedAt) })
	})
}
