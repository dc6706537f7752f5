package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	c, res, err := h.deps.Coupons.Check(r.Context(), principal(r), r.PathValue("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
			e.Field("valid", func(e *jx.Encoder) { e.Bool(res.Valid) })
			e.Field("discountPercent", func(e *jx.Encoder) { encodeMoney(e, c.DiscountPercent) })
			e.Field("validUntil", func(e *jx.Encoder) { encodeTime(e, c.ValidUntil) })
			if c.MaxUses != nil {
				e.Field("maxUses", func(e *jx.Encoder) { e.Int(*c.MaxUses) })
			}
			e.Field("usedCount", func(e *jx.Encoder) { e.Int(c.UsedCount) })
			if res.Reason != "" {
				e.Field("reason", func(e *jx.Encoder) { e.Str(res.Reason) })
			}
		})
	})
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.deps.Coupons.List(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, c := range coupons {
				encodeCoupon(e, c)
			}
		})
	})
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Coupons.Get(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, *c) })
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	f, err := h.readCouponFields(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := coupon.CreateRequest{MaxUses: f.maxUses}
	if f.code != nil {
		req.Code = *f.code
	}
	if f.discountPercent != nil {
		req.DiscountPercent = *f.discountPercent
	}
	if f.validUntil != nil {
		req.ValidUntil = *f.validUntil
	}

	c, err := h.deps.Coupons.Create(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, *c) })
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	f, err := h.readCouponFields(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.deps.Coupons.Update(r.Context(), principal(r), r.PathValue("id"), coupon.UpdateRequest{
		Code:            f.code,
		DiscountPercent: f.discountPercent,
		ValidUntil:      f.validUntil,
		MaxUses:         f.maxUses,
		MaxUsesSet:      f.maxUsesSet,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, *c) })
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Coupons.Delete(r.Context(), principal(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// couponFields is a create or update body. Absent keys stay nil; an
// explicit "maxUses": null sets maxUsesSet with a nil maxUses.
type couponFields struct {
	code            *string
	discountPercent *decimal.Decimal
	validUntil      *time.Time
	maxUses         *int
	maxUsesSet      bool
}

func (h *Handler) readCouponFields(w http.ResponseWriter, r *http.Request) (couponFields, error) {
	var f couponFields
	body, err := readBody(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		return f, err
	}
	err = decodeObject(body, false, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			s, err := d.Str()
			f.code = &s
			return err
		case "discountPercent":
			v, err := decodeDecimal(d)
			f.discountPercent = &v
			return err
		case "validUntil":
			s, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return errors.Wrap(err, "validUntil")
			}
			f.validUntil = &t
			return nil
		case "maxUses":
			f.maxUsesSet = true
			if d.Next() == jx.Null {
				return d.Null()
			}
			n, err := d.Int()
			if err != nil {
				return err
			}
			f.maxUses = &n
			return nil
		default:
			return d.Skip()
		}
	})
	return f, err
}

func encodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("discountPercent", func(e *jx.Encoder) { encodeMoney(e, c.DiscountPercent) })
		e.Field("validUntil", func(e *jx.Encoder) { encodeTime(e, c.ValidUntil) })
		if c.MaxUses != nil {
			e.Field("maxUses", func(e *jx.Encoder) { e.Int(*c.MaxUses) })
		}
		e.Field("usedCount", func(e *jx.Encoder) { e.Int(c.UsedCount) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, c.CreatedAt) })
	})
}
