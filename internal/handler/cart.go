package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/cart"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.deps.Carts.View(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, l := range lines {
						encodeCartLine(e, l)
					}
				})
			})
		})
	})
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var (
		productID string
		quantity  int
	)
	if err := decodeObject(body, false, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = d.Str()
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if productID == "" {
		writeError(w, r, errBadRequest)
		return
	}

	item, err := h.deps.Carts.Add(r.Context(), principal(r), productID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
		})
	})
}

func (h *Handler) setCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var quantity int
	if err := decodeObject(body, false, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		quantity, err = d.Int()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.deps.Carts.SetQuantity(r.Context(), principal(r), r.PathValue("productId"), quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
		})
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Carts.Clear(r.Context(), principal(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Carts.Remove(r.Context(), principal(r), r.PathValue("productId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeCartLine(e *jx.Encoder, l cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("product", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(l.Product.ID) })
				e.Field("sku", func(e *jx.Encoder) { e.Str(l.Product.SKU) })
				e.Field("name", func(e *jx.Encoder) { e.Str(l.Product.Name) })
				e.Field("price", func(e *jx.Encoder) { encodeMoney(e, l.Product.Price) })
				e.Field("category", func(e *jx.Encoder) { e.Str(l.Product.Category) })
			})
		})
	})
}
