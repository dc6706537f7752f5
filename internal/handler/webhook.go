package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// SignatureHeader carries the gateway's "ts=...,v1=<hex>" signature.
const SignatureHeader = "x-signature"

// paymentWebhook acknowledges handled and ignored notifications with an empty
// 200 and answers 400 otherwise so the gateway redelivers.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	outcome, err := h.deps.Webhooks.Handle(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		zctx.From(r.Context()).Warn("Webhook rejected",
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}
