package brevo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/notify"
)

func TestSend(t *testing.T) {
	var (
		body   []byte
		apiKey string
		path   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		apiKey = r.Header.Get("api-key")
		path = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<1@brevo>"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "xkeysib-test"}, tracenoop.NewTracerProvider())
	err := c.Send(context.Background(), notify.Email{
		TemplateID: 7,
		To:         notify.Recipient{Email: "ana@example.com", Name: "Ana"},
		Params: notify.OrderStatusParams{
			CustomerName: "Ana",
			OrderCode:    "#AAA001",
			Status:       "SHIPPED",
			OrderLink:    "https://shop/orders/o1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v3/smtp/email", path)
	assert.Equal(t, "xkeysib-test", apiKey)
	assert.JSONEq(t, `{
		"templateId":7,
		"to":[{"email":"ana@example.com","name":"Ana"}],
		"params":{"customerName":"Ana","orderCode":"#AAA001","status":"SHIPPED","orderLink":"https://shop/orders/o1"}
	}`, string(body))
}

func TestSend_StatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		temporary bool
	}{
		{name: "bad request", status: http.StatusBadRequest},
		{name: "throttled", status: http.StatusTooManyRequests, temporary: true},
		{name: "server error", status: http.StatusBadGateway, temporary: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"code":"failure"}`))
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL}, tracenoop.NewTracerProvider())
			err := c.Send(context.Background(), notify.Email{TemplateID: 1, To: notify.Recipient{Email: "a@b.c"}})

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.temporary, se.Temporary())
		})
	}
}
