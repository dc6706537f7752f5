// Package mercadopago is a minimal MercadoPago REST client implementing
// payment.Gateway.
package mercadopago

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/payment"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.mercadopago.com"

// maxResponseSize bounds gateway response bodies.
const maxResponseSize = 1 << 20

var _ payment.Gateway = (*Client)(nil)

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadopago: status %d: %s", e.StatusCode, e.Body)
}

// Config configures Client.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client calls the MercadoPago REST API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a Client whose outgoing requests are traced with tp.
func NewClient(cfg Config, tp trace.TracerProvider) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp)),
		},
		baseURL: cfg.BaseURL,
		token:   cfg.AccessToken,
	}
}

// CreatePreference creates a checkout preference.
func (c *Client) CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodePreference(e, req)

	body, err := c.do(ctx, http.MethodPost, "/checkout/preferences", e.Bytes(), req.IdempotencyKey)
	if err != nil {
		return nil, errors.Wrap(err, "create preference")
	}
	pref, err := decodePreference(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode preference")
	}
	if pref.ID == "" {
		return nil, errors.New("preference without id")
	}
	return pref, nil
}

// GetPayment fetches the current state of a payment.
func (c *Client) GetPayment(ctx context.Context, id string) (*payment.GatewayPayment, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, "")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, errors.Wrapf(payment.ErrNotFound, "payment %s", id)
		}
		return nil, errors.Wrapf(err, "get payment %s", id)
	}
	p, err := decodePayment(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode payment")
	}
	return p, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, idempotencyKey string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func encodePreference(e *jx.Encoder, req payment.PreferenceRequest) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range req.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(item.ID) })
						e.Field("title", func(e *jx.Encoder) { e.Str(item.Title) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Num(jx.Num(item.UnitPrice.StringFixed(2))) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("currency_id", func(e *jx.Encoder) { e.Str(item.CurrencyID) })
					})
				}
			})
		})
		e.Field("payer", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("email", func(e *jx.Encoder) { e.Str(req.Payer.Email) })
				e.Field("name", func(e *jx.Encoder) { e.Str(req.Payer.Name) })
			})
		})
		e.Field("back_urls", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("success", func(e *jx.Encoder) { e.Str(req.BackURLs.Success) })
				e.Field("failure", func(e *jx.Encoder) { e.Str(req.BackURLs.Failure) })
				e.Field("pending", func(e *jx.Encoder) { e.Str(req.BackURLs.Pending) })
			})
		})
		e.Field("auto_return", func(e *jx.Encoder) { e.Str("approved") })
		e.Field("external_reference", func(e *jx.Encoder) { e.Str(req.ExternalReference) })
		if req.NotificationURL != "" {
			e.Field("notification_url", func(e *jx.Encoder) { e.Str(req.NotificationURL) })
		}
	})
}

func decodePreference(body []byte) (*payment.Preference, error) {
	p := payment.Preference{
		Raw: append([]byte(nil), body...),
	}
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = decodeID(d)
		case "init_point":
			p.InitPoint, err = decodeOptStr(d)
		case "sandbox_init_point":
			p.SandboxInitPoint, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// decodePayment keeps the raw body alongside the fields reconciliation needs.
func decodePayment(body []byte) (*payment.GatewayPayment, error) {
	p := payment.GatewayPayment{
		Raw: append([]byte(nil), body...),
	}
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var (
			err error
			s   string
		)
		switch key {
		case "id":
			p.ID, err = decodeID(d)
		case "status":
			s, err = decodeOptStr(d)
			p.Status = payment.ParseStatus(s)
		case "payment_type_id":
			p.PaymentTypeID, err = decodeOptStr(d)
		case "transaction_amount":
			p.TransactionAmount, err = decodeDecimal(d)
		case "currency_id":
			p.CurrencyID, err = decodeOptStr(d)
		case "external_reference":
			p.ExternalReference, err = decodeOptStr(d)
		case "preference_id":
			p.PreferenceID, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return nil, err
	}
	if p.PaymentTypeID == "" {
		p.PaymentTypeID = payment.MethodAccountMoney
	}
	return &p, nil
}

func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
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

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}
