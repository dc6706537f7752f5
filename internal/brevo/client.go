// Package brevo sends template emails through the Brevo transactional API.
package brevo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/notify"
)

// DefaultBaseURL is the Brevo API endpoint.
const DefaultBaseURL = "https://api.brevo.com"

var _ notify.Mailer = (*Client)(nil)

// StatusError is a non-2xx Brevo response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("brevo: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Config configures Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a Brevo SMTP API client.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a Client whose requests are traced with tp.
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
		apiKey:  cfg.APIKey,
	}
}

// Send delivers one template email.
func (c *Client) Send(ctx context.Context, m notify.Email) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeEmail(e, m)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/smtp/email", bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send email")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func encodeEmail(e *jx.Encoder, m notify.Email) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("templateId", func(e *jx.Encoder) { e.Int64(m.TemplateID) })
		e.Field("to", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("email", func(e *jx.Encoder) { e.Str(m.To.Email) })
					if m.To.Name != "" {
						e.Field("name", func(e *jx.Encoder) { e.Str(m.To.Name) })
					}
				})
			})
		})
		if m.Params != nil {
			e.Field("params", m.Params.Encode)
		}
	})
}
