// Package health serves liveness and readiness probes for the storefront
// processes.
//
// Every probe is polled in the background. A probe flips to failing only
// after FailureThreshold consecutive errors and back to passing after
// SuccessThreshold consecutive successes, so one slow database ping does
// not take a pod out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Probe endpoints.
const (
	LivePath  = "/livez"
	ReadyPath = "/readyz"
)

// CheckFunc reports a problem with a dependency or the process itself.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind uint8

const (
	// Liveness probes restart the process when failing.
	Liveness Kind = iota
	// Readiness probes take the process out of load balancing.
	Readiness
)

// Probe describes a single check.
type Probe struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Check   CheckFunc

	// Zero values default to 3 and 1.
	FailureThreshold int
	SuccessThreshold int
}

type probeState struct {
	Probe

	mu      sync.Mutex
	passing bool
	lastErr error
	fails   int
	oks     int
}

func (p *probeState) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	err := p.Check(ctx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.passing = false
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= p.SuccessThreshold {
		p.passing = true
	}
}

// status is "ok" or the failure reason.
func (p *probeState) status() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.passing:
		return "ok", true
	case p.lastErr != nil:
		return p.lastErr.Error(), false
	default:
		return "failing", false
	}
}

// Health aggregates probes and serves them over HTTP.
type Health struct {
	ready atomic.Bool

	mu     sync.Mutex
	probes []*probeState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a probe. Probes start out passing.
func (h *Health) Add(p Probe) {
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = 3
	}
	if p.SuccessThreshold <= 0 {
		p.SuccessThreshold = 1
	}
	if p.Timeout <= 0 {
		p.Timeout = time.Second
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, &probeState{Probe: p, passing: true})
}

// AddLivenessCheck is shorthand for Add with Kind Liveness.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Probe{Name: name, Kind: Liveness, Timeout: timeout, Check: check})
}

// AddReadinessCheck is shorthand for Add with Kind Readiness.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Probe{Name: name, Kind: Readiness, Timeout: timeout, Check: check})
}

// Start polls every registered probe at interval until Stop or ctx is done.
// Each probe is observed once immediately.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := slices.Clone(h.probes)
	h.mu.Unlock()

	for _, p := range probes {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			poll(ctx, p, interval)
		}()
	}
}

func poll(ctx context.Context, p *probeState, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		p.observe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Stop halts polling and waits for in-flight checks. Safe to call twice.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

// SetReady toggles the manual readiness gate. Services set it once wiring is
// complete and clear it when draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	_, ok := h.report(Readiness)
	return ok
}

func (h *Health) report(kind Kind) (map[string]string, bool) {
	h.mu.Lock()
	probes := slices.Clone(h.probes)
	h.mu.Unlock()

	checks := make(map[string]string)
	healthy := true
	for _, p := range probes {
		if p.Kind != kind {
			continue
		}
		s, ok := p.status()
		checks[p.Name] = s
		healthy = healthy && ok
	}
	return checks, healthy
}

// Register mounts both endpoints on mux.
func (h *Health) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+LivePath, h.LiveEndpoint)
	mux.HandleFunc("GET "+ReadyPath, h.ReadyEndpoint)
}

// LiveEndpoint answers 200 while every liveness probe passes and 503
// otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	checks, ok := h.report(Liveness)
	writeReport(w, report{Healthy: ok, Checks: checks})
}

// ReadyEndpoint answers 200 only when the service is marked ready and every
// readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	checks, ok := h.report(Readiness)
	if !h.ready.Load() {
		checks["service"] = "not ready"
		ok = false
	}
	writeReport(w, report{Healthy: ok, Checks: checks})
}

// report is the probe response body:
//
//	{"status":"ok","checks":{"postgres":"ok"}}
type report struct {
	Healthy bool
	Checks  map[string]string
}

func (r report) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("status")
	if r.Healthy {
		e.Str("ok")
	} else {
		e.Str("unhealthy")
	}
	if len(r.Checks) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(r.Checks))
		for name := range r.Checks {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(r.Checks[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func (r *report) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			r.Healthy = s == "ok"
			return err
		case "checks":
			r.Checks = make(map[string]string)
			return d.Obj(func(d *jx.Decoder, name string) error {
				s, err := d.Str()
				r.Checks[name] = s
				return err
			})
		default:
			return d.Skip()
		}
	})
}

func writeReport(w http.ResponseWriter, r report) {
	code := http.StatusOK
	if !r.Healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	var e jx.Encoder
	r.Encode(&e)
	_, _ = w.Write(e.Bytes())
}
