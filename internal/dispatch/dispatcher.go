// Package dispatch routes each inbound request to its upstream service, or
// answers it locally, through an explicit per-request state machine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jhaveripatric/api-gateway/internal/auth"
	"github.com/jhaveripatric/api-gateway/internal/config"
	"github.com/jhaveripatric/api-gateway/internal/cors"
	"github.com/jhaveripatric/api-gateway/internal/metrics"
	"github.com/jhaveripatric/api-gateway/internal/middleware"
	"github.com/jhaveripatric/api-gateway/internal/router"
	"github.com/jhaveripatric/api-gateway/internal/upstream"
)

// Authenticator verifies the caller of a request bound for a protected
// upstream.
type Authenticator interface {
	Authenticate(r *http.Request) (*auth.Claims, error)
}

// Options configures a Dispatcher.
type Options struct {
	Registry    *upstream.Registry
	CORS        *cors.Policy
	Timeout     time.Duration
	ErrorPolicy config.ErrorPolicy

	// Local serves the endpoints the gateway answers itself. Requests it
	// has a route for never reach an upstream.
	Local *chi.Mux

	Transport http.RoundTripper
	Auth      Authenticator
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

// Dispatcher is the gateway's request handler.
type Dispatcher struct {
	registry  *upstream.Registry
	cors      *cors.Policy
	timeout   time.Duration
	policy    config.ErrorPolicy
	local     *chi.Mux
	transport http.RoundTripper
	auth      Authenticator
	logger    *zap.Logger
	metrics   *metrics.Collector

	// onComplete observes every finished request after it is logged and
	// counted.
	onComplete func(Outcome)
}

// New creates a dispatcher. Registry, CORS and Timeout are required.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		registry:  opts.Registry,
		cors:      opts.CORS,
		timeout:   opts.Timeout,
		policy:    opts.ErrorPolicy,
		local:     opts.Local,
		transport: opts.Transport,
		auth:      opts.Auth,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if d.policy == "" {
		d.policy = config.ErrorPolicyPassthrough
	}
	if d.transport == nil {
		d.transport = NewTransport(DefaultTransportConfig)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	return d
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	x := newExchange()
	d.metrics.InFlight.Inc()
	defer d.metrics.InFlight.Dec()

	r, id := middleware.EnsureRequestID(r)
	x.outcome.RequestID = id
	w.Header().Set(middleware.RequestIDHeader, id)
	x.to(StateCorrelationAssigned)
	log := d.logger.With(zap.String("request_id", id))

	preflight := cors.IsPreflight(r)
	var reqMethod string
	var reqHeaders []string
	if preflight {
		reqMethod = r.Header.Get(cors.HeaderRequestMethod)
		reqHeaders = cors.RequestedHeaders(r)
	}
	decision := d.cors.Evaluate(r.Header.Get("Origin"), reqMethod, reqHeaders)
	x.to(StateCorsEvaluated)

	switch {
	case preflight:
		x.to(StateShortCircuited)
		decision.Apply(w.Header(), true)
		w.WriteHeader(http.StatusNoContent)
		d.finish(log, x.complete(http.StatusNoContent, nil))
		return

	case d.isLocal(r):
		x.to(StateShortCircuited)
		decision.Apply(w.Header(), false)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		d.local.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		d.finish(log, x.complete(status, nil))
		return
	}

	x.to(StateRouted)
	rt := router.Resolve(r.URL)
	x.outcome.Service = rt.Service

	target, err := d.registry.Resolve(rt.Service)
	if err != nil {
		d.fail(w, log, x, decision, err)
		return
	}
	d.forward(w, r, log, x, decision, target, rt)
}

func (d *Dispatcher) isLocal(r *http.Request) bool {
	return d.local != nil && d.local.Match(chi.NewRouteContext(), r.Method, r.URL.Path)
}

func (d *Dispatcher) forward(w http.ResponseWriter, r *http.Request, log *zap.Logger, x *exchange,
	decision cors.Decision, target upstream.Target, rt router.Route) {
	ctx, cancel := context.WithTimeout(r.Context(), d.timeout)
	defer cancel()

	out := outboundRequest(ctx, r, target.URL(rt.Path, rt.RawQuery))
	auth.StripIdentity(out.Header)
	if target.Protected {
		claims, err := d.authenticate(r)
		if err != nil {
			d.fail(w, log, x, decision, fmt.Errorf("%w: %w", ErrUnauthorized, err))
			return
		}
		auth.SetIdentity(out.Header, claims)
	}

	log.Debug("forwarding request",
		zap.String("service", target.Name),
		zap.String("method", r.Method),
		zap.Stringer("route", rt),
	)

	start := time.Now()
	resp, err := d.transport.RoundTrip(out)
	if err != nil {
		d.fail(w, log, x, decision, d.upstreamError(ctx, r, err))
		return
	}
	defer resp.Body.Close()
	d.metrics.ObserveUpstream(target.Name, time.Since(start))

	if resp.StatusCode >= 500 && d.policy == config.ErrorPolicyTranslate {
		d.fail(w, log, x, decision, &UpstreamError{Status: resp.StatusCode})
		return
	}

	x.to(StateForwarded)
	h := w.Header()
	copyHeaders(h, resp.Header)
	decision.Apply(h, false)
	h.Set(middleware.RequestIDHeader, x.outcome.RequestID)
	w.WriteHeader(resp.StatusCode)

	if err := copyBody(w, resp.Body, resp.ContentLength < 0); err != nil {
		err = d.upstreamError(ctx, r, err)
		x.to(StateFailed)
		d.finish(log, x.complete(resp.StatusCode, fmt.Errorf("relay body: %w", err)))
		if !errors.Is(err, ErrClientGone) {
			// The status line is already out; only a broken connection tells
			// the client the body is incomplete.
			panic(http.ErrAbortHandler)
		}
		return
	}
	d.finish(log, x.complete(resp.StatusCode, nil))
}

func (d *Dispatcher) authenticate(r *http.Request) (*auth.Claims, error) {
	if d.auth == nil {
		return nil, errors.New("no verifier configured")
	}
	return d.auth.Authenticate(r)
}

// upstreamError classifies a transport or relay error.
func (d *Dispatcher) upstreamError(ctx context.Context, r *http.Request, err error) error {
	if r.Context().Err() != nil {
		return fmt.Errorf("%w: %w", ErrClientGone, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, d.timeout)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
}

func (d *Dispatcher) fail(w http.ResponseWriter, log *zap.Logger, x *exchange, decision cors.Decision, err error) {
	x.to(StateFailed)
	f := classify(err)
	if f.code != "" {
		decision.Apply(w.Header(), false)
		writeError(w, f.status, f.code, f.message, x.outcome.RequestID)
	}
	d.finish(log, x.complete(f.status, err))
}

func (d *Dispatcher) finish(log *zap.Logger, o Outcome) {
	fields := []zap.Field{
		zap.String("service", o.Service),
		zap.Stringer("state", o.State),
		zap.Int("status", o.Status),
		zap.Duration("duration", o.Duration),
	}
	switch {
	case o.Err == nil:
		log.Debug("request completed", fields...)
	case errors.Is(o.Err, ErrClientGone):
		log.Info("request abandoned by client", append(fields, zap.Error(o.Err))...)
	default:
		log.Warn("request failed", append(fields, zap.Error(o.Err))...)
	}

	d.metrics.ObserveRequest(d.serviceLabel(o.Service), o.State.String(), o.Status)
	if d.onComplete != nil {
		d.onComplete(o)
	}
}

// serviceLabel keeps arbitrary path segments out of metric labels.
func (d *Dispatcher) serviceLabel(name string) string {
	if _, err := d.registry.Resolve(name); err != nil {
		return ""
	}
	return name
}

// copyBody relays the upstream body. Bodies of unknown length are flushed
// as they arrive so streamed responses reach the client promptly.
func copyBody(w http.ResponseWriter, body io.Reader, flush bool) error {
	if !flush {
		_, err := io.Copy(w, body)
		return err
	}

	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			_ = rc.Flush()
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
