// Package interceptor wraps every outbound application HTTP call with the
// session guard's request and response checks. It attaches the bearer
// credential, refuses to send requests carrying a locally invalid credential,
// and converts unauthorized-flavored responses into invalidation signals.
package interceptor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront/internal/credential"
	"storefront/internal/session/broadcast"
	"storefront/internal/session/metrics"
	"storefront/internal/session/token"
	dErrors "storefront/pkg/domain-errors"
)

// maxSniffBody bounds how much of an error response body is inspected for
// invalidation phrases. The body is restored for the caller either way.
const maxSniffBody = 64 << 10

// invalidationPhrases are the backend message fragments that mean the
// credential is dead, matched case-insensitively on 4xx/5xx bodies.
var invalidationPhrases = []string{"invalid token", "token expired", "unauthorized"}

// RoundTripper is the outbound-request interceptor. Use it as the Transport
// of the application's HTTP client.
type RoundTripper struct {
	base     http.RoundTripper
	creds    credential.Store
	bus      *broadcast.Broadcaster
	redirect func()
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures the RoundTripper.
type Option func(*RoundTripper)

// WithRedirect installs the entry-view navigation hook invoked after an
// invalidation is detected.
func WithRedirect(redirect func()) Option {
	return func(rt *RoundTripper) {
		rt.redirect = redirect
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *RoundTripper) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithMetrics installs session guard metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(rt *RoundTripper) {
		rt.metrics = m
	}
}

// WithClock overrides the time source for local validity checks.
func WithClock(now func() time.Time) Option {
	return func(rt *RoundTripper) {
		if now != nil {
			rt.now = now
		}
	}
}

// New constructs the interceptor around a base transport. A nil base falls
// back to http.DefaultTransport.
func New(base http.RoundTripper, creds credential.Store, bus *broadcast.Broadcaster, opts ...Option) *RoundTripper {
	rt := &RoundTripper{
		base:   base,
		creds:  creds,
		bus:    bus,
		logger: slog.Default(),
		now:    time.Now,
	}
	if rt.base == nil {
		rt.base = http.DefaultTransport
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rt)
		}
	}
	return rt
}

// RoundTrip implements http.RoundTripper.
//
// Request phase: when a credential is stored it is checked locally before the
// request leaves the process. An invalid credential aborts the call with a
// CodeSessionInvalidated error so the caller sees a rejection, not a hang,
// and the invalidation is signaled exactly as if the backend had rejected it.
//
// Response phase: 401/403 statuses and unauthorized-flavored JSON bodies
// signal invalidation; the response still passes through to the caller.
// Transport errors are never treated as invalidation.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	cred, err := rt.creds.Get(ctx)
	if err != nil {
		// No credential: anonymous request, pass through untouched.
		return rt.base.RoundTrip(req)
	}

	if !token.IsValid(cred, rt.now()) {
		rt.logger.WarnContext(ctx, "aborting request with invalid credential",
			"url", req.URL.Redacted(),
		)
		rt.invalidate(ctx, metrics.SourceInterceptorRequest)
		return nil, dErrors.New(dErrors.CodeSessionInvalidated, "credential failed local validation")
	}
	if rt.metrics != nil {
		rt.metrics.Revalidations.WithLabelValues(metrics.TriggerRequest).Inc()
	}

	// Per RoundTripper contract the caller's request is never mutated.
	authed := req.Clone(ctx)
	authed.Header.Set("Authorization", "Bearer "+cred)

	resp, err := rt.base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}

	if rt.responseInvalidates(resp) {
		rt.logger.WarnContext(ctx, "backend response invalidated session",
			"url", req.URL.Redacted(),
			"status", resp.StatusCode,
		)
		rt.invalidate(ctx, metrics.SourceInterceptorResponse)
	}
	return resp, nil
}

// invalidate clears the credential slot, signals the broadcaster, and steers
// the user to the entry view. Safe to call multiple times.
func (rt *RoundTripper) invalidate(ctx context.Context, source string) {
	if err := rt.creds.Clear(ctx); err != nil {
		rt.logger.ErrorContext(ctx, "failed to clear credential", "error", err)
	}
	rt.bus.Signal()
	if rt.metrics != nil {
		rt.metrics.Invalidations.WithLabelValues(source).Inc()
	}
	if rt.redirect != nil {
		rt.redirect()
	}
}

func (rt *RoundTripper) responseInvalidates(resp *http.Response) bool {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return true
	}
	if resp.StatusCode < 400 {
		return false
	}
	return bodyMentionsInvalidation(resp)
}

// bodyMentionsInvalidation sniffs an error body for invalidation phrases and
// restores it so the caller can still read the response.
func bodyMentionsInvalidation(resp *http.Response) bool {
	if resp.Body == nil {
		return false
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSniffBody))
	rest, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), bytes.NewReader(rest)))
	if err != nil {
		return false
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return false
	}
	for _, field := range []string{body.Message, body.Error} {
		lowered := strings.ToLower(field)
		for _, phrase := range invalidationPhrases {
			if strings.Contains(lowered, phrase) {
				return true
			}
		}
	}
	return false
}

var _ http.RoundTripper = (*RoundTripper)(nil)
