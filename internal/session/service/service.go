// Package service owns the session state machine. A single Manager holds the
// current session snapshot and is the only writer of it: every transition is a
// closure delivered to the Run loop, which also consumes invalidation signals
// and drives periodic revalidation. Callers on other goroutines only ever read
// snapshots or enqueue transitions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	dErrors "storefront/pkg/domain-errors"

	"storefront/internal/backend"
	"storefront/internal/credential"
	"storefront/internal/platform/tracer"
	"storefront/internal/sentinel"
	"storefront/internal/session/broadcast"
	"storefront/internal/session/metrics"
	"storefront/internal/session/models"
	"storefront/internal/session/token"
)

const (
	defaultRevalidateInterval = 5 * time.Minute
	revalidateTimeout         = 10 * time.Second
)

// Manager coordinates the credential store, the backend API and the
// invalidation broadcaster into one session lifecycle. Construct it with
// NewManager, start Run on its own goroutine, then call Bootstrap once.
type Manager struct {
	creds    credential.Store
	api      backend.API
	bus      *broadcast.Broadcaster
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	now      func() time.Time

	onInvalidated func()

	mu       sync.RWMutex
	state    models.State
	identity *models.Identity

	applyc chan applyRequest
}

// applyRequest carries one state transition into the Run loop. The loop runs
// fn and reports its result on errc, which must be buffered so the loop never
// blocks on a caller that already gave up.
type applyRequest struct {
	fn   func(ctx context.Context) error
	errc chan error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics attaches session metrics.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithTracer sets the tracer used for bootstrap, login and revalidation spans.
func WithTracer(t tracer.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRevalidateInterval overrides the periodic revalidation cadence.
func WithRevalidateInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithInvalidationHook registers a callback invoked from the Run loop each
// time an invalidation signal actually ends a live session. Repeated signals
// for the same session fire it once.
func WithInvalidationHook(fn func()) Option {
	return func(m *Manager) { m.onInvalidated = fn }
}

// NewManager builds a Manager in the bootstrapping state. It does not touch
// the store or the network until Bootstrap.
func NewManager(creds credential.Store, api backend.API, bus *broadcast.Broadcaster, opts ...Option) *Manager {
	m := &Manager{
		creds:    creds,
		api:      api,
		bus:      bus,
		interval: defaultRevalidateInterval,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
		now:      time.Now,
		state:    models.StateBootstrapping,
		applyc:   make(chan applyRequest),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run consumes invalidation signals, the revalidation ticker and queued
// transitions until ctx is cancelled. It is the sole writer of session state.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.bus.C():
			m.reactToInvalidation(ctx)
		case <-ticker.C:
			m.startRevalidation(ctx)
		case req := <-m.applyc:
			req.errc <- req.fn(ctx)
		}
	}
}

// Snapshot returns a copy of the current session state. The identity, when
// present, is the caller's to keep.
func (m *Manager) Snapshot() models.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := models.Snapshot{State: m.state}
	if m.identity != nil {
		ident := *m.identity
		snap.Identity = &ident
	}
	return snap
}

// Loading reports whether the restore attempt is still unresolved.
func (m *Manager) Loading() bool {
	return m.Snapshot().State == models.StateBootstrapping
}

// Bootstrap resolves the initial session from whatever credential the store
// holds. An absent or locally invalid credential resolves to anonymous
// without any network traffic; a plausible one is confirmed against the
// backend before the identity is installed. Run must already be started.
func (m *Manager) Bootstrap(ctx context.Context) (err error) {
	start := m.now()
	ctx, span := m.tracer.Start(ctx, tracer.SpanBootstrap)
	defer func() {
		span.End(err)
		if m.metrics != nil {
			m.metrics.BootstrapDuration.Observe(m.now().Sub(start).Seconds())
		}
	}()

	cred, cerr := m.creds.Get(ctx)
	if cerr != nil {
		if !errors.Is(cerr, sentinel.ErrNoCredential) {
			m.logger.WarnContext(ctx, "credential store unreadable, starting anonymous", "error", cerr)
		}
		return m.resolveAnonymous(ctx, false)
	}

	if !token.IsValid(cred, m.now()) {
		m.logger.InfoContext(ctx, "stored credential failed local validation")
		return m.resolveAnonymous(ctx, true)
	}

	claims, derr := token.Decode(cred)
	if derr != nil {
		return m.resolveAnonymous(ctx, true)
	}
	span.SetAttributes(tracer.String(tracer.AttrUserID, claims.SubjectID()))

	ident, ferr := m.api.FetchUser(ctx, cred, claims.SubjectID())
	if ferr != nil {
		m.logger.InfoContext(ctx, "backend rejected stored credential", "error", ferr)
		return m.resolveAnonymous(ctx, true)
	}

	return m.apply(ctx, func(actx context.Context) error {
		if m.currentState() != models.StateBootstrapping {
			// Someone resolved the session while the fetch was in flight.
			return nil
		}
		current, gerr := m.creds.Get(actx)
		if gerr != nil || current != cred {
			m.setState(models.StateAnonymous, nil)
			return nil
		}
		m.setState(models.StateAuthenticated, &ident)
		m.logger.InfoContext(actx, "session restored", "user_id", ident.ID, "role", ident.Role)
		return nil
	})
}

// resolveAnonymous finishes a bootstrap that found no usable session. The
// transition runs through the apply queue like every other one; clearStore
// distinguishes "nothing stored" from "stored but rejected".
func (m *Manager) resolveAnonymous(ctx context.Context, clearStore bool) error {
	return m.apply(ctx, func(actx context.Context) error {
		if m.currentState() != models.StateBootstrapping {
			// Someone resolved the session while the restore was in flight;
			// their outcome wins.
			return nil
		}
		if clearStore {
			if err := m.creds.Clear(actx); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "clear credential")
			}
		}
		m.setState(models.StateAnonymous, nil)
		return nil
	})
}

// Login exchanges credentials for a session. On success the token is
// persisted before the state flips to authenticated; on failure nothing
// changes.
func (m *Manager) Login(ctx context.Context, email, password string) (err error) {
	ctx, span := m.tracer.Start(ctx, tracer.SpanLogin)
	defer func() { span.End(err) }()

	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		if m.metrics != nil {
			m.metrics.AuthFailures.Inc()
		}
		return err
	}
	span.SetAttributes(tracer.String(tracer.AttrUserID, res.User.ID))

	if err = m.install(ctx, res); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.Logins.Inc()
	}
	m.logger.InfoContext(ctx, "login succeeded", "user_id", res.User.ID, "role", res.User.Role)
	return nil
}

// Signup registers a new account and, like Login, establishes the session
// atomically on success.
func (m *Manager) Signup(ctx context.Context, name, email, password string, role models.Role) (err error) {
	ctx, span := m.tracer.Start(ctx, tracer.SpanSignup)
	defer func() { span.End(err) }()

	res, err := m.api.Signup(ctx, name, email, password, role)
	if err != nil {
		if m.metrics != nil {
			m.metrics.AuthFailures.Inc()
		}
		return err
	}

	if err = m.install(ctx, res); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.Signups.Inc()
	}
	m.logger.InfoContext(ctx, "signup succeeded", "user_id", res.User.ID, "role", res.User.Role)
	return nil
}

// install persists the fresh token and only then flips the state, so a crash
// between the two leaves a stored credential without a live session rather
// than the reverse.
func (m *Manager) install(ctx context.Context, res backend.AuthResult) error {
	return m.apply(ctx, func(actx context.Context) error {
		if err := m.creds.Set(actx, res.Token); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist credential")
		}
		user := res.User
		m.setState(models.StateAuthenticated, &user)
		return nil
	})
}

// Logout ends the session. Logging out of an anonymous session is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	return m.apply(ctx, func(actx context.Context) error {
		if err := m.creds.Clear(actx); err != nil {
			m.logger.WarnContext(actx, "clearing credential on logout", "error", err)
		}
		if m.currentState() != models.StateAnonymous {
			m.setState(models.StateAnonymous, nil)
			m.logger.InfoContext(actx, "logged out")
		}
		return nil
	})
}

// reactToInvalidation handles one broadcaster signal: clear the stored
// credential, then drop to anonymous. A signal arriving when the session is
// already anonymous changes nothing.
func (m *Manager) reactToInvalidation(ctx context.Context) {
	if err := m.creds.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "clearing credential on invalidation", "error", err)
	}
	if m.currentState() == models.StateAnonymous {
		return
	}
	m.setState(models.StateAnonymous, nil)
	m.logger.InfoContext(ctx, "session invalidated")
	if m.onInvalidated != nil {
		m.onInvalidated()
	}
}

// startRevalidation runs one periodic check. The local expiry check happens
// inline; the backend confirmation runs on its own goroutine so a slow
// backend never stalls the loop. Failures are reported through the
// broadcaster like any other invalidation.
func (m *Manager) startRevalidation(ctx context.Context) {
	snap := m.Snapshot()
	if snap.State != models.StateAuthenticated {
		return
	}
	if m.metrics != nil {
		m.metrics.Revalidations.WithLabelValues(metrics.TriggerPeriodic).Inc()
	}

	cred, err := m.creds.Get(ctx)
	if err != nil || !token.IsValid(cred, m.now()) {
		m.signalInvalid(metrics.SourcePeriodic)
		return
	}

	userID := snap.Identity.ID
	go func() {
		rctx, cancel := context.WithTimeout(ctx, revalidateTimeout)
		defer cancel()
		rctx, span := m.tracer.Start(rctx, tracer.SpanRevalidate,
			tracer.String(tracer.AttrTrigger, metrics.TriggerPeriodic),
			tracer.String(tracer.AttrUserID, userID))
		_, ferr := m.api.FetchUser(rctx, cred, userID)
		if ferr != nil {
			span.AddEvent(tracer.EventInvalidated, tracer.String(tracer.AttrUserID, userID))
			m.logger.InfoContext(rctx, "periodic revalidation failed", "user_id", userID, "error", ferr)
			m.signalInvalid(metrics.SourcePeriodic)
		}
		span.End(ferr)
	}()
}

func (m *Manager) signalInvalid(source string) {
	if m.metrics != nil {
		m.metrics.Invalidations.WithLabelValues(source).Inc()
	}
	m.bus.Signal()
}

// apply enqueues a transition for the Run loop and waits for its outcome.
func (m *Manager) apply(ctx context.Context, fn func(context.Context) error) error {
	req := applyRequest{fn: fn, errc: make(chan error, 1)}
	select {
	case m.applyc <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) currentState() models.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(state models.State, ident *models.Identity) {
	m.mu.Lock()
	m.state = state
	m.identity = ident
	m.mu.Unlock()

	if m.metrics != nil {
		if state == models.StateAuthenticated {
			m.metrics.SessionActive.Set(1)
		} else {
			m.metrics.SessionActive.Set(0)
		}
	}
}
