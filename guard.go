package sessionguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/sessionguard/auth"
	"github.com/MrEthical07/sessionguard/internal/audit"
	"github.com/MrEthical07/sessionguard/internal/flows"
	"github.com/MrEthical07/sessionguard/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuthClient is the part of the backend client the guard depends on.
// *auth.Client implements it.
type AuthClient interface {
	Configured() bool
	GetSession(ctx context.Context) (*session.Session, error)
	GetUser(ctx context.Context, accessToken string) (*session.User, error)
	SignOut(ctx context.Context, scope auth.SignOutScope) error
	OnAuthStateChange(fn func(auth.ChangeEvent)) *auth.Subscription
}

// State is the published authentication state. While IsLoading is true the
// session must not be trusted; once false it is authoritative until the next
// change event.
type State struct {
	Session   *session.Session
	IsLoading bool
}

// SignedIn reports whether the state is settled and carries a session.
func (s State) SignedIn() bool {
	return !s.IsLoading && s.Session != nil
}

// BootstrapOutcome names how a bootstrap ended.
type BootstrapOutcome string

const (
	OutcomeUnconfigured   BootstrapOutcome = "unconfigured"
	OutcomeNoSession      BootstrapOutcome = "no_session"
	OutcomeFetchFailed    BootstrapOutcome = "fetch_failed"
	OutcomeFetchExhausted BootstrapOutcome = "fetch_exhausted"
	OutcomeCanceled       BootstrapOutcome = "canceled"
	OutcomeStale          BootstrapOutcome = "stale"
	OutcomeUserMissing    BootstrapOutcome = "user_missing"
	OutcomeUnverified     BootstrapOutcome = "unverified"
	OutcomeConfirmed      BootstrapOutcome = "confirmed"
)

// BootstrapReport describes the last bootstrap for diagnostics.
type BootstrapReport struct {
	Outcome  BootstrapOutcome
	Attempts int
	Delays   []time.Duration
	Duration time.Duration

	FetchErr    error
	ValidateErr error
	SignOutErr  error
}

// Guard is the application-scoped session state container.
//
// Create one with [Builder.Build] at application start, call [Guard.Start]
// once, and [Guard.Close] at teardown. All methods are safe for concurrent use.
type Guard struct {
	config  Config
	client  AuthClient
	log     logrus.FieldLogger
	metrics *Metrics
	audit   *audit.Dispatcher
	sleep   func(context.Context, time.Duration) error

	mu          sync.Mutex
	state       State
	report      *BootstrapReport
	watchers    map[uint64]func(State)
	nextWatcher uint64
	started     bool
	closed      bool
	cancel      context.CancelFunc
	sub         *auth.Subscription
	stopAfter   func() bool

	ready     chan struct{}
	readyOnce sync.Once
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Ready is closed once the bootstrap has published its result, or when the
// guard is closed before that.
func (g *Guard) Ready() <-chan struct{} {
	return g.ready
}

// Wait blocks until Ready or ctx is done and returns the state at that point.
func (g *Guard) Wait(ctx context.Context) (State, error) {
	select {
	case <-g.ready:
		return g.State(), nil
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
}

// Watch registers fn to be called after every state write with the state that
// write produced. Calls happen outside the guard's lock on the writing
// goroutine; concurrent writes may reach fn in either order, so use State for
// the latest value. The returned function removes fn.
func (g *Guard) Watch(fn func(State)) (cancel func()) {
	g.mu.Lock()
	id := g.nextWatcher
	g.nextWatcher++
	g.watchers[id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.watchers, id)
			g.mu.Unlock()
		})
	}
}

// LastBootstrap returns the report of the completed bootstrap, or false while
// none has completed.
func (g *Guard) LastBootstrap() (BootstrapReport, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.report == nil {
		return BootstrapReport{}, false
	}
	r := *g.report
	r.Delays = append([]time.Duration(nil), g.report.Delays...)
	return r, true
}

// Metrics returns the guard's metrics.
func (g *Guard) Metrics() *Metrics {
	return g.metrics
}

// MetricsSnapshot returns a copy of the guard's metrics.
func (g *Guard) MetricsSnapshot() MetricsSnapshot {
	return g.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (g *Guard) AuditDropped() uint64 {
	return g.audit.Dropped()
}

// Start subscribes to session changes and runs the bootstrap in the
// background. Cancelling ctx has the same effect as Close. Start returns
// ErrAlreadyStarted on a second call and ErrGuardClosed after Close.
//
// Without a configured backend Start publishes {nil, false} immediately and
// makes no calls to the auth client.
func (g *Guard) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGuardClosed
	}
	if g.started {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	g.started = true

	configured := g.client.Configured()
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	if configured {
		g.sub = g.client.OnAuthStateChange(g.applyChange)
	}
	g.stopAfter = context.AfterFunc(ctx, func() { _ = g.Close() })
	g.mu.Unlock()

	g.metrics.Inc(MetricBootstrapStarted)

	deps := flows.BootstrapDeps{
		Configured:       configured,
		MaxAttempts:      g.config.Bootstrap.MaxFetchAttempts,
		BackoffStep:      g.config.Bootstrap.BackoffStep,
		FetchSession:     g.client.GetSession,
		IsAcquireTimeout: IsAcquireTimeout,
		ValidateUser:     g.client.GetUser,
		IsStale:          IsStaleSessionError,
		SignOutLocal: func(ctx context.Context) error {
			return g.client.SignOut(ctx, auth.ScopeLocal)
		},
		Sleep: g.sleep,
		Warn:  g.log.Warnf,
		Debug: g.log.Debugf,
	}

	if !configured {
		g.finishBootstrap(ctx, flows.RunBootstrap(runCtx, deps))
		return nil
	}
	go func() {
		g.finishBootstrap(runCtx, flows.RunBootstrap(runCtx, deps))
	}()
	return nil
}

func (g *Guard) finishBootstrap(ctx context.Context, res flows.BootstrapResult) {
	report := newBootstrapReport(res)
	g.metrics.Inc(outcomeMetric(res.Outcome))
	g.metrics.Observe(MetricBootstrapLatency, res.Duration)
	for range res.Delays {
		g.metrics.Inc(MetricFetchRetry)
	}
	if res.SignOutErr != nil {
		g.metrics.Inc(MetricLocalSignOutFailure)
	}

	next := State{Session: res.Session, IsLoading: false}
	if !g.write(func(s *State) { *s = next }, func() { g.report = &report }) {
		g.log.WithField("outcome", report.Outcome).Debug("guard closed before bootstrap finished, result dropped")
		return
	}

	entry := g.log.WithFields(logrus.Fields{
		"outcome":  report.Outcome,
		"attempts": report.Attempts,
		"duration": report.Duration,
	})
	if res.Session != nil {
		entry = entry.WithField("user_id", res.Session.UserID().String())
	}
	entry.Info("session bootstrap finished")

	g.emitAudit(ctx, AuditEvent{
		EventType: AuditEventBootstrap,
		UserID:    userIDString(res.Session),
		Outcome:   string(report.Outcome),
		Success:   res.Outcome.SignedIn() || res.Outcome == flows.OutcomeNoSession || res.Outcome == flows.OutcomeUnconfigured,
		Error:     firstErrorString(res.FetchErr, res.ValidateErr),
		Metadata: map[string]string{
			"attempts": fmt.Sprint(report.Attempts),
		},
	})
	g.readyOnce.Do(func() { close(g.ready) })
}

// applyChange overwrites the published session with the one carried by ev.
// No validation happens here.
func (g *Guard) applyChange(ev auth.ChangeEvent) {
	if !g.write(func(s *State) { s.Session = ev.Session }, nil) {
		return
	}
	g.metrics.Inc(MetricSessionChange)
	g.log.WithField("event", string(ev.Type)).Debug("session changed")
	g.emitAudit(context.Background(), AuditEvent{
		EventType: AuditEventSessionChange,
		UserID:    userIDString(ev.Session),
		Outcome:   string(ev.Type),
		Success:   true,
	})
}

// write applies mutate under the lock unless the guard is closed, then
// notifies watchers outside the lock. It reports whether the write happened.
func (g *Guard) write(mutate func(*State), also func()) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.metrics.Inc(MetricStateWriteSkipped)
		return false
	}
	mutate(&g.state)
	if also != nil {
		also()
	}
	state := g.state
	fns := make([]func(State), 0, len(g.watchers))
	for _, fn := range g.watchers {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
	return true
}

// Close releases the change subscription, cancels a running bootstrap and
// flushes the audit dispatcher. No state is written afterwards. Close is
// idempotent and safe to call from a Watch callback.
func (g *Guard) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	sub, cancel, stopAfter := g.sub, g.cancel, g.stopAfter
	g.sub, g.cancel, g.stopAfter = nil, nil, nil
	g.mu.Unlock()

	sub.Unsubscribe()
	if stopAfter != nil {
		stopAfter()
	}
	if cancel != nil {
		cancel()
	}
	g.readyOnce.Do(func() { close(g.ready) })
	g.audit.Close()
	return nil
}

func (g *Guard) emitAudit(ctx context.Context, ev AuditEvent) {
	if g.audit == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	ev.CorrelationID = uuid.NewString()
	g.audit.Emit(ctx, ev)
}

func newBootstrapReport(res flows.BootstrapResult) BootstrapReport {
	return BootstrapReport{
		Outcome:     BootstrapOutcome(res.Outcome.String()),
		Attempts:    res.Attempts,
		Delays:      append([]time.Duration(nil), res.Delays...),
		Duration:    res.Duration,
		FetchErr:    res.FetchErr,
		ValidateErr: res.ValidateErr,
		SignOutErr:  res.SignOutErr,
	}
}

func outcomeMetric(o flows.BootstrapOutcome) MetricID {
	switch o {
	case flows.OutcomeConfirmed:
		return MetricBootstrapConfirmed
	case flows.OutcomeUnverified:
		return MetricBootstrapUnverified
	case flows.OutcomeStale:
		return MetricBootstrapStale
	case flows.OutcomeUserMissing:
		return MetricBootstrapUserMissing
	case flows.OutcomeNoSession:
		return MetricBootstrapNoSession
	case flows.OutcomeFetchFailed:
		return MetricBootstrapFetchFailed
	case flows.OutcomeFetchExhausted:
		return MetricBootstrapFetchExhausted
	case flows.OutcomeCanceled:
		return MetricBootstrapCanceled
	default:
		return MetricBootstrapUnconfigured
	}
}

func userIDString(s *session.Session) string {
	if id := s.UserID(); id != uuid.Nil {
		return id.String()
	}
	return ""
}

func firstErrorString(errs ...error) string {
	for _, err := range errs {
		if err != nil {
			return err.Error()
		}
	}
	return ""
}
