package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionguard/session"
)

// BootstrapOutcome classifies how a bootstrap ended.
type BootstrapOutcome int

const (
	// OutcomeUnconfigured: no backend configured, nothing was called.
	OutcomeUnconfigured BootstrapOutcome = iota
	// OutcomeNoSession: nothing persisted on the device.
	OutcomeNoSession
	// OutcomeFetchFailed: the fetch failed with a non-retryable error.
	OutcomeFetchFailed
	// OutcomeFetchExhausted: every attempt hit an acquire timeout.
	OutcomeFetchExhausted
	// OutcomeCanceled: the context ended during a backoff wait.
	OutcomeCanceled
	// OutcomeStale: the backend rejected the session; it was signed out locally.
	OutcomeStale
	// OutcomeUserMissing: the backend returned no user; the session was signed out locally.
	OutcomeUserMissing
	// OutcomeUnverified: validation failed for an unclassified reason; the session was kept.
	OutcomeUnverified
	// OutcomeConfirmed: the backend confirmed the session's user.
	OutcomeConfirmed
)

var outcomeNames = [...]string{
	OutcomeUnconfigured:   "unconfigured",
	OutcomeNoSession:      "no_session",
	OutcomeFetchFailed:    "fetch_failed",
	OutcomeFetchExhausted: "fetch_exhausted",
	OutcomeCanceled:       "canceled",
	OutcomeStale:          "stale",
	OutcomeUserMissing:    "user_missing",
	OutcomeUnverified:     "unverified",
	OutcomeConfirmed:      "confirmed",
}

func (o BootstrapOutcome) String() string {
	if int(o) < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// SignedIn reports whether the outcome publishes a session.
func (o BootstrapOutcome) SignedIn() bool {
	return o == OutcomeConfirmed || o == OutcomeUnverified
}

// BootstrapDeps captures bootstrap dependencies.
type BootstrapDeps struct {
	Configured  bool
	MaxAttempts int
	BackoffStep time.Duration

	FetchSession     func(context.Context) (*session.Session, error)
	IsAcquireTimeout func(error) bool
	ValidateUser     func(ctx context.Context, accessToken string) (*session.User, error)
	IsStale          func(error) bool
	SignOutLocal     func(context.Context) error
	Sleep            func(context.Context, time.Duration) error

	Warn  func(string, ...any)
	Debug func(string, ...any)
}

// BootstrapResult is the terminal state of one bootstrap run.
type BootstrapResult struct {
	Outcome  BootstrapOutcome
	Session  *session.Session
	Attempts int
	Delays   []time.Duration
	Duration time.Duration

	FetchErr    error
	ValidateErr error
	SignOutErr  error
}

// RunBootstrap fetches the persisted session, validates it against the backend
// and decides what to publish. Every path ends in a result; none returns an error.
func RunBootstrap(ctx context.Context, deps BootstrapDeps) BootstrapResult {
	start := time.Now()
	res := runBootstrap(ctx, deps)
	res.Duration = time.Since(start)
	return res
}

func runBootstrap(ctx context.Context, deps BootstrapDeps) BootstrapResult {
	if !deps.Configured {
		return BootstrapResult{Outcome: OutcomeUnconfigured}
	}

	maxAttempts := deps.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		res  BootstrapResult
		sess *session.Session
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		s, err := deps.FetchSession(ctx)
		if err == nil {
			sess = s
			res.FetchErr = nil
			break
		}
		res.FetchErr = err

		if !deps.IsAcquireTimeout(err) {
			res.Outcome = OutcomeFetchFailed
			return res
		}
		if attempt == maxAttempts {
			res.Outcome = OutcomeFetchExhausted
			return res
		}

		delay := deps.BackoffStep * time.Duration(attempt)
		debugf(deps, "session fetch hit acquire timeout, attempt %d, retrying in %s", attempt, delay)
		res.Delays = append(res.Delays, delay)
		if err := deps.Sleep(ctx, delay); err != nil {
			res.Outcome = OutcomeCanceled
			return res
		}
	}

	if sess == nil {
		res.Outcome = OutcomeNoSession
		return res
	}

	user, err := deps.ValidateUser(ctx, sess.AccessToken)
	if err != nil {
		res.ValidateErr = err
		if deps.IsStale(err) {
			res.Outcome = OutcomeStale
			res.SignOutErr = signOutLocal(ctx, deps)
			return res
		}
		warnf(deps, "session validation failed, keeping persisted session: %v", err)
		res.Outcome = OutcomeUnverified
		res.Session = sess
		return res
	}
	if user == nil {
		res.Outcome = OutcomeUserMissing
		res.SignOutErr = signOutLocal(ctx, deps)
		return res
	}

	res.Outcome = OutcomeConfirmed
	res.Session = sess
	return res
}

// signOutLocal clears persisted state. Its failure never changes the outcome.
func signOutLocal(ctx context.Context, deps BootstrapDeps) error {
	if deps.SignOutLocal == nil {
		return nil
	}
	if err := deps.SignOutLocal(ctx); err != nil {
		warnf(deps, "local sign-out failed: %v", err)
		return err
	}
	return nil
}

func warnf(deps BootstrapDeps, format string, args ...any) {
	if deps.Warn != nil {
		deps.Warn(format, args...)
	}
}

func debugf(deps BootstrapDeps, format string, args ...any) {
	if deps.Debug != nil {
		deps.Debug(format, args...)
	}
}
