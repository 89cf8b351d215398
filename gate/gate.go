package gate

import (
	"context"
	"errors"
	"io"

	sessionguard "github.com/MrEthical07/sessionguard"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Route names a top-level screen.
type Route string

const (
	RouteLoading       Route = "loading"
	RouteMisconfigured Route = "misconfigured"
	RouteSignIn        Route = "sign_in"
	RouteOnboarding    Route = "onboarding"
	RouteApp           Route = "app"
)

// ErrProfileNotFound is returned by a ProfileSource when the user has no
// profile row.
var ErrProfileNotFound = errors.New("gate: profile not found")

// Profile is the per-user record that drives onboarding.
type Profile struct {
	ID                 uuid.UUID `json:"id"`
	FullName           string    `json:"full_name"`
	Role               string    `json:"role"`
	OrganizationID     *uuid.UUID `json:"organization_id"`
	MustChangePassword bool      `json:"must_change_password"`
}

// ProfileSource loads the profile of userID on behalf of the bearer of
// accessToken.
type ProfileSource interface {
	Profile(ctx context.Context, userID uuid.UUID, accessToken string) (*Profile, error)
}

// Gate resolves routes. A Gate without a ProfileSource never routes to
// onboarding.
type Gate struct {
	profiles ProfileSource
	log      logrus.FieldLogger
}

// New creates a Gate. logger may be nil.
func New(profiles ProfileSource, logger logrus.FieldLogger) *Gate {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Gate{profiles: profiles, log: logger.WithField("component", "gate")}
}

// Resolve returns the route for state. configured reports whether a backend is
// set up. When the profile cannot be loaded the route is RouteApp and the
// error is returned alongside it; a missing profile row routes to onboarding.
func (g *Gate) Resolve(ctx context.Context, configured bool, state sessionguard.State) (Route, error) {
	if state.IsLoading {
		return RouteLoading, nil
	}
	if !configured {
		return RouteMisconfigured, nil
	}
	if state.Session == nil {
		return RouteSignIn, nil
	}
	if g == nil || g.profiles == nil {
		return RouteApp, nil
	}

	sess := state.Session
	p, err := g.profiles.Profile(ctx, sess.UserID(), sess.AccessToken)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return RouteOnboarding, nil
	case err != nil:
		g.log.WithError(err).Warn("profile lookup failed, routing to app")
		return RouteApp, err
	case p == nil:
		return RouteOnboarding, nil
	case p.MustChangePassword:
		return RouteOnboarding, nil
	default:
		return RouteApp, nil
	}
}
