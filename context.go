package sessionguard

import "context"

type guardContextKey struct{}

// WithGuard returns a copy of ctx carrying g. Code deep in the application
// reads the session through [FromContext] instead of a package-level variable.
func WithGuard(ctx context.Context, g *Guard) context.Context {
	return context.WithValue(ctx, guardContextKey{}, g)
}

// FromContext returns the Guard stored by [WithGuard], or nil.
func FromContext(ctx context.Context) *Guard {
	if ctx == nil {
		return nil
	}
	g, _ := ctx.Value(guardContextKey{}).(*Guard)
	return g
}

// StateFromContext returns the state of the Guard in ctx. Without a Guard it
// reports a loading state so callers never act on an unknown session.
func StateFromContext(ctx context.Context) State {
	g := FromContext(ctx)
	if g == nil {
		return State{IsLoading: true}
	}
	return g.State()
}
