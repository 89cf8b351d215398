// Package sessionguard bootstraps and guards the authenticated session of a
// driving-school client application backed by a hosted auth service.
//
// A [Guard] owns the application-wide {session, isLoading} state. [Guard.Start]
// reads the session persisted on the device, asks the backend whether its
// token is still recognised, clears it locally when it is not, and publishes
// the result. After that, every session change reported by the auth client
// replaces the published session.
//
// # Architecture boundaries
//
// sessionguard is the public surface: [Guard], [Builder], [Config],
// [IsStaleSessionError] and the metrics and audit types. The bootstrap
// algorithm itself lives in internal/flows and audit delivery in
// internal/audit. The backend client is the auth package; persisted storage
// is the session package.
//
// # What this package must NOT do
//
//   - Retry session validation; a validation result is classified once.
//   - Write state after [Guard.Close].
//   - Keep global state; every Guard is independent and travels by injection
//     or [WithGuard].
package sessionguard
