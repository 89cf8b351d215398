// Package flows contains the pure orchestrator behind Guard.Start.
//
// [RunBootstrap] takes every collaborator through [BootstrapDeps] (session
// fetch, user validation, local sign-out, delay function) and reports what
// happened in a [BootstrapResult]. It never touches guard state itself.
//
// # What this package must NOT do
//
//   - Hold state between calls.
//   - Import sessionguard (to avoid import cycles).
//   - Sleep on real timers; all waiting goes through BootstrapDeps.Sleep.
package flows
