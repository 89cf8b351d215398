// Package auth is a client for the hosted auth backend (GoTrue HTTP API).
//
// A [Client] owns the device's persisted session: it reads it under a storage
// lock that can time out, refreshes it when it is about to expire, and emits a
// [ChangeEvent] to every subscriber whenever the session changes.
//
// The session bootstrap in the root package consumes GetSession, GetUser,
// SignOut and OnAuthStateChange; the remaining methods cover the sign-in and
// account maintenance flows the application needs around it.
package auth
