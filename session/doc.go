// Package session provides the client-side session model, a compact versioned binary
// encoding for persisted sessions, and the stores that keep a session on the device.
//
// # Binary encoding
//
// Persisted sessions use a versioned binary format (v1 and v2) with forward migration on
// read. The encoder is append-only: new versions add fields but never reinterpret old
// ones.
//
// # Architecture boundaries
//
// This package owns the [Store] implementations and the [Session] model. It does NOT
// talk to the auth backend or decide whether a session is stale. The auth client
// and the guard own that.
//
// # What this package must NOT do
//
//   - Import sessionguard, auth, or gate (no upward imports).
//   - Perform network calls other than the configured Redis client.
//   - Write the session to disk unsealed.
package session
