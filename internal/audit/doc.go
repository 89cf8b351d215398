// Package audit delivers session lifecycle events to a sink off the caller's goroutine.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines writer, no-op).
//   - [Dispatcher]: buffered relay that either drops or blocks when full.
//   - [Event]: one bootstrap outcome or session change, with a correlation id.
//
// The package does not decide which events exist; the guard does. Events never
// carry access or refresh tokens.
package audit
