package sessionguard

import (
	"io"

	"github.com/MrEthical07/sessionguard/internal/audit"
)

// Audit event types emitted by a Guard.
const (
	AuditEventBootstrap     = "session_bootstrap"
	AuditEventSessionChange = "session_change"
)

type (
	// AuditEvent is one audited bootstrap outcome or session change.
	AuditEvent = audit.Event
	// AuditSink receives audit events from the dispatcher goroutine.
	AuditSink = audit.Sink
	// NoOpSink discards audit events.
	NoOpSink = audit.NoOpSink
	// ChannelSink forwards audit events to a buffered channel.
	ChannelSink = audit.ChannelSink
	// JSONWriterSink writes audit events as JSON lines.
	JSONWriterSink = audit.JSONWriterSink
)

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
