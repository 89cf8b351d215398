package sessionguard

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/sessionguard/auth"
	"github.com/MrEthical07/sessionguard/internal/audit"
	"github.com/sirupsen/logrus"
)

// Builder assembles a [Guard]. A Builder is single-use.
type Builder struct {
	config    Config
	client    AuthClient
	logger    logrus.FieldLogger
	auditSink AuditSink
	sleep     func(context.Context, time.Duration) error

	built bool
}

// New returns a Builder starting from [DefaultConfig].
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAuthClient sets the backend client. Required.
func (b *Builder) WithAuthClient(c AuthClient) *Builder {
	b.client = c
	return b
}

// WithLogger sets the logger. The default discards output.
func (b *Builder) WithLogger(l logrus.FieldLogger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit sink and enables audit delivery.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithSleep replaces the delay function used between fetch attempts.
// Tests pass a fake that records the requested delays.
func (b *Builder) WithSleep(fn func(context.Context, time.Duration) error) *Builder {
	b.sleep = fn
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the bootstrap latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns an unstarted Guard.
func (b *Builder) Build() (*Guard, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.client == nil {
		return nil, ErrAuthClientRequired
	}

	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	sleep := b.sleep
	if sleep == nil {
		sleep = auth.Sleep
	}

	g := &Guard{
		config:   cfg,
		client:   b.client,
		log:      logger.WithField("component", "sessionguard"),
		metrics:  NewMetrics(cfg.Metrics),
		sleep:    sleep,
		state:    State{IsLoading: true},
		watchers: make(map[uint64]func(State)),
		ready:    make(chan struct{}),
	}
	g.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true
	return g, nil
}
