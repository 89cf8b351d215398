package internaldefs

import (
	sessionguard "github.com/MrEthical07/sessionguard"
)

// CounterDef names one guard counter for exporters.
type CounterDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// HistogramDef names one guard histogram for exporters.
type HistogramDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: sessionguard.MetricBootstrapStarted, Name: "sessionguard_bootstrap_started_total", Help: "Bootstraps started."},
	{ID: sessionguard.MetricBootstrapConfirmed, Name: "sessionguard_bootstrap_confirmed_total", Help: "Bootstraps that confirmed the persisted session with the backend."},
	{ID: sessionguard.MetricBootstrapUnverified, Name: "sessionguard_bootstrap_unverified_total", Help: "Bootstraps that kept a session after an unclassified validation error."},
	{ID: sessionguard.MetricBootstrapStale, Name: "sessionguard_bootstrap_stale_total", Help: "Bootstraps that signed out a session the backend no longer honours."},
	{ID: sessionguard.MetricBootstrapUserMissing, Name: "sessionguard_bootstrap_user_missing_total", Help: "Bootstraps that signed out a session with no backend user."},
	{ID: sessionguard.MetricBootstrapNoSession, Name: "sessionguard_bootstrap_no_session_total", Help: "Bootstraps that found no persisted session."},
	{ID: sessionguard.MetricBootstrapFetchFailed, Name: "sessionguard_bootstrap_fetch_failed_total", Help: "Bootstraps ended by a non-retryable session fetch error."},
	{ID: sessionguard.MetricBootstrapFetchExhausted, Name: "sessionguard_bootstrap_fetch_exhausted_total", Help: "Bootstraps that ran out of session fetch attempts."},
	{ID: sessionguard.MetricBootstrapCanceled, Name: "sessionguard_bootstrap_canceled_total", Help: "Bootstraps canceled while backing off."},
	{ID: sessionguard.MetricBootstrapUnconfigured, Name: "sessionguard_bootstrap_unconfigured_total", Help: "Bootstraps skipped because no backend is configured."},
	{ID: sessionguard.MetricFetchRetry, Name: "sessionguard_fetch_retry_total", Help: "Backoff waits between session fetch attempts."},
	{ID: sessionguard.MetricLocalSignOutFailure, Name: "sessionguard_local_signout_failure_total", Help: "Local sign-outs that failed and were ignored."},
	{ID: sessionguard.MetricSessionChange, Name: "sessionguard_session_change_total", Help: "Session change events applied to the state."},
	{ID: sessionguard.MetricStateWriteSkipped, Name: "sessionguard_state_write_skipped_total", Help: "State writes dropped after the guard closed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: sessionguard.MetricBootstrapLatency, Name: "sessionguard_bootstrap_latency_seconds", Help: "Time from Start to the published bootstrap result."},
}

// HistogramBounds are the bucket upper bounds in seconds as rendered in text
// exposition, matching the guard's bucket layout.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramUpperBounds holds the finite bounds of HistogramBounds as numbers.
var HistogramUpperBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// missing buckets and ignoring extras.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
