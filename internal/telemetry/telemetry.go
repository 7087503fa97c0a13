// Package telemetry bumps the core's own internal Supportability-style
// counters (dropped metrics, evicted segments, DT accept/create
// outcomes) onto a caller-supplied statsd client, the same client
// shape a dd-trace-go-style tracer dials for its own
// "datadog.tracer.*" health metrics.
package telemetry

import (
	"time"

	"golang.org/x/time/rate"
)

// Client is the subset of github.com/DataDog/datadog-go/v5/statsd.ClientInterface
// this package depends on. Keeping it narrow lets callers pass the real
// statsd client, the package's NoOpClient, or a test double.
type Client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
}

// NoOp is a Client that discards everything. It's the default when no
// statsd client is configured, mirroring statsd.NoOpClient's usual
// fallback role in an unstarted tracer.
type NoOp struct{}

func (NoOp) Count(string, int64, []string, float64) error { return nil }
func (NoOp) Incr(string, []string, float64) error          { return nil }

// Sink bumps counters, rate-limiting the high-volume "dropped" family so a
// sustained overflow doesn't flood the downstream statsd pipe.
type Sink struct {
	client  Client
	dropLim *rate.Limiter
}

// New builds a Sink. If client is nil, a NoOp is used.
func New(client Client) *Sink {
	if client == nil {
		client = NoOp{}
	}
	return &Sink{
		client:  client,
		dropLim: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// CountDropped bumps a drop counter for the given reason, at most at the
// configured burst rate.
func (s *Sink) CountDropped(metricName string, n int64) {
	if !s.dropLim.Allow() {
		return
	}
	_ = s.client.Count(metricName, n, nil, 1)
}

// Incr bumps a unit counter unconditionally (DT accept/create outcomes
// must record exactly one metric per call; these are not rate-limited).
func (s *Sink) Incr(metricName string) {
	_ = s.client.Incr(metricName, nil, 1)
}
