// Package metrics counts what the bot does (messages, replies, check-ins,
// generation calls) and serves the numbers at a scrape endpoint.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default holds the metrics declared below and is what Serve exposes.
var Default = NewRegistry()

// series identifies one time series: a metric name plus an optional label set
// written as Prometheus label pairs (kind="quota").
type series struct {
	name   string
	help   string
	labels string
}

func (s series) key() string { return s.name + "{" + s.labels + "}" }

// ident renders name{labels,extra}, leaving out empty braces.
func (s series) ident(suffix, extra string) string {
	var pairs []string
	if s.labels != "" {
		pairs = append(pairs, s.labels)
	}
	if extra != "" {
		pairs = append(pairs, extra)
	}
	if len(pairs) == 0 {
		return s.name + suffix
	}
	return s.name + suffix + "{" + strings.Join(pairs, ",") + "}"
}

type metric interface {
	id() series
	kind() string
	writeSamples(sb *strings.Builder)
}

// Registry owns a set of metrics keyed by name and labels.
type Registry struct {
	started time.Time

	mu      sync.Mutex
	metrics map[string]metric
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{started: time.Now(), metrics: make(map[string]metric)}
}

// Uptime reports the time since the registry was created.
func (r *Registry) Uptime() time.Duration { return time.Since(r.started) }

// register returns the metric already stored under s, or stores fresh().
// It panics when the same series was registered as another kind.
func register[M metric](r *Registry, s series, fresh func() M) M {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[s.key()]; ok {
		existing, ok := m.(M)
		if !ok {
			panic(fmt.Sprintf("metrics: %s already registered as a %s", s.key(), m.kind()))
		}
		return existing
	}
	m := fresh()
	r.metrics[s.key()] = m
	return m
}

// Counter only goes up.
type Counter struct {
	series
	n atomic.Int64
}

func (c *Counter) Inc()            { c.n.Add(1) }
func (c *Counter) Add(delta int64) { c.n.Add(delta) }
func (c *Counter) Value() int64    { return c.n.Load() }

func (c *Counter) id() series   { return c.series }
func (c *Counter) kind() string { return "counter" }
func (c *Counter) writeSamples(sb *strings.Builder) {
	fmt.Fprintf(sb, "%s %d\n", c.ident("", ""), c.Value())
}

// Gauge tracks a level, such as messages in flight.
type Gauge struct {
	series
	n atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.n.Store(v) }
func (g *Gauge) Inc()         { g.n.Add(1) }
func (g *Gauge) Dec()         { g.n.Add(-1) }
func (g *Gauge) Value() int64 { return g.n.Load() }

func (g *Gauge) id() series   { return g.series }
func (g *Gauge) kind() string { return "gauge" }
func (g *Gauge) writeSamples(sb *strings.Builder) {
	fmt.Fprintf(sb, "%s %d\n", g.ident("", ""), g.Value())
}

// Histogram counts observations into upper-bounded buckets. Each slot of
// hits holds only the observations that landed in that bucket; the
// cumulative counts are built when rendering.
type Histogram struct {
	series
	bounds []float64

	mu    sync.Mutex
	hits  []int64
	total int64
	sum   float64
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < len(h.hits) {
		h.hits[i]++
	}
	h.total++
	h.sum += v
}

func (h *Histogram) id() series   { return h.series }
func (h *Histogram) kind() string { return "histogram" }
func (h *Histogram) writeSamples(sb *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var running int64
	for i, bound := range h.bounds {
		running += h.hits[i]
		fmt.Fprintf(sb, "%s %d\n", h.ident("_bucket", fmt.Sprintf("le=%q", fmt.Sprint(bound))), running)
	}
	fmt.Fprintf(sb, "%s %d\n", h.ident("_bucket", `le="+Inf"`), h.total)
	fmt.Fprintf(sb, "%s %d\n", h.ident("_count", ""), h.total)
	fmt.Fprintf(sb, "%s %f\n", h.ident("_sum", ""), h.sum)
}

// Counter returns the counter for name and labels, creating it on first use.
func (r *Registry) Counter(name, help, labels string) *Counter {
	s := series{name: name, help: help, labels: labels}
	return register(r, s, func() *Counter { return &Counter{series: s} })
}

// Gauge returns the gauge for name and labels, creating it on first use.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	s := series{name: name, help: help, labels: labels}
	return register(r, s, func() *Gauge { return &Gauge{series: s} })
}

// Histogram returns the histogram for name and labels, creating it with the
// given bucket bounds on first use. An explicit +Inf bound is dropped since
// every histogram renders one.
func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	s := series{name: name, help: help, labels: labels}
	return register(r, s, func() *Histogram {
		var kept []float64
		for _, b := range bounds {
			if !math.IsInf(b, 1) {
				kept = append(kept, b)
			}
		}
		sort.Float64s(kept)
		return &Histogram{series: s, bounds: kept, hits: make([]int64, len(kept))}
	})
}

// Render writes the registry in the Prometheus text exposition format.
// Series are ordered by name and labels so repeated scrapes diff cleanly.
func (r *Registry) Render() string {
	r.mu.Lock()
	all := make([]metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		all = append(all, m)
	}
	r.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].id().key() < all[j].id().key() })

	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP checkin_uptime_seconds Seconds since the bot started\n")
	fmt.Fprintf(&sb, "# TYPE checkin_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "checkin_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	last := ""
	for _, m := range all {
		s := m.id()
		if s.name != last {
			fmt.Fprintf(&sb, "# HELP %s %s\n", s.name, s.help)
			fmt.Fprintf(&sb, "# TYPE %s %s\n", s.name, m.kind())
			last = s.name
		}
		m.writeSamples(&sb)
	}
	return sb.String()
}

// Handler serves Render over HTTP.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, r.Render())
	}
}

var (
	MessagesTotal   = Default.Counter("checkin_messages_total", "Inbound messages seen", "")
	MessagesIgnored = Default.Counter("checkin_messages_ignored_total", "Inbound messages ignored (self, other channel, empty)", "")
	RepliesSent     = Default.Counter("checkin_replies_total", "Replies sent", "")
	CheckInsSent    = Default.Counter("checkin_daily_sent_total", "Daily check-in messages sent", "")
	CheckInErrors   = Default.Counter("checkin_daily_errors_total", "Daily check-in attempts that failed", "")
	MemoryErrors    = Default.Counter("checkin_memory_errors_total", "Messages whose conversation context could not be built", "")
	InFlight        = Default.Gauge("checkin_messages_in_flight", "Messages currently being handled", "")

	GenerationLatency = Default.Histogram("checkin_generation_latency_seconds", "Generation call latency in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60})
)

// GenerationFailures returns the failure counter for one failure kind.
func GenerationFailures(kind string) *Counter {
	return Default.Counter("checkin_generation_failures_total", "Generation calls that failed, by kind", fmt.Sprintf("kind=%q", kind))
}
