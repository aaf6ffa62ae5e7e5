// Package metrics is the in-process registry behind the /metrics
// endpoint. The bridge tracks two shapes: counters (requests, per-tier
// deliveries, queue drops) and timers (request and dispatch latency).
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// counters and timers keep at most this many samples per series for
// percentile calculation
const maxTimerSamples = 1000

// percentiles are only reported once a series has enough samples to
// make them meaningful
const minPercentileSamples = 10

// Counter is a monotonic (or, for in-flight gauges, signed) series
type Counter struct {
	Name        string            `json:"name"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// Timer aggregates duration observations for one series
type Timer struct {
	Count   int64   `json:"count"`
	SumMs   float64 `json:"sum_ms"`
	MinMs   float64 `json:"min_ms"`
	MaxMs   float64 `json:"max_ms"`
	AvgMs   float64 `json:"avg_ms"`
	P95Ms   float64 `json:"p95_ms,omitempty"`
	P99Ms   float64 `json:"p99_ms,omitempty"`
	samples []float64
}

// Snapshot is the point-in-time view served by the metrics endpoint
type Snapshot struct {
	Counters  map[string]Counter `json:"counters"`
	Timers    map[string]Timer   `json:"timers"`
	UptimeMs  int64              `json:"uptime_ms"`
	Timestamp int64              `json:"timestamp"`
}

// Registry stores metric series keyed by name plus sorted labels
type Registry struct {
	mu       sync.Mutex
	counters map[string]*Counter
	timers   map[string]*Timer
	start    time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*Counter),
		timers:   make(map[string]*Timer),
		start:    time.Now(),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry
func Default() *Registry {
	return defaultRegistry
}

// IncrementCounter adds one to the counter series
func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

// AddToCounter adds delta to the counter series, creating it on first use.
// Negative deltas track in-flight counts.
func (r *Registry) AddToCounter(name string, delta float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	c := r.counters[key]
	if c == nil {
		c = &Counter{
			Name:        name,
			Labels:      copyLabels(labels),
			Description: description,
		}
		r.counters[key] = c
	}
	c.Value += delta
	c.LastUpdate = time.Now()
}

// RecordTimer folds one duration observation into the timer series
func (r *Registry) RecordTimer(name string, d time.Duration, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := float64(d) / float64(time.Millisecond)

	key := seriesKey(name, labels)
	tm := r.timers[key]
	if tm == nil {
		tm = &Timer{MinMs: ms}
		r.timers[key] = tm
	}

	tm.Count++
	tm.SumMs += ms
	tm.AvgMs = tm.SumMs / float64(tm.Count)
	if ms < tm.MinMs {
		tm.MinMs = ms
	}
	if ms > tm.MaxMs {
		tm.MaxMs = ms
	}

	tm.samples = append(tm.samples, ms)
	if len(tm.samples) > maxTimerSamples {
		tm.samples = tm.samples[len(tm.samples)-maxTimerSamples:]
	}
	if len(tm.samples) >= minPercentileSamples {
		sorted := make([]float64, len(tm.samples))
		copy(sorted, tm.samples)
		sort.Float64s(sorted)
		tm.P95Ms = percentile(sorted, 0.95)
		tm.P99Ms = percentile(sorted, 0.99)
	}
}

// Snapshot copies the current state; mutating the result does not
// affect the registry.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Counters:  make(map[string]Counter, len(r.counters)),
		Timers:    make(map[string]Timer, len(r.timers)),
		UptimeMs:  time.Since(r.start).Milliseconds(),
		Timestamp: time.Now().Unix(),
	}
	for key, c := range r.counters {
		copied := *c
		copied.Labels = copyLabels(c.Labels)
		snap.Counters[key] = copied
	}
	for key, tm := range r.timers {
		copied := *tm
		copied.samples = nil
		snap.Timers[key] = copied
	}
	return snap
}

// Reset drops all series; tests use it to isolate assertions
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]*Counter)
	r.timers = make(map[string]*Timer)
}

// seriesKey renders name{k=v,...} with label keys sorted, so the same
// labels always address the same series regardless of map order.
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// percentile picks the nearest-rank value from an ascending slice
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	return copied
}

// Package-level helpers against the default registry

// IncrementCounter adds one to the counter series in the default registry
func IncrementCounter(name string, labels map[string]string, description string) {
	defaultRegistry.IncrementCounter(name, labels, description)
}

// AddToCounter adds delta to the counter series in the default registry
func AddToCounter(name string, delta float64, labels map[string]string, description string) {
	defaultRegistry.AddToCounter(name, delta, labels, description)
}

// RecordTimer records a duration in the default registry
func RecordTimer(name string, d time.Duration, labels map[string]string, description string) {
	defaultRegistry.RecordTimer(name, d, labels, description)
}

// Current snapshots the default registry
func Current() Snapshot {
	return defaultRegistry.Snapshot()
}
