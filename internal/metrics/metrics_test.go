package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterSeries(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("dispatch_delivered_total", map[string]string{"tier": "first_party"}, "Messages delivered per tier")
	r.IncrementCounter("dispatch_delivered_total", map[string]string{"tier": "first_party"}, "Messages delivered per tier")
	r.IncrementCounter("dispatch_delivered_total", map[string]string{"tier": "webhook"}, "Messages delivered per tier")

	snap := r.Snapshot()
	require.Len(t, snap.Counters, 2)
	assert.Equal(t, 2.0, snap.Counters[`dispatch_delivered_total{tier=first_party}`].Value)
	assert.Equal(t, 1.0, snap.Counters[`dispatch_delivered_total{tier=webhook}`].Value)
}

func TestSeriesKeyIsLabelOrderIndependent(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("http_responses_total", map[string]string{"method": "POST", "status_code": "200"}, "")
	r.IncrementCounter("http_responses_total", map[string]string{"status_code": "200", "method": "POST"}, "")

	snap := r.Snapshot()
	require.Len(t, snap.Counters, 1)
	assert.Equal(t, 2.0, snap.Counters[`http_responses_total{method=POST,status_code=200}`].Value)
}

func TestAddToCounterNegativeDelta(t *testing.T) {
	// The middleware tracks in-flight requests by incrementing on entry
	// and adding -1 on exit.
	r := NewRegistry()

	r.IncrementCounter("http_requests_active", nil, "")
	r.IncrementCounter("http_requests_active", nil, "")
	r.AddToCounter("http_requests_active", -1, nil, "")

	snap := r.Snapshot()
	assert.Equal(t, 1.0, snap.Counters["http_requests_active"].Value)
}

func TestTimerAggregation(t *testing.T) {
	r := NewRegistry()

	for _, d := range []time.Duration{30 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond} {
		r.RecordTimer("dispatch_duration", d, nil, "Outbound delivery latency")
	}

	snap := r.Snapshot()
	tm := snap.Timers["dispatch_duration"]
	assert.EqualValues(t, 3, tm.Count)
	assert.InDelta(t, 60, tm.SumMs, 0.01)
	assert.InDelta(t, 10, tm.MinMs, 0.01)
	assert.InDelta(t, 30, tm.MaxMs, 0.01)
	assert.InDelta(t, 20, tm.AvgMs, 0.01)
	// Too few samples for percentiles.
	assert.Zero(t, tm.P95Ms)
}

func TestTimerPercentiles(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 100; i++ {
		r.RecordTimer("callback_processing_duration", time.Duration(i)*time.Millisecond, nil, "")
	}

	tm := r.Snapshot().Timers["callback_processing_duration"]
	assert.InDelta(t, 95, tm.P95Ms, 1)
	assert.InDelta(t, 99, tm.P99Ms, 1)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("callback_requests_total", map[string]string{"type": "wecom"}, "")

	snap := r.Snapshot()
	for key, c := range snap.Counters {
		c.Value = 99
		c.Labels["type"] = "mutated"
		snap.Counters[key] = c
	}

	fresh := r.Snapshot()
	c := fresh.Counters[`callback_requests_total{type=wecom}`]
	assert.Equal(t, 1.0, c.Value)
	assert.Equal(t, "wecom", c.Labels["type"])
}

func TestSnapshotUptime(t *testing.T) {
	r := NewRegistry()
	snap := r.Snapshot()
	assert.GreaterOrEqual(t, snap.UptimeMs, int64(0))
	assert.NotZero(t, snap.Timestamp)
}

func TestConcurrentUpdates(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.IncrementCounter("callback_requests_total", nil, "")
				r.RecordTimer("http_request_duration", time.Millisecond, nil, "")
			}
		}()
	}
	wg.Wait()

	snap := r.Snapshot()
	assert.Equal(t, 800.0, snap.Counters["callback_requests_total"].Value)
	assert.EqualValues(t, 800, snap.Timers["http_request_duration"].Count)
}

func TestDefaultRegistryHelpers(t *testing.T) {
	Default().Reset()

	IncrementCounter("dispatch_queued_total", nil, "Messages queued for polling")
	AddToCounter("dispatch_queued_total", 2, nil, "Messages queued for polling")
	RecordTimer("dispatch_duration", 5*time.Millisecond, nil, "")

	snap := Current()
	assert.Equal(t, 3.0, snap.Counters["dispatch_queued_total"].Value)
	assert.EqualValues(t, 1, snap.Timers["dispatch_duration"].Count)

	Default().Reset()
	assert.Empty(t, Current().Counters)
}
