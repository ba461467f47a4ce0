// Package stats exposes operational counters and gauges, mirrored
// between expvar (for the teacher's lightweight statsInc/LiveTopics
// style) and Prometheus client_golang (for scraping), grounded on
// server/hub.go's topicsLive expvar.Int and server/cluster.go's
// statsInc("LiveClusterNodes", ...) calls.
package stats

import (
	"expvar"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Int is a named integer counter/gauge published to both expvar and
// Prometheus under the same name.
type Int struct {
	ev   *expvar.Int
	gauge prometheus.Gauge
}

var (
	mu   sync.Mutex
	ints = make(map[string]*Int)
)

// NewInt registers a new named counter. Calling NewInt twice with the
// same name panics, the same as expvar.Publish would.
func NewInt(name string) *Int {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := ints[name]; dup {
		panic("stats: duplicate counter " + name)
	}
	i := &Int{
		ev: new(expvar.Int),
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smf_" + name,
			Help: name,
		}),
	}
	expvar.Publish(name, i.ev)
	prometheus.MustRegister(i.gauge)
	ints[name] = i
	return i
}

// Add adds delta (possibly negative) to the counter.
func (i *Int) Add(delta int64) {
	i.ev.Add(delta)
	i.gauge.Add(float64(delta))
}

// Set sets the counter to an absolute value.
func (i *Int) Set(v int64) {
	i.ev.Set(v)
	i.gauge.Set(float64(v))
}

// Inc increments the named counter by delta, creating it on first use.
// This mirrors the teacher's free-function statsInc("Name", delta)
// call style so callers do not need to hold onto an *Int themselves.
func Inc(name string, delta int64) {
	mu.Lock()
	i, ok := ints[name]
	mu.Unlock()
	if !ok {
		mu.Lock()
		if i, ok = ints[name]; !ok {
			i = NewIntLocked(name)
		}
		mu.Unlock()
	}
	i.Add(delta)
}

// NewIntLocked is NewInt without the duplicate-registration panic, for
// the lazy-create path in Inc. Callers must hold mu.
func NewIntLocked(name string) *Int {
	i := &Int{
		ev: new(expvar.Int),
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smf_" + name,
			Help: name,
		}),
	}
	expvar.Publish(name, i.ev)
	prometheus.MustRegister(i.gauge)
	ints[name] = i
	return i
}

// Well-known counter names shared across packages, analogous to the
// teacher's "LiveTopics" / "LiveClusterNodes" constants.
const (
	LiveClusterNodes = "LiveClusterNodes"
	TotalClusterNodes = "TotalClusterNodes"
	ActiveIPTSessions = "ActiveIPTSessions"
	ReadoutCyclesRun  = "ReadoutCyclesRun"
	ReadoutsIngested  = "ReadoutsIngested"
	PushAttempts      = "PushAttempts"
	PushFailures      = "PushFailures"
)
