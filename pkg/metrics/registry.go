// Package metrics provides the in-process observability sink: named
// counters, gauges, and fixed-bucket histograms with bounded label sets.
// Updates are cheap and safe for concurrent use; a JSON snapshot is exposed
// over the metrics endpoint. Label cardinality stays bounded because labels
// come from small fixed enums (status, reason, type) — never per-message
// values.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Labels is a small fixed label set attached to a series.
type Labels map[string]string

// Registry is the metric sink for one run lifetime.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string]*histogram
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*histogram),
	}
}

// seriesKey renders name plus sorted labels into a stable map key.
func seriesKey(name string, labels Labels) string {
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
		fmt.Fprintf(&b, "%s=%q", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Inc increments a counter by one.
func (r *Registry) Inc(name string, labels Labels) {
	r.Add(name, labels, 1)
}

// Add increments a counter by delta.
func (r *Registry) Add(name string, labels Labels, delta float64) {
	key := seriesKey(name, labels)
	r.mu.Lock()
	r.counters[key] += delta
	r.mu.Unlock()
}

// SetGauge sets a gauge to the given value.
func (r *Registry) SetGauge(name string, labels Labels, value float64) {
	key := seriesKey(name, labels)
	r.mu.Lock()
	r.gauges[key] = value
	r.mu.Unlock()
}

// Observe records a histogram sample.
func (r *Registry) Observe(name string, labels Labels, value float64) {
	key := seriesKey(name, labels)
	r.mu.Lock()
	h, ok := r.histograms[key]
	if !ok {
		h = newHistogram(bucketsFor(name))
		r.histograms[key] = h
	}
	h.observe(value)
	r.mu.Unlock()
}

// CounterValue returns the current value of a counter series (0 if absent).
func (r *Registry) CounterValue(name string, labels Labels) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[seriesKey(name, labels)]
}

// GaugeValue returns the current value of a gauge series (0 if absent).
func (r *Registry) GaugeValue(name string, labels Labels) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[seriesKey(name, labels)]
}

// histogram accumulates samples into fixed buckets.
type histogram struct {
	bounds []float64 // upper bounds, ascending
	counts []uint64  // len(bounds)+1, last is +Inf
	sum    float64
	total  uint64
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{
		bounds: bounds,
		counts: make([]uint64, len(bounds)+1),
	}
}

func (h *histogram) observe(v float64) {
	idx := len(h.bounds)
	for i, b := range h.bounds {
		if v <= b {
			idx = i
			break
		}
	}
	h.counts[idx]++
	h.sum += v
	h.total++
}

// HistogramStat is the snapshot form of one histogram series.
type HistogramStat struct {
	Count   uint64             `json:"count"`
	Sum     float64            `json:"sum"`
	Buckets map[string]uint64  `json:"buckets"`
}

// Snapshot is a point-in-time JSON-able view of the registry.
type Snapshot struct {
	Counters   map[string]float64       `json:"counters"`
	Gauges     map[string]float64       `json:"gauges"`
	Histograms map[string]HistogramStat `json:"histograms"`
}

// Snapshot returns a deep copy of all series.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Counters:   make(map[string]float64, len(r.counters)),
		Gauges:     make(map[string]float64, len(r.gauges)),
		Histograms: make(map[string]HistogramStat, len(r.histograms)),
	}
	for k, v := range r.counters {
		snap.Counters[k] = v
	}
	for k, v := range r.gauges {
		snap.Gauges[k] = v
	}
	for k, h := range r.histograms {
		stat := HistogramStat{
			Count:   h.total,
			Sum:     h.sum,
			Buckets: make(map[string]uint64, len(h.counts)),
		}
		for i, c := range h.counts {
			label := "+Inf"
			if i < len(h.bounds) {
				label = fmt.Sprintf("%g", h.bounds[i])
			}
			stat.Buckets[label] = c
		}
		snap.Histograms[k] = stat
	}
	return snap
}
