package prioritized

import (
	"github.com/prometheus/client_golang/prometheus"
)

// bufferMetrics holds the Prometheus collectors of one replay buffer.
type bufferMetrics struct {
	added     prometheus.Counter
	sampled   prometheus.Counter
	draws     prometheus.Counter
	evicted   prometheus.Counter
	drained   prometheus.Counter
	updates   prometheus.Counter
	prefetch  *prometheus.CounterVec
	size      prometheus.Gauge
	weightSum prometheus.Gauge
}

func newBufferMetrics(reg prometheus.Registerer, name string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"buffer": name}
	counter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cartridge",
			Subsystem:   "replay",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(metric, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cartridge",
			Subsystem:   "replay",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &bufferMetrics{
		added:   counter("added_total", "Items appended to the replay buffer"),
		sampled: counter("sampled_total", "Items returned by weighted sampling"),
		draws:   counter("draws_total", "Weighted draws computed, including prefetched ones"),
		evicted: counter("evicted_total", "Items evicted to enforce capacity or by trimming"),
		drained: counter("drained_total", "Items consumed through new-content draining"),
		updates: counter("priority_updates_total", "Priority update batches applied"),
		prefetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "cartridge",
			Subsystem:   "replay",
			Name:        "prefetch_total",
			Help:        "Sample calls by prefetch outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		size:      gauge("size", "Published items in the replay buffer"),
		weightSum: gauge("weight_sum", "Sum of sampling weights over published items"),
	}

	for _, c := range []prometheus.Collector{
		m.added, m.sampled, m.draws, m.evicted, m.drained, m.updates, m.prefetch, m.size, m.weightSum,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// The recorders below tolerate a nil receiver so call sites need no guard.

func (m *bufferMetrics) recordAdd(n int) {
	if m == nil {
		return
	}
	m.added.Add(float64(n))
}

func (m *bufferMetrics) recordDraw(n int) {
	if m == nil {
		return
	}
	m.draws.Inc()
	m.sampled.Add(float64(n))
}

func (m *bufferMetrics) recordEvict(n int) {
	if m == nil || n == 0 {
		return
	}
	m.evicted.Add(float64(n))
}

func (m *bufferMetrics) recordDrain(n int) {
	if m == nil {
		return
	}
	m.drained.Add(float64(n))
}

func (m *bufferMetrics) recordUpdate() {
	if m == nil {
		return
	}
	m.updates.Inc()
}

func (m *bufferMetrics) recordPrefetch(outcome string) {
	if m == nil {
		return
	}
	m.prefetch.WithLabelValues(outcome).Inc()
}

func (m *bufferMetrics) observe(size int, sum float64) {
	if m == nil {
		return
	}
	m.size.Set(float64(size))
	m.weightSum.Set(sum)
}
