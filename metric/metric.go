// Package metric provides prometheus counters of blocks execution.
package metric

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	// ConsumedCounter measures number of consumed items.
	ConsumedCounter = "items_consumed_total"
	// ProducedCounter measures number of produced items.
	ProducedCounter = "items_produced_total"
	// CallCounter measures number of work calls.
	CallCounter = "work_calls_total"
	// MessageCounter measures number of handled messages.
	MessageCounter = "messages_handled_total"
	// DurationHistogram measures duration of work calls.
	DurationHistogram = "work_duration_seconds"
	// FullnessGauge measures fullness of output buffers.
	FullnessGauge = "buffer_fullness_ratio"
	// StateGauge reports the state of the block.
	StateGauge = "block_state"
)

type (
	// Metrics holds counters of all blocks of a run in its own registry.
	Metrics struct {
		registry *prometheus.Registry
		consumed *prometheus.CounterVec
		produced *prometheus.CounterVec
		calls    *prometheus.CounterVec
		messages *prometheus.CounterVec
		duration *prometheus.HistogramVec
		fullness *prometheus.GaugeVec
		state    *prometheus.GaugeVec
	}

	// Meter captures counters of a single block. Nil meter discards
	// everything.
	Meter struct {
		metrics  *Metrics
		labels   prometheus.Labels
		consumed prometheus.Counter
		produced prometheus.Counter
		calls    prometheus.Counter
		messages prometheus.Counter
		duration prometheus.Observer
		state    prometheus.Gauge
	}
)

var blockLabels = []string{"block", "id"}

// New creates metrics with provided namespace and registers them.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      ConsumedCounter,
			Help:      "Total number of items consumed by the block",
		}, blockLabels),
		produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      ProducedCounter,
			Help:      "Total number of items produced by the block",
		}, blockLabels),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      CallCounter,
			Help:      "Total number of work calls",
		}, blockLabels),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MessageCounter,
			Help:      "Total number of messages handled by the block",
		}, blockLabels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      DurationHistogram,
			Help:      "Duration of work calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, blockLabels),
		fullness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      FullnessGauge,
			Help:      "Share of output buffer capacity occupied by unread items",
		}, append(blockLabels, "port")),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      StateGauge,
			Help:      "Block state (0=ready, 1=running, 2=draining, 3=finished, 4=stopped, 5=failed)",
		}, blockLabels),
	}
	m.registry.MustRegister(
		m.consumed,
		m.produced,
		m.calls,
		m.messages,
		m.duration,
		m.fullness,
		m.state,
	)
	return m
}

// Registry returns the prometheus registry of metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Meter returns meter of the block.
func (m *Metrics) Meter(block, id string) *Meter {
	if m == nil {
		return nil
	}
	labels := prometheus.Labels{"block": block, "id": id}
	return &Meter{
		metrics:  m,
		labels:   labels,
		consumed: m.consumed.With(labels),
		produced: m.produced.With(labels),
		calls:    m.calls.With(labels),
		messages: m.messages.With(labels),
		duration: m.duration.With(labels),
		state:    m.state.With(labels),
	}
}

// Get returns values of counters and the state of the block by metric
// name without namespace. Histograms are reported by their samples count.
func (m *Metrics) Get(block string) map[string]float64 {
	values := make(map[string]float64)
	if m == nil {
		return values
	}
	families, err := m.registry.Gather()
	if err != nil {
		return values
	}
	for _, f := range families {
		name := shortName(f.GetName())
		for _, metric := range f.GetMetric() {
			if !hasLabel(metric.GetLabel(), "block", block) {
				continue
			}
			switch {
			case metric.Counter != nil:
				values[name] += metric.GetCounter().GetValue()
			case metric.Histogram != nil:
				values[name] += float64(metric.GetHistogram().GetSampleCount())
			case metric.Gauge != nil && name == StateGauge:
				values[name] = metric.GetGauge().GetValue()
			}
		}
	}
	return values
}

// Work captures a single work call.
func (m *Meter) Work(consumed, produced int, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.Inc()
	m.consumed.Add(float64(consumed))
	m.produced.Add(float64(produced))
	m.duration.Observe(d.Seconds())
}

// Message captures a handled message.
func (m *Meter) Message() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

// Fullness sets fullness of the output buffer.
func (m *Meter) Fullness(port int, f float64) {
	if m == nil {
		return
	}
	m.metrics.fullness.With(prometheus.Labels{
		"block": m.labels["block"],
		"id":    m.labels["id"],
		"port":  strconv.Itoa(port),
	}).Set(f)
}

// State sets the state of the block.
func (m *Meter) State(s int) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

var names = []string{
	ConsumedCounter,
	ProducedCounter,
	CallCounter,
	MessageCounter,
	DurationHistogram,
	FullnessGauge,
	StateGauge,
}

func shortName(name string) string {
	for _, n := range names {
		if strings.HasSuffix(name, n) {
			return n
		}
	}
	return name
}

func hasLabel(pairs []*dto.LabelPair, name, value string) bool {
	for _, p := range pairs {
		if p.GetName() == name && p.GetValue() == value {
			return true
		}
	}
	return false
}
