package threadpool

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/gofun/pkg/metrics"
)

// poolMetrics binds the registry's pool collectors to one pool label. A nil
// *poolMetrics records nothing.
type poolMetrics struct {
	threadsGauge prometheus.Gauge
	activeGauge  prometheus.Gauge
	starts       prometheus.Counter
	rejections   prometheus.Counter
	releases     prometheus.Counter
}

func newPoolMetrics(reg *metrics.Registry, name string) *poolMetrics {
	if reg == nil {
		return nil
	}
	return &poolMetrics{
		threadsGauge: reg.PoolThreads.WithLabelValues(name),
		activeGauge:  reg.PoolActive.WithLabelValues(name),
		starts:       reg.PoolStarts.WithLabelValues(name),
		rejections:   reg.PoolRejections.WithLabelValues(name),
		releases:     reg.PoolReleased.WithLabelValues(name),
	}
}

func (m *poolMetrics) threads(n int) {
	if m == nil {
		return
	}
	m.threadsGauge.Set(float64(n))
}

func (m *poolMetrics) started() {
	if m == nil {
		return
	}
	m.starts.Inc()
	m.activeGauge.Inc()
}

func (m *poolMetrics) done() {
	if m == nil {
		return
	}
	m.activeGauge.Dec()
}

func (m *poolMetrics) rejected() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}

func (m *poolMetrics) released(n int) {
	if m == nil {
		return
	}
	m.releases.Add(float64(n))
}
