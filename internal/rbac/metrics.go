package rbac

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for permission resolution and saves.
type Metrics struct {
	saves *prometheus.CounterVec
	cache *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors. A nil registerer uses the default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbac_saves_total",
		Help: "Direct grant saves partitioned by outcome.",
	}, []string{"result"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbac_resolution_cache_total",
		Help: "Resolution cache lookups partitioned by hit or miss.",
	}, []string{"result"})
	registerer.MustRegister(saves, cache)
	return &Metrics{saves: saves, cache: cache}
}

func (m *Metrics) saveResult(result string) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(result).Inc()
}

func (m *Metrics) cacheResult(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}
