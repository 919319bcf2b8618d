package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the engine.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with configuration reloads.
type Collector interface {
	IncReload(result string)
	IncHotReload(file string)
	ObserveReloadDuration(seconds float64)
	SetWarnings(count int)
	SetRegistrySize(registry string, size int)
}

// Reload results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncReload(string)              {}
func (noopCollector) IncHotReload(string)           {}
func (noopCollector) ObserveReloadDuration(float64) {}
func (noopCollector) SetWarnings(int)               {}
func (noopCollector) SetRegistrySize(string, int)   {}

// PrometheusCollector exposes telemetry via Prometheus.
type PrometheusCollector struct {
	reloads        *prometheus.CounterVec
	hotReloads     *prometheus.CounterVec
	reloadDuration prometheus.Histogram
	warnings       prometheus.Gauge
	registrySize   *prometheus.GaugeVec
}

var (
	metricsLock    sync.Mutex
	reloadCounter  *prometheus.CounterVec
	hotReloadCount *prometheus.CounterVec
	durationHist   prometheus.Histogram
	warningGauge   prometheus.Gauge
	registryGauge  *prometheus.GaugeVec
)

// register adds c to reg, returning the collector that is already registered
// under the same descriptor when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// NewPrometheusCollector registers the engine metrics with the provided
// registerer. Metrics already registered by an earlier call are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metricsLock.Lock()
	defer metricsLock.Unlock()

	var err error
	if reloadCounter == nil {
		reloadCounter, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "d3dxini_reload_total",
			Help: "Number of configuration reloads by result.",
		}, []string{"result"}))
		if err != nil {
			return nil, err
		}
	}
	if hotReloadCount == nil {
		hotReloadCount, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "d3dxini_config_hot_reload_total",
			Help: "Number of hot reload operations triggered per configuration source file.",
		}, []string{"file"}))
		if err != nil {
			return nil, err
		}
	}
	if durationHist == nil {
		durationHist, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "d3dxini_reload_duration_seconds",
			Help:    "Time spent loading and compiling the configuration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}))
		if err != nil {
			return nil, err
		}
	}
	if warningGauge == nil {
		warningGauge, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "d3dxini_config_warnings",
			Help: "Number of content warnings reported by the last reload.",
		}))
		if err != nil {
			return nil, err
		}
	}
	if registryGauge == nil {
		registryGauge, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "d3dxini_registry_entries",
			Help: "Number of entries per override registry after the last reload.",
		}, []string{"registry"}))
		if err != nil {
			return nil, err
		}
	}

	return &PrometheusCollector{
		reloads:        reloadCounter,
		hotReloads:     hotReloadCount,
		reloadDuration: durationHist,
		warnings:       warningGauge,
		registrySize:   registryGauge,
	}, nil
}

// IncReload counts a finished reload.
func (p *PrometheusCollector) IncReload(result string) {
	if p == nil || p.reloads == nil {
		return
	}
	p.reloads.WithLabelValues(result).Inc()
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// ObserveReloadDuration records how long a reload took.
func (p *PrometheusCollector) ObserveReloadDuration(seconds float64) {
	if p == nil || p.reloadDuration == nil {
		return
	}
	p.reloadDuration.Observe(seconds)
}

// SetWarnings publishes the warning count of the last reload.
func (p *PrometheusCollector) SetWarnings(count int) {
	if p == nil || p.warnings == nil {
		return
	}
	p.warnings.Set(float64(count))
}

// SetRegistrySize publishes the size of one registry.
func (p *PrometheusCollector) SetRegistrySize(registry string, size int) {
	if p == nil || p.registrySize == nil {
		return
	}
	p.registrySize.WithLabelValues(registry).Set(float64(size))
}
