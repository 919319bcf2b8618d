package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func resetMetrics() {
	metricsLock.Lock()
	reloadCounter, hotReloadCount, durationHist, warningGauge, registryGauge = nil, nil, nil, nil, nil
	metricsLock.Unlock()
}

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncHotReload("d3dx.ini")
	collector.IncReload(ResultOK)
	collector.SetRegistrySize("shader_overrides", 3)
}

func TestPrometheusCollectorRegistersAndReusesCounter(t *testing.T) {
	resetMetrics()

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncHotReload("d3dx.ini")

	metric := gather(t, reg, "d3dxini_config_hot_reload_total")
	requireCounterValue(t, metric, 1)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.hotReloads, again.hotReloads)

	again.IncHotReload("d3dx.ini")
	requireCounterValue(t, gather(t, reg, "d3dxini_config_hot_reload_total"), 2)
}

func TestPrometheusCollectorReuseAcrossRegistries(t *testing.T) {
	resetMetrics()
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	resetMetrics()
	second, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, first.reloads, second.reloads)
}

func TestPrometheusCollectorReloadMetrics(t *testing.T) {
	resetMetrics()
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncReload(ResultOK)
	collector.IncReload(ResultOK)
	collector.IncReload(ResultError)
	collector.ObserveReloadDuration(0.02)
	collector.SetWarnings(4)
	collector.SetRegistrySize("texture_overrides", 12)

	require.Equal(t, float64(2), testutil.ToFloat64(collector.reloads.WithLabelValues(ResultOK)))
	require.Equal(t, float64(1), testutil.ToFloat64(collector.reloads.WithLabelValues(ResultError)))
	require.Equal(t, float64(4), testutil.ToFloat64(collector.warnings))
	require.Equal(t, float64(12), testutil.ToFloat64(collector.registrySize.WithLabelValues("texture_overrides")))

	hist := gather(t, reg, "d3dxini_reload_duration_seconds")
	require.Len(t, hist.Metric, 1)
	require.Equal(t, uint64(1), hist.Metric[0].GetHistogram().GetSampleCount())
}

func TestNilPrometheusCollector(t *testing.T) {
	var collector *PrometheusCollector
	collector.IncReload(ResultOK)
	collector.IncHotReload("x")
	collector.ObserveReloadDuration(1)
	collector.SetWarnings(1)
	collector.SetRegistrySize("x", 1)
}

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
