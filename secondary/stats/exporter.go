package stats

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	gometrics "github.com/rcrowley/go-metrics"
)

var exportQuantiles = []float64{0.5, 0.9, 0.99}

// RegistryCollector exposes a go-metrics registry to prometheus. Counters
// and gauges map one to one, timers and histograms become summaries.
// Timer values are reported in seconds.
//
// The set of metrics in a registry changes at runtime, so the collector is
// registered unchecked and describes nothing up front.
type RegistryCollector struct {
	namespace string
	registry  gometrics.Registry
}

func NewRegistryCollector(namespace string, registry gometrics.Registry) *RegistryCollector {
	return &RegistryCollector{namespace: namespace, registry: registry}
}

func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
}

func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Each(func(name string, i interface{}) {
		fqName := prometheus.BuildFQName(c.namespace, "", sanitize(name))
		desc := prometheus.NewDesc(fqName, name, nil, nil)

		switch m := i.(type) {
		case gometrics.Counter:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(m.Count()))

		case gometrics.Gauge:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(m.Value()))

		case gometrics.GaugeFloat64:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Value())

		case gometrics.Timer:
			snap := m.Snapshot()
			ch <- prometheus.MustNewConstSummary(desc, uint64(snap.Count()),
				float64(snap.Sum())/1e9, quantiles(snap.Percentiles(exportQuantiles), 1e9))

		case gometrics.Histogram:
			snap := m.Snapshot()
			ch <- prometheus.MustNewConstSummary(desc, uint64(snap.Count()),
				float64(snap.Sum()), quantiles(snap.Percentiles(exportQuantiles), 1))
		}
	})
}

func quantiles(values []float64, scale float64) map[float64]float64 {
	q := make(map[float64]float64, len(exportQuantiles))
	for i, p := range exportQuantiles {
		q[p] = values[i] / scale
	}
	return q
}

// prometheus names allow [a-zA-Z0-9_:] only.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		}
		return '_'
	}, name)
}
