// Package metrics exposes funnel results as Prometheus gauges, either over
// HTTP or as a node_exporter textfile.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KaramelBytes/trialfunnel-cli/internal/pipeline"
)

// Exporter owns a private registry so repeated runs never collide with the
// global one.
type Exporter struct {
	reg       *prometheus.Registry
	clients   *prometheus.GaugeVec
	conv      *prometheus.GaugeVec
	retention *prometheus.GaugeVec
	revenue   prometheus.Gauge
	stages    *prometheus.HistogramVec
}

// New registers every collector.
func New() *Exporter {
	e := &Exporter{
		reg: prometheus.NewRegistry(),
		clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trialfunnel_clients_total",
			Help: "Trial clients in the last run by state.",
		}, []string{"state"}),
		conv: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trialfunnel_conversion_rate",
			Help: "Conversion rate percentage per rollup bucket.",
		}, []string{"teacher", "location", "period"}),
		retention: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trialfunnel_retention_rate",
			Help: "Retention rate percentage per rollup bucket.",
		}, []string{"teacher", "location", "period"}),
		revenue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trialfunnel_revenue",
			Help: "First purchase revenue of converted, included clients.",
		}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trialfunnel_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"stage"}),
	}
	e.reg.MustRegister(e.clients, e.conv, e.retention, e.revenue, e.stages)
	return e
}

// Observe replaces the gauges with the results of out. Only rollup rows are
// exported to keep label cardinality bounded.
func (e *Exporter) Observe(out *pipeline.Output) {
	if out == nil {
		return
	}
	st := out.Stats
	e.clients.Reset()
	e.clients.WithLabelValues("total").Set(float64(len(out.NewClientRecords)))
	e.clients.WithLabelValues("included").Set(float64(st.Included))
	e.clients.WithLabelValues("excluded").Set(float64(st.Excluded))
	e.clients.WithLabelValues("converted").Set(float64(st.Converted))
	e.clients.WithLabelValues("retained").Set(float64(st.Retained))
	e.clients.WithLabelValues("duplicates").Set(float64(st.Dedup.Duplicates))
	e.revenue.Set(st.Revenue)

	e.conv.Reset()
	e.retention.Reset()
	for _, m := range out.ProcessedData {
		if !m.Rollup {
			continue
		}
		e.conv.WithLabelValues(m.Teacher, m.Location, m.Period).Set(m.ConversionRate)
		e.retention.WithLabelValues(m.Teacher, m.Location, m.Period).Set(m.RetentionRate)
	}
	for stage, d := range st.StageDurations {
		e.stages.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// Gatherer returns the private registry.
func (e *Exporter) Gatherer() prometheus.Gatherer { return e.reg }

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path for the node_exporter textfile collector.
func (e *Exporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
