package monitor

import (
	"github.com/bamgoo/responder"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "responder"

// Collector exports endpoint stats. Values are read from one snapshot per
// scrape, so a scrape never mixes two states of an endpoint.
type Collector struct {
	stats *responder.Registry

	requests   *prometheus.Desc
	errors     *prometheus.Desc
	processing *prometheus.Desc
	average    *prometheus.Desc
}

func NewCollector(stats *responder.Registry) *Collector {
	labels := []string{"endpoint", "subject"}
	return &Collector{
		stats: stats,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "endpoint", "requests_total"),
			"Number of endpoint invocations.", labels, nil),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "endpoint", "errors_total"),
			"Number of failed endpoint invocations.", labels, nil),
		processing: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "endpoint", "processing_seconds_total"),
			"Total time spent in the endpoint handler.", labels, nil),
		average: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "endpoint", "average_processing_seconds"),
			"Average time spent in the endpoint handler.", labels, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.errors
	ch <- c.processing
	ch <- c.average
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.stats.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(st.NumRequests), st.Name, st.Subject)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(st.NumErrors), st.Name, st.Subject)
		ch <- prometheus.MustNewConstMetric(c.processing, prometheus.CounterValue, st.ProcessingTime.Seconds(), st.Name, st.Subject)
		ch <- prometheus.MustNewConstMetric(c.average, prometheus.GaugeValue, st.AverageProcessingTime.Seconds(), st.Name, st.Subject)
	}
}
