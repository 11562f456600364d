// Package metrics exposes PodCache's tiered cache state as Prometheus
// metrics: a custom collector pulls a fresh snapshot straight from the
// cache on every scrape rather than maintaining its own shadow counters.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/podcache/internal/tiered"
)

const namespace = "podcache"

// Collector adapts a *tiered.Cache to the prometheus.Collector interface.
type Collector struct {
	cache *tiered.Cache

	partitionUsed     *prometheus.Desc
	partitionCapacity *prometheus.Desc
	partitionCount    *prometheus.Desc
	diskEntries       *prometheus.Desc
	hits              *prometheus.Desc
	misses            *prometheus.Desc
	spills            *prometheus.Desc
	promotions        *prometheus.Desc
	spillFailures     *prometheus.Desc
}

// NewCollector builds a Collector reading from cache.
func NewCollector(cache *tiered.Cache) *Collector {
	partitionLabels := []string{"partition"}
	return &Collector{
		cache: cache,
		partitionUsed: prometheus.NewDesc(
			namespace+"_partition_used_bytes", "Bytes currently resident in a memory partition.", partitionLabels, nil),
		partitionCapacity: prometheus.NewDesc(
			namespace+"_partition_capacity_bytes", "Fixed byte capacity of a memory partition.", partitionLabels, nil),
		partitionCount: prometheus.NewDesc(
			namespace+"_partition_entries", "Number of keys resident in a memory partition.", partitionLabels, nil),
		diskEntries: prometheus.NewDesc(
			namespace+"_disk_entries", "Number of keys currently spilled to the disk tier.", nil, nil),
		hits: prometheus.NewDesc(
			namespace+"_hits_total", "Cumulative count of Get calls satisfied by either tier.", nil, nil),
		misses: prometheus.NewDesc(
			namespace+"_misses_total", "Cumulative count of Get calls that found nothing.", nil, nil),
		spills: prometheus.NewDesc(
			namespace+"_spills_total", "Cumulative count of entries written to the disk tier.", nil, nil),
		promotions: prometheus.NewDesc(
			namespace+"_promotions_total", "Cumulative count of disk-tier hits promoted back to memory.", nil, nil),
		spillFailures: prometheus.NewDesc(
			namespace+"_spill_failures_total", "Cumulative count of failed attempts to spill to disk.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.partitionUsed
	ch <- c.partitionCapacity
	ch <- c.partitionCount
	ch <- c.diskEntries
	ch <- c.hits
	ch <- c.misses
	ch <- c.spills
	ch <- c.promotions
	ch <- c.spillFailures
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.cache.Stats()

	for i, p := range stats.Partitions {
		label := strconv.Itoa(i)
		ch <- prometheus.MustNewConstMetric(c.partitionUsed, prometheus.GaugeValue, float64(p.UsedBytes), label)
		ch <- prometheus.MustNewConstMetric(c.partitionCapacity, prometheus.GaugeValue, float64(p.CapacityBytes), label)
		ch <- prometheus.MustNewConstMetric(c.partitionCount, prometheus.GaugeValue, float64(p.Count), label)
	}

	ch <- prometheus.MustNewConstMetric(c.diskEntries, prometheus.GaugeValue, float64(stats.DiskEntries))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.spills, prometheus.CounterValue, float64(stats.Spills))
	ch <- prometheus.MustNewConstMetric(c.promotions, prometheus.CounterValue, float64(stats.Promotions))
	ch <- prometheus.MustNewConstMetric(c.spillFailures, prometheus.CounterValue, float64(stats.SpillFailures))
}

// Server exposes a Collector over HTTP at /metrics.
type Server struct {
	http *http.Server
}

// NewServer builds a metrics HTTP server bound to addr. It does not
// start listening until ListenAndServe is called.
func NewServer(addr string, collector *Collector) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{http: &http.Server{Addr: addr, Handler: mux}}
}

// ListenAndServe blocks serving metrics until the server is shut down,
// returning http.ErrServerClosed in the clean-shutdown case.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
