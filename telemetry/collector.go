// Package telemetry exports ring counters to Prometheus.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/five-vee/ringpool"
)

const namespace = "ringpool"

// StatsProvider interface for rings that provide stats
type StatsProvider interface {
	Stats() ringpool.Stats
}

// Collector reads a ring's stats on every scrape, so the hot path pays
// nothing for being observed.
type Collector struct {
	ring StatsProvider

	capacity       *prometheus.Desc
	cursor         *prometheus.Desc
	gating         *prometheus.Desc
	published      *prometheus.Desc
	producerStalls *prometheus.Desc
	groupCursor    *prometheus.Desc
	groupLag       *prometheus.Desc
	groupProcessed *prometheus.Desc
	groupFaults    *prometheus.Desc
	groupWorkers   *prometheus.Desc
}

// NewCollector returns a collector for ring. name distinguishes rings
// registered with the same registry.
func NewCollector(name string, ring StatsProvider) *Collector {
	constLabels := prometheus.Labels{"ring": name}
	groupLabels := []string{"group", "stage", "kind"}
	desc := func(metric, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", metric), help, labels, constLabels)
	}
	return &Collector{
		ring:           ring,
		capacity:       desc("capacity", "Number of slots in the ring.", nil),
		cursor:         desc("cursor", "Highest published sequence.", nil),
		gating:         desc("gating_sequence", "Cursor of the slowest consumer group of the last stage.", nil),
		published:      desc("published_total", "Items published by the producer.", nil),
		producerStalls: desc("producer_stalls_total", "Claims that waited for a free slot.", nil),
		groupCursor:    desc("group_cursor", "Highest sequence a consumer group has finished.", groupLabels),
		groupLag:       desc("group_lag", "Published sequences a consumer group has not finished.", groupLabels),
		groupProcessed: desc("group_processed_total", "Items a consumer group has handled.", groupLabels),
		groupFaults:    desc("group_faults_total", "Items a consumer group failed to handle.", groupLabels),
		groupWorkers:   desc("group_workers", "Goroutines of a consumer group.", groupLabels),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.cursor
	ch <- c.gating
	ch <- c.published
	ch <- c.producerStalls
	ch <- c.groupCursor
	ch <- c.groupLag
	ch <- c.groupProcessed
	ch <- c.groupFaults
	ch <- c.groupWorkers
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.ring.Stats()
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(c.cursor, prometheus.GaugeValue, float64(s.Cursor))
	ch <- prometheus.MustNewConstMetric(c.gating, prometheus.GaugeValue, float64(s.Gating))
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Published()))
	ch <- prometheus.MustNewConstMetric(c.producerStalls, prometheus.CounterValue, float64(s.ProducerStalls))
	for _, g := range s.Groups {
		labels := []string{strconv.Itoa(g.Index), strconv.Itoa(g.Stage), g.Kind}
		ch <- prometheus.MustNewConstMetric(c.groupCursor, prometheus.GaugeValue, float64(g.Cursor), labels...)
		ch <- prometheus.MustNewConstMetric(c.groupLag, prometheus.GaugeValue, float64(s.Cursor-g.Cursor), labels...)
		ch <- prometheus.MustNewConstMetric(c.groupProcessed, prometheus.CounterValue, float64(g.Processed), labels...)
		ch <- prometheus.MustNewConstMetric(c.groupFaults, prometheus.CounterValue, float64(g.Faults), labels...)
		ch <- prometheus.MustNewConstMetric(c.groupWorkers, prometheus.GaugeValue, float64(g.Workers), labels...)
	}
}

// NewRegistry returns a registry with the Go runtime and process
// collectors plus one Collector per named ring.
func NewRegistry(rings map[string]StatsProvider) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	for name, ring := range rings {
		if err := registry.Register(NewCollector(name, ring)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
