// Package metrics exports the cached poll results of every panel to Prometheus.
package metrics

import (
	"strconv"
	"strings"

	"fireplus/internal/logger"
	"fireplus/internal/models"
	"fireplus/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotLister exposes the caches of all loaded devices.
type SnapshotLister interface {
	Snapshots() []service.DeviceSnapshot
}

// Collector implements prometheus.Collector over the device caches.
// A scrape never talks to a panel.
type Collector struct {
	devices SnapshotLister
	log     *logger.Logger
	metrics *metricSet
}

func NewCollector(devices SnapshotLister, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.NewNop()
	}
	return &Collector{
		devices: devices,
		log:     log,
		metrics: newMetricSet(),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.metrics.up
	ch <- c.metrics.reauthRequired
	ch <- c.metrics.lastSuccess
	ch <- c.metrics.consecutiveFailures
	ch <- c.metrics.sensorValue
	ch <- c.metrics.sensorInfo
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, ds := range c.devices.Snapshots() {
		c.collectDevice(ch, ds)
	}
}

func (c *Collector) collectDevice(ch chan<- prometheus.Metric, ds service.DeviceSnapshot) {
	snap := ds.Snapshot
	labels := labelValues(ds.Device.ID, ds.Device.UniqueID, ds.Device.Host)

	c.gauge(ch, c.metrics.up, boolToFloat(snap.Available()), labels...)
	c.gauge(ch, c.metrics.reauthRequired, boolToFloat(snap.ReauthRequired), labels...)
	c.gauge(ch, c.metrics.consecutiveFailures, float64(snap.ConsecutiveFailures), labels...)

	if !snap.HasRecord {
		return
	}
	c.gauge(ch, c.metrics.lastSuccess, float64(snap.LastUpdated.Unix()), labels...)

	for _, desc := range models.Sensors {
		raw := snap.Record.Get(desc.Field)
		sensorLabels := append(append([]string{}, labels...), desc.Key())

		if desc.Numeric {
			v, ok := parseNumber(raw)
			if !ok {
				c.log.Debugw("metrics_value_not_numeric", "device", ds.Device.ID, "key", desc.Key(), "value", raw)
				continue
			}
			c.gauge(ch, c.metrics.sensorValue, v, sensorLabels...)
			continue
		}
		c.gauge(ch, c.metrics.sensorInfo, 1, append(sensorLabels, labelValues(raw)...)...)
	}
}

// gauge sends one sample. A sample the client library refuses is logged and
// dropped so that a single bad value cannot fail the scrape.
func (c *Collector) gauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labels ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	if err != nil {
		c.log.Warnw("metrics_sample_dropped", "desc", desc.String(), "err", err)
		return
	}
	ch <- m
}

// labelValues replaces bytes that are not valid UTF-8. Panels send free text
// in Latin-1 on some firmwares.
func labelValues(vs ...string) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = strings.ToValidUTF8(v, "\uFFFD")
	}
	return out
}

// parseNumber accepts a dot or comma as decimal separator.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
