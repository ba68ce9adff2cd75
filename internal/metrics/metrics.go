package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "fireplus"

// Label names shared by all device metrics.
const (
	LabelDevice   = "device"
	LabelUniqueID = "unique_id"
	LabelHost     = "host"
	LabelKey      = "key"
	LabelValue    = "value"
)

// metricSet holds the descriptors exported per device.
type metricSet struct {
	up                  *prometheus.Desc
	reauthRequired      *prometheus.Desc
	lastSuccess         *prometheus.Desc
	consecutiveFailures *prometheus.Desc

	sensorValue *prometheus.Desc
	sensorInfo  *prometheus.Desc
}

func newMetricSet() *metricSet {
	labels := []string{LabelDevice, LabelUniqueID, LabelHost}
	sensorLabels := append(append([]string{}, labels...), LabelKey)
	infoLabels := append(append([]string{}, sensorLabels...), LabelValue)

	return &metricSet{
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "up"),
			"Whether the last poll of the panel succeeded (1) or not (0)",
			labels, nil,
		),
		reauthRequired: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "reauth_required"),
			"Whether the panel rejected the request and polling stopped",
			labels, nil,
		),
		lastSuccess: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "last_success_timestamp_seconds"),
			"Unix time of the last successful poll",
			labels, nil,
		),
		consecutiveFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "consecutive_failures"),
			"Number of failed polls since the last success",
			labels, nil,
		),
		sensorValue: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sensor", "value"),
			"Last known value of a numeric panel sensor",
			sensorLabels, nil,
		),
		sensorInfo: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sensor", "info"),
			"Last known text of a panel sensor, carried in the value label",
			infoLabels, nil,
		),
	}
}
