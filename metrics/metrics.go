package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/store"
)

var (
	descNodeInfo = prometheus.NewDesc(
		"meshtastic_node_info",
		"Node identity as stored in the node table. Always 1.",
		[]string{"id", "short_name", "long_name", "hw_model"},
		nil,
	)

	descNodeLastHeard = prometheus.NewDesc(
		"meshtastic_node_last_heard_timestamp_seconds",
		"Last time the node was heard by the radio, as a unix timestamp.",
		[]string{"id"},
		nil,
	)

	descNodeSNR = prometheus.NewDesc(
		"meshtastic_node_snr_db",
		"Signal to noise ratio of the last packet received from the node.",
		[]string{"id"},
		nil,
	)

	descNodeHopsAway = prometheus.NewDesc(
		"meshtastic_node_hops_away",
		"Hops between the radio and the node. 0 means direct neighbour.",
		[]string{"id"},
		nil,
	)

	descTelemetryTimestamp = prometheus.NewDesc(
		"meshtastic_telemetry_timestamp_seconds",
		"Time of the stored telemetry reading, as a unix timestamp.",
		[]string{"id"},
		nil,
	)

	descVoltage = prometheus.NewDesc(
		"meshtastic_telemetry_voltage_volts",
		"Voltage reported by the node's power sensor.",
		[]string{"id", "channel"},
		nil,
	)

	descCurrent = prometheus.NewDesc(
		"meshtastic_telemetry_current_amperes",
		"Current reported by the node's power sensor.",
		[]string{"id", "channel"},
		nil,
	)

	descTemperature = prometheus.NewDesc(
		"meshtastic_telemetry_temperature_celsius",
		"Temperature reported by the node's environment sensor in Celsius.",
		[]string{"id"},
		nil,
	)

	descHumidity = prometheus.NewDesc(
		"meshtastic_telemetry_humidity_ratio",
		"Relative humidity reported by the node's environment sensor.",
		[]string{"id"},
		nil,
	)
)

// Snapshot is what one run stored.
type Snapshot struct {
	Nodes     []store.NodeRow
	Telemetry []store.TelemetryRow
}

type CollectFunc func() Snapshot

type collector struct {
	CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.CollectFunc()

	for _, n := range snap.Nodes {
		ch <- prometheus.MustNewConstMetric(
			descNodeInfo,
			prometheus.GaugeValue,
			1,
			n.ID,
			deref(n.ShortName),
			deref(n.LongName),
			deref(n.HwModel),
		)

		ch <- prometheus.MustNewConstMetric(descNodeLastHeard, prometheus.GaugeValue, float64(n.LastHeard), n.ID)

		if n.SNR != nil {
			ch <- prometheus.MustNewConstMetric(descNodeSNR, prometheus.GaugeValue, *n.SNR, n.ID)
		}

		if n.HopsAway != nil {
			ch <- prometheus.MustNewConstMetric(descNodeHopsAway, prometheus.GaugeValue, float64(*n.HopsAway), n.ID)
		}
	}

	for _, t := range snap.Telemetry {
		ch <- prometheus.MustNewConstMetric(descTelemetryTimestamp, prometheus.GaugeValue, float64(t.Timestamp), t.ID)

		for channel, v := range map[string]*float64{"1": t.Ch1Voltage, "2": t.Ch2Voltage} {
			if v != nil {
				ch <- prometheus.MustNewConstMetric(descVoltage, prometheus.GaugeValue, *v, t.ID, channel)
			}
		}

		for channel, v := range map[string]*float64{"1": t.Ch1Current, "2": t.Ch2Current} {
			if v != nil {
				ch <- prometheus.MustNewConstMetric(descCurrent, prometheus.GaugeValue, *v, t.ID, channel)
			}
		}

		if t.Temperature != nil {
			ch <- prometheus.MustNewConstMetric(descTemperature, prometheus.GaugeValue, *t.Temperature, t.ID)
		}

		if t.Humidity != nil {
			ch <- prometheus.MustNewConstMetric(descHumidity, prometheus.GaugeValue, *t.Humidity/100, t.ID)
		}
	}
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
	c := &collector{f}

	reg.MustRegister(c)
}

// NewRegistry returns a registry carrying the snapshot gauges, the BLE connection counters
// and a gauge with the time of the run.
func NewRegistry(snap Snapshot, now time.Time) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	RegisterCollector(func() Snapshot { return snap }, registry)
	ble.RegisterMetrics(registry)

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshtastic_recorder_last_run_timestamp_seconds",
		Help: "Time the recorder last stored data, as a unix timestamp.",
	})
	lastRun.Set(float64(now.Unix()))
	registry.MustRegister(lastRun)

	return registry
}

// WriteTextfile writes the snapshot for the node exporter textfile collector. The write is
// atomic.
func WriteTextfile(path string, snap Snapshot, now time.Time) error {
	return prometheus.WriteToTextfile(path, NewRegistry(snap, now))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
