package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertof/go-meshtastic-recorder/metrics"
	"github.com/robertof/go-meshtastic-recorder/store"
)

func ptr[T any](v T) *T {
	return &v
}

var snapshot = metrics.Snapshot{
	Nodes: []store.NodeRow{
		{
			ID:        "!a1b2c3d4",
			Num:       0xa1b2c3d4,
			LongName:  ptr("Base camp"),
			ShortName: ptr("BASE"),
			HwModel:   ptr("RAK4631"),
			SNR:       ptr(6.25),
			LastHeard: 1717171717,
			HopsAway:  ptr(int64(0)),
		},
		{
			ID:        "!00001234",
			Num:       0x1234,
			LastHeard: 1717000000,
		},
	},
	Telemetry: []store.TelemetryRow{
		{
			ID:          "!a1b2c3d4",
			Timestamp:   1717171700,
			Ch1Voltage:  ptr(12.5),
			Ch1Current:  ptr(0.25),
			Temperature: ptr(21.5),
			Humidity:    ptr(40.0),
		},
	},
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.RegisterCollector(func() metrics.Snapshot { return snapshot }, reg)

	want := `
# HELP meshtastic_node_info Node identity as stored in the node table. Always 1.
# TYPE meshtastic_node_info gauge
meshtastic_node_info{hw_model="",id="!00001234",long_name="",short_name=""} 1
meshtastic_node_info{hw_model="RAK4631",id="!a1b2c3d4",long_name="Base camp",short_name="BASE"} 1
# HELP meshtastic_node_snr_db Signal to noise ratio of the last packet received from the node.
# TYPE meshtastic_node_snr_db gauge
meshtastic_node_snr_db{id="!a1b2c3d4"} 6.25
# HELP meshtastic_node_hops_away Hops between the radio and the node. 0 means direct neighbour.
# TYPE meshtastic_node_hops_away gauge
meshtastic_node_hops_away{id="!a1b2c3d4"} 0
# HELP meshtastic_telemetry_voltage_volts Voltage reported by the node's power sensor.
# TYPE meshtastic_telemetry_voltage_volts gauge
meshtastic_telemetry_voltage_volts{channel="1",id="!a1b2c3d4"} 12.5
# HELP meshtastic_telemetry_humidity_ratio Relative humidity reported by the node's environment sensor.
# TYPE meshtastic_telemetry_humidity_ratio gauge
meshtastic_telemetry_humidity_ratio{id="!a1b2c3d4"} 0.4
`

	err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"meshtastic_node_info",
		"meshtastic_node_snr_db",
		"meshtastic_node_hops_away",
		"meshtastic_telemetry_voltage_volts",
		"meshtastic_telemetry_humidity_ratio",
	)
	assert.NoError(t, err)

	// 2 nodes: info + last heard each, snr + hops for one. 1 telemetry row: timestamp,
	// ch1 voltage and current, temperature, humidity.
	mfs, err := reg.Gather()
	require.NoError(t, err)

	count := 0
	for _, mf := range mfs {
		count += len(mf.GetMetric())
	}
	assert.Equal(t, 11, count)
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshtastic.prom")

	require.NoError(t, metrics.WriteTextfile(path, snapshot, time.Unix(1717171800, 0)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `meshtastic_node_last_heard_timestamp_seconds{id="!a1b2c3d4"} 1.717171717e+09`)
	assert.Contains(t, out, `meshtastic_telemetry_temperature_celsius{id="!a1b2c3d4"} 21.5`)
	assert.Contains(t, out, "meshtastic_recorder_last_run_timestamp_seconds 1.7171718e+09")
	assert.Contains(t, out, "# TYPE meshtastic_recorder_ble_successful_connections_total counter")
}
