package config_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/config"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorder.yaml")
	data := `
bluetooth_device: 1
bluetooth_connection_params: power-saving
scan_timeout: 45s
metrics_textfile: /var/lib/node_exporter/meshtastic.prom
mqtt:
  broker: mqtt.local
  topic_prefix: mesh
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.BluetoothDevice)
	assert.Equal(t, ble.ConnParamsPowerSaving, cfg.BluetoothConnParams)
	assert.Equal(t, 45*time.Second, cfg.ScanTimeout)
	assert.Equal(t, config.Defaults().ConfigTimeout, cfg.ConfigTimeout)
	assert.Equal(t, "/var/lib/node_exporter/meshtastic.prom", cfg.MetricsTextfile)
	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, "mesh", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 1883, cfg.MQTT.Port)
}

func TestLoad_InvalidConnParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorder.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bluetooth_connection_params: turbo\n"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestPathFromArgs(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"-address", "AA:BB:CC:DD:EE:FF"}, ""},
		{[]string{"-config", "a.yaml", "-debug"}, "a.yaml"},
		{[]string{"--config=b.yaml"}, "b.yaml"},
		{[]string{"-debug", "-config=c.yaml"}, "c.yaml"},
		{[]string{"---config", "d.yaml"}, ""},
		{[]string{"--", "-config", "e.yaml"}, ""},
		{[]string{"-config"}, ""},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, config.PathFromArgs(c.args), "%q", c.args)
	}
}

func TestBindFlags_FlagsWin(t *testing.T) {
	cfg := config.Defaults()
	cfg.ScanTimeout = 45 * time.Second
	cfg.MQTT.Broker = "from-file"

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{"-mqtt-broker", "from-flag", "-bluetooth-connection-params", "power-saving"}))

	assert.Equal(t, 45*time.Second, cfg.ScanTimeout, "file value kept when the flag is not set")
	assert.Equal(t, "from-flag", cfg.MQTT.Broker)
	assert.Equal(t, ble.ConnParamsPowerSaving, cfg.BluetoothConnParams)
}
