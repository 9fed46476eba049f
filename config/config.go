// Package config holds the settings shared by the recorder commands. Values come from an
// optional YAML file; command-line flags set explicitly take precedence.
package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robertof/go-meshtastic-recorder/ble"
)

// Config is the shared configuration of every command.
type Config struct {
	BluetoothDevice     int            `yaml:"bluetooth_device"`
	BluetoothConnParams ble.ConnParams `yaml:"bluetooth_connection_params"`

	ScanTimeout    time.Duration `yaml:"scan_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ConfigTimeout  time.Duration `yaml:"config_timeout"`

	// When set, metrics are written to this file in the node exporter textfile format.
	MetricsTextfile string `yaml:"metrics_textfile"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig defines the broker the results are published to. Publishing is off while
// Broker is empty.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	Port        int           `yaml:"port"`
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		BluetoothDevice:     0,
		BluetoothConnParams: ble.ConnParamsDefault,
		ScanTimeout:         20 * time.Second,
		ConnectTimeout:      10 * time.Second,
		ConfigTimeout:       60 * time.Second,
		MQTT: MQTTConfig{
			Port:        1883,
			ClientID:    "meshtastic-recorder",
			TopicPrefix: "meshtastic-recorder",
			Timeout:     10 * time.Second,
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PathFromArgs finds the value of -config (or --config) in args without parsing the rest,
// so the file can seed flag defaults before flag.Parse() runs.
func PathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			break
		}

		name := strings.TrimLeft(arg, "-")
		if name == arg || len(arg)-len(name) > 2 {
			continue
		}

		switch {
		case name == "config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(name, "config="):
			return strings.TrimPrefix(name, "config=")
		}
	}

	return ""
}

// BindFlags registers the shared flags on fs, using the values already in c as defaults.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.BluetoothDevice, "bluetooth-device", c.BluetoothDevice, "Bluetooth (HCI) device ID")
	fs.Var(&c.BluetoothConnParams, "bluetooth-connection-params",
		"Bluetooth connection parameters (one of 'default' or 'power-saving')")
	fs.DurationVar(&c.ScanTimeout, "scan-timeout", c.ScanTimeout, "How long to scan for the node before giving up")
	fs.DurationVar(&c.ConnectTimeout, "connect-timeout", c.ConnectTimeout, "Timeout for establishing the BLE connection")
	fs.DurationVar(&c.ConfigTimeout, "config-timeout", c.ConfigTimeout,
		"Timeout for downloading the node configuration and database")
	fs.StringVar(&c.MetricsTextfile, "metrics-textfile", c.MetricsTextfile,
		"Write prometheus metrics to this file after each run (textfile collector format)")
	fs.StringVar(&c.MQTT.Broker, "mqtt-broker", c.MQTT.Broker, "MQTT broker host to publish results to (disabled if empty)")
	fs.IntVar(&c.MQTT.Port, "mqtt-port", c.MQTT.Port, "MQTT broker port")
	fs.StringVar(&c.MQTT.TopicPrefix, "mqtt-topic-prefix", c.MQTT.TopicPrefix, "Prefix of the published MQTT topics")
}
