package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/collector"
	"github.com/robertof/go-meshtastic-recorder/config"
	"github.com/robertof/go-meshtastic-recorder/mesh"
)

type cfg struct {
	*config.Config

	Debug, Trace bool
	ConfigPath   string
	Target       ble.Target
	DatabasePath string
	ExportOnly   bool
	Dest         string
	Channel      uint
	Kinds        mesh.TelemetryKinds
	Request      collector.TelemetryRequest
}

func (c cfg) Options() collector.Options {
	return collector.Options{
		ScanTimeout:    c.ScanTimeout,
		ConnectTimeout: c.ConnectTimeout,
		ConfigTimeout:  c.ConfigTimeout,
	}
}

func ParseArgs() cfg {
	var c cfg
	var address string

	c.ConfigPath = config.PathFromArgs(os.Args[1:])

	shared, err := config.Load(c.ConfigPath)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot load config file %q: %v\n", c.ConfigPath, err)
		os.Exit(1)
	}

	c.Config = shared
	c.Config.BindFlags(flag.CommandLine)

	c.Kinds = mesh.TelemetryKinds{mesh.TelemetryPower, mesh.TelemetryEnvironment}

	flag.StringVar(&c.ConfigPath, "config", c.ConfigPath, "YAML file with the shared settings (flags win)")
	flag.StringVar(&address, "address", "", "Bluetooth MAC address or advertised name of the Meshtastic node")
	flag.StringVar(&c.DatabasePath, "db", "telemetry.db", "Database file name")
	flag.BoolVar(&c.ExportOnly, "exportonly", false, "Print the telemetry instead of storing it")
	flag.StringVar(&c.Dest, "dest", "^local", "Node to request telemetry from: ^local, !hex node id or node number")
	flag.UintVar(&c.Channel, "channel", 0, "Channel index to send the requests on")
	flag.Var(&c.Kinds, "types", "Comma separated telemetry types to request (device, environment, power)")
	flag.DurationVar(&c.Request.Timeout, "response-timeout", collector.DefaultResponseTimeout,
		"How long to wait for each telemetry response")
	flag.BoolVar(&c.Debug, "debug", false, "Enable debug logs")
	flag.BoolVar(&c.Trace, "trace", false, "Enable trace logs")

	flag.Parse()

	if address == "" {
		fmt.Fprintln(os.Stderr, "Error: -address is required!")
		flag.Usage()
		os.Exit(1)
	}

	if c.Target, err = ble.ParseTarget(address); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid -address: %v\n", err)
		os.Exit(1)
	}

	c.Request.Channel = uint32(c.Channel)
	c.Request.Kinds = c.Kinds

	return c
}
