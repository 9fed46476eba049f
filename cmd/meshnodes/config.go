package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/collector"
	"github.com/robertof/go-meshtastic-recorder/config"
)

type cfg struct {
	*config.Config

	Debug, Trace    bool
	ConfigPath      string
	Address         string
	Target          ble.Target
	JSONExport      string
	ExportOnly      bool
	DatabasePath    string
	DiscoverDevices bool
	DiscoverTimeout time.Duration
	Watch           time.Duration
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

	c.ConfigPath = config.PathFromArgs(os.Args[1:])

	shared, err := config.Load(c.ConfigPath)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot load config file %q: %v\n", c.ConfigPath, err)
		os.Exit(1)
	}

	c.Config = shared
	c.Config.BindFlags(flag.CommandLine)

	flag.StringVar(&c.ConfigPath, "config", c.ConfigPath, "YAML file with the shared settings (flags win)")
	flag.StringVar(&c.Address, "address", "", "Bluetooth MAC address or advertised name of the Meshtastic node")
	flag.StringVar(&c.JSONExport, "jsonexport", "nodes.json", "Output file for the node database")
	flag.BoolVar(&c.ExportOnly, "exportonly", false, "Only export the node database to JSON")
	flag.StringVar(&c.DatabasePath, "db", "nodes.db", "Database file name")
	flag.BoolVar(&c.DiscoverDevices, "discover", false, "Discover nearby Meshtastic nodes and quit")
	flag.DurationVar(&c.DiscoverTimeout, "discover-timeout", 10*time.Second, "How long -discover scans for")
	flag.DurationVar(&c.Watch, "watch", 0, "Repeat the update and export at this interval until interrupted (0 = once)")
	flag.BoolVar(&c.Debug, "debug", false, "Enable debug logs")
	flag.BoolVar(&c.Trace, "trace", false, "Enable trace logs")

	flag.Parse()

	if !c.ExportOnly && !c.DiscoverDevices {
		if c.Address == "" {
			fmt.Fprintln(os.Stderr, "Error: -address is required!")
			flag.Usage()
			os.Exit(1)
		}

		c.Target, err = ble.ParseTarget(c.Address)

		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -address: %v\n", err)
			os.Exit(1)
		}
	}

	return c
}
