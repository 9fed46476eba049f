// Command meshpowertel sends a single telemetry request through a Meshtastic node and
// disconnects without waiting for the answer. The answer lands in the node database and on
// the mesh like any other telemetry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/collector"
	"github.com/robertof/go-meshtastic-recorder/config"
	"github.com/robertof/go-meshtastic-recorder/mesh"
	"github.com/robertof/go-meshtastic-recorder/utils"
)

type cfg struct {
	*config.Config

	Debug, Trace bool
	Target       ble.Target
	Dest         string
	Channel      uint
	WantResponse bool
	Kind         mesh.TelemetryKind
}

func ParseArgs() cfg {
	var c cfg
	var address, configPath string

	configPath = config.PathFromArgs(os.Args[1:])

	shared, err := config.Load(configPath)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot load config file %q: %v\n", configPath, err)
		os.Exit(1)
	}

	c.Config = shared
	c.Config.BindFlags(flag.CommandLine)

	c.Kind = mesh.TelemetryDevice

	flag.StringVar(&configPath, "config", configPath, "YAML file with the shared settings (flags win)")
	flag.StringVar(&address, "address", "", "Bluetooth MAC address or advertised name of the Meshtastic node")
	flag.StringVar(&c.Dest, "dest", "^local", "Node to request telemetry from: ^local, ^all, !hex node id or node number")
	flag.UintVar(&c.Channel, "channel", 1, "Channel index to send the request on")
	flag.BoolVar(&c.WantResponse, "want-response", true, "Ask the destination to answer")
	flag.Var(&c.Kind, "type", "Telemetry type to request (device, environment, power)")
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

	return c
}

func main() {
	c := ParseArgs()

	utils.SetupLogging(os.Stderr, c.Debug, c.Trace)

	ctx := ble.WrapContextWithSigHandler(context.WithCancel(context.Background()))

	handle, err := ble.InitForTarget(c.BluetoothDevice, c.BluetoothConnParams, c.Target)

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
	}

	err = run(ctx, c, handle)

	handle.Stop()

	if err != nil {
		if errors.Is(err, collector.ErrConnectionFailed) {
			log.Error().Err(err).Msg("Couldn't connect to the node. Is someone else connected to it?")
		} else {
			log.Error().Err(err).Msg("Failed to send telemetry request")
		}

		os.Exit(1)
	}
}

func run(ctx context.Context, c cfg, handle *ble.Handle) error {
	log.Info().Stringer("Target", c.Target).Msg("Connecting to node")

	session, err := collector.Open(ctx, handle, c.Target, collector.Options{
		ScanTimeout:    c.ScanTimeout,
		ConnectTimeout: c.ConnectTimeout,
		ConfigTimeout:  c.ConfigTimeout,
	})

	if err != nil {
		return err
	}

	defer func() {
		log.Info().Msg("Closing interface")

		if err := session.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close the connection cleanly")
		}
	}()

	dest, err := mesh.ParseDestination(c.Dest, session.MyNodeNum())

	if err != nil {
		return err
	}

	return collector.RequestTelemetry(ctx, session, dest, c.Kind, c.WantResponse, uint32(c.Channel))
}
