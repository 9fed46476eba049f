package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/collector"
)

func doDeviceDiscovery(ctx context.Context, c cfg) {
	log.Info().
		Dur("TimeoutSec", c.DiscoverTimeout).
		Msg("Starting in device discovery mode - collecting Meshtastic nodes...")

	handle, err := ble.InitWithConnParams(c.BluetoothDevice, c.BluetoothConnParams, ble.FlagScanTypeActive)

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
	}

	defer handle.Stop()

	ctx, cancel := context.WithTimeout(ctx, c.DiscoverTimeout)
	defer cancel()

	nodes, err := collector.Discover(ctx, handle)

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initiate scan")
	}

	log.Info().Int("Found", len(nodes)).Msg("Finished device discovery")

	for _, n := range nodes {
		log.Info().
			Str("Addr", n.Addr).
			Str("Name", n.Name).
			Bool("Connectable", n.Connectable).
			Int("RSSI", n.RSSI).
			Strs("Services", n.Services).
			Msg("Found node")
	}
}
