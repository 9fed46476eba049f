// Command meshnodes copies the node database of a Meshtastic radio into SQLite and exports
// the nodes with a known position as JSON.
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/collector"
	"github.com/robertof/go-meshtastic-recorder/store"
	"github.com/robertof/go-meshtastic-recorder/utils"
)

func main() {
	c := ParseArgs()

	utils.SetupLogging(os.Stderr, c.Debug, c.Trace)

	ctx := ble.WrapContextWithSigHandler(context.WithCancel(context.Background()))

	if c.DiscoverDevices {
		doDeviceDiscovery(ctx, c)
		return
	}

	db, err := store.Open(c.DatabasePath)

	if err != nil {
		log.Fatal().Err(err).Str("Path", c.DatabasePath).Msg("Failed to open database")
	}

	var handle *ble.Handle

	if !c.ExportOnly {
		handle, err = ble.InitForTarget(c.BluetoothDevice, c.BluetoothConnParams, c.Target)

		if err != nil {
			db.Close()
			log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
		}
	}

	err = collector.Watch(ctx, c.Watch, func(ctx context.Context) error {
		return run(ctx, c, handle, db)
	})

	if handle != nil {
		handle.Stop()
	}

	if cerr := db.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("Failed to close database")
	}

	log.Info().Msg("Database closed")

	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, c cfg, handle *ble.Handle, db *store.DB) error {
	// export whatever the database holds, even if the update failed.
	sinks := append(
		[]collector.Sink{collector.ExportSink(db, c.JSONExport, time.Local)},
		collector.OptionalSinks(db, c.Config)...,
	)

	return collector.RunNodes(ctx, db, collector.NodesRun{
		ExportOnly: c.ExportOnly,
		Open:       collector.DeviceOpener(handle, c.Target, c.Options()),
		Sinks:      sinks,
	})
}
