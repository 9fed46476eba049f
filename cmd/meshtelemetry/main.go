// Command meshtelemetry asks a Meshtastic node for its telemetry and stores the latest
// reading in SQLite, or prints it.
package main

import (
	"context"
	"errors"
	"os"

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

	db, err := store.Open(c.DatabasePath)

	if err != nil {
		log.Fatal().Err(err).Str("Path", c.DatabasePath).Msg("Failed to open database")
	}

	handle, err := ble.InitForTarget(c.BluetoothDevice, c.BluetoothConnParams, c.Target)

	if err != nil {
		db.Close()
		log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
	}

	err = run(ctx, c, handle, db)

	handle.Stop()
	db.Close()

	if err != nil {
		if errors.Is(err, collector.ErrConnectionFailed) {
			log.Error().Err(err).Msg("Couldn't connect to the node. Is someone else connected to it?")
		} else {
			log.Error().Err(err).Msg("Error getting telemetry from node")
		}

		os.Exit(1)
	}
}

func run(ctx context.Context, c cfg, handle *ble.Handle, db *store.DB) error {
	return collector.RunTelemetry(ctx, db, collector.TelemetryRun{
		Open:       collector.DeviceOpener(handle, c.Target, c.Options()),
		Dest:       c.Dest,
		Request:    c.Request,
		ExportOnly: c.ExportOnly,
		Out:        os.Stdout,
		Sinks:      collector.OptionalSinks(db, c.Config),
	})
}
