package collector

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/export"
	"github.com/robertof/go-meshtastic-recorder/mesh"
	"github.com/robertof/go-meshtastic-recorder/store"
)

// Conn is a configured radio link that must be closed once done.
type Conn interface {
	Radio
	Close() error
}

type Opener func(ctx context.Context) (Conn, error)

// DeviceOpener opens the target through handle.
func DeviceOpener(handle *ble.Handle, target ble.Target, opts Options) Opener {
	return func(ctx context.Context) (Conn, error) {
		log.Info().
			Stringer("Target", target).
			Msg("Attempting to connect to Meshtastic node")

		session, err := Open(ctx, handle, target, opts)

		if err != nil {
			return nil, err
		}

		return session, nil
	}
}

type NodesRun struct {
	ExportOnly bool
	Open       Opener
	// Sinks always run, even if the node database couldn't be updated.
	Sinks []Sink
}

// RunNodes refreshes db from the radio, then feeds every sink. A failed update is logged
// and returned, but the sinks still get whatever db already holds.
func RunNodes(ctx context.Context, db *store.DB, run NodesRun) error {
	var syncErr error

	if run.ExportOnly {
		log.Info().Msg("Skipping node connection and db update")
	} else {
		syncErr = syncFrom(ctx, db, run.Open)

		switch {
		case errors.Is(syncErr, ErrConnectionFailed):
			log.Error().Err(syncErr).Msg("Couldn't connect to the node. Is someone else connected to it?")
		case syncErr != nil:
			log.Error().Err(syncErr).Msg("Failed to update the node database")
		}
	}

	sinkErr := RunSinks(ctx, run.Sinks...)

	if syncErr != nil {
		return syncErr
	}

	return sinkErr
}

func syncFrom(ctx context.Context, db *store.DB, open Opener) error {
	conn, err := open(ctx)

	if err != nil {
		return err
	}

	defer closeConn(conn)

	_, err = SyncNodes(ctx, db, conn)

	return err
}

type TelemetryRun struct {
	Open Opener
	// Dest is parsed with mesh.ParseDestination against the connected radio.
	Dest    string
	Request TelemetryRequest
	// ExportOnly prints the reading to Out instead of storing it.
	ExportOnly bool
	Out        io.Writer
	Sinks      []Sink
}

// RunTelemetry collects one reading and either prints it or stores it and feeds the sinks.
func RunTelemetry(ctx context.Context, db *store.DB, run TelemetryRun) error {
	conn, err := run.Open(ctx)

	if err != nil {
		return err
	}

	row, err := collectFrom(ctx, conn, run.Dest, run.Request)

	closeConn(conn)

	if err != nil {
		return err
	}

	if run.ExportOnly {
		return export.PrintTelemetry(run.Out, row)
	}

	written, err := db.UpsertTelemetry(ctx, row)

	if err != nil {
		return err
	}

	log.Info().
		Str("NodeID", row.ID).
		Int64("Timestamp", row.Timestamp).
		Bool("Updated", written).
		Msg("Database updated")

	return RunSinks(ctx, run.Sinks...)
}

func collectFrom(ctx context.Context, radio Radio, dest string, req TelemetryRequest) (store.TelemetryRow, error) {
	num, err := mesh.ParseDestination(dest, radio.MyNodeNum())

	if err != nil {
		return store.TelemetryRow{}, err
	}

	req.Dest = num

	return CollectTelemetry(ctx, radio, req)
}

func closeConn(conn Conn) {
	log.Info().Msg("Disconnecting from Meshtastic node")

	if err := conn.Close(); err != nil {
		log.Debug().Err(err).Msg("Failed to close the connection cleanly")
	}
}
