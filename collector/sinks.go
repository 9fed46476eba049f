package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robertof/go-meshtastic-recorder/config"
	"github.com/robertof/go-meshtastic-recorder/export"
	"github.com/robertof/go-meshtastic-recorder/metrics"
	"github.com/robertof/go-meshtastic-recorder/publish"
	"github.com/robertof/go-meshtastic-recorder/store"
)

// Sink is an output fed from the database once a run stored its data.
type Sink struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunSinks runs every sink in parallel. A failing sink doesn't stop the others; the first
// error is returned once all of them are done.
func RunSinks(ctx context.Context, sinks ...Sink) error {
	var eg errgroup.Group

	for _, sink := range sinks {
		sink := sink

		eg.Go(func() error {
			log.Trace().Str("Sink", sink.Name).Msg("RunSinks: sink started")

			if err := sink.Run(ctx); err != nil {
				log.Error().Err(err).Str("Sink", sink.Name).Msg("Sink failed")
				return fmt.Errorf("%s: %w", sink.Name, err)
			}

			log.Trace().Str("Sink", sink.Name).Msg("RunSinks: sink finished")

			return nil
		})
	}

	return eg.Wait()
}

// ExportSink writes the JSON snapshot of the exportable nodes to path.
func ExportSink(db *store.DB, path string, loc *time.Location) Sink {
	return Sink{
		Name: "export",
		Run: func(ctx context.Context) error {
			nodes, err := db.ExportableNodes(ctx)

			if err != nil {
				return fmt.Errorf("failed to read exportable nodes: %w", err)
			}

			if err := export.WriteNodes(path, nodes, loc); err != nil {
				return err
			}

			log.Info().Str("Path", path).Int("Nodes", len(nodes)).Msg("Exported nodes")

			return nil
		},
	}
}

// MetricsSink writes the whole database as prometheus metrics to path.
func MetricsSink(db *store.DB, path string) Sink {
	return Sink{
		Name: "metrics",
		Run: func(ctx context.Context) error {
			snap, err := snapshot(ctx, db)

			if err != nil {
				return err
			}

			return metrics.WriteTextfile(path, snap, time.Now())
		},
	}
}

// MQTTSink publishes the whole database to the broker in cfg.
func MQTTSink(db *store.DB, cfg config.MQTTConfig) Sink {
	return Sink{
		Name: "mqtt",
		Run: func(ctx context.Context) error {
			snap, err := snapshot(ctx, db)

			if err != nil {
				return err
			}

			p, err := publish.Connect(ctx, cfg)

			if err != nil {
				return err
			}

			defer p.Close()

			if err := p.PublishNodes(ctx, snap.Nodes); err != nil {
				return err
			}

			return p.PublishTelemetry(ctx, snap.Telemetry...)
		},
	}
}

// OptionalSinks returns the sinks enabled in cfg.
func OptionalSinks(db *store.DB, cfg *config.Config) (sinks []Sink) {
	if cfg.MetricsTextfile != "" {
		sinks = append(sinks, MetricsSink(db, cfg.MetricsTextfile))
	}

	if cfg.MQTT.Enabled() {
		sinks = append(sinks, MQTTSink(db, cfg.MQTT))
	}

	return sinks
}

func snapshot(ctx context.Context, db *store.DB) (snap metrics.Snapshot, err error) {
	if snap.Nodes, err = db.Nodes(ctx); err != nil {
		return snap, fmt.Errorf("failed to read nodes: %w", err)
	}

	if snap.Telemetry, err = db.AllTelemetry(ctx); err != nil {
		return snap, fmt.Errorf("failed to read telemetry: %w", err)
	}

	return snap, nil
}
