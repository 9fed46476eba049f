package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robertof/go-meshtastic-recorder/mesh"
	"github.com/robertof/go-meshtastic-recorder/store"
)

const DefaultResponseTimeout = 30 * time.Second

// Radio is the part of a mesh.Session the collection procedures need.
type Radio interface {
	MyNodeNum() uint32
	Nodes() []mesh.Node
	SendTelemetryRequest(ctx context.Context, dest uint32, kind mesh.TelemetryKind, wantResponse bool, channel uint32) (uint32, error)
	WaitTelemetry(ctx context.Context, from uint32, kind mesh.TelemetryKind, requestID uint32) (uint32, mesh.Telemetry, error)
}

type NodeSync struct {
	// Rows that were eligible for storage, whether or not they replaced a stored row.
	Rows    []store.NodeRow
	Updated int
	Skipped int
}

// SyncNodes copies the radio's node database into db. Nodes that were never heard are
// skipped.
func SyncNodes(ctx context.Context, db *store.DB, radio Radio) (res NodeSync, err error) {
	nodes := radio.Nodes()

	log.Debug().Int("Nodes", len(nodes)).Msg("Syncing node database")

	for _, n := range nodes {
		row, ok := store.NodeRowFromMesh(n)

		if !ok {
			log.Debug().Str("NodeID", n.ID()).Msg("Skipping node that was never heard")
			res.Skipped++
			continue
		}

		log.Trace().Stringer("Node", n).Msg("Node eligible for update")

		res.Rows = append(res.Rows, row)
	}

	res.Updated, err = db.UpsertNodes(ctx, res.Rows)

	if err != nil {
		return res, fmt.Errorf("failed to update node database: %w", err)
	}

	log.Info().
		Int("NodesUpdated", res.Updated).
		Int("NodesSeen", len(res.Rows)).
		Int("NodesSkipped", res.Skipped).
		Msg("Database updated")

	return res, nil
}

type TelemetryRequest struct {
	Dest    uint32
	Channel uint32
	Kinds   []mesh.TelemetryKind
	// Per kind.
	Timeout time.Duration
}

// CollectTelemetry requests each kind in turn from req.Dest and merges the answers into one
// row. A kind nobody answers is logged and left out; ErrNoResponse is returned only when
// nothing came back at all.
func CollectTelemetry(ctx context.Context, radio Radio, req TelemetryRequest) (row store.TelemetryRow, err error) {
	if req.Timeout <= 0 {
		req.Timeout = DefaultResponseTimeout
	}

	var merged mesh.Telemetry
	var sender uint32
	received := 0

	for _, kind := range req.Kinds {
		id, err := radio.SendTelemetryRequest(ctx, req.Dest, kind, true, req.Channel)

		if err != nil {
			return row, err
		}

		waitCtx, cancel := context.WithTimeout(ctx, req.Timeout)
		from, t, err := radio.WaitTelemetry(waitCtx, req.Dest, kind, id)
		cancel()

		if errors.Is(err, mesh.ErrNoResponse) {
			log.Warn().
				Err(err).
				Stringer("Kind", kind).
				Dur("TimeoutSec", req.Timeout).
				Msg("No telemetry response, skipping")
			continue
		}

		if err != nil {
			return row, err
		}

		log.Debug().
			Str("From", mesh.NodeIDFromNum(from)).
			Stringer("Telemetry", t).
			Msg("Received telemetry")

		merged.Merge(t)
		sender = from
		received++
	}

	if received == 0 {
		return row, fmt.Errorf("%w: no telemetry received from %s", mesh.ErrNoResponse, mesh.NodeIDFromNum(req.Dest))
	}

	return store.TelemetryRowFromMesh(sender, merged, time.Now()), nil
}

// RequestTelemetry sends a single telemetry request and doesn't wait for the answer.
func RequestTelemetry(
	ctx context.Context,
	radio Radio,
	dest uint32,
	kind mesh.TelemetryKind,
	wantResponse bool,
	channel uint32,
) error {
	log.Info().
		Str("Dest", mesh.NodeIDFromNum(dest)).
		Stringer("Kind", kind).
		Uint32("Channel", channel).
		Msg("Sending telemetry request")

	_, err := radio.SendTelemetryRequest(ctx, dest, kind, wantResponse, channel)

	return err
}
