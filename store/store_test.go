package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertof/go-meshtastic-recorder/mesh"
	"github.com/robertof/go-meshtastic-recorder/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "nodes.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T {
	return &v
}

func node(num uint32, lastHeard uint32, name string) mesh.Node {
	return mesh.Node{
		Num:       num,
		User:      &mesh.User{ID: mesh.NodeIDFromNum(num), LongName: name, ShortName: name[:2], HwModel: 4},
		LastHeard: lastHeard,
	}
}

func mustRow(t *testing.T, n mesh.Node) store.NodeRow {
	t.Helper()
	row, ok := store.NodeRowFromMesh(n)
	require.True(t, ok)
	return row
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.db")

	for i := 0; i < 2; i++ {
		db, err := store.Open(path)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}
}

func TestUpsertNodes_NewerLastHeardWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	updated, err := db.UpsertNodes(ctx, []store.NodeRow{mustRow(t, node(1, 1000, "first"))})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	// older and equal last_heard: ignored.
	updated, err = db.UpsertNodes(ctx, []store.NodeRow{
		mustRow(t, node(1, 999, "older")),
		mustRow(t, node(1, 1000, "same")),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	got, err := db.Node(ctx, "!00000001")
	require.NoError(t, err)
	assert.Equal(t, "first", *got.LongName)
	assert.Equal(t, int64(1000), got.LastHeard)

	// newer: replaces every column.
	updated, err = db.UpsertNodes(ctx, []store.NodeRow{mustRow(t, node(1, 1001, "newer"))})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	got, err = db.Node(ctx, "!00000001")
	require.NoError(t, err)
	assert.Equal(t, "newer", *got.LongName)
	assert.Equal(t, "ne", *got.ShortName)
	assert.Equal(t, "TBEAM", *got.HwModel)
	assert.Equal(t, int64(1001), got.LastHeard)
}

func TestNodeRowFromMesh_SkipsNeverHeard(t *testing.T) {
	_, ok := store.NodeRowFromMesh(node(7, 0, "silent"))
	assert.False(t, ok)
}

func TestNodeRowFromMesh_Nulls(t *testing.T) {
	row := mustRow(t, mesh.Node{Num: 0xbeef, LastHeard: 5})

	assert.Equal(t, "!0000beef", row.ID)
	assert.Nil(t, row.UserID)
	assert.Nil(t, row.LongName)
	assert.Nil(t, row.HwModel)
	assert.Nil(t, row.Latitude)
	assert.Nil(t, row.Altitude)
	assert.Nil(t, row.SNR)
	assert.Nil(t, row.HopsAway)
}

func TestNodeRowFromMesh_Values(t *testing.T) {
	n := node(2, 10, "located")
	n.Position = &mesh.Position{
		LatitudeI:  ptr(int32(455000000)),
		LongitudeI: ptr(int32(-736000000)),
		Altitude:   ptr(int32(120)),
	}
	n.SNR = ptr(float32(6.3))
	n.HopsAway = ptr(uint32(2))

	row := mustRow(t, n)

	assert.InDelta(t, 45.5, *row.Latitude, 1e-9)
	assert.InDelta(t, -73.6, *row.Longitude, 1e-9)
	assert.Equal(t, int64(120), *row.Altitude)
	assert.Equal(t, 6.3, *row.SNR)
	assert.Equal(t, int64(2), *row.HopsAway)
}

func TestExportableNodes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	direct := node(1, 100, "direct")
	direct.Position = &mesh.Position{LatitudeI: ptr(int32(450000000)), LongitudeI: ptr(int32(-730000000))}
	direct.HopsAway = ptr(uint32(0))

	unknownHops := node(2, 100, "unknown hops")
	unknownHops.Position = &mesh.Position{LatitudeI: ptr(int32(460000000)), LongitudeI: ptr(int32(-740000000))}

	far := node(3, 100, "far away")
	far.Position = &mesh.Position{LatitudeI: ptr(int32(470000000)), LongitudeI: ptr(int32(-750000000))}
	far.HopsAway = ptr(uint32(2))

	south := node(4, 100, "southern")
	south.Position = &mesh.Position{LatitudeI: ptr(int32(-330000000)), LongitudeI: ptr(int32(150000000))}

	noPosition := node(5, 100, "no position")

	var rows []store.NodeRow
	for _, n := range []mesh.Node{direct, unknownHops, far, south, noPosition} {
		rows = append(rows, mustRow(t, n))
	}

	_, err := db.UpsertNodes(ctx, rows)
	require.NoError(t, err)

	all, err := db.Nodes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	got, err := db.ExportableNodes(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "direct", *got[0].LongName)
	assert.Equal(t, "unknown hops", *got[1].LongName)
	assert.InDelta(t, 46.0, *got[1].Latitude, 1e-9)
	assert.Nil(t, got[1].SNR)
	assert.Equal(t, int64(100), *got[1].LastHeard)
}

func TestNode_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Node(context.Background(), "!nope")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func TestUpsertTelemetry_NewerTimestampWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := store.TelemetryRowFromMesh(0xa1b2c3d4, mesh.Telemetry{
		Time:  1000,
		Power: &mesh.PowerMetrics{Ch1Voltage: ptr(float32(12.6)), Ch1Current: ptr(float32(0.5))},
	}, time.Unix(5000, 0))

	written, err := db.UpsertTelemetry(ctx, first)
	require.NoError(t, err)
	assert.True(t, written)

	stale := first
	stale.Timestamp = 900
	stale.Ch1Voltage = ptr(1.0)

	written, err = db.UpsertTelemetry(ctx, stale)
	require.NoError(t, err)
	assert.False(t, written)

	got, err := db.Telemetry(ctx, "!a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Timestamp)
	assert.Equal(t, 12.6, *got.Ch1Voltage)
	assert.Equal(t, 0.5, *got.Ch1Current)
	assert.Nil(t, got.Ch2Voltage)
	assert.Nil(t, got.Temperature)

	newer := store.TelemetryRowFromMesh(0xa1b2c3d4, mesh.Telemetry{
		Environment: &mesh.EnvironmentMetrics{Temperature: ptr(float32(21.5)), RelativeHumidity: ptr(float32(40))},
	}, time.Unix(5000, 0))

	written, err = db.UpsertTelemetry(ctx, newer)
	require.NoError(t, err)
	assert.True(t, written)

	all, err := db.AllTelemetry(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(5000), all[0].Timestamp, "receive time used when the node sent none")
	assert.Equal(t, 21.5, *all[0].Temperature)
	assert.Equal(t, 40.0, *all[0].Humidity)
	assert.Nil(t, all[0].Ch1Voltage)
}

func TestOpen_LiteralPath(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"nodes#1.db", "nodes?x.db", "100%.db"} {
		path := filepath.Join(dir, name)

		db, err := store.Open(path)
		require.NoError(t, err, name)
		require.NoError(t, db.Close())

		_, err = os.Stat(path)
		assert.NoError(t, err, "%s not created at the requested path", name)
	}

	_, err := os.Stat(filepath.Join(dir, "nodes"))
	assert.True(t, os.IsNotExist(err))
}

func TestNodeRowFromMesh_UnsetHwModel(t *testing.T) {
	n := node(8, 10, "unset")
	n.User.HwModel = 0

	row := mustRow(t, n)
	assert.Nil(t, row.HwModel)
	assert.Equal(t, "unset", *row.LongName)
}
