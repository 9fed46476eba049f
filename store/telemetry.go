package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robertof/go-meshtastic-recorder/mesh"
)

// TelemetryRow is the latest telemetry of one node.
type TelemetryRow struct {
	ID          string   `json:"id"`
	Timestamp   int64    `json:"timestamp"`
	Ch1Voltage  *float64 `json:"ch1_voltage"`
	Ch1Current  *float64 `json:"ch1_current"`
	Ch2Voltage  *float64 `json:"ch2_voltage"`
	Ch2Current  *float64 `json:"ch2_current"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// TelemetryRowFromMesh flattens the variants we store. When the node didn't stamp the
// telemetry, the receive time is used.
func TelemetryRowFromMesh(nodeNum uint32, t mesh.Telemetry, received time.Time) TelemetryRow {
	row := TelemetryRow{
		ID:        mesh.NodeIDFromNum(nodeNum),
		Timestamp: int64(t.Time),
	}

	if row.Timestamp == 0 {
		row.Timestamp = received.Unix()
	}

	if p := t.Power; p != nil {
		row.Ch1Voltage = widen(p.Ch1Voltage)
		row.Ch1Current = widen(p.Ch1Current)
		row.Ch2Voltage = widen(p.Ch2Voltage)
		row.Ch2Current = widen(p.Ch2Current)
	}

	if e := t.Environment; e != nil {
		row.Temperature = widen(e.Temperature)
		row.Humidity = widen(e.RelativeHumidity)
	}

	return row
}

func (r TelemetryRow) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

const upsertTelemetrySQL = `
INSERT INTO telemetry (id, timestamp, ch1_voltage, ch1_current, ch2_voltage, ch2_current, temperature, humidity)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    timestamp=excluded.timestamp,
    ch1_voltage=excluded.ch1_voltage,
    ch1_current=excluded.ch1_current,
    ch2_voltage=excluded.ch2_voltage,
    ch2_current=excluded.ch2_current,
    temperature=excluded.temperature,
    humidity=excluded.humidity
WHERE excluded.timestamp > telemetry.timestamp`

// UpsertTelemetry stores r unless a newer reading for the same node is already stored.
// Reports whether the row was written.
func (db *DB) UpsertTelemetry(ctx context.Context, r TelemetryRow) (bool, error) {
	res, err := db.ExecContext(ctx, upsertTelemetrySQL,
		r.ID, r.Timestamp, r.Ch1Voltage, r.Ch1Current, r.Ch2Voltage, r.Ch2Current, r.Temperature, r.Humidity)
	if err != nil {
		return false, fmt.Errorf("upsert telemetry %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) Telemetry(ctx context.Context, id string) (TelemetryRow, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, timestamp, ch1_voltage, ch1_current, ch2_voltage, ch2_current, temperature, humidity
		FROM telemetry WHERE id = ?`, id)

	r, err := scanTelemetry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("telemetry %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (db *DB) AllTelemetry(ctx context.Context) ([]TelemetryRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, timestamp, ch1_voltage, ch1_current, ch2_voltage, ch2_current, temperature, humidity
		FROM telemetry ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TelemetryRow
	for rows.Next() {
		r, err := scanTelemetry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanTelemetry(s scanner) (r TelemetryRow, err error) {
	var ts sql.NullInt64
	err = s.Scan(&r.ID, &ts, &r.Ch1Voltage, &r.Ch1Current, &r.Ch2Voltage, &r.Ch2Current, &r.Temperature, &r.Humidity)
	r.Timestamp = ts.Int64
	return r, err
}

func widen(f *float32) *float64 {
	if f == nil {
		return nil
	}
	v := shortestFloat(*f)
	return &v
}
