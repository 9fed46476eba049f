package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/robertof/go-meshtastic-recorder/mesh"
)

var ErrNotFound = errors.New("not found")

// NodeRow is one row of the nodes table. Nil pointers are NULL columns.
type NodeRow struct {
	ID        string   `json:"id"`
	Num       int64    `json:"num"`
	UserID    *string  `json:"user_id"`
	LongName  *string  `json:"long_name"`
	ShortName *string  `json:"short_name"`
	HwModel   *string  `json:"hw_model"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *int64   `json:"altitude"`
	SNR       *float64 `json:"snr"`
	LastHeard int64    `json:"last_heard"`
	HopsAway  *int64   `json:"hops_away"`
}

// ExportNode is the subset of a node that goes into the JSON snapshot.
type ExportNode struct {
	Latitude  *float64
	Longitude *float64
	ShortName *string
	LongName  *string
	SNR       *float64
	LastHeard *int64
}

// NodeRowFromMesh converts a node database entry. Returns false for nodes that were never
// heard, since their last-heard can't be turned into a timestamp.
func NodeRowFromMesh(n mesh.Node) (NodeRow, bool) {
	if _, ok := n.LastHeardTime(); !ok {
		return NodeRow{}, false
	}

	row := NodeRow{
		ID:        n.ID(),
		Num:       int64(n.Num),
		Latitude:  n.Position.Latitude(),
		Longitude: n.Position.Longitude(),
		LastHeard: int64(n.LastHeard),
	}

	if n.User != nil {
		row.UserID = nonEmpty(n.User.ID)
		row.LongName = nonEmpty(n.User.LongName)
		row.ShortName = nonEmpty(n.User.ShortName)

		// 0 (UNSET) is the proto default and never on the wire: NULL, like the other absent fields.
		if n.User.HwModel != 0 {
			hw := n.User.HwModel.String()
			row.HwModel = &hw
		}
	}

	if n.Position != nil && n.Position.Altitude != nil {
		alt := int64(*n.Position.Altitude)
		row.Altitude = &alt
	}

	if n.SNR != nil {
		snr := shortestFloat(*n.SNR)
		row.SNR = &snr
	}

	if n.HopsAway != nil {
		hops := int64(*n.HopsAway)
		row.HopsAway = &hops
	}

	return row, true
}

const upsertNodeSQL = `
INSERT INTO nodes (id, num, user_id, long_name, short_name, hw_model, latitude, longitude, altitude, snr, last_heard, hops_away)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    num=excluded.num,
    user_id=excluded.user_id,
    long_name=excluded.long_name,
    short_name=excluded.short_name,
    hw_model=excluded.hw_model,
    latitude=excluded.latitude,
    longitude=excluded.longitude,
    altitude=excluded.altitude,
    snr=excluded.snr,
    last_heard=excluded.last_heard,
    hops_away=excluded.hops_away
WHERE excluded.last_heard > nodes.last_heard`

// UpsertNodes writes rows in one transaction. A row only replaces a stored one with an older
// last_heard. Returns how many rows were inserted or updated.
func (db *DB) UpsertNodes(ctx context.Context, rows []NodeRow) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertNodeSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	updated := 0
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx,
			r.ID, r.Num, r.UserID, r.LongName, r.ShortName, r.HwModel,
			r.Latitude, r.Longitude, r.Altitude, r.SNR, r.LastHeard, r.HopsAway)
		if err != nil {
			return 0, fmt.Errorf("upsert node %s: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (db *DB) Node(ctx context.Context, id string) (NodeRow, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, num, user_id, long_name, short_name, hw_model, latitude, longitude, altitude, snr, last_heard, hops_away
		FROM nodes WHERE id = ?`, id)

	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return n, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return n, err
}

func (db *DB) Nodes(ctx context.Context) ([]NodeRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, num, user_id, long_name, short_name, hw_model, latitude, longitude, altitude, snr, last_heard, hops_away
		FROM nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ExportableNodes returns the nodes shown on the map: direct neighbours (or nodes with an
// unknown hop count) that have a position north of the equator.
func (db *DB) ExportableNodes(ctx context.Context) ([]ExportNode, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT latitude, longitude, short_name, long_name, snr, last_heard
		FROM nodes
		WHERE (hops_away IS NULL OR hops_away = 0) AND latitude > 0
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportNode
	for rows.Next() {
		var n ExportNode
		if err := rows.Scan(&n.Latitude, &n.Longitude, &n.ShortName, &n.LongName, &n.SNR, &n.LastHeard); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (n NodeRow, err error) {
	var lastHeard sql.NullInt64
	err = s.Scan(&n.ID, &n.Num, &n.UserID, &n.LongName, &n.ShortName, &n.HwModel,
		&n.Latitude, &n.Longitude, &n.Altitude, &n.SNR, &lastHeard, &n.HopsAway)
	n.LastHeard = lastHeard.Int64
	return n, err
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// shortestFloat widens f without dragging along float32 rounding noise (6.3, not
// 6.300000190734863).
func shortestFloat(f float32) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	return v
}
