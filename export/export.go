// Package export writes the JSON snapshot of the node table consumed by map front-ends.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robertof/go-meshtastic-recorder/store"
)

const (
	LastHeardLayout = "2006-01-02 15:04:05"
	NotAvailable    = "N/A"
)

// Node is one element of the snapshot. Field order is the key order in the output.
type Node struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	ShortName *string  `json:"short_name"`
	LongName  *string  `json:"long_name"`
	SNR       *float64 `json:"snr"`
	LastHeard string   `json:"last_heard"`
}

// FormatLastHeard renders a unix timestamp in loc, or N/A if there is none.
func FormatLastHeard(v *int64, loc *time.Location) string {
	if v == nil || *v <= 0 {
		return NotAvailable
	}

	return time.Unix(*v, 0).In(loc).Format(LastHeardLayout)
}

func FromStore(rows []store.ExportNode, loc *time.Location) []Node {
	out := make([]Node, 0, len(rows))

	for _, r := range rows {
		out = append(out, Node{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			SNR:       r.SNR,
			LastHeard: FormatLastHeard(r.LastHeard, loc),
		})
	}

	return out
}

// WriteNodes replaces the file at path with the snapshot. The file is written next to its
// destination and renamed into place, so readers never see a partial snapshot.
func WriteNodes(path string, rows []store.ExportNode, loc *time.Location) error {
	data, err := json.Marshal(FromStore(rows, loc))
	if err != nil {
		return fmt.Errorf("encode nodes: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}

	log.Debug().Str("Path", path).Int("Nodes", len(rows)).Msg("export: wrote node snapshot")

	return nil
}
