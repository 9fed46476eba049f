package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/robertof/go-meshtastic-recorder/store"
)

// PrintTelemetry writes r in the human readable form used by the -exportonly mode, one value
// per line. Values the node didn't report show as N/A.
func PrintTelemetry(w io.Writer, r store.TelemetryRow) error {
	lines := []struct {
		label string
		v     *float64
		unit  string
	}{
		{"Ch1 Voltage", r.Ch1Voltage, "V"},
		{"Ch1 Current", r.Ch1Current, "A"},
		{"Ch2 Voltage", r.Ch2Voltage, "V"},
		{"Ch2 Current", r.Ch2Current, "A"},
		{"Temperature", r.Temperature, "C"},
		{"Humidity", r.Humidity, "%"},
	}

	if _, err := fmt.Fprintf(w, "Timestamp: %d\n", r.Timestamp); err != nil {
		return err
	}

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s: %s %s\n", l.label, formatValue(l.v), l.unit); err != nil {
			return err
		}
	}

	return nil
}

func formatValue(v *float64) string {
	if v == nil {
		return NotAvailable
	}

	return strconv.FormatFloat(*v, 'f', -1, 64)
}
