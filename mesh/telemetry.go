package mesh

import (
	"fmt"
	"slices"
	"strings"
)

// TelemetryKind selects one variant of the Telemetry message. The values are the protobuf
// field numbers of the variants.
type TelemetryKind uint8

const (
	TelemetryDevice      TelemetryKind = 2
	TelemetryEnvironment TelemetryKind = 3
	TelemetryPower       TelemetryKind = 5
)

var telemetryKindNames = map[TelemetryKind]string{
	TelemetryDevice:      "device",
	TelemetryEnvironment: "environment",
	TelemetryPower:       "power",
}

func (k TelemetryKind) String() string {
	if name, ok := telemetryKindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("unknown(%d)", uint8(k))
}

func ParseTelemetryKind(s string) (TelemetryKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	for k, name := range telemetryKindNames {
		if name == s {
			return k, nil
		}
	}

	return 0, fmt.Errorf("unknown telemetry type %q (must be one of device, environment, power)", s)
}

// *flag.Value
func (k *TelemetryKind) Set(v string) error {
	parsed, err := ParseTelemetryKind(v)
	if err != nil {
		return err
	}

	*k = parsed
	return nil
}

// TelemetryKinds is a comma separated list of telemetry kinds, usable as a flag.
type TelemetryKinds []TelemetryKind

func (ks *TelemetryKinds) String() string {
	if ks == nil {
		return ""
	}

	names := make([]string, len(*ks))
	for i, k := range *ks {
		names[i] = k.String()
	}

	return strings.Join(names, ",")
}

func (ks *TelemetryKinds) Set(v string) error {
	var out TelemetryKinds

	for _, part := range strings.Split(v, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		k, err := ParseTelemetryKind(part)
		if err != nil {
			return err
		}

		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}

	if len(out) == 0 {
		return fmt.Errorf("at least one telemetry type is required")
	}

	*ks = out
	return nil
}

type Telemetry struct {
	Time        uint32
	Device      *DeviceMetrics
	Environment *EnvironmentMetrics
	Power       *PowerMetrics
}

type DeviceMetrics struct {
	BatteryLevel       *uint32
	Voltage            *float32
	ChannelUtilization *float32
	AirUtilTx          *float32
	UptimeSeconds      *uint32
}

type EnvironmentMetrics struct {
	Temperature        *float32
	RelativeHumidity   *float32
	BarometricPressure *float32
	GasResistance      *float32
	Voltage            *float32
	Current            *float32
}

type PowerMetrics struct {
	Ch1Voltage *float32
	Ch1Current *float32
	Ch2Voltage *float32
	Ch2Current *float32
	Ch3Voltage *float32
	Ch3Current *float32
}

func (t Telemetry) Has(k TelemetryKind) bool {
	switch k {
	case TelemetryDevice:
		return t.Device != nil
	case TelemetryEnvironment:
		return t.Environment != nil
	case TelemetryPower:
		return t.Power != nil
	default:
		return false
	}
}

// Merge copies the variants set in o over t. The newer time wins.
func (t *Telemetry) Merge(o Telemetry) {
	if o.Time > t.Time {
		t.Time = o.Time
	}

	if o.Device != nil {
		t.Device = o.Device
	}

	if o.Environment != nil {
		t.Environment = o.Environment
	}

	if o.Power != nil {
		t.Power = o.Power
	}
}

func (t Telemetry) String() string {
	var kinds []string

	for _, k := range []TelemetryKind{TelemetryDevice, TelemetryEnvironment, TelemetryPower} {
		if t.Has(k) {
			kinds = append(kinds, k.String())
		}
	}

	return fmt.Sprintf("Telemetry[time=%d,%s]", t.Time, strings.Join(kinds, ","))
}
