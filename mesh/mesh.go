// Package mesh talks to a Meshtastic radio over its phone API: ToRadio/FromRadio protobuf
// frames exchanged through three GATT characteristics. Only the messages needed to download
// the node database and to request telemetry are decoded; everything else is skipped.
package mesh

import (
	"errors"

	"github.com/robertof/go-meshtastic-recorder/ble"
)

var (
	ServiceUUID   = ble.MustParseUUID("6ba1b218-15a8-461f-9fa8-5dcae273eafd")
	ToRadioUUID   = ble.MustParseUUID("f75c76d2-129e-4dad-a1dd-7866124401e7")
	FromRadioUUID = ble.MustParseUUID("2c55e69e-4993-11ed-b878-0242ac120002")
	FromNumUUID   = ble.MustParseUUID("ed9da18c-a800-4f66-a670-aa7547e34453")
)

var (
	ErrInvalidFrame    = errors.New("invalid frame")
	ErrServiceNotFound = errors.New("meshtastic service not found")
	ErrNoResponse      = errors.New("no response from node")
	ErrNotConfigured   = errors.New("session is not configured")
)

const (
	// The firmware sizes FromRadio reads for this MTU.
	MTU = 512

	BroadcastNum    uint32 = 0xffffffff
	DefaultHopLimit uint32 = 3
)

type PortNum uint32

const (
	PortNumUnknownApp     PortNum = 0
	PortNumTextMessageApp PortNum = 1
	PortNumPositionApp    PortNum = 3
	PortNumNodeInfoApp    PortNum = 4
	PortNumRoutingApp     PortNum = 5
	PortNumAdminApp       PortNum = 6
	PortNumTelemetryApp   PortNum = 67
)
