package ble

import (
	"fmt"
	"net"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robertof/go-meshtastic-recorder/utils"
	"github.com/rs/zerolog/log"
)

type Addr = ble.Addr
type Advertisement = ble.Advertisement
type Characteristic = ble.Characteristic
type Client = ble.Client
type UUID = ble.UUID

type Handle struct {
	dev *linux.Device
}

func MustParseUUID(s string) UUID {
	return ble.MustParse(s)
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		successfulConnectionsCounter,
		failedConnectionsCounter,
		disconnectsCounter,
	)
}

func Init(deviceId int, flags Flags) (*Handle, error) {
	return InitWithConnParams(
		deviceId,
		ConnParamsDefault,
		flags,
	)
}

func InitWithConnParams(deviceId int, connParams ConnParams, flags Flags) (*Handle, error) {
	var scanType scanType = scanTypePassive
	var filterPolicy filterPolicy = filterPolicyAcceptAll

	if flags&FlagScanTypeActive == FlagScanTypeActive {
		scanType = scanTypeActive
	}

	if flags&FlagEnableDeviceAllowList == FlagEnableDeviceAllowList {
		filterPolicy = filterPolicyAllowListedOnly
	}

	log.Debug().
		Stringer("ScanType", scanType).
		Stringer("FilterPolicy", filterPolicy).
		Stringer("ConnParams", &connParams).
		Stringer("Flags", flags).
		Int("DeviceID", deviceId).
		Msg("Initializing Bluetooth device")

	dev, err := linux.NewDevice(
		ble.OptDeviceID(deviceId),
		ble.OptScanParams(cmd.LESetScanParameters{
			LEScanType:           uint8(scanType),     // 0x00: passive, 0x01: active
			LEScanInterval:       0x0004,              // 0x0004 - 0x4000; N * 0.625msec
			LEScanWindow:         0x0004,              // 0x0004 - 0x4000; N * 0.625msec
			OwnAddressType:       0x00,                // 0x00: public, 0x01: random
			ScanningFilterPolicy: uint8(filterPolicy), // 0x00: accept all, 0x01: ignore non-allow-listed.
		}),
		ble.OptConnParams(connParams.AdapterOptions()),
	)

	if err != nil {
		return nil, fmt.Errorf("failed to init bluetooth device: %w", err)
	}

	ble.SetDefaultDevice(dev)

	return &Handle{dev: dev}, nil
}

func (h *Handle) SetAllowListedAddresses(a []net.HardwareAddr) error {
	log.Debug().
		Array("DeviceAddresses", utils.ToZeroLogArray(a)).
		Msg("Allow-listing the requested Bluetooth devices")

	entries, err := allowListEntries(a)

	if err != nil {
		return err
	}

	// start from an empty allow-list, the controller keeps it across runs.
	var res cmd.LEClearWhiteListRP

	err = h.dev.HCI.Send(&cmd.LEClearWhiteList{}, &res)

	if err != nil {
		return fmt.Errorf("failed to clear allow-list: %w", err)
	}

	if res.Status != 0 {
		return fmt.Errorf("failed to clear allow-list: got status: %v", res.Status)
	}

	for _, entry := range entries {
		var res cmd.LEAddDeviceToWhiteListRP

		err := h.dev.HCI.Send(entry, &res)

		if err != nil {
			return fmt.Errorf("failed to allow-list device %x (type %d): %w", entry.Address, entry.AddressType, err)
		}

		if res.Status != 0 {
			return fmt.Errorf("failed to allow-list device %x (type %d): got status: %v",
				entry.Address, entry.AddressType, res.Status)
		}
	}

	return nil
}

const (
	addressTypePublic uint8 = 0x00
	addressTypeRandom uint8 = 0x01
)

// allowListEntries builds the controller allow-list for a. The controller matches on the
// (type, address) pair and a MAC alone doesn't tell which type the peer advertises with:
// nRF52 boards use a random static address, ESP32 boards a public one. So every address is
// listed as both.
func allowListEntries(a []net.HardwareAddr) ([]*cmd.LEAddDeviceToWhiteList, error) {
	entries := make([]*cmd.LEAddDeviceToWhiteList, 0, 2*len(a))

	for _, addr := range a {
		if len(addr) != 6 {
			return nil, fmt.Errorf("cannot allow-list %q: not a 6 byte MAC address", addr.String())
		}

		var wire [6]byte

		// HCI wants the address little-endian.
		copy(wire[:], utils.Reverse([]byte(addr)))

		for _, typ := range []uint8{addressTypePublic, addressTypeRandom} {
			entries = append(entries, &cmd.LEAddDeviceToWhiteList{
				AddressType: typ,
				Address:     wire,
			})
		}
	}

	return entries, nil
}

func (h *Handle) Stop() {
	if err := h.dev.Stop(); err != nil {
		log.Debug().Err(err).Msg("ble: failed to stop HCI device cleanly")
	}
}
