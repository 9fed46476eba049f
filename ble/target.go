package ble

import (
	"fmt"
	"net"
	"strings"
)

// Target identifies the peripheral to connect to, either by MAC address or by the local
// name it advertises.
type Target struct {
	Addr net.HardwareAddr
	Name string
}

func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)

	if s == "" {
		return Target{}, fmt.Errorf("empty device address")
	}

	if hw, err := net.ParseMAC(s); err == nil && len(hw) == 6 {
		return Target{Addr: hw}, nil
	}

	return Target{Name: s}, nil
}

func (t Target) IsAddr() bool {
	return t.Addr != nil
}

func (t Target) Matches(a Advertisement) bool {
	if t.IsAddr() {
		return a.Addr() != nil && strings.EqualFold(a.Addr().String(), t.Addr.String())
	}

	return a.LocalName() != "" && a.LocalName() == t.Name
}

// ScanFlags returns the flags Init() needs to be able to find this target.
func (t Target) ScanFlags() Flags {
	if t.IsAddr() {
		return FlagScanTypeActive | FlagEnableDeviceAllowList
	}

	return FlagScanTypeActive
}

func (t Target) String() string {
	if t.IsAddr() {
		return t.Addr.String()
	}

	return fmt.Sprintf("name=%q", t.Name)
}

// InitForTarget opens the HCI device with the scan settings target needs and, for MAC
// targets, restricts scanning to that address.
func InitForTarget(deviceID int, connParams ConnParams, target Target) (*Handle, error) {
	h, err := InitWithConnParams(deviceID, connParams, target.ScanFlags())

	if err != nil {
		return nil, err
	}

	if target.IsAddr() {
		if err := h.SetAllowListedAddresses([]net.HardwareAddr{target.Addr}); err != nil {
			h.Stop()
			return nil, fmt.Errorf("failed to set device allow list: %w", err)
		}
	}

	return h, nil
}
