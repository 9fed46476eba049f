package ble

import (
	"strconv"
	"strings"
)

type Flags int

const (
	// Run active scans rather than passive scans. Meshtastic nodes only send their local
	// name in the scan response, so name lookups need this.
	FlagScanTypeActive Flags = 1 << iota
	// Enable an allowlist for scans. Must be configured with `SetAllowListedAddresses()`.
	FlagEnableDeviceAllowList
)

func (f Flags) String() string {
	var flags []string

	if f&FlagScanTypeActive == FlagScanTypeActive {
		flags = append(flags, "active scan")
	}

	if f&FlagEnableDeviceAllowList == FlagEnableDeviceAllowList {
		flags = append(flags, "device allow-list")
	}

	if len(flags) == 0 {
		return "none"
	}

	return strings.Join(flags, ", ")
}

type scanType uint8

const (
	scanTypePassive scanType = iota
	scanTypeActive
)

func (s scanType) String() string {
	switch s {
	case scanTypeActive:
		return "Active"
	case scanTypePassive:
		return "Passive"
	default:
		return "Unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

type filterPolicy uint8

const (
	filterPolicyAcceptAll filterPolicy = iota
	filterPolicyAllowListedOnly
)

func (f filterPolicy) String() string {
	switch f {
	case filterPolicyAcceptAll:
		return "Accept All"
	case filterPolicyAllowListedOnly:
		return "Allow-listed Only"
	default:
		return "Unknown(" + strconv.Itoa(int(f)) + ")"
	}
}
