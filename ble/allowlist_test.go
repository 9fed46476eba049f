package ble

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowListEntries_PublicAndRandom(t *testing.T) {
	// random static address, as nRF52 boards advertise with.
	mac, err := net.ParseMAC("C0:11:22:33:44:55")
	require.NoError(t, err)

	entries, err := allowListEntries([]net.HardwareAddr{mac})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	wire := [6]byte{0x55, 0x44, 0x33, 0x22, 0x11, 0xc0}

	assert.Equal(t, addressTypePublic, entries[0].AddressType)
	assert.Equal(t, wire, entries[0].Address)
	assert.Equal(t, addressTypeRandom, entries[1].AddressType)
	assert.Equal(t, wire, entries[1].Address)

	// the caller's address is left untouched.
	assert.Equal(t, "c0:11:22:33:44:55", mac.String())
}

func TestAllowListEntries_RejectsLongAddresses(t *testing.T) {
	eui64, err := net.ParseMAC("00:00:5e:00:53:00:00:01")
	require.NoError(t, err)

	_, err = allowListEntries([]net.HardwareAddr{eui64})
	assert.Error(t, err)
}
