package collector

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/mesh"
	"github.com/robertof/go-meshtastic-recorder/utils"
)

type DiscoveredNode struct {
	Addr        string
	Name        string
	Connectable bool
	RSSI        int
	Services    []string
}

// Discovery merges the advertisements of nearby Meshtastic nodes. A node advertises its name
// and services in separate packets, so one advertisement rarely tells the whole story.
type Discovery struct {
	nodes map[string]*DiscoveredNode
}

func NewDiscovery() *Discovery {
	return &Discovery{nodes: make(map[string]*DiscoveredNode)}
}

func IsMeshtastic(a ble.Advertisement) bool {
	for _, uuid := range a.Services() {
		if uuid.Equal(mesh.ServiceUUID) {
			return true
		}
	}

	return false
}

// Add records a. Advertisements of devices that never announced the Meshtastic service are
// kept aside until they do.
func (d *Discovery) Add(a ble.Advertisement) {
	addr := strings.ToLower(a.Addr().String())

	services := make(map[string]bool)

	for _, uuid := range a.Services() {
		services[uuid.String()] = true
	}

	info, ok := d.nodes[addr]

	if ok {
		// merge
		if info.Name == "" {
			info.Name = a.LocalName()
		}

		for _, uuid := range info.Services {
			services[uuid] = true
		}
	} else {
		info = &DiscoveredNode{Addr: addr, Name: a.LocalName()}
		d.nodes[addr] = info
	}

	info.Connectable = a.Connectable()
	info.RSSI = a.RSSI()
	info.Services = maps.Keys(services)
	slices.Sort(info.Services)

	if IsMeshtastic(a) && !ok {
		log.Debug().Str("Addr", addr).Str("Name", a.LocalName()).Msg("Found Meshtastic node")
	}

	log.Trace().
		Str("Addr", addr).
		Str("Name", a.LocalName()).
		Bool("Connectable", a.Connectable()).
		Strs("Services", info.Services).
		Hex("ManufacturerData", a.ManufacturerData()).
		Msg("Received device advertisement")
}

// Nodes returns the devices that advertised the Meshtastic service, ordered by address.
func (d *Discovery) Nodes() []DiscoveredNode {
	var out []DiscoveredNode

	meshService := mesh.ServiceUUID.String()

	for _, info := range d.nodes {
		if slices.Contains(info.Services, meshService) {
			out = append(out, *info)
		}
	}

	slices.SortFunc(out, func(a, b DiscoveredNode) int {
		return strings.Compare(a.Addr, b.Addr)
	})

	return out
}

// Discover scans until ctx expires and returns the Meshtastic nodes seen.
func Discover(ctx context.Context, handle *ble.Handle) ([]DiscoveredNode, error) {
	d := NewDiscovery()

	err := handle.ScanAll(ctx, d.Add)

	if err != nil && !utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
		return nil, err
	}

	return d.Nodes(), nil
}
