package mesh

import (
	"fmt"
	"strings"
	"time"
)

// Node is one entry of the radio's node database. Pointer fields are nil when the radio did
// not send them.
type Node struct {
	Num           uint32
	User          *User
	Position      *Position
	SNR           *float32
	LastHeard     uint32
	HopsAway      *uint32
	DeviceMetrics *DeviceMetrics
	Channel       uint32
	ViaMQTT       bool
}

type User struct {
	ID        string
	LongName  string
	ShortName string
	HwModel   HardwareModel
}

type Position struct {
	LatitudeI  *int32
	LongitudeI *int32
	Altitude   *int32
	Time       uint32
}

// NodeIDFromNum renders a node number the way the firmware names nodes.
func NodeIDFromNum(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}

// ID is the node's user id, or its number rendered as an id for nodes whose user record
// never arrived.
func (n Node) ID() string {
	if n.User != nil && n.User.ID != "" {
		return n.User.ID
	}

	return NodeIDFromNum(n.Num)
}

// LastHeardTime returns false when the radio never heard the node.
func (n Node) LastHeardTime() (time.Time, bool) {
	if n.LastHeard == 0 {
		return time.Time{}, false
	}

	return time.Unix(int64(n.LastHeard), 0), true
}

func (p *Position) Latitude() *float64 {
	if p == nil {
		return nil
	}

	return degrees(p.LatitudeI)
}

func (p *Position) Longitude() *float64 {
	if p == nil {
		return nil
	}

	return degrees(p.LongitudeI)
}

func degrees(i *int32) *float64 {
	if i == nil {
		return nil
	}

	d := float64(*i) * 1e-7

	return &d
}

func (n Node) String() string {
	fields := []string{"id=" + n.ID()}

	if n.User != nil {
		fields = append(fields, fmt.Sprintf("name=%q", n.User.LongName))
	}

	if lat, lon := n.Position.Latitude(), n.Position.Longitude(); lat != nil && lon != nil {
		fields = append(fields, fmt.Sprintf("pos=%.5f,%.5f", *lat, *lon))
	}

	if n.SNR != nil {
		fields = append(fields, fmt.Sprintf("snr=%.2f", *n.SNR))
	}

	if n.HopsAway != nil {
		fields = append(fields, fmt.Sprintf("hops=%d", *n.HopsAway))
	}

	return fmt.Sprintf("Node[%s,lastHeard=%d]", strings.Join(fields, ","), n.LastHeard)
}
