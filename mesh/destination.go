package mesh

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDestination resolves a destination the way the Meshtastic tools accept them:
// "^local" (the radio we're connected to), "^all" (broadcast), "!1a2b3c4d" or a decimal
// node number.
func ParseDestination(s string, myNodeNum uint32) (uint32, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "^local":
		if myNodeNum == 0 {
			return 0, fmt.Errorf("cannot resolve %q: %w", s, ErrNotConfigured)
		}
		return myNodeNum, nil
	case s == "^all":
		return BroadcastNum, nil
	case strings.HasPrefix(s, "!"):
		n, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid node id %q: %w", s, err)
		}
		return uint32(n), nil
	default:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid destination %q (want ^local, ^all, !hex or a node number)", s)
		}
		return uint32(n), nil
	}
}
