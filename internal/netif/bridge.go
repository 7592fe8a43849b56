package netif

import (
	"strings"

	"github.com/opd-ai/tapwatch/internal/logging"
)

// BridgeTopology answers bridge membership questions from
// /sys/class/net/<iface>/brport and /sys/class/net/<bridge>/brif.
type BridgeTopology struct {
	fs     FileSource
	logger logging.Logger
}

// NewBridgeTopology returns a BridgeTopology reading through fs.
func NewBridgeTopology(fs FileSource, logger logging.Logger) *BridgeTopology {
	return &BridgeTopology{fs: fs, logger: logging.OrNop(logger)}
}

// BridgeNameOf returns the bridge iface is enslaved to. A missing brport
// entry means the interface is not bridged.
func (b *BridgeTopology) BridgeNameOf(iface string) (string, bool) {
	link := ifacePath(iface, "brport", "bridge")
	if !b.fs.Exists(link) {
		return "", false
	}
	name := LastSegment(b.fs.ReadSymlink(link))
	if name == "" {
		return "", false
	}
	b.logger.Debug("bridge membership", "iface", iface, "bridge", name)
	return name, true
}

// IsEnslavedTo reports whether iface is a port of bridge.
func (b *BridgeTopology) IsEnslavedTo(iface, bridge string) bool {
	name, ok := b.BridgeNameOf(iface)
	return ok && name == bridge
}

// MembersOf lists the ports of bridge with their link state. A missing
// bridge or an empty brif directory yields an empty slice.
func (b *BridgeTopology) MembersOf(bridge string) []BridgePort {
	brif := ifacePath(bridge, "brif")
	if !b.fs.Exists(brif) {
		return []BridgePort{}
	}
	names := b.fs.ListDir(brif)
	ports := make([]BridgePort, 0, len(names))
	for _, name := range names {
		ports = append(ports, BridgePort{
			Name: name,
			Up: LinkUp(
				b.fs.ReadText(ifacePath(name, "operstate")),
				b.fs.ReadText(ifacePath(name, "carrier")),
			),
		})
	}
	return ports
}

// LastSegment returns the text after the final "/" of a symlink target, so
// "/sys/devices/virtual/net/br0" and "../../../br0" both yield "br0".
func LastSegment(target string) string {
	target = strings.TrimRight(strings.TrimSpace(target), "/")
	return target[strings.LastIndex(target, "/")+1:]
}
