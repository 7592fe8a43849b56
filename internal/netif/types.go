// Package netif assembles point-in-time views of a Linux network interface
// from sysfs and procfs: link state, counters, bridge membership and
// default-route ownership.
package netif

import (
	"path"
	"strings"
)

// Kernel locations read by this package.
const (
	SysClassNet  = "/sys/class/net"
	ProcNetRoute = "/proc/net/route"
)

// FileSource is the set of read primitives the package needs. Every method
// degrades to a zero value instead of failing.
type FileSource interface {
	Exists(path string) bool
	ReadText(path string) string
	ReadUint64(path string) uint64
	ReadSymlink(path string) string
	ListDir(path string) []string
}

// BridgePort is one member interface of a bridge and its link state.
type BridgePort struct {
	Name string `json:"name"`
	Up   bool   `json:"up"`
}

// Snapshot is the observable state of one interface at one instant.
// InBridge is true exactly when BridgeName is non-empty.
type Snapshot struct {
	Exists         bool         `json:"exists"`
	Up             bool         `json:"up"`
	Carrier        bool         `json:"carrier"`
	RxBytes        uint64       `json:"rxBytes"`
	TxBytes        uint64       `json:"txBytes"`
	RxPackets      uint64       `json:"rxPackets"`
	TxPackets      uint64       `json:"txPackets"`
	InBridge       bool         `json:"inBridge"`
	BridgeName     string       `json:"bridgeName,omitempty"`
	IsDefaultRoute bool         `json:"isDefaultRoute"`
	BridgePorts    []BridgePort `json:"bridgePorts"`
}

// Active reports whether the interface deserves fast polling.
func (s Snapshot) Active() bool {
	return s.Exists && (s.Up || s.Carrier)
}

// LinkUp derives the link state from operstate and carrier. Virtual devices
// such as tap interfaces often report "unknown"; only then does carrier decide.
func LinkUp(operstate, carrier string) bool {
	if operstate == "unknown" {
		return carrier == "1"
	}
	return operstate == "up"
}

// ValidName reports whether iface can safely be used as a sysfs path element.
func ValidName(iface string) bool {
	if iface == "" || iface == "." || iface == ".." {
		return false
	}
	return !strings.ContainsAny(iface, "/ \t\n\x00")
}

func ifacePath(iface string, elem ...string) string {
	return path.Join(append([]string{SysClassNet, iface}, elem...)...)
}
