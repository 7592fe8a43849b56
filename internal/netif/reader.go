package netif

import (
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/opd-ai/tapwatch/internal/logging"
)

// SnapshotReader composes the sysfs primitives, bridge topology and route
// table into one Snapshot per call. Every step is isolated: a failed read
// only zeroes its own field.
type SnapshotReader struct {
	fs      FileSource
	bridges *BridgeTopology
	routes  *RouteTable
	logger  logging.Logger

	// hostInterfaces is the discovery fallback used when /sys/class/net
	// cannot be listed.
	hostInterfaces func() ([]string, error)
}

// NewSnapshotReader returns a SnapshotReader reading through fs.
func NewSnapshotReader(fs FileSource, logger logging.Logger) *SnapshotReader {
	logger = logging.OrNop(logger)
	return &SnapshotReader{
		fs:             fs,
		bridges:        NewBridgeTopology(fs, logger),
		routes:         NewRouteTable(fs, logger),
		logger:         logger,
		hostInterfaces: gopsutilInterfaces,
	}
}

// Bridges exposes the bridge topology used by the reader.
func (r *SnapshotReader) Bridges() *BridgeTopology { return r.bridges }

// Routes exposes the route table used by the reader.
func (r *SnapshotReader) Routes() *RouteTable { return r.routes }

// Read returns the current state of iface. A missing interface is the
// common "not created yet" case and yields the zero Snapshot.
func (r *SnapshotReader) Read(iface string) Snapshot {
	if !ValidName(iface) {
		r.logger.Warn("refusing to read invalid interface name", "iface", iface)
		return absent()
	}
	if !r.fs.Exists(ifacePath(iface)) {
		r.logger.Debug("interface does not exist", "iface", iface)
		return absent()
	}

	operstate := r.fs.ReadText(ifacePath(iface, "operstate"))
	carrier := r.fs.ReadText(ifacePath(iface, "carrier"))

	snap := Snapshot{
		Exists:    true,
		Up:        LinkUp(operstate, carrier),
		Carrier:   carrier == "1",
		RxBytes:   r.fs.ReadUint64(ifacePath(iface, "statistics", "rx_bytes")),
		TxBytes:   r.fs.ReadUint64(ifacePath(iface, "statistics", "tx_bytes")),
		RxPackets: r.fs.ReadUint64(ifacePath(iface, "statistics", "rx_packets")),
		TxPackets: r.fs.ReadUint64(ifacePath(iface, "statistics", "tx_packets")),
	}

	if bridge, ok := r.bridges.BridgeNameOf(iface); ok {
		snap.InBridge = true
		snap.BridgeName = bridge
		snap.BridgePorts = r.bridges.MembersOf(bridge)
	} else {
		// Empty unless iface is itself a bridge.
		snap.BridgePorts = r.bridges.MembersOf(iface)
	}

	snap.IsDefaultRoute = r.routes.HasDefaultRouteVia(iface)

	r.logger.Debug("interface sampled",
		"iface", iface,
		"operstate", operstate,
		"up", snap.Up,
		"carrier", snap.Carrier,
		"rx_bytes", snap.RxBytes,
		"tx_bytes", snap.TxBytes,
		"bridge", snap.BridgeName,
		"default_route", snap.IsDefaultRoute,
		"ports", len(snap.BridgePorts),
	)
	return snap
}

// Interfaces lists the interfaces known to the kernel.
func (r *SnapshotReader) Interfaces() []string {
	if names := r.fs.ListDir(SysClassNet); len(names) > 0 {
		return names
	}
	names, err := r.hostInterfaces()
	if err != nil {
		r.logger.Debug("interface discovery failed", "error", err)
		return []string{}
	}
	return names
}

func absent() Snapshot {
	return Snapshot{BridgePorts: []BridgePort{}}
}

func gopsutilInterfaces() ([]string, error) {
	stats, err := gnet.Interfaces()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(stats))
	for _, s := range stats {
		names = append(names, s.Name)
	}
	return names, nil
}
