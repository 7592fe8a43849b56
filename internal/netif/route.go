package netif

import (
	"strconv"
	"strings"

	"github.com/opd-ai/tapwatch/internal/logging"
)

// Route flag bits from <linux/route.h>.
const (
	routeFlagUp      = 0x1
	routeFlagGateway = 0x2
)

// RouteTable reads the IPv4 routing table from /proc/net/route.
type RouteTable struct {
	fs     FileSource
	path   string
	logger logging.Logger
}

// NewRouteTable returns a RouteTable reading through fs.
func NewRouteTable(fs FileSource, logger logging.Logger) *RouteTable {
	return &RouteTable{fs: fs, path: ProcNetRoute, logger: logging.OrNop(logger)}
}

// HasDefaultRouteVia reports whether iface carries an up, gatewayed default
// route. An unreadable table yields false.
func (rt *RouteTable) HasDefaultRouteVia(iface string) bool {
	table := rt.fs.ReadText(rt.path)
	if table == "" {
		rt.logger.Debug("route table empty or unreadable", "path", rt.path)
		return false
	}
	return HasDefaultRoute(table, iface)
}

// DefaultInterfaces lists every interface carrying a default route.
func (rt *RouteTable) DefaultInterfaces() []string {
	return DefaultRouteInterfaces(rt.fs.ReadText(rt.path))
}

// HasDefaultRoute scans /proc/net/route content for a default route via iface.
func HasDefaultRoute(table, iface string) bool {
	for _, r := range parseRoutes(table) {
		if r.iface == iface && r.isDefault() {
			return true
		}
	}
	return false
}

// DefaultRouteInterfaces returns the interfaces of all default routes in
// table order, without duplicates.
func DefaultRouteInterfaces(table string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, r := range parseRoutes(table) {
		if r.isDefault() && !seen[r.iface] {
			seen[r.iface] = true
			names = append(names, r.iface)
		}
	}
	return names
}

type route struct {
	iface       string
	destination string
	flags       uint64
}

// isDefault reports an all-zero destination with both U and G set.
func (r route) isDefault() bool {
	const ug = routeFlagUp | routeFlagGateway
	return r.destination == "00000000" && r.flags&ug == ug
}

// parseRoutes skips the header line and reads Iface, Destination and Flags.
// Malformed flags parse as 0 so the row never matches.
func parseRoutes(table string) []route {
	lines := strings.Split(table, "\n")
	if len(lines) < 2 {
		return nil
	}
	routes := make([]route, 0, len(lines)-1)
	for _, line := range lines[1:] {
		cols := strings.FieldsFunc(line, func(r rune) bool { return r == '\t' || r == ' ' })
		if len(cols) < 4 {
			continue
		}
		flags, err := strconv.ParseUint(cols[3], 16, 32)
		if err != nil {
			flags = 0
		}
		routes = append(routes, route{iface: cols[0], destination: cols[1], flags: flags})
	}
	return routes
}
