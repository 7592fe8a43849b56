package netif

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/opd-ai/tapwatch/internal/sysfs"
)

// fakeSys builds a miniature /sys and /proc under a temp dir.
type fakeSys struct {
	t    *testing.T
	root string
}

func newFakeSys(t *testing.T) *fakeSys {
	return &fakeSys{t: t, root: t.TempDir()}
}

func (f *fakeSys) write(rel, content string) {
	f.t.Helper()
	p := filepath.Join(f.root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		f.t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fakeSys) iface(name, operstate, carrier string, counters ...string) {
	base := "sys/class/net/" + name
	f.write(base+"/operstate", operstate+"\n")
	f.write(base+"/carrier", carrier+"\n")
	files := []string{"rx_bytes", "tx_bytes", "rx_packets", "tx_packets"}
	for i, c := range counters {
		f.write(base+"/statistics/"+files[i], c+"\n")
	}
}

func (f *fakeSys) enslave(port, bridge, target string) {
	f.t.Helper()
	if err := os.MkdirAll(filepath.Join(f.root, "sys/class/net", bridge, "brif", port), 0o755); err != nil {
		f.t.Fatal(err)
	}
	link := filepath.Join(f.root, "sys/class/net", port, "brport", "bridge")
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		f.t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fakeSys) reader() *SnapshotReader {
	return NewSnapshotReader(sysfs.New(sysfs.WithRoot(f.root)), nil)
}

const routeHeader = "Iface\tDestination\tGateway \tFlags\tRefCnt\tUse\tMetric\tMask\t\tMTU\tWindow\tIRTT\n"

func TestLastSegment(t *testing.T) {
	tests := map[string]string{
		"/sys/devices/virtual/net/br0": "br0",
		"../../../br0":                 "br0",
		"br0":                          "br0",
		"../../../br-lan/":             "br-lan",
		"":                             "",
	}
	for in, want := range tests {
		if got := LastSegment(in); got != want {
			t.Errorf("LastSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLinkUp(t *testing.T) {
	tests := []struct {
		operstate, carrier string
		want               bool
	}{
		{"unknown", "1", true},
		{"unknown", "0", false},
		{"unknown", "", false},
		{"up", "0", true},
		{"up", "1", true},
		{"down", "1", false},
		{"dormant", "1", false},
		{"", "1", false},
	}
	for _, tt := range tests {
		if got := LinkUp(tt.operstate, tt.carrier); got != tt.want {
			t.Errorf("LinkUp(%q, %q) = %v, want %v", tt.operstate, tt.carrier, got, tt.want)
		}
	}
}

func TestHasDefaultRoute(t *testing.T) {
	tests := []struct {
		name  string
		table string
		iface string
		want  bool
	}{
		{
			name:  "default via tap0 with U and G",
			table: routeHeader + "tap0\t00000000\t0102000A\t0003\t0\t0\t0\t00000000\t0\t0\t0\n",
			iface: "tap0",
			want:  true,
		},
		{
			name:  "up but no gateway bit",
			table: routeHeader + "tap0\t00000000\t0102000A\t0001\t0\t0\t0\t00000000\t0\t0\t0\n",
			iface: "tap0",
			want:  false,
		},
		{
			name:  "non-zero destination",
			table: routeHeader + "tap0\t0002000A\t0102000A\t0003\t0\t0\t0\t00FFFFFF\t0\t0\t0\n",
			iface: "tap0",
			want:  false,
		},
		{
			name:  "default belongs to another interface",
			table: routeHeader + "wlan0\t00000000\t0101A8C0\t0003\t0\t0\t600\t00000000\t0\t0\t0\n",
			iface: "tap0",
			want:  false,
		},
		{
			name:  "extra flag bits are ignored",
			table: routeHeader + "tap0\t00000000\t0102000A\t0007\t0\t0\t0\t00000000\t0\t0\t0\n",
			iface: "tap0",
			want:  true,
		},
		{
			name:  "space separated columns",
			table: routeHeader + "tap0   00000000   0102000A   0003   0 0 0 00000000 0 0 0\n",
			iface: "tap0",
			want:  true,
		},
		{
			name:  "malformed flags never match",
			table: routeHeader + "tap0\t00000000\t0102000A\tzzzz\t0\t0\t0\t00000000\t0\t0\t0\n",
			iface: "tap0",
			want:  false,
		},
		{
			name:  "header only",
			table: routeHeader,
			iface: "tap0",
			want:  false,
		},
		{
			name:  "a header-shaped first line is never treated as data",
			table: "tap0\t00000000\t0102000A\t0003\t0\t0\t0\t00000000\t0\t0\t0\n",
			iface: "tap0",
			want:  false,
		},
		{name: "empty", table: "", iface: "tap0", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasDefaultRoute(tt.table, tt.iface); got != tt.want {
				t.Errorf("HasDefaultRoute() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultRouteInterfaces(t *testing.T) {
	table := routeHeader +
		"wlan0\t00000000\t0101A8C0\t0003\t0\t0\t600\t00000000\t0\t0\t0\n" +
		"wlan0\t0001A8C0\t00000000\t0001\t0\t0\t600\t00FFFFFF\t0\t0\t0\n" +
		"tap0\t00000000\t0102000A\t0003\t0\t0\t0\t00000000\t0\t0\t0\n" +
		"wlan0\t00000000\t0101A8C0\t0003\t0\t0\t700\t00000000\t0\t0\t0\n"
	got := DefaultRouteInterfaces(table)
	if want := []string{"wlan0", "tap0"}; !reflect.DeepEqual(got, want) {
		t.Errorf("DefaultRouteInterfaces() = %v, want %v", got, want)
	}
}

func TestBridgeNameOf(t *testing.T) {
	fs := newFakeSys(t)
	fs.iface("tap0", "unknown", "1")
	fs.iface("eth0", "up", "1")
	fs.iface("wlan0", "up", "1")
	fs.enslave("tap0", "br0", "../../../br0")
	fs.enslave("eth0", "br0", "/sys/devices/virtual/net/br0")

	b := fs.reader().Bridges()
	for _, iface := range []string{"tap0", "eth0"} {
		name, ok := b.BridgeNameOf(iface)
		if !ok || name != "br0" {
			t.Errorf("BridgeNameOf(%s) = %q, %v; want br0, true", iface, name, ok)
		}
		if !b.IsEnslavedTo(iface, "br0") {
			t.Errorf("IsEnslavedTo(%s, br0) = false", iface)
		}
		if b.IsEnslavedTo(iface, "br1") {
			t.Errorf("IsEnslavedTo(%s, br1) = true", iface)
		}
	}
	if name, ok := b.BridgeNameOf("wlan0"); ok || name != "" {
		t.Errorf("BridgeNameOf(wlan0) = %q, %v; want not bridged", name, ok)
	}
}

func TestMembersOf(t *testing.T) {
	fs := newFakeSys(t)
	fs.iface("tap0", "unknown", "1")
	fs.iface("eth0", "down", "1")
	fs.enslave("tap0", "br0", "../../../br0")
	fs.enslave("eth0", "br0", "../../../br0")

	b := fs.reader().Bridges()
	ports := b.MembersOf("br0")
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	want := []BridgePort{{Name: "eth0", Up: false}, {Name: "tap0", Up: true}}
	if !reflect.DeepEqual(ports, want) {
		t.Errorf("MembersOf(br0) = %+v, want %+v", ports, want)
	}

	if got := b.MembersOf("br9"); got == nil || len(got) != 0 {
		t.Errorf("MembersOf(missing) = %#v, want empty non-nil slice", got)
	}
	fs.write("sys/class/net/br1/brif/.keep", "")
	if err := os.Remove(filepath.Join(fs.root, "sys/class/net/br1/brif/.keep")); err != nil {
		t.Fatal(err)
	}
	if got := b.MembersOf("br1"); len(got) != 0 {
		t.Errorf("MembersOf(empty brif) = %+v, want empty", got)
	}
}

func TestReadAbsentInterface(t *testing.T) {
	fs := newFakeSys(t)
	// Other subsystems would report something for tap0 if asked.
	fs.write("proc/net/route", routeHeader+"tap0\t00000000\t0102000A\t0003\t0\t0\t0\t00000000\t0\t0\t0\n")

	got := fs.reader().Read("tap0")
	want := Snapshot{BridgePorts: []BridgePort{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Read(absent) = %+v, want %+v", got, want)
	}
}

func TestReadInvalidName(t *testing.T) {
	fs := newFakeSys(t)
	fs.iface("tap0", "up", "1")
	for _, name := range []string{"", "..", "tap0/../tap0", "a b"} {
		if got := fs.reader().Read(name); got.Exists {
			t.Errorf("Read(%q) reported an existing interface", name)
		}
	}
}

func TestReadLinkStatePrecedence(t *testing.T) {
	tests := []struct {
		name        string
		operstate   string
		carrier     string
		wantUp      bool
		wantCarrier bool
	}{
		{"unknown defers to carrier", "unknown", "1", true, true},
		{"explicit down overrides carrier", "down", "1", false, true},
		{"up without carrier", "up", "0", true, false},
		{"unknown without carrier", "unknown", "0", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeSys(t)
			fs.iface("tap0", tt.operstate, tt.carrier, "1", "2", "3", "4")
			got := fs.reader().Read("tap0")
			if !got.Exists || got.Up != tt.wantUp || got.Carrier != tt.wantCarrier {
				t.Errorf("Read() = exists %v up %v carrier %v, want true %v %v",
					got.Exists, got.Up, got.Carrier, tt.wantUp, tt.wantCarrier)
			}
		})
	}
}

func TestReadCountersAreIndependent(t *testing.T) {
	fs := newFakeSys(t)
	fs.iface("tap0", "up", "1", "1000", "2000")
	fs.write("sys/class/net/tap0/statistics/rx_packets", "garbage")

	got := fs.reader().Read("tap0")
	if got.RxBytes != 1000 || got.TxBytes != 2000 || got.RxPackets != 0 || got.TxPackets != 0 {
		t.Errorf("counters = %d/%d/%d/%d, want 1000/2000/0/0",
			got.RxBytes, got.TxBytes, got.RxPackets, got.TxPackets)
	}
}

func TestReadBridgedInterface(t *testing.T) {
	fs := newFakeSys(t)
	fs.iface("br0", "up", "1")
	fs.iface("tap0", "unknown", "1", "10", "20", "1", "2")
	fs.iface("wlan0", "down", "0")
	fs.enslave("tap0", "br0", "../../../br0")
	fs.enslave("wlan0", "br0", "../../../br0")
	fs.write("proc/net/route", routeHeader+"br0\t00000000\t0101A8C0\t0003\t0\t0\t0\t00000000\t0\t0\t0\n")

	r := fs.reader()

	tap := r.Read("tap0")
	if !tap.InBridge || tap.BridgeName != "br0" {
		t.Errorf("tap0 bridge = %v %q, want true br0", tap.InBridge, tap.BridgeName)
	}
	if len(tap.BridgePorts) != 2 {
		t.Errorf("tap0 ports = %+v, want the two br0 members", tap.BridgePorts)
	}
	if tap.IsDefaultRoute {
		t.Error("tap0 should not own the default route")
	}

	br := r.Read("br0")
	if br.InBridge || br.BridgeName != "" {
		t.Errorf("br0 bridge = %v %q, want not bridged", br.InBridge, br.BridgeName)
	}
	ports := br.BridgePorts
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	want := []BridgePort{{Name: "tap0", Up: true}, {Name: "wlan0", Up: false}}
	if !reflect.DeepEqual(ports, want) {
		t.Errorf("br0 ports = %+v, want %+v", ports, want)
	}
	if !br.IsDefaultRoute {
		t.Error("br0 should own the default route")
	}
}

func TestReadPlainInterfaceHasNoPorts(t *testing.T) {
	fs := newFakeSys(t)
	fs.iface("eth0", "up", "1")
	got := fs.reader().Read("eth0")
	if got.InBridge || got.BridgeName != "" || len(got.BridgePorts) != 0 {
		t.Errorf("Read(eth0) = %+v, want no bridge data", got)
	}
	if (got.BridgeName != "") != got.InBridge {
		t.Error("InBridge must mirror BridgeName presence")
	}
}

func TestInterfaces(t *testing.T) {
	fs := newFakeSys(t)
	fs.iface("eth0", "up", "1")
	fs.iface("tap0", "unknown", "0")

	r := fs.reader()
	r.hostInterfaces = func() ([]string, error) { t.Fatal("fallback used"); return nil, nil }
	got := r.Interfaces()
	sort.Strings(got)
	if want := []string{"eth0", "tap0"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Interfaces() = %v, want %v", got, want)
	}
}

func TestInterfacesFallback(t *testing.T) {
	r := newFakeSys(t).reader()
	r.hostInterfaces = func() ([]string, error) { return []string{"lo", "eth0"}, nil }
	if got := r.Interfaces(); !reflect.DeepEqual(got, []string{"lo", "eth0"}) {
		t.Errorf("Interfaces() = %v", got)
	}
	r.hostInterfaces = func() ([]string, error) { return nil, errors.New("no netlink") }
	if got := r.Interfaces(); got == nil || len(got) != 0 {
		t.Errorf("Interfaces() = %#v, want empty", got)
	}
}
