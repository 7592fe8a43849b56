package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/opd-ai/tapwatch/internal/monitor"
)

// printer is the sink writing each view to w.
func printer(w io.Writer, asJSON bool) monitor.Sink {
	return monitor.SinkFunc(func(_ context.Context, v monitor.View) error {
		return printView(w, v, asJSON)
	})
}

func printView(w io.Writer, v monitor.View, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(v)
	}
	_, err := io.WriteString(w, formatView(v)+"\n")
	return err
}

// formatView renders one view as a single line, e.g.
//
//	15:04:05 tap0 up carrier rx 8.00 kbit/s tx 4.00 kbit/s bridge br0 [tap0+ eth1-] default-route
func formatView(v monitor.View) string {
	var b strings.Builder
	b.WriteString(v.Timestamp.Format(time.TimeOnly))
	b.WriteString(" ")
	b.WriteString(v.Interface)

	if !v.Exists {
		b.WriteString(" absent")
		return b.String()
	}
	if v.Up {
		b.WriteString(" up")
	} else {
		b.WriteString(" down")
	}
	if v.Carrier {
		b.WriteString(" carrier")
	}

	if rx, tx := v.Rates(); v.HasRate() {
		fmt.Fprintf(&b, " rx %s tx %s", formatBits(rx), formatBits(tx))
	} else {
		b.WriteString(" rx - tx -")
	}

	if v.InBridge {
		fmt.Fprintf(&b, " bridge %s", v.BridgeName)
	}
	if len(v.BridgePorts) > 0 {
		ports := make([]string, 0, len(v.BridgePorts))
		for _, p := range v.BridgePorts {
			mark := "-"
			if p.Up {
				mark = "+"
			}
			ports = append(ports, p.Name+mark)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(ports, " "))
	}
	if v.IsDefaultRoute {
		b.WriteString(" default-route")
	}
	return b.String()
}

// formatBits renders a bit rate with a decimal SI prefix.
func formatBits(bps uint64) string {
	units := []string{"bit/s", "kbit/s", "Mbit/s", "Gbit/s", "Tbit/s"}
	if bps < 1000 {
		return fmt.Sprintf("%d %s", bps, units[0])
	}
	f := float64(bps)
	i := 0
	for f >= 1000 && i < len(units)-1 {
		f /= 1000
		i++
	}
	return fmt.Sprintf("%.2f %s", f, units[i])
}

func printInterfaces(w io.Writer, names, defaults []string, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(struct {
			Interfaces   []string `json:"interfaces"`
			DefaultRoute []string `json:"defaultRoute"`
		}{names, defaults})
	}
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	for _, n := range sorted {
		line := n
		if slices.Contains(defaults, n) {
			line += " (default route)"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
