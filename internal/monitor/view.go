package monitor

import (
	"time"

	"github.com/opd-ai/tapwatch/internal/netif"
)

// View is what each polling cycle delivers: the snapshot of the watched
// interface plus the rates derived from it. RxBps and TxBps are nil until
// the meter has two samples to compare.
type View struct {
	Interface string    `json:"interface"`
	Timestamp time.Time `json:"timestamp"`
	netif.Snapshot
	RxBps *uint64 `json:"rxBps"`
	TxBps *uint64 `json:"txBps"`
}

// HasRate reports whether the view carries a rate.
func (v View) HasRate() bool {
	return v.RxBps != nil && v.TxBps != nil
}

// Rates returns the rates, or zeros when HasRate is false.
func (v View) Rates() (rx, tx uint64) {
	if !v.HasRate() {
		return 0, 0
	}
	return *v.RxBps, *v.TxBps
}

// NextInterval chooses the sleep after a cycle: active while the link is
// live, idle otherwise.
func NextInterval(s netif.Snapshot, active, idle time.Duration) time.Duration {
	if s.Active() {
		return active
	}
	return idle
}
