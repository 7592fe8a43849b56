package monitor

import (
	"math"
	"math/bits"
)

// RateMeter turns successive cumulative byte counters into bits per second.
//
// It starts unset; the first sample only arms the baseline. Every later
// sample with a positive time delta yields a rate and becomes the new
// baseline. RateMeter is not safe for concurrent use.
type RateMeter struct {
	armed  bool
	lastMs int64
	lastRx uint64
	lastTx uint64
}

// Sample records counters observed at nowMs (milliseconds) and returns the
// rates since the previous sample. ok is false for the first sample after
// construction or Reset, and when the clock did not advance; in the latter
// case the baseline is left untouched. A counter that went backwards
// (interface recreated, counter wrap) reports zero for that direction.
func (m *RateMeter) Sample(nowMs int64, rx, tx uint64) (rxBps, txBps uint64, ok bool) {
	if !m.armed {
		m.arm(nowMs, rx, tx)
		return 0, 0, false
	}
	dt := nowMs - m.lastMs
	if dt <= 0 {
		return 0, 0, false
	}
	rxBps = bitsPerSecond(m.lastRx, rx, uint64(dt))
	txBps = bitsPerSecond(m.lastTx, tx, uint64(dt))
	m.arm(nowMs, rx, tx)
	return rxBps, txBps, true
}

// Reset discards the baseline; the next Sample arms it again.
func (m *RateMeter) Reset() {
	*m = RateMeter{}
}

// Armed reports whether a baseline is held.
func (m *RateMeter) Armed() bool {
	return m.armed
}

func (m *RateMeter) arm(nowMs int64, rx, tx uint64) {
	m.armed = true
	m.lastMs = nowMs
	m.lastRx = rx
	m.lastTx = tx
}

// bitsPerSecond computes (cur-prev)*8*1000/dtMs with the delta clamped at
// zero. The product is formed in 128 bits and saturates at MaxUint64.
func bitsPerSecond(prev, cur, dtMs uint64) uint64 {
	if cur <= prev {
		return 0
	}
	hi, lo := bits.Mul64(cur-prev, 8*1000)
	if hi >= dtMs {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, dtMs)
	return q
}
