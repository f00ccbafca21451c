package sadb

import "sync/atomic"

// Counters are the operator-visible per-router counters of spec §6:
// published via atomic writes from the worker goroutine and read by the
// observer goroutine without locking.
type Counters struct {
	bexAttempts     atomic.Uint64
	bexSuccesses    atomic.Uint64
	authFailures    atomic.Uint64
	replayDrops     atomic.Uint64
	unknownSPIDrops atomic.Uint64
	txBytes         atomic.Uint64
	rxBytes         atomic.Uint64
}

func NewCounters() *Counters { return &Counters{} }

func (c *Counters) IncBEXAttempt()           { c.bexAttempts.Add(1) }
func (c *Counters) IncBEXSuccess()           { c.bexSuccesses.Add(1) }
func (c *Counters) IncAuthFailure()          { c.authFailures.Add(1) }
func (c *Counters) IncReplayDrop()           { c.replayDrops.Add(1) }
func (c *Counters) IncUnknownSPIDrop()       { c.unknownSPIDrops.Add(1) }
func (c *Counters) AddTxBytes(n uint64)      { c.txBytes.Add(n) }
func (c *Counters) AddRxBytes(n uint64)      { c.rxBytes.Add(n) }

// Snapshot is a point-in-time read of every counter, for the operator
// surface to report.
type Snapshot struct {
	BEXAttempts     uint64
	BEXSuccesses    uint64
	AuthFailures    uint64
	ReplayDrops     uint64
	UnknownSPIDrops uint64
	TxBytes         uint64
	RxBytes         uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BEXAttempts:     c.bexAttempts.Load(),
		BEXSuccesses:    c.bexSuccesses.Load(),
		AuthFailures:    c.authFailures.Load(),
		ReplayDrops:     c.replayDrops.Load(),
		UnknownSPIDrops: c.unknownSPIDrops.Load(),
		TxBytes:         c.txBytes.Load(),
		RxBytes:         c.rxBytes.Load(),
	}
}
