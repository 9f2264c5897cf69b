// Package scheduler drives a petal's epoch loop: a ticker aligned to the
// epoch origin fires once per block time, and each tick samples the adapter
// set, builds the proof and delivers it.
package scheduler

import (
	"time"
)

// Ticker is a convenience interface for epoch ticker types.
type Ticker interface {
	C() <-chan uint64
	Done()
}

// EpochTicker emits epoch numbers over the block-time interval, keeping
// ticks in line with the epoch origin: the duration between any tick and
// the origin is always a multiple of the block time.
type EpochTicker struct {
	c    chan uint64
	done chan struct{}
}

// C returns the ticker channel. Call Done afterwards to ensure that the
// goroutine exits cleanly.
func (t *EpochTicker) C() <-chan uint64 {
	return t.c
}

// Done should be called to clean up the ticker.
func (t *EpochTicker) Done() {
	go func() {
		t.done <- struct{}{}
	}()
}

// NewEpochTicker starts and returns a new EpochTicker instance.
func NewEpochTicker(origin time.Time, blockTime time.Duration) *EpochTicker {
	if blockTime <= 0 {
		panic("block time must be positive")
	}
	ticker := &EpochTicker{
		c:    make(chan uint64),
		done: make(chan struct{}),
	}
	ticker.start(origin, blockTime, time.Since, time.Until, time.After)
	return ticker
}

func (t *EpochTicker) start(
	origin time.Time,
	blockTime time.Duration,
	since, until func(time.Time) time.Duration,
	after func(time.Duration) <-chan time.Time,
) {
	go func() {
		sinceOrigin := since(origin)

		var nextTickTime time.Time
		var epoch uint64
		if sinceOrigin < blockTime {
			// Inside epoch 0 (or before the origin): tick for epoch 0
			// right away, then align to the origin's boundaries.
			nextTickTime = origin
			epoch = 0
		} else {
			nextTick := sinceOrigin.Truncate(blockTime) + blockTime
			nextTickTime = origin.Add(nextTick)
			epoch = uint64(nextTick / blockTime)
		}

		for {
			waitTime := until(nextTickTime)
			select {
			case <-after(waitTime):
				t.c <- epoch
				epoch++
				nextTickTime = nextTickTime.Add(blockTime)
			case <-t.done:
				return
			}
		}
	}()
}
