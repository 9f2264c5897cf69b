package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var _ Ticker = (*EpochTicker)(nil)

func TestEpochTicker(t *testing.T) {
	ticker := &EpochTicker{
		c:    make(chan uint64),
		done: make(chan struct{}),
	}
	defer ticker.Done()

	var sinceDuration time.Duration
	since := func(time.Time) time.Duration {
		return sinceDuration
	}

	var untilDuration time.Duration
	until := func(time.Time) time.Duration {
		return untilDuration
	}

	var tick chan time.Time
	after := func(time.Duration) <-chan time.Time {
		return tick
	}

	origin := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	blockTime := 2 * time.Second

	// The ticker starts mid-way through epoch 2, so the next tick is the
	// epoch 3 boundary.
	sinceDuration = 5 * time.Second
	untilDuration = 1 * time.Second
	// Make this a buffered channel to prevent a deadlock since
	// the other goroutine calls a function in this goroutine.
	tick = make(chan time.Time, 2)
	ticker.start(origin, blockTime, since, until, after)

	tick <- time.Now()
	require.Equal(t, uint64(3), <-ticker.C())

	tick <- time.Now()
	require.Equal(t, uint64(4), <-ticker.C())

	tick <- time.Now()
	require.Equal(t, uint64(5), <-ticker.C())
}

func TestEpochTickerAtOrigin(t *testing.T) {
	ticker := &EpochTicker{
		c:    make(chan uint64),
		done: make(chan struct{}),
	}
	defer ticker.Done()

	var sinceDuration time.Duration
	since := func(time.Time) time.Duration {
		return sinceDuration
	}

	var untilDuration time.Duration
	until := func(time.Time) time.Duration {
		return untilDuration
	}

	var tick chan time.Time
	after := func(time.Duration) <-chan time.Time {
		return tick
	}

	origin := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	blockTime := 2 * time.Second

	// A fresh boot persists origin = now, so the first tick carries epoch 0.
	sinceDuration = 0
	untilDuration = 0
	tick = make(chan time.Time, 2)
	ticker.start(origin, blockTime, since, until, after)

	tick <- time.Now()
	require.Equal(t, uint64(0), <-ticker.C())

	tick <- time.Now()
	require.Equal(t, uint64(1), <-ticker.C())
}

func TestNewEpochTicker_RejectsZeroBlockTime(t *testing.T) {
	require.Panics(t, func() {
		NewEpochTicker(time.Now(), 0)
	})
}
