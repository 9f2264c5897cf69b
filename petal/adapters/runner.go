package adapters

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/hashgraph-online/flora-price-oracle/proof"
)

var (
	adapterFailureCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petal",
			Name:      "adapter_failures_total",
			Help:      "Total adapter fetch failures.",
		},
		[]string{"adapter"},
	)
	adapterLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "petal",
			Name:      "adapter_fetch_seconds",
			Help:      "Time taken to fetch one adapter record.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4},
		},
		[]string{"adapter"},
	)
)

// Run samples every adapter concurrently with a per-adapter deadline and
// returns the records in adapter order. Any single failure fails the whole
// run so the caller can skip the epoch.
func Run(ctx context.Context, list []Adapter, timeout time.Duration) ([]*proof.AdapterRecord, error) {
	if len(list) == 0 {
		return nil, errors.New("no adapters configured")
	}
	records := make([]*proof.AdapterRecord, len(list))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range list {
		i, a := i, a
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			start := time.Now()
			rec, err := a.Fetch(fetchCtx)
			if err != nil {
				adapterFailureCount.WithLabelValues(a.ID()).Inc()
				return errors.Wrapf(err, "adapter %s failed", a.ID())
			}
			adapterLatency.WithLabelValues(a.ID()).Observe(time.Since(start).Seconds())
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
