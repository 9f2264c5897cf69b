// Package adapters loads the petal's adapter manifest and samples every
// adapter concurrently once per epoch. The adapter set is all-or-nothing:
// every petal in the flora must hash the identical set of records, so a
// single adapter failure skips the epoch instead of producing a partial set.
package adapters

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hashgraph-online/flora-price-oracle/proof"
)

var log = logrus.WithField("prefix", "adapters")

// defaultEntityID names the priced pair when a manifest entry does not
// override it.
const defaultEntityID = "HBAR-USD"

// Adapter produces one price record on demand.
type Adapter interface {
	// ID identifies the adapter within the manifest.
	ID() string
	// Fingerprint commits to the adapter's manifest entry.
	Fingerprint() string
	// Fetch samples the adapter once. Implementations honor ctx deadlines.
	Fetch(ctx context.Context) (*proof.AdapterRecord, error)
}

// Fingerprints maps each adapter id to its manifest fingerprint. The map
// feeds the state-hash composite, so iteration order does not matter.
func Fingerprints(list []Adapter) map[string]string {
	out := make(map[string]string, len(list))
	for _, a := range list {
		out[a.ID()] = a.Fingerprint()
	}
	return out
}

// record builds the AdapterRecord an adapter reports for one sample. The
// timestamp is left empty; the proof builder stamps every record with the
// epoch timestamp before hashing.
func record(entry ManifestEntry, price float64) (*proof.AdapterRecord, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, errors.Errorf("adapter %s produced a non-finite price", entry.ID)
	}
	source := entry.Source
	if source == "" {
		source = entry.ID
	}
	payload := map[string]interface{}{
		"price":  price,
		"source": source,
	}
	fingerprint, err := proof.ComputeSourceFingerprint(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "adapter %s payload could not be fingerprinted", entry.ID)
	}
	entity := entry.Entity
	if entity == "" {
		entity = defaultEntityID
	}
	return &proof.AdapterRecord{
		AdapterID:         entry.ID,
		EntityID:          entity,
		Payload:           payload,
		SourceFingerprint: fingerprint,
	}, nil
}

// staticAdapter reports a fixed price from the manifest. Useful for local
// floras and tests.
type staticAdapter struct {
	entry       ManifestEntry
	fingerprint string
}

func newStaticAdapter(entry ManifestEntry) (*staticAdapter, error) {
	fp, err := entry.ComputeFingerprint()
	if err != nil {
		return nil, err
	}
	return &staticAdapter{entry: entry, fingerprint: fp}, nil
}

func (a *staticAdapter) ID() string {
	return a.entry.ID
}

func (a *staticAdapter) Fingerprint() string {
	return a.fingerprint
}

func (a *staticAdapter) Fetch(_ context.Context) (*proof.AdapterRecord, error) {
	return record(a.entry, a.entry.Price)
}
