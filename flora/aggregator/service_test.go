package aggregator

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/event"
	logTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph-online/flora-price-oracle/db"
	testDB "github.com/hashgraph-online/flora-price-oracle/db/testing"
	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared/testutil"
)

const (
	testThresholdFP = "a1b2c3"
	testRegistry    = "0.0.6001"
	testTimestamp   = "2023-11-14T22:13:20.000Z"
)

func testService(t *testing.T) (*Service, db.Database, chan *Consensus) {
	d := testDB.SetupDB(t)
	feed := new(event.Feed)
	s := NewService(context.Background(), &Config{DB: d, ConsensusFeed: feed})
	s.Start()
	t.Cleanup(func() { require.NoError(t, s.Stop()) })

	ch := make(chan *Consensus, 4)
	sub := feed.Subscribe(ch)
	t.Cleanup(sub.Unsubscribe)
	return s, d, ch
}

// testProof builds a structurally valid proof whose state hash verifies, so
// proofs built with equal prices land in the same consensus group.
func testProof(t *testing.T, petalID string, epoch uint64, price float64) *proof.ProofPayload {
	t.Helper()
	records := []*proof.AdapterRecord{{
		AdapterID:         "coingecko",
		EntityID:          "HBAR-USD",
		Payload:           map[string]interface{}{"price": price, "source": "coingecko"},
		Timestamp:         testTimestamp,
		SourceFingerprint: "fp-record",
	}}
	fingerprints := map[string]string{"coingecko": "fp-coingecko"}
	hash, err := proof.ComputeStateHash(records, testThresholdFP, fingerprints, testRegistry)
	require.NoError(t, err)
	return &proof.ProofPayload{
		Epoch:                epoch,
		StateHash:            hash,
		ThresholdFingerprint: testThresholdFP,
		PetalID:              petalID,
		PetalAccountID:       "0.0.1001",
		PetalStateTopicID:    "0.0.3001",
		FloraAccountID:       "0.0.7001",
		Participants:         []string{"0.0.1003", "0.0.1001", "0.0.1002"},
		Records:              records,
		AdapterFingerprints:  fingerprints,
		RegistryTopicID:      testRegistry,
		Timestamp:            testTimestamp,
	}
}

func TestSubmitProof_QuorumFormsConsensus(t *testing.T) {
	s, d, ch := testService(t)

	s.SubmitProof(testProof(t, "petal-a", 3, 0.0713))
	select {
	case c := <-ch:
		t.Fatalf("consensus before quorum: %v", c.Entry)
	default:
	}

	s.SubmitProof(testProof(t, "petal-b", 3, 0.0713))
	c := <-ch
	require.Equal(t, uint64(3), c.Entry.Epoch)
	assert.InDelta(t, 0.0713, c.Entry.Price, 1e-12)
	assert.Equal(t, testTimestamp, c.Entry.Timestamp)
	assert.Equal(t, []string{"0.0.1001", "0.0.1002", "0.0.1003"}, c.Entry.Participants)
	require.Len(t, c.Entry.Sources, 1)
	assert.Equal(t, "coingecko", c.Entry.Sources[0].Source)
	require.Len(t, c.Proofs, 2)

	// The entry is persisted as soon as it forms.
	persisted, err := d.ConsensusEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, c.Entry.StateHash, persisted[0].StateHash)
}

func TestSubmitProof_EmitsOncePerEpoch(t *testing.T) {
	s, _, ch := testService(t)

	s.SubmitProof(testProof(t, "petal-a", 5, 0.071))
	s.SubmitProof(testProof(t, "petal-b", 5, 0.071))
	<-ch

	// A third matching proof lands in the bucket but does not re-emit.
	s.SubmitProof(testProof(t, "petal-c", 5, 0.071))
	select {
	case c := <-ch:
		t.Fatalf("epoch consolidated twice: %v", c.Entry)
	default:
	}
	assert.Len(t, s.History(), 1)
}

func TestSubmitProof_PluralityWins(t *testing.T) {
	s, _, ch := testService(t)

	// A lone divergent hash arrives first; the majority group still wins.
	s.SubmitProof(testProof(t, "petal-c", 2, 0.9999))
	s.SubmitProof(testProof(t, "petal-a", 2, 0.0712))
	s.SubmitProof(testProof(t, "petal-b", 2, 0.0712))

	c := <-ch
	assert.InDelta(t, 0.0712, c.Entry.Price, 1e-12)
	require.Len(t, c.Proofs, 2)
	assert.Equal(t, "petal-a", c.Proofs[0].PetalID)
}

func TestSubmitProof_DuplicatePetalKeepsFirst(t *testing.T) {
	s, _, ch := testService(t)

	s.SubmitProof(testProof(t, "petal-a", 4, 0.071))
	s.SubmitProof(testProof(t, "petal-a", 4, 0.071))
	s.SubmitProof(testProof(t, "petal-a", 4, 0.9))
	select {
	case c := <-ch:
		t.Fatalf("single petal consolidated an epoch: %v", c.Entry)
	default:
	}

	s.SubmitProof(testProof(t, "petal-b", 4, 0.071))
	c := <-ch
	assert.InDelta(t, 0.071, c.Entry.Price, 1e-12)
}

func TestSubmitProof_RecomputeGuardWithholdsEpoch(t *testing.T) {
	hook := logTest.NewGlobal()
	s, _, ch := testService(t)

	forged := testProof(t, "petal-a", 6, 0.071)
	forged.StateHash = "00ff00ff"
	matching := testProof(t, "petal-b", 6, 0.071)
	matching.StateHash = "00ff00ff"
	s.SubmitProof(forged)
	s.SubmitProof(matching)

	select {
	case c := <-ch:
		t.Fatalf("forged group consolidated: %v", c.Entry)
	default:
	}
	testutil.AssertLogsContain(t, hook, "failed state hash recomputation")
	assert.Empty(t, s.History())
}

func TestApplyMetadata_StampsExactlyOnce(t *testing.T) {
	s, d, ch := testService(t)

	s.SubmitProof(testProof(t, "petal-a", 8, 0.071))
	s.SubmitProof(testProof(t, "petal-b", 8, 0.071))
	<-ch

	epoch := uint64(8)
	meta := &EpochMetadata{
		HCSMessage:         "hcs://17/0.0.5001",
		ConsensusTimestamp: "1700000123.000000001",
		SequenceNumber:     7,
	}
	require.True(t, s.ApplyMetadata(&epoch, meta))
	assert.False(t, s.ApplyMetadata(&epoch, &EpochMetadata{ConsensusTimestamp: "override"}))

	entries, err := d.ConsensusEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1700000123.000000001", entries[0].ConsensusTimestamp)
	assert.Equal(t, uint64(7), entries[0].SequenceNumber)
	assert.Equal(t, "hcs://17/0.0.5001", entries[0].HCSMessage)
}

func TestApplyMetadata_PendingFIFO(t *testing.T) {
	s, _, ch := testService(t)

	for _, epoch := range []uint64{3, 4} {
		s.SubmitProof(testProof(t, "petal-a", epoch, 0.071))
		s.SubmitProof(testProof(t, "petal-b", epoch, 0.071))
		<-ch
	}

	// Stamps without an epoch land on the oldest unstamped entry first.
	require.True(t, s.ApplyMetadata(nil, &EpochMetadata{ConsensusTimestamp: "100.1"}))
	require.True(t, s.ApplyMetadata(nil, &EpochMetadata{ConsensusTimestamp: "100.2"}))
	assert.False(t, s.ApplyMetadata(nil, &EpochMetadata{ConsensusTimestamp: "100.3"}))

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "100.1", history[0].ConsensusTimestamp)
	assert.Equal(t, "100.2", history[1].ConsensusTimestamp)
}

func TestApplyMetadata_HeldUntilEntryForms(t *testing.T) {
	s, _, ch := testService(t)

	epoch := uint64(9)
	meta := &EpochMetadata{ConsensusTimestamp: "200.5", SequenceNumber: 11}
	assert.False(t, s.ApplyMetadata(&epoch, meta))

	s.SubmitProof(testProof(t, "petal-a", 9, 0.071))
	s.SubmitProof(testProof(t, "petal-b", 9, 0.071))
	c := <-ch
	assert.Equal(t, "200.5", c.Entry.ConsensusTimestamp)
	assert.Equal(t, uint64(11), c.Entry.SequenceNumber)
}

func TestLatestEntry_PrefersPublished(t *testing.T) {
	s, _, ch := testService(t)
	assert.Nil(t, s.LatestEntry())

	for _, epoch := range []uint64{1, 2} {
		s.SubmitProof(testProof(t, "petal-a", epoch, 0.071))
		s.SubmitProof(testProof(t, "petal-b", epoch, 0.071))
		<-ch
	}

	// Nothing published yet, fall back to the newest consolidated entry.
	latest := s.LatestEntry()
	require.NotNil(t, latest)
	assert.Equal(t, uint64(2), latest.Epoch)

	epoch := uint64(1)
	require.True(t, s.ApplyMetadata(&epoch, &EpochMetadata{ConsensusTimestamp: "300.1"}))
	latest = s.LatestEntry()
	assert.Equal(t, uint64(1), latest.Epoch, "published entry outranks a newer unpublished one")
}

func TestHistoryPage(t *testing.T) {
	s, _, ch := testService(t)
	for _, epoch := range []uint64{1, 2, 3} {
		s.SubmitProof(testProof(t, "petal-a", epoch, 0.071))
		s.SubmitProof(testProof(t, "petal-b", epoch, 0.071))
		<-ch
	}

	total, items := s.HistoryPage(0, 2)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, uint64(3), items[0].Epoch, "pages run newest first")
	assert.Equal(t, uint64(2), items[1].Epoch)

	total, items = s.HistoryPage(2, 2)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(1), items[0].Epoch)

	total, items = s.HistoryPage(5, 10)
	assert.Equal(t, 3, total)
	assert.Empty(t, items)
}

func TestStart_LoadsPersistedHistory(t *testing.T) {
	d := testDB.SetupDB(t)
	ctx := context.Background()
	require.NoError(t, d.SaveConsensusEntry(ctx, &proof.ConsensusEntry{
		Epoch:     12,
		StateHash: "feedface",
		Price:     0.071,
		Timestamp: testTimestamp,
	}))

	feed := new(event.Feed)
	s := NewService(ctx, &Config{DB: d, ConsensusFeed: feed})
	s.Start()
	t.Cleanup(func() { require.NoError(t, s.Stop()) })
	ch := make(chan *Consensus, 1)
	sub := feed.Subscribe(ch)
	t.Cleanup(sub.Unsubscribe)

	require.Len(t, s.History(), 1)

	// An epoch restored from disk is never re-emitted.
	s.SubmitProof(testProof(t, "petal-a", 12, 0.071))
	s.SubmitProof(testProof(t, "petal-b", 12, 0.071))
	select {
	case c := <-ch:
		t.Fatalf("restored epoch consolidated again: %v", c.Entry)
	default:
	}
}
