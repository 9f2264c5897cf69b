package proof

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// BuilderConfig carries the identity and registry context a petal stamps
// into every proof it assembles.
type BuilderConfig struct {
	EpochOriginMs        int64
	BlockTimeMs          uint64
	ThresholdFingerprint string
	AdapterFingerprints  map[string]string
	RegistryTopicID      string
	FloraAccountID       string
	PetalID              string
	PetalAccountID       string
	PetalStateTopicID    string
	Participants         []string
}

// EpochTimestamp derives the timestamp of epoch e from the epoch origin and
// block time. Every petal derives the identical value for the same epoch, so
// the timestamp never depends on local clocks.
func EpochTimestamp(originMs int64, blockTimeMs uint64, epoch uint64) string {
	ms := originMs + int64(epoch)*int64(blockTimeMs)
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

// EpochAt returns the epoch number the given instant falls into.
func EpochAt(now time.Time, originMs int64, blockTimeMs uint64) int64 {
	if blockTimeMs == 0 {
		return 0
	}
	return (now.UnixMilli() - originMs) / int64(blockTimeMs)
}

// EpochMemo formats the hcs-17 memo naming an epoch.
func EpochMemo(epoch uint64) string {
	return fmt.Sprintf("hcs17:%d", epoch)
}

// Build assembles the proof for one epoch from that epoch's adapter
// records. Records are re-stamped with the canonical epoch timestamp and
// sorted before hashing, so the resulting state hash is identical across
// petals that observed the same adapter data.
func Build(cfg *BuilderConfig, epoch uint64, records []*AdapterRecord) (*ProofPayload, error) {
	if len(records) == 0 {
		return nil, errors.New("no adapter records for epoch")
	}
	ts := EpochTimestamp(cfg.EpochOriginMs, cfg.BlockTimeMs, epoch)
	stamped := make([]*AdapterRecord, len(records))
	for i, r := range records {
		cp := *r
		cp.Timestamp = ts
		stamped[i] = &cp
	}
	sorted := SortRecords(stamped)
	stateHash, err := ComputeStateHash(sorted, cfg.ThresholdFingerprint, cfg.AdapterFingerprints, cfg.RegistryTopicID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not compute state hash for epoch %d", epoch)
	}
	return &ProofPayload{
		Epoch:                epoch,
		StateHash:            stateHash,
		ThresholdFingerprint: cfg.ThresholdFingerprint,
		PetalID:              cfg.PetalID,
		PetalAccountID:       cfg.PetalAccountID,
		PetalStateTopicID:    cfg.PetalStateTopicID,
		FloraAccountID:       cfg.FloraAccountID,
		Participants:         SortAccountIDs(cfg.Participants),
		Records:              sorted,
		AdapterFingerprints:  cfg.AdapterFingerprints,
		RegistryTopicID:      cfg.RegistryTopicID,
		Timestamp:            ts,
	}, nil
}

// NewPetalStateMessage builds the hcs-17 envelope a petal writes to its own
// state topic alongside each proof.
func NewPetalStateMessage(p *ProofPayload, topics []string) *StateMessage {
	epoch := p.Epoch
	return &StateMessage{
		Protocol:  "hcs-17",
		Operation: "state_hash",
		Memo:      EpochMemo(p.Epoch),
		AccountID: p.PetalAccountID,
		StateHash: p.StateHash,
		Topics:    topics,
		Epoch:     &epoch,
	}
}

// NewConsolidatedStateMessage builds the hcs-17 envelope the elected leader
// publishes for a consensus entry on the flora state topic.
func NewConsolidatedStateMessage(entry *ConsensusEntry, floraAccountID, thresholdFingerprint string, topics []string) *StateMessage {
	epoch := entry.Epoch
	price := entry.Price
	return &StateMessage{
		Protocol:             "hcs-17",
		Operation:            "state_hash",
		Memo:                 EpochMemo(entry.Epoch),
		AccountID:            floraAccountID,
		StateHash:            entry.StateHash,
		Topics:               topics,
		Epoch:                &epoch,
		Price:                &price,
		ThresholdFingerprint: thresholdFingerprint,
		Participants:         entry.Participants,
	}
}
