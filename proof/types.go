// Package proof defines the wire types a petal submits each epoch and the
// pure functions that build, validate and consolidate them: canonical state
// hashing, epoch timestamp derivation, chunk splitting and reassembly, and
// deterministic participant ordering.
package proof

import (
	"encoding/json"
	"math"
)

// AdapterRecord is one adapter's observation of the priced pair for one
// epoch. Records are immutable once stamped with the epoch timestamp.
type AdapterRecord struct {
	AdapterID         string                 `json:"adapterId"`
	EntityID          string                 `json:"entityId"`
	Payload           map[string]interface{} `json:"payload"`
	Timestamp         string                 `json:"timestamp"`
	SourceFingerprint string                 `json:"sourceFingerprint"`
}

// Price returns the payload price if it is a finite number.
func (r *AdapterRecord) Price() (float64, bool) {
	if r == nil || r.Payload == nil {
		return 0, false
	}
	return finiteNumber(r.Payload["price"])
}

// Source returns the payload source label, if present.
func (r *AdapterRecord) Source() string {
	if r == nil || r.Payload == nil {
		return ""
	}
	s, _ := r.Payload["source"].(string)
	return s
}

func finiteNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ProofPayload is one petal's submission for one epoch. The state hash
// commits to the sorted records, the threshold fingerprint, the adapter
// fingerprints and the registry topic.
type ProofPayload struct {
	Epoch                uint64            `json:"epoch"`
	StateHash            string            `json:"stateHash"`
	ThresholdFingerprint string            `json:"thresholdFingerprint"`
	PetalID              string            `json:"petalId"`
	PetalAccountID       string            `json:"petalAccountId"`
	PetalStateTopicID    string            `json:"petalStateTopicId"`
	FloraAccountID       string            `json:"floraAccountId"`
	Participants         []string          `json:"participants"`
	Records              []*AdapterRecord  `json:"records"`
	AdapterFingerprints  map[string]string `json:"adapterFingerprints"`
	RegistryTopicID      string            `json:"registryTopicId"`
	Timestamp            string            `json:"timestamp"`

	// Filled in after the consolidated proof reaches the consensus log.
	HCSMessage         string `json:"hcsMessage,omitempty"`
	ConsensusTimestamp string `json:"consensusTimestamp,omitempty"`
	SequenceNumber     uint64 `json:"sequenceNumber,omitempty"`
}

// ChunkedProofPayload is one part of a proof split to fit the consensus log
// message size limit. Chunk ids are 1-based and data is base64 over the
// part's raw bytes.
type ChunkedProofPayload struct {
	PetalID     string `json:"petalId"`
	Epoch       uint64 `json:"epoch"`
	ChunkID     int    `json:"chunk_id"`
	TotalChunks int    `json:"total_chunks"`
	Data        string `json:"data"`
}

// StateMessage is the hcs-17 state_hash envelope written to state topics,
// both by petals for their own epoch hashes and by the elected leader for
// the consolidated flora proof.
type StateMessage struct {
	Protocol             string   `json:"p"`
	Operation            string   `json:"op"`
	Memo                 string   `json:"m,omitempty"`
	AccountID            string   `json:"account_id"`
	StateHash            string   `json:"state_hash"`
	Topics               []string `json:"topics,omitempty"`
	Epoch                *uint64  `json:"epoch,omitempty"`
	Price                *float64 `json:"price,omitempty"`
	ThresholdFingerprint string   `json:"threshold_fingerprint,omitempty"`
	Participants         []string `json:"participants,omitempty"`
}

// SourcePrice pairs one adapter source with the price it reported.
type SourcePrice struct {
	Source string  `json:"source"`
	Price  float64 `json:"price"`
}

// ConsensusEntry is the consolidated result of one epoch's aggregation.
// Epoch and state hash are immutable once the entry exists; the log
// metadata fields are filled exactly once when the consolidated proof (or a
// tailed message) reaches the consensus log.
type ConsensusEntry struct {
	Epoch              uint64         `json:"epoch"`
	StateHash          string         `json:"stateHash"`
	Price              float64        `json:"price"`
	Timestamp          string         `json:"timestamp"`
	Participants       []string       `json:"participants"`
	Sources            []*SourcePrice `json:"sources"`
	HCSMessage         string         `json:"hcsMessage,omitempty"`
	ConsensusTimestamp string         `json:"consensusTimestamp,omitempty"`
	SequenceNumber     uint64         `json:"sequenceNumber,omitempty"`
}

// HasConsensusMetadata reports whether the entry has been stamped with log
// metadata already.
func (e *ConsensusEntry) HasConsensusMetadata() bool {
	return e.ConsensusTimestamp != ""
}
