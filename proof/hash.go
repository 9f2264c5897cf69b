package proof

import (
	"sort"

	"github.com/hashgraph-online/flora-price-oracle/shared/canonical"
	"github.com/pkg/errors"
)

// SortRecords returns a copy of records ordered by (adapterId, entityId).
// The input slice is left untouched.
func SortRecords(records []*AdapterRecord) []*AdapterRecord {
	out := make([]*AdapterRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AdapterID != out[j].AdapterID {
			return out[i].AdapterID < out[j].AdapterID
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// ComputeStateHash hashes the canonical composite of an epoch's sorted
// records together with the flora's threshold fingerprint, the adapter
// fingerprints in force and the registry topic. Two petals observing the
// same adapter data under the same registry produce the same hash.
func ComputeStateHash(records []*AdapterRecord, thresholdFingerprint string, adapterFingerprints map[string]string, registryTopicID string) (string, error) {
	composite := map[string]interface{}{
		"records":              SortRecords(records),
		"thresholdFingerprint": thresholdFingerprint,
		"adapterFingerprints":  adapterFingerprints,
		"registryTopicId":      registryTopicID,
	}
	digest, err := canonical.Digest(composite)
	if err != nil {
		return "", errors.Wrap(err, "could not canonicalize state composite")
	}
	return digest, nil
}

// RecomputeStateHash recomputes the state hash from a proof's own contents.
// A mismatch with the carried stateHash means the proof was tampered with or
// assembled incorrectly.
func RecomputeStateHash(p *ProofPayload) (string, error) {
	return ComputeStateHash(p.Records, p.ThresholdFingerprint, p.AdapterFingerprints, p.RegistryTopicID)
}

// ComputeSourceFingerprint hashes an adapter record's canonical payload.
func ComputeSourceFingerprint(payload map[string]interface{}) (string, error) {
	digest, err := canonical.Digest(payload)
	if err != nil {
		return "", errors.Wrap(err, "could not canonicalize adapter payload")
	}
	return digest, nil
}

// DeriveThresholdFingerprint hashes the canonical description of a flora's
// threshold key: the sorted member accounts plus the number of signatures the
// key requires. Every member derives the same fingerprint from the same
// roster, so it can stand in for the key itself inside state hashes.
func DeriveThresholdFingerprint(participants []string, threshold uint64) (string, error) {
	composite := map[string]interface{}{
		"participants": SortAccountIDs(participants),
		"threshold":    threshold,
	}
	digest, err := canonical.Digest(composite)
	if err != nil {
		return "", errors.Wrap(err, "could not canonicalize threshold composite")
	}
	return digest, nil
}
