package proof

import (
	"testing"

	"github.com/hashgraph-online/flora-price-oracle/shared/canonical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []*AdapterRecord {
	return []*AdapterRecord{
		{
			AdapterID: "coingecko",
			EntityID:  "HBAR-USD",
			Payload:   map[string]interface{}{"price": 0.071, "source": "coingecko"},
			Timestamp: "2024-01-01T00:00:00.000Z",
		},
		{
			AdapterID: "binance",
			EntityID:  "HBAR-USD",
			Payload:   map[string]interface{}{"price": 0.07, "source": "binance"},
			Timestamp: "2024-01-01T00:00:00.000Z",
		},
	}
}

func TestSortRecords(t *testing.T) {
	sorted := SortRecords(sampleRecords())
	require.Len(t, sorted, 2)
	assert.Equal(t, "binance", sorted[0].AdapterID)
	assert.Equal(t, "coingecko", sorted[1].AdapterID)
}

func TestComputeStateHash_OrderIndependent(t *testing.T) {
	fingerprints := map[string]string{"binance": "fp1", "coingecko": "fp2"}
	records := sampleRecords()

	a, err := ComputeStateHash(records, "tf", fingerprints, "0.0.500")
	require.NoError(t, err)

	reversed := []*AdapterRecord{records[1], records[0]}
	b, err := ComputeStateHash(reversed, "tf", fingerprints, "0.0.500")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 96)
}

func TestComputeStateHash_SensitiveToRegistry(t *testing.T) {
	records := sampleRecords()
	a, err := ComputeStateHash(records, "tf", nil, "0.0.500")
	require.NoError(t, err)
	b, err := ComputeStateHash(records, "tf", nil, "0.0.501")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRecomputeStateHash(t *testing.T) {
	records := sampleRecords()
	h, err := ComputeStateHash(records, "tf", nil, "0.0.500")
	require.NoError(t, err)

	p := &ProofPayload{
		StateHash:            h,
		ThresholdFingerprint: "tf",
		Records:              records,
		RegistryTopicID:      "0.0.500",
	}
	got, err := RecomputeStateHash(p)
	require.NoError(t, err)
	assert.Equal(t, p.StateHash, got)
}

func TestComputeSourceFingerprint(t *testing.T) {
	payload := map[string]interface{}{"source": "binance", "price": 0.07}
	fp, err := ComputeSourceFingerprint(payload)
	require.NoError(t, err)

	want, err := canonical.Digest(payload)
	require.NoError(t, err)
	assert.Equal(t, want, fp)
}

func TestDeriveThresholdFingerprint_RosterOrderIndependent(t *testing.T) {
	a, err := DeriveThresholdFingerprint([]string{"0.0.1002", "0.0.1001", "0.0.1003"}, 2)
	require.NoError(t, err)
	b, err := DeriveThresholdFingerprint([]string{"0.0.1001", "0.0.1003", "0.0.1002"}, 2)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 96)

	c, err := DeriveThresholdFingerprint([]string{"0.0.1001", "0.0.1002", "0.0.1003"}, 3)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
