package proof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAccountID(t *testing.T) {
	assert.True(t, IsAccountID("0.0.12345"))
	assert.True(t, IsAccountID("1.2.3"))
	assert.False(t, IsAccountID("0.0"))
	assert.False(t, IsAccountID("0.0.x"))
	assert.False(t, IsAccountID("petal-a"))
	assert.False(t, IsAccountID(" 0.0.5"))
}

func TestCompareAccountIDs(t *testing.T) {
	assert.Equal(t, -1, CompareAccountIDs("0.0.9", "0.0.10"))
	assert.Equal(t, 1, CompareAccountIDs("0.0.10", "0.0.9"))
	assert.Equal(t, 0, CompareAccountIDs("0.0.10", "0.0.10"))
	// Missing components compare as zero, then the raw string decides.
	assert.Equal(t, -1, CompareAccountIDs("0.0", "0.0.0"))
	assert.Equal(t, -1, CompareAccountIDs("0.0.1", "0.1.0"))
}

func TestSortAccountIDs(t *testing.T) {
	got := SortAccountIDs([]string{" 0.0.10", "0.0.2", "0.0.10", "0.0.9", "", "0.0.2 "})
	assert.Equal(t, []string{"0.0.2", "0.0.9", "0.0.10"}, got)
}

func TestResolveParticipants_BootstrapWins(t *testing.T) {
	matching := []*ProofPayload{
		{PetalAccountID: "0.0.50", Participants: []string{"0.0.60"}},
	}
	got := ResolveParticipants([]string{"0.0.12", "0.0.10"}, matching)
	assert.Equal(t, []string{"0.0.10", "0.0.12"}, got)
}

func TestResolveParticipants_FromProofs(t *testing.T) {
	matching := []*ProofPayload{
		{PetalAccountID: "0.0.50", Participants: []string{"0.0.11", "petal-b", "0.0.10"}},
		{PetalAccountID: "0.0.51", Participants: []string{"0.0.10", "0.0.11"}},
	}
	got := ResolveParticipants(nil, matching)
	assert.Equal(t, []string{"0.0.10", "0.0.11"}, got)
}

func TestResolveParticipants_FallbackToPetalAccounts(t *testing.T) {
	matching := []*ProofPayload{
		{PetalAccountID: "0.0.51", Participants: []string{"petal-a"}},
		{PetalAccountID: "0.0.50"},
	}
	got := ResolveParticipants(nil, matching)
	assert.Equal(t, []string{"0.0.50", "0.0.51"}, got)
}

func TestLeader_Rotation(t *testing.T) {
	participants := []string{"0.0.10", "0.0.11", "0.0.12"}
	require.Equal(t, "0.0.10", Leader(participants, 0))
	require.Equal(t, "0.0.11", Leader(participants, 1))
	require.Equal(t, "0.0.12", Leader(participants, 2))
	require.Equal(t, "0.0.10", Leader(participants, 3))
	assert.Equal(t, "", Leader(nil, 0))
}
