package proof

import (
	"encoding/base64"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// SplitProof serializes a proof and splits the bytes into parts small
// enough for the consensus log. Each part's bytes are base64-encoded
// independently, so parts reassemble in chunk_id order regardless of
// arrival order.
func SplitProof(p *ProofPayload, chunkSize int) ([]*ChunkedProofPayload, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal proof")
	}
	total := (len(raw) + chunkSize - 1) / chunkSize
	chunks := make([]*ChunkedProofPayload, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(raw) {
			end = len(raw)
		}
		chunks = append(chunks, &ChunkedProofPayload{
			PetalID:     p.PetalID,
			Epoch:       p.Epoch,
			ChunkID:     i + 1,
			TotalChunks: total,
			Data:        base64.StdEncoding.EncodeToString(raw[start:end]),
		})
	}
	return chunks, nil
}

// AssembleChunks reconstructs a whole proof from a complete chunk set for
// one (petalId, epoch) key. All chunks must agree on the total, cover ids
// 1..total exactly once and decode to valid base64.
func AssembleChunks(chunks []*ChunkedProofPayload) (*ProofPayload, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to assemble")
	}
	total := chunks[0].TotalChunks
	if len(chunks) != total {
		return nil, errors.Errorf("have %d of %d chunks", len(chunks), total)
	}
	ordered := make([]*ChunkedProofPayload, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ChunkID < ordered[j].ChunkID })

	var raw []byte
	for i, c := range ordered {
		if c.TotalChunks != total {
			return nil, errors.Errorf("chunk %d disagrees on total %d != %d", c.ChunkID, c.TotalChunks, total)
		}
		if c.ChunkID != i+1 {
			return nil, errors.Errorf("missing chunk %d", i+1)
		}
		part, err := base64.StdEncoding.DecodeString(c.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "chunk %d is not base64", c.ChunkID)
		}
		raw = append(raw, part...)
	}
	p, err := ParseProofBytes(raw)
	if err != nil {
		return nil, errors.Wrap(err, "assembled bytes are not a proof")
	}
	return p, nil
}
