// Package intake validates petal proof submissions against the flora's
// registry context before they reach aggregation. Whole proofs are checked
// in one pass; chunked proofs are buffered per (petalId, epoch) and
// validated once the final part completes the set. Every rejection names
// the offending field so petals can repair their submissions.
package intake

import (
	"context"
	"fmt"

	"github.com/hashgraph-online/flora-price-oracle/flora/bootstrap"
	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "intake")

var (
	submissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "submissions_rejected_total",
		Help:      "Count of proof submissions rejected, by offending field.",
	}, []string{"field"})
	chunksBuffered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "proof_chunks_buffered_total",
		Help:      "Count of proof chunks buffered while awaiting their set.",
	})
)

// ProofSink receives proofs that cleared validation.
type ProofSink interface {
	SubmitProof(p *proof.ProofPayload)
}

// Config options for the proof intake.
type Config struct {
	Bootstrap *bootstrap.Store
	Sink      ProofSink
}

type chunkSet struct {
	total  int
	chunks map[int]*proof.ChunkedProofPayload
}

// Intake validates raw submissions and forwards accepted proofs.
type Intake struct {
	cfg     *Config
	pending *cache.Cache
}

// NewIntake builds the intake. Pending chunk sets expire on the proof
// retention schedule, so an abandoned partial upload does not pin memory,
// and are dropped wholesale on restart.
func NewIntake(cfg *Config) *Intake {
	return &Intake{
		cfg:     cfg,
		pending: cache.New(params.FloraConfig().ProofRetention, params.FloraConfig().ProofSweep),
	}
}

// Submit handles one raw proof body. A nil return means the submission was
// accepted: either forwarded to aggregation or buffered while the rest of
// its chunk set arrives. Rejections are returned as *proof.RejectError.
func (i *Intake) Submit(ctx context.Context, body []byte) error {
	p, chunk, err := proof.ParseSubmission(body)
	if err != nil {
		return i.rejected(err)
	}
	if chunk != nil {
		p, err = i.addChunk(chunk)
		if err != nil {
			return i.rejected(err)
		}
		if p == nil {
			// Buffered, set still incomplete.
			return nil
		}
	}
	if err := i.validate(p); err != nil {
		return i.rejected(err)
	}
	i.cfg.Bootstrap.ObservePetal(ctx, p)
	i.cfg.Sink.SubmitProof(p)
	return nil
}

// addChunk buffers one chunk and returns the assembled proof once the set
// for its (petalId, epoch) key is complete. A chunk disagreeing with the
// buffered set's total resets the buffer, so a corrected upload can start
// over without waiting out the retention window.
func (i *Intake) addChunk(chunk *proof.ChunkedProofPayload) (*proof.ProofPayload, error) {
	key := chunkKey(chunk.PetalID, chunk.Epoch)
	set := i.chunkSet(key, chunk.TotalChunks)
	if set.total != chunk.TotalChunks {
		log.WithFields(logrus.Fields{
			"petalId": chunk.PetalID,
			"epoch":   chunk.Epoch,
		}).Warn("Chunk disagrees with buffered set total, resetting buffer")
		set = &chunkSet{total: chunk.TotalChunks, chunks: make(map[int]*proof.ChunkedProofPayload)}
	}
	set.chunks[chunk.ChunkID] = chunk
	chunksBuffered.Inc()
	if len(set.chunks) < set.total {
		i.pending.Set(key, set, cache.DefaultExpiration)
		return nil, nil
	}
	i.pending.Delete(key)

	parts := make([]*proof.ChunkedProofPayload, 0, len(set.chunks))
	for _, c := range set.chunks {
		parts = append(parts, c)
	}
	p, err := proof.AssembleChunks(parts)
	if err != nil {
		return nil, &proof.RejectError{Field: "data", Reason: err.Error()}
	}
	if p.PetalID != chunk.PetalID || p.Epoch != chunk.Epoch {
		return nil, &proof.RejectError{Field: "petalId", Reason: "assembled proof does not match its chunk envelope"}
	}
	return p, nil
}

func (i *Intake) chunkSet(key string, total int) *chunkSet {
	if v, ok := i.pending.Get(key); ok {
		if set, ok := v.(*chunkSet); ok {
			return set
		}
	}
	return &chunkSet{total: total, chunks: make(map[int]*proof.ChunkedProofPayload)}
}

// validate runs the policy checks a structurally sound proof still has to
// clear before aggregation.
func (i *Intake) validate(p *proof.ProofPayload) error {
	b := i.cfg.Bootstrap
	if p.FloraAccountID != b.FloraAccountID() {
		return &proof.RejectError{Field: "floraAccountId", Reason: "does not match this flora"}
	}
	if fp := b.ThresholdFingerprint(); fp != "" && p.ThresholdFingerprint != fp {
		return &proof.RejectError{Field: "thresholdFingerprint", Reason: "does not match the flora threshold key"}
	}
	if reg := b.RegistryTopicID(); reg != "" && p.RegistryTopicID != reg {
		return &proof.RejectError{Field: "registryTopicId", Reason: "does not match the active registry topic"}
	}
	if acct, bound := b.AccountBinding(p.PetalID); bound && acct != p.PetalAccountID {
		return &proof.RejectError{Field: "petalAccountId", Reason: "petal is registered under a different account"}
	}
	if topic, bound := b.StateTopicBinding(p.PetalID); bound && topic != p.PetalStateTopicID {
		return &proof.RejectError{Field: "petalStateTopicId", Reason: "petal already published under a different state topic this run"}
	}
	declared := proof.SortAccountIDs(p.Participants)
	if members := b.MemberAccountIDs(); members != nil {
		if !equalRosters(declared, members) {
			return &proof.RejectError{Field: "participants", Reason: "does not match the flora member roster"}
		}
	} else if uint64(len(declared)) != params.FloraConfig().ExpectedPetals {
		return &proof.RejectError{
			Field:  "participants",
			Reason: fmt.Sprintf("expected %d distinct participants, got %d", params.FloraConfig().ExpectedPetals, len(declared)),
		}
	}
	return nil
}

func (i *Intake) rejected(err error) error {
	field := "body"
	if re, ok := err.(*proof.RejectError); ok && re.Field != "" {
		field = re.Field
	}
	submissionsRejected.WithLabelValues(field).Inc()
	log.WithError(err).Debug("Rejected proof submission")
	return err
}

func chunkKey(petalID string, epoch uint64) string {
	return fmt.Sprintf("%s/%d", petalID, epoch)
}

func equalRosters(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
