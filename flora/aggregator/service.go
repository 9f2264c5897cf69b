// Package aggregator forms price consensus from accepted petal proofs. Each
// epoch accumulates proofs in a retention-bound bucket; once the largest
// group sharing a state hash reaches quorum, the group's prices collapse to
// a median and a consolidated entry is emitted exactly once per epoch,
// persisted and handed to subscribers over an event feed.
package aggregator

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/hashgraph-online/flora-price-oracle/db"
	"github.com/hashgraph-online/flora-price-oracle/flora/bootstrap"
	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "aggregator")

var (
	proofsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "proofs_accepted_total",
		Help:      "Count of petal proofs accepted into epoch buckets.",
	})
	consensusFormed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "consensus_epochs_total",
		Help:      "Count of epochs that reached price consensus.",
	})
	consensusPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flora",
		Name:      "consensus_price",
		Help:      "Most recent consolidated price.",
	})
)

// EpochMetadata is the consensus log stamp for one consolidated epoch.
type EpochMetadata struct {
	HCSMessage         string
	ConsensusTimestamp string
	SequenceNumber     uint64
}

// Consensus is the event sent when an epoch consolidates: the new entry and
// the proofs that formed it, in arrival order.
type Consensus struct {
	Entry  *proof.ConsensusEntry
	Proofs []*proof.ProofPayload
}

// Config options for the aggregator service.
type Config struct {
	DB            db.Database
	Bootstrap     *bootstrap.Store
	ConsensusFeed *event.Feed
}

type epochBucket struct {
	proofs  []*proof.ProofPayload
	byPetal map[string]*proof.ProofPayload
}

// Service buckets proofs per epoch and maintains the consolidated history.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	lock     sync.Mutex
	buckets  *cache.Cache
	metadata map[uint64]*EpochMetadata
	pending  []uint64
	history  []*proof.ConsensusEntry
	emitted  map[uint64]string
}

// NewService instantiates the aggregator. Epoch buckets expire after the
// configured proof retention so late proofs can still be checked against a
// published hash without the pool growing without bound.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		buckets:  cache.New(params.FloraConfig().ProofRetention, params.FloraConfig().ProofSweep),
		metadata: make(map[uint64]*EpochMetadata),
		emitted:  make(map[uint64]string),
	}
}

// Start loads the persisted consensus history so epochs consolidated before
// a restart stay visible and are never re-emitted.
func (s *Service) Start() {
	entries, err := s.cfg.DB.ConsensusEntries(s.ctx)
	if err != nil {
		log.WithError(err).Error("Could not load persisted consensus history")
		return
	}
	s.lock.Lock()
	s.history = entries
	for _, e := range entries {
		s.emitted[e.Epoch] = e.StateHash
	}
	s.lock.Unlock()
	if len(entries) > 0 {
		log.WithField("entries", len(entries)).Info("Loaded consensus history")
	}
}

// Stop the aggregator service.
func (s *Service) Stop() error {
	log.Info("Stopping service")
	s.cancel()
	return nil
}

// Status always returns nil.
func (s *Service) Status() error {
	return nil
}

// SubmitProof records one accepted proof in its epoch bucket and attempts
// consolidation. Resubmission by a petal that already contributed to the
// epoch does not duplicate; a resubmission with different content is
// ignored with a warning, the first proof wins.
func (s *Service) SubmitProof(p *proof.ProofPayload) {
	if c := s.submit(p); c != nil {
		s.cfg.ConsensusFeed.Send(c)
	}
}

func (s *Service) submit(p *proof.ProofPayload) *Consensus {
	s.lock.Lock()
	defer s.lock.Unlock()

	bucket := s.bucket(p.Epoch)
	if prev, ok := bucket.byPetal[p.PetalID]; ok {
		if prev.StateHash != p.StateHash {
			log.WithFields(logrus.Fields{
				"petalId": p.PetalID,
				"epoch":   p.Epoch,
			}).Warn("Petal resubmitted a different proof for the epoch, keeping the first")
		}
		return nil
	}
	bucket.byPetal[p.PetalID] = p
	bucket.proofs = append(bucket.proofs, p)
	s.buckets.Set(bucketKey(p.Epoch), bucket, cache.DefaultExpiration)
	proofsAccepted.Inc()

	if published, done := s.emitted[p.Epoch]; done {
		if p.StateHash != published {
			log.WithFields(logrus.Fields{
				"petalId": p.PetalID,
				"epoch":   p.Epoch,
			}).Warn("Late proof disagrees with the published state hash")
		}
		return nil
	}
	return s.consolidate(p.Epoch, bucket)
}

// consolidate runs the quorum check for an epoch. Caller holds the lock.
func (s *Service) consolidate(epoch uint64, bucket *epochBucket) *Consensus {
	cfg := params.FloraConfig()
	if uint64(len(bucket.proofs)) < cfg.Quorum {
		return nil
	}

	// Group by state hash in arrival order so that when group sizes tie,
	// the hash seen first wins.
	type hashGroup struct {
		hash   string
		proofs []*proof.ProofPayload
	}
	var groups []*hashGroup
	byHash := make(map[string]*hashGroup)
	for _, p := range bucket.proofs {
		g, ok := byHash[p.StateHash]
		if !ok {
			g = &hashGroup{hash: p.StateHash}
			byHash[p.StateHash] = g
			groups = append(groups, g)
		}
		g.proofs = append(g.proofs, p)
	}
	best := groups[0]
	for _, g := range groups[1:] {
		if len(g.proofs) > len(best.proofs) {
			best = g
		}
	}
	if uint64(len(best.proofs)) < cfg.Quorum {
		return nil
	}

	recomputed, err := proof.RecomputeStateHash(best.proofs[0])
	if err != nil || recomputed != best.hash {
		logger := log.WithFields(logrus.Fields{"epoch": epoch, "stateHash": best.hash})
		if err != nil {
			logger = logger.WithError(err)
		}
		logger.Error("Consensus group failed state hash recomputation, withholding epoch")
		return nil
	}

	entry := &proof.ConsensusEntry{
		Epoch:        epoch,
		StateHash:    best.hash,
		Price:        median(collectPrices(best.proofs), cfg.PriceDecimals),
		Timestamp:    best.proofs[0].Timestamp,
		Participants: proof.ResolveParticipants(s.memberAccounts(), best.proofs),
		Sources:      sourcePrices(best.proofs[0].Records),
	}
	if meta, ok := s.metadata[epoch]; ok {
		// The log stamp arrived before the entry formed.
		entry.HCSMessage = meta.HCSMessage
		entry.ConsensusTimestamp = meta.ConsensusTimestamp
		entry.SequenceNumber = meta.SequenceNumber
		delete(s.metadata, epoch)
	} else {
		s.pending = append(s.pending, epoch)
	}
	s.emitted[epoch] = best.hash
	s.insertEntry(entry)
	if err := s.cfg.DB.SaveConsensusEntry(s.ctx, entry); err != nil {
		log.WithError(err).Error("Could not persist consensus entry")
	}
	consensusFormed.Inc()
	consensusPrice.Set(entry.Price)
	log.WithFields(logrus.Fields{
		"epoch":     epoch,
		"price":     entry.Price,
		"proofs":    len(best.proofs),
		"stateHash": best.hash,
	}).Info("Price consensus formed")

	copied := *entry
	return &Consensus{
		Entry:  &copied,
		Proofs: append([]*proof.ProofPayload(nil), best.proofs...),
	}
}

// ApplyMetadata stamps a consolidated entry with its consensus log
// metadata. A nil epoch targets the oldest entry still waiting for a stamp.
// An entry is stamped at most once; if the target epoch has not
// consolidated yet the stamp is held until it does. Reports whether an
// entry was stamped.
func (s *Service) ApplyMetadata(epoch *uint64, meta *EpochMetadata) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	var target uint64
	switch {
	case epoch != nil:
		target = *epoch
	case len(s.pending) > 0:
		target = s.pending[0]
	default:
		return false
	}
	s.removePending(target)

	entry := s.entry(target)
	if entry == nil {
		// Hold the stamp for when the entry forms; a later observation of
		// the same epoch replaces it until then.
		s.metadata[target] = meta
		return false
	}
	if entry.HasConsensusMetadata() {
		return false
	}
	entry.HCSMessage = meta.HCSMessage
	entry.ConsensusTimestamp = meta.ConsensusTimestamp
	entry.SequenceNumber = meta.SequenceNumber
	updated, err := s.cfg.DB.FillConsensusMetadata(s.ctx, target, meta.HCSMessage, meta.ConsensusTimestamp, meta.SequenceNumber)
	if err != nil {
		log.WithError(err).Error("Could not persist consensus metadata")
	} else if !updated {
		log.WithField("epoch", target).Debug("Consensus metadata already persisted")
	}
	log.WithFields(logrus.Fields{
		"epoch":              target,
		"consensusTimestamp": meta.ConsensusTimestamp,
		"sequenceNumber":     meta.SequenceNumber,
	}).Info("Entry stamped with consensus log metadata")
	return true
}

// LatestEntry returns the newest entry that reached the consensus log, or
// the newest consolidated entry when none has been published yet. Nil until
// a first epoch consolidates.
func (s *Service) LatestEntry() *proof.ConsensusEntry {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].HasConsensusMetadata() {
			return copyEntry(s.history[i])
		}
	}
	if len(s.history) == 0 {
		return nil
	}
	return copyEntry(s.history[len(s.history)-1])
}

// History returns a copy of all consolidated entries ordered by epoch.
func (s *Service) History() []*proof.ConsensusEntry {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]*proof.ConsensusEntry, len(s.history))
	for i, e := range s.history {
		out[i] = copyEntry(e)
	}
	return out
}

// HistoryPage returns one page of the consolidated history, newest epoch
// first, along with the total entry count. Offsets beyond the end yield an
// empty page.
func (s *Service) HistoryPage(offset, limit int) (int, []*proof.ConsensusEntry) {
	s.lock.Lock()
	defer s.lock.Unlock()
	total := len(s.history)
	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return total, []*proof.ConsensusEntry{}
	}
	count := limit
	if count > total-offset {
		count = total - offset
	}
	out := make([]*proof.ConsensusEntry, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, copyEntry(s.history[total-1-offset-i]))
	}
	return total, out
}

func (s *Service) bucket(epoch uint64) *epochBucket {
	if v, ok := s.buckets.Get(bucketKey(epoch)); ok {
		if b, ok := v.(*epochBucket); ok {
			return b
		}
	}
	b := &epochBucket{byPetal: make(map[string]*proof.ProofPayload)}
	s.buckets.Set(bucketKey(epoch), b, cache.DefaultExpiration)
	return b
}

func bucketKey(epoch uint64) string {
	return strconv.FormatUint(epoch, 10)
}

func (s *Service) entry(epoch uint64) *proof.ConsensusEntry {
	i := sort.Search(len(s.history), func(i int) bool { return s.history[i].Epoch >= epoch })
	if i < len(s.history) && s.history[i].Epoch == epoch {
		return s.history[i]
	}
	return nil
}

func (s *Service) insertEntry(entry *proof.ConsensusEntry) {
	i := sort.Search(len(s.history), func(i int) bool { return s.history[i].Epoch >= entry.Epoch })
	s.history = append(s.history, nil)
	copy(s.history[i+1:], s.history[i:])
	s.history[i] = entry
}

func (s *Service) removePending(epoch uint64) {
	for i, e := range s.pending {
		if e == epoch {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func (s *Service) memberAccounts() []string {
	if s.cfg.Bootstrap == nil {
		return nil
	}
	return s.cfg.Bootstrap.MemberAccountIDs()
}

func copyEntry(e *proof.ConsensusEntry) *proof.ConsensusEntry {
	c := *e
	return &c
}

func collectPrices(proofs []*proof.ProofPayload) []float64 {
	var prices []float64
	for _, p := range proofs {
		for _, r := range p.Records {
			if price, ok := r.Price(); ok {
				prices = append(prices, price)
			}
		}
	}
	return prices
}

func sourcePrices(records []*proof.AdapterRecord) []*proof.SourcePrice {
	out := make([]*proof.SourcePrice, 0, len(records))
	for _, r := range records {
		price, ok := r.Price()
		if !ok {
			continue
		}
		out = append(out, &proof.SourcePrice{Source: r.Source(), Price: price})
	}
	return out
}
