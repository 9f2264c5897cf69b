// Package leader publishes consolidated consensus proofs to the flora state
// topic. Each consolidated epoch elects a rotating leader from the sorted
// participant set, confirms on the consensus log that every contributing
// petal really published its claimed state hash, then submits the hcs-17
// consolidated message and stamps the entry with the returned log
// coordinates. Failed publications reschedule with linear backoff and never
// run twice in parallel for the same epoch.
package leader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/hashgraph-online/flora-price-oracle/flora/aggregator"
	"github.com/hashgraph-online/flora-price-oracle/flora/bootstrap"
	"github.com/hashgraph-online/flora-price-oracle/hedera"
	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
)

var log = logrus.WithField("prefix", "leader")

var (
	publishesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "consolidated_publishes_total",
		Help:      "Count of consolidated proofs published to the state topic.",
	})
	publishRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "publish_retries_total",
		Help:      "Count of rescheduled consolidated publications.",
	})
	validationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "petal_validation_failures_total",
		Help:      "Count of publication attempts aborted because a petal state topic could not be validated.",
	})
)

// submitTimeout bounds one consolidated submission including receipt wait.
const submitTimeout = 30 * time.Second

// validatedTopicsSize bounds the cache of petal publications already
// confirmed on the log, keyed per (topic, epoch, hash).
const validatedTopicsSize = 512

// EntryStamper records consensus log metadata for a consolidated epoch.
type EntryStamper interface {
	ApplyMetadata(epoch *uint64, meta *aggregator.EpochMetadata) bool
}

// Config options for the leader publisher.
type Config struct {
	ConsensusFeed *event.Feed
	Bootstrap     *bootstrap.Store
	Stamper       EntryStamper
	Submitter     hedera.Submitter
	Reader        hedera.TopicReader
}

type inflightState struct {
	stateHash string
	attempt   int
	timer     *time.Timer
}

// Service subscribes to consensus events and drives publications.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	lock      sync.Mutex
	inflight  map[uint64]*inflightState
	validated *lru.Cache[string, bool]
}

// NewService instantiates the leader publisher.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	validated, err := lru.New[string, bool](validatedTopicsSize)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		inflight:  make(map[uint64]*inflightState),
		validated: validated,
	}, nil
}

// Start subscribes to the consensus feed. Without a submitter the service
// stays idle and consolidated entries are stamped from the log tailer
// instead.
func (s *Service) Start() {
	if s.cfg.Submitter == nil {
		log.Info("Leader publishing disabled, entries will be stamped from the log tailer")
		return
	}
	go s.run()
}

// Stop the leader publisher and cancel scheduled retries.
func (s *Service) Stop() error {
	log.Info("Stopping service")
	s.cancel()
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, st := range s.inflight {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	return nil
}

// Status always returns nil.
func (s *Service) Status() error {
	return nil
}

func (s *Service) run() {
	ch := make(chan *aggregator.Consensus, 8)
	sub := s.cfg.ConsensusFeed.Subscribe(ch)
	defer sub.Unsubscribe()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-sub.Err():
			return
		case c := <-ch:
			s.handleConsensus(c)
		}
	}
}

// handleConsensus admits one consolidated epoch into publication. Repeat
// events for an epoch already in flight are coalesced.
func (s *Service) handleConsensus(c *aggregator.Consensus) {
	s.lock.Lock()
	if st, ok := s.inflight[c.Entry.Epoch]; ok {
		s.lock.Unlock()
		if st.stateHash != c.Entry.StateHash {
			log.WithFields(logrus.Fields{
				"epoch": c.Entry.Epoch,
			}).Warn("Ignoring divergent consensus for an epoch already publishing")
		}
		return
	}
	s.inflight[c.Entry.Epoch] = &inflightState{stateHash: c.Entry.StateHash}
	s.lock.Unlock()
	go s.process(c)
}

// process runs one publication attempt end to end.
func (s *Service) process(c *aggregator.Consensus) {
	if s.ctx.Err() != nil {
		return
	}
	entry := c.Entry
	elected := proof.Leader(entry.Participants, entry.Epoch)
	logger := log.WithFields(logrus.Fields{"epoch": entry.Epoch, "leader": elected})

	if err := s.validatePetalTopics(c); err != nil {
		validationFailures.Inc()
		logger.WithError(err).Warn("Petal state topic validation failed, rescheduling publication")
		s.reschedule(c)
		return
	}

	b := s.cfg.Bootstrap
	msg := proof.NewConsolidatedStateMessage(entry, b.FloraAccountID(), b.ThresholdFingerprint(), b.Topics())
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.WithError(err).Error("Could not marshal consolidated state message")
		s.clear(entry.Epoch)
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, submitTimeout)
	receipt, err := s.cfg.Submitter.SubmitMessage(ctx, b.StateTopicID(), payload)
	cancel()
	if err != nil {
		logger.WithError(err).Warn("Could not publish consolidated proof, rescheduling")
		s.reschedule(c)
		return
	}

	epoch := entry.Epoch
	s.cfg.Stamper.ApplyMetadata(&epoch, &aggregator.EpochMetadata{
		HCSMessage:         "hcs://17/" + b.StateTopicID(),
		ConsensusTimestamp: receipt.ConsensusTimestamp,
		SequenceNumber:     receipt.SequenceNumber,
	})
	s.clear(epoch)
	publishesTotal.Inc()
	logger.WithFields(logrus.Fields{
		"consensusTimestamp": receipt.ConsensusTimestamp,
		"sequenceNumber":     receipt.SequenceNumber,
	}).Info("Published consolidated proof")
}

// validatePetalTopics confirms every contributing petal published its
// claimed hash on its own state topic before the flora vouches for it.
func (s *Service) validatePetalTopics(c *aggregator.Consensus) error {
	if s.cfg.Reader == nil {
		return nil
	}
	for _, p := range c.Proofs {
		if err := s.validatePetalTopic(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validatePetalTopic(p *proof.ProofPayload) error {
	key := fmt.Sprintf("%s/%d/%s", p.PetalStateTopicID, p.Epoch, p.StateHash)
	if _, ok := s.validated.Get(key); ok {
		return nil
	}
	cfg := params.FloraConfig()
	var lastErr error
	for attempt := 0; attempt < cfg.TopicCheckAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-s.ctx.Done():
				return s.ctx.Err()
			case <-time.After(cfg.TopicCheckInterval):
			}
		}
		ctx, cancel := context.WithTimeout(s.ctx, cfg.MirrorTimeout)
		msgs, err := s.cfg.Reader.LatestMessages(ctx, p.PetalStateTopicID, cfg.TopicCheckWindow)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if containsPetalState(msgs, p) {
			s.validated.Add(key, true)
			return nil
		}
		lastErr = errors.Errorf("no matching state message among the latest %d on topic %s", cfg.TopicCheckWindow, p.PetalStateTopicID)
	}
	return errors.Wrapf(lastErr, "could not validate petal %s", p.PetalID)
}

// containsPetalState scans tailed messages for an hcs-17 publication
// matching the proof's hash, account, and epoch (by field or memo).
func containsPetalState(msgs []*hedera.TopicMessage, p *proof.ProofPayload) bool {
	memo := proof.EpochMemo(p.Epoch)
	for _, m := range msgs {
		raw, err := m.Decode()
		if err != nil {
			continue
		}
		msg, err := proof.ParseStateMessage(raw)
		if err != nil {
			continue
		}
		if msg.StateHash != p.StateHash || msg.AccountID != p.PetalAccountID {
			continue
		}
		if (msg.Epoch != nil && *msg.Epoch == p.Epoch) || msg.Memo == memo {
			return true
		}
	}
	return false
}

// reschedule queues another attempt with linear backoff, capped.
func (s *Service) reschedule(c *aggregator.Consensus) {
	cfg := params.FloraConfig()
	s.lock.Lock()
	defer s.lock.Unlock()
	st, ok := s.inflight[c.Entry.Epoch]
	if !ok || s.ctx.Err() != nil {
		return
	}
	st.attempt++
	delay := time.Duration(st.attempt) * cfg.PublishRetryStep
	if delay > cfg.PublishRetryCap {
		delay = cfg.PublishRetryCap
	}
	st.timer = time.AfterFunc(delay, func() { s.process(c) })
	publishRetries.Inc()
	log.WithFields(logrus.Fields{
		"epoch":   c.Entry.Epoch,
		"attempt": st.attempt,
		"delay":   delay,
	}).Debug("Publication retry scheduled")
}

func (s *Service) clear(epoch uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.inflight, epoch)
}
