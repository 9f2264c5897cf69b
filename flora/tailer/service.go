// Package tailer follows the flora state topic through a mirror node and
// feeds what it finds back into aggregation. Legacy petals that publish
// whole proofs straight to the flora topic are replayed into the proof
// pipeline; every tailed message additionally stamps its consensus log
// coordinates onto the matching consolidated entry, which is how entries
// published by another flora member reach this consumer's history.
package tailer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/hashgraph-online/flora-price-oracle/db"
	"github.com/hashgraph-online/flora-price-oracle/flora/aggregator"
	"github.com/hashgraph-online/flora-price-oracle/flora/bootstrap"
	"github.com/hashgraph-online/flora-price-oracle/hedera"
	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
)

var log = logrus.WithField("prefix", "tailer")

var (
	tailedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "tailed_messages_total",
		Help:      "Count of messages consumed from the flora state topic.",
	})
	legacyProofs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "legacy_proofs_total",
		Help:      "Count of whole proofs found on the flora state topic and replayed into aggregation.",
	})
	metadataApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flora",
		Name:      "metadata_applied_total",
		Help:      "Count of consolidated entries stamped from tailed messages.",
	})
)

// seenMessagesSize bounds the duplicate-delivery guard.
const seenMessagesSize = 1024

// Config options for the log tailer.
type Config struct {
	DB         db.Database
	Bootstrap  *bootstrap.Store
	Aggregator *aggregator.Service
	Reader     hedera.TopicReader
}

// Service polls the flora state topic on a fixed cadence.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	cursor string
	seen   *lru.Cache[string, bool]
}

// NewService instantiates the tailer.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	seen, err := lru.New[string, bool](seenMessagesSize)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		seen:   seen,
	}, nil
}

// Start begins polling.
func (s *Service) Start() {
	log.WithFields(logrus.Fields{
		"topic":        s.cfg.Bootstrap.StateTopicID(),
		"pollInterval": params.FloraConfig().PollInterval,
	}).Info("Tailing flora state topic")
	go s.run()
}

// Stop the tailer service.
func (s *Service) Stop() error {
	log.Info("Stopping service")
	s.cancel()
	return nil
}

// Status always returns nil.
func (s *Service) Status() error {
	return nil
}

func (s *Service) run() {
	ticker := time.NewTicker(params.FloraConfig().PollInterval)
	defer ticker.Stop()
	s.poll()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll drains every page the mirror has past the cursor. The cursor only
// moves forward, so a page served twice cannot replay old messages.
func (s *Service) poll() {
	cfg := params.FloraConfig()
	if s.cursor == "" {
		s.cursor = s.initialCursor()
	}
	for {
		ctx, cancel := context.WithTimeout(s.ctx, cfg.MirrorTimeout)
		msgs, err := s.cfg.Reader.MessagesAfter(ctx, s.cfg.Bootstrap.StateTopicID(), s.cursor, cfg.TailPageLimit)
		cancel()
		if err != nil {
			log.WithError(err).Warn("Could not tail flora state topic")
			return
		}
		for _, m := range msgs {
			s.handleMessage(m)
		}
		if int32(len(msgs)) < cfg.TailPageLimit {
			return
		}
	}
}

// initialCursor picks up where the last run stopped: the log coordinates of
// the newest stamped entry, else the newest message already on the topic,
// else the beginning of the topic.
func (s *Service) initialCursor() string {
	ctx, cancel := context.WithTimeout(s.ctx, params.FloraConfig().MirrorTimeout)
	defer cancel()

	entries, err := s.cfg.DB.ConsensusEntries(ctx)
	if err != nil {
		log.WithError(err).Error("Could not read persisted history for the tail cursor")
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ConsensusTimestamp != "" {
			return entries[i].ConsensusTimestamp
		}
	}
	msgs, err := s.cfg.Reader.LatestMessages(ctx, s.cfg.Bootstrap.StateTopicID(), 1)
	if err != nil {
		log.WithError(err).Warn("Could not read the newest topic message for the tail cursor")
		return "0"
	}
	if len(msgs) > 0 {
		return msgs[0].ConsensusTimestamp
	}
	return "0"
}

func (s *Service) handleMessage(m *hedera.TopicMessage) {
	if hedera.CompareTimestamps(m.ConsensusTimestamp, s.cursor) <= 0 {
		return
	}
	key := seenKey(m)
	if _, dup := s.seen.Get(key); dup {
		s.cursor = m.ConsensusTimestamp
		return
	}
	s.seen.Add(key, true)
	s.cursor = m.ConsensusTimestamp
	tailedMessages.Inc()

	meta := &aggregator.EpochMetadata{
		HCSMessage:         "hcs://17/" + s.cfg.Bootstrap.StateTopicID(),
		ConsensusTimestamp: m.ConsensusTimestamp,
		SequenceNumber:     m.SequenceNumber,
	}
	raw, err := m.Decode()
	if err != nil {
		log.WithError(err).WithField("sequenceNumber", m.SequenceNumber).Debug("Tailed message is not base64")
		s.applyMetadata(nil, meta)
		return
	}

	var epoch *uint64
	if p, perr := proof.ParseProofBytes(raw); perr == nil {
		// A legacy petal published its whole proof to the flora topic.
		s.cfg.Aggregator.SubmitProof(p)
		legacyProofs.Inc()
		e := p.Epoch
		epoch = &e
	} else if sm, serr := proof.ParseStateMessage(raw); serr == nil {
		epoch = messageEpoch(sm)
	}
	s.applyMetadata(epoch, meta)
}

func (s *Service) applyMetadata(epoch *uint64, meta *aggregator.EpochMetadata) {
	if s.cfg.Aggregator.ApplyMetadata(epoch, meta) {
		metadataApplied.Inc()
	}
}

// messageEpoch extracts the epoch a state message speaks for, either from
// its epoch field or from an "hcs17:<epoch>" memo.
func messageEpoch(sm *proof.StateMessage) *uint64 {
	if sm.Epoch != nil {
		e := *sm.Epoch
		return &e
	}
	memo := strings.TrimPrefix(sm.Memo, "hcs17:")
	if memo == sm.Memo {
		return nil
	}
	e, err := strconv.ParseUint(memo, 10, 64)
	if err != nil {
		return nil
	}
	return &e
}

func seenKey(m *hedera.TopicMessage) string {
	return fmt.Sprintf("%s/%d", m.ConsensusTimestamp, m.SequenceNumber)
}
