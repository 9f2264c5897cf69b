package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/hashgraph-online/flora-price-oracle/hedera"
	"github.com/hashgraph-online/flora-price-oracle/petal/adapters"
	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
)

var log = logrus.WithField("prefix", "scheduler")

var (
	epochsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "petal",
		Name:      "epochs_skipped_total",
		Help:      "Epochs skipped because the adapter set was incomplete.",
	})
	proofsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "petal",
		Name:      "proofs_submitted_total",
		Help:      "Proofs delivered to the consumer.",
	})
	statePublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "petal",
		Name:      "state_publish_failures_total",
		Help:      "Failed fire-and-forget petal state topic publishes.",
	})
)

// Config options for the petal scheduler.
type Config struct {
	Adapters    []adapters.Adapter
	Builder     *proof.BuilderConfig
	Submitter   hedera.Submitter // nil disables state topic publishing
	StateTopics []string         // topic ids carried in the petal state message
	ConsumerURL string           // base URL of the consumer, e.g. http://flora:8080
}

// Service runs the single-threaded epoch loop of one petal.
type Service struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *Config
	ticker    Ticker
	client    *http.Client
	lastEpoch int64
}

// NewService creates a scheduler for the service registry.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		client:    &http.Client{Timeout: params.FloraConfig().EpochDuration() * 2},
		lastEpoch: -1,
	}
}

// Start begins ticking epochs.
func (s *Service) Start() {
	origin := time.UnixMilli(s.cfg.Builder.EpochOriginMs)
	log.WithFields(logrus.Fields{
		"origin":    origin.UTC().Format(time.RFC3339),
		"blockTime": params.FloraConfig().EpochDuration(),
		"adapters":  len(s.cfg.Adapters),
	}).Info("Starting epoch scheduler")
	s.ticker = NewEpochTicker(origin, params.FloraConfig().EpochDuration())
	go s.run()
}

// Stop the scheduler's ticker. In-flight submissions are abandoned.
func (s *Service) Stop() error {
	log.Info("Stopping service")
	s.cancel()
	if s.ticker != nil {
		s.ticker.Done()
	}
	return nil
}

// Status always returns nil; a petal that cannot sample skips epochs
// instead of going unhealthy.
func (s *Service) Status() error {
	return nil
}

func (s *Service) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case epoch := <-s.ticker.C():
			s.processEpoch(epoch)
		}
	}
}

// processEpoch samples the adapter set and delivers one proof. Any adapter
// failure skips the epoch: a partial record set could never match the other
// petals' state hashes.
func (s *Service) processEpoch(epoch uint64) {
	if int64(epoch) <= s.lastEpoch {
		return
	}
	s.lastEpoch = int64(epoch)

	records, err := adapters.Run(s.ctx, s.cfg.Adapters, params.FloraConfig().AdapterTimeout)
	if err != nil {
		epochsSkipped.Inc()
		log.WithError(err).WithField("epoch", epoch).Warn("Skipping epoch, adapter set incomplete")
		return
	}
	p, err := proof.Build(s.cfg.Builder, epoch, records)
	if err != nil {
		log.WithError(err).WithField("epoch", epoch).Error("Could not build proof")
		return
	}
	if s.cfg.Submitter != nil {
		go s.publishStateMessage(p)
	}
	if err := s.postProof(p); err != nil {
		log.WithError(err).WithField("epoch", epoch).Warn("Could not deliver proof to consumer")
		return
	}
	proofsSubmitted.Inc()
	log.WithFields(logrus.Fields{
		"epoch":     epoch,
		"stateHash": p.StateHash,
	}).Info("Submitted epoch proof")
}

// publishStateMessage writes the petal's hcs-17 state message to its own
// state topic. The write is fire-and-forget: failure is logged and the
// HTTP proof delivery proceeds regardless.
func (s *Service) publishStateMessage(p *proof.ProofPayload) {
	msg := proof.NewPetalStateMessage(p, s.cfg.StateTopics)
	payload, err := json.Marshal(msg)
	if err != nil {
		statePublishFailures.Inc()
		log.WithError(err).Error("Could not encode state message")
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, params.FloraConfig().EpochDuration())
	defer cancel()
	if _, err := s.cfg.Submitter.SubmitMessage(ctx, s.cfg.Builder.PetalStateTopicID, payload); err != nil {
		statePublishFailures.Inc()
		log.WithError(err).WithField("epoch", p.Epoch).Warn("Could not publish state message")
	}
}

// postProof delivers the proof JSON to the consumer's /proof endpoint.
func (s *Service) postProof(p *proof.ProofPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "could not encode proof")
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.cfg.ConsumerURL+"/proof", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "could not build proof request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "proof delivery failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Error("Failed to close response body")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("consumer rejected proof: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
