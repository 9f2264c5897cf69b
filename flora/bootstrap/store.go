// Package bootstrap resolves the flora's registry context once at startup:
// the consensus topics the consumer reads and writes, the configured member
// roster, and the operator credentials. Topic ids and the operator key are
// persisted to application state on first boot so later boots can run from
// the cache alone. The store also records the petal bindings observed while
// the process runs, which the proof intake checks and the adapter roster
// reports.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hashgraph-online/flora-price-oracle/db"
	"github.com/hashgraph-online/flora-price-oracle/hedera"
	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "bootstrap")

// Application state keys. Bindings are stored as one JSON map so a petal
// cannot silently re-register under a different account between boots.
const (
	stateTopicKey        = "floraStateTopicId"
	coordinationTopicKey = "coordinationTopicId"
	transactionTopicKey  = "transactionTopicId"
	accountBindingsKey   = "petalAccountBindings"
	operatorKeyKey       = "operatorKey"
)

// Config holds the flags and handles the store resolves against.
type Config struct {
	DB                   db.Database
	Provisioner          hedera.TopicProvisioner
	FloraAccountID       string
	ThresholdFingerprint string
	RegistryTopicID      string
	StateTopicID         string
	CoordinationTopicID  string
	TransactionTopicID   string
	Participants         []string
	OperatorKey          string
}

// PetalObservation is what the consumer has learned about one petal from
// its accepted proofs this run.
type PetalObservation struct {
	PetalID      string
	AccountID    string
	StateTopicID string
	Adapters     map[string]string
	LastEpoch    uint64
}

// Store is the resolved registry context. Topic ids and the roster are
// immutable after NewStore; the observed bindings grow as proofs arrive.
type Store struct {
	db                   db.Database
	floraAccountID       string
	thresholdFingerprint string
	registryTopicID      string
	stateTopicID         string
	coordinationTopicID  string
	transactionTopicID   string
	participants         []string
	memberAccounts       []string
	operatorKey          string

	mu              sync.Mutex
	accountBindings map[string]string
	topicBindings   map[string]string
	observations    map[string]*PetalObservation
}

// NewStore resolves the registry context. Each of the three flora topics is
// taken from config when set, from persisted state otherwise, and created
// through the provisioner as a last resort. A topic that cannot be resolved
// any of those ways aborts startup.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.FloraAccountID == "" {
		return nil, errors.New("flora account id is required")
	}
	s := &Store{
		db:                   cfg.DB,
		floraAccountID:       cfg.FloraAccountID,
		thresholdFingerprint: cfg.ThresholdFingerprint,
		registryTopicID:      cfg.RegistryTopicID,
		participants:         append([]string(nil), cfg.Participants...),
		accountBindings:      make(map[string]string),
		topicBindings:        make(map[string]string),
		observations:         make(map[string]*PetalObservation),
	}
	key, err := s.resolveOperatorKey(ctx, cfg.OperatorKey)
	if err != nil {
		return nil, err
	}
	s.operatorKey = key
	if s.stateTopicID, err = s.resolveTopic(ctx, cfg, stateTopicKey, "state", cfg.StateTopicID); err != nil {
		return nil, err
	}
	if s.coordinationTopicID, err = s.resolveTopic(ctx, cfg, coordinationTopicKey, "coordination", cfg.CoordinationTopicID); err != nil {
		return nil, err
	}
	if s.transactionTopicID, err = s.resolveTopic(ctx, cfg, transactionTopicKey, "transaction", cfg.TransactionTopicID); err != nil {
		return nil, err
	}
	if err := s.loadAccountBindings(ctx); err != nil {
		return nil, err
	}
	if ids := allAccountIDs(s.participants); ids != nil {
		s.memberAccounts = ids
	}
	log.WithFields(logrus.Fields{
		"floraAccount": s.floraAccountID,
		"stateTopic":   s.stateTopicID,
		"participants": len(s.participants),
	}).Info("Registry context resolved")
	return s, nil
}

// resolveOperatorKey persists a configured key wrapped at rest, or recovers
// the previously persisted one when the flag is absent. Returning an empty
// key is not an error here: a consumer without submit capability can still
// aggregate and tail.
func (s *Store) resolveOperatorKey(ctx context.Context, configured string) (string, error) {
	if configured != "" {
		if err := s.db.SaveSecretState(ctx, operatorKeyKey, configured); err != nil {
			return "", errors.Wrap(err, "could not persist operator key")
		}
		return configured, nil
	}
	stored, found, err := s.db.SecretState(ctx, operatorKeyKey)
	if err != nil {
		return "", errors.Wrap(err, "could not recover operator key")
	}
	if found {
		log.Debug("Recovered operator key from application state")
	}
	return stored, nil
}

func (s *Store) resolveTopic(ctx context.Context, cfg *Config, key, kind, configured string) (string, error) {
	if configured != "" {
		if err := s.db.SaveState(ctx, key, configured); err != nil {
			return "", errors.Wrapf(err, "could not persist %s topic id", kind)
		}
		return configured, nil
	}
	stored, found, err := s.db.State(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "could not load %s topic id", kind)
	}
	if found && stored != "" {
		return stored, nil
	}
	if cfg.Provisioner == nil {
		return "", errors.Errorf("missing %s topic id and no operator to create one", kind)
	}
	memo := fmt.Sprintf("flora:%s:%s", kind, s.floraAccountID)
	topicID, err := cfg.Provisioner.CreateTopic(ctx, memo)
	if err != nil {
		return "", errors.Wrapf(err, "could not create %s topic", kind)
	}
	if err := s.db.SaveState(ctx, key, topicID); err != nil {
		return "", errors.Wrapf(err, "could not persist %s topic id", kind)
	}
	log.WithFields(logrus.Fields{"topic": topicID, "kind": kind}).Info("Provisioned flora topic")
	return topicID, nil
}

func (s *Store) loadAccountBindings(ctx context.Context) error {
	raw, found, err := s.db.State(ctx, accountBindingsKey)
	if err != nil {
		return errors.Wrap(err, "could not load petal bindings")
	}
	if !found || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &s.accountBindings); err != nil {
		return errors.Wrap(err, "persisted petal bindings are malformed")
	}
	return nil
}

// FloraAccountID returns the account the consolidated proofs speak for.
func (s *Store) FloraAccountID() string { return s.floraAccountID }

// ThresholdFingerprint returns the fingerprint of the flora threshold key,
// empty when none is configured.
func (s *Store) ThresholdFingerprint() string { return s.thresholdFingerprint }

// RegistryTopicID returns the adapter-category registry topic, empty when
// none is configured.
func (s *Store) RegistryTopicID() string { return s.registryTopicID }

// StateTopicID returns the flora state topic consolidated proofs publish to.
func (s *Store) StateTopicID() string { return s.stateTopicID }

// CoordinationTopicID returns the flora coordination topic.
func (s *Store) CoordinationTopicID() string { return s.coordinationTopicID }

// TransactionTopicID returns the flora transaction topic.
func (s *Store) TransactionTopicID() string { return s.transactionTopicID }

// OperatorKey returns the resolved operator key, empty when the consumer
// runs without submit capability.
func (s *Store) OperatorKey() string { return s.operatorKey }

// Participants returns the configured member roster as given, labels or
// account ids.
func (s *Store) Participants() []string {
	return append([]string(nil), s.participants...)
}

// MemberAccountIDs returns the sorted member account list when every
// configured participant is a dotted account id, and nil when the roster is
// labels only.
func (s *Store) MemberAccountIDs() []string {
	return append([]string(nil), s.memberAccounts...)
}

// Topics returns the topic list stamped into consolidated state messages:
// state, coordination and transaction topics, then the registry topic when
// one is configured.
func (s *Store) Topics() []string {
	topics := []string{s.stateTopicID, s.coordinationTopicID, s.transactionTopicID}
	if s.registryTopicID != "" {
		topics = append(topics, s.registryTopicID)
	}
	return topics
}

// AccountBinding returns the account a petal id is bound to, if known.
func (s *Store) AccountBinding(petalID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.accountBindings[petalID]
	return id, ok
}

// StateTopicBinding returns the state topic a petal id has used this run,
// if any proof from it has been accepted yet.
func (s *Store) StateTopicBinding(petalID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.topicBindings[petalID]
	return id, ok
}

// ObservePetal records the bindings and adapter set carried by an accepted
// proof. Account bindings are persisted so they survive restarts; state
// topic bindings only pin the petal for the current run.
func (s *Store) ObservePetal(ctx context.Context, p *proof.ProofPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topicBindings[p.PetalID] = p.PetalStateTopicID
	if _, bound := s.accountBindings[p.PetalID]; !bound {
		s.accountBindings[p.PetalID] = p.PetalAccountID
		if err := s.saveAccountBindings(ctx); err != nil {
			log.WithError(err).Error("Could not persist petal binding")
		}
	}
	obs, ok := s.observations[p.PetalID]
	if !ok {
		obs = &PetalObservation{PetalID: p.PetalID, Adapters: make(map[string]string)}
		s.observations[p.PetalID] = obs
	}
	obs.AccountID = p.PetalAccountID
	obs.StateTopicID = p.PetalStateTopicID
	if p.Epoch > obs.LastEpoch {
		obs.LastEpoch = p.Epoch
	}
	for id, fp := range p.AdapterFingerprints {
		obs.Adapters[id] = fp
	}
}

func (s *Store) saveAccountBindings(ctx context.Context) error {
	raw, err := json.Marshal(s.accountBindings)
	if err != nil {
		return err
	}
	return s.db.SaveState(ctx, accountBindingsKey, string(raw))
}

// Observations returns a snapshot of every petal seen this run, sorted by
// petal id.
func (s *Store) Observations() []*PetalObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PetalObservation, 0, len(s.observations))
	for _, obs := range s.observations {
		adapters := make(map[string]string, len(obs.Adapters))
		for id, fp := range obs.Adapters {
			adapters[id] = fp
		}
		out = append(out, &PetalObservation{
			PetalID:      obs.PetalID,
			AccountID:    obs.AccountID,
			StateTopicID: obs.StateTopicID,
			Adapters:     adapters,
			LastEpoch:    obs.LastEpoch,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PetalID < out[j].PetalID })
	return out
}

func allAccountIDs(participants []string) []string {
	if len(participants) == 0 {
		return nil
	}
	for _, p := range participants {
		if !proof.IsAccountID(p) {
			return nil
		}
	}
	return proof.SortAccountIDs(participants)
}
