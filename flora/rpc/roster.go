package rpc

import (
	"context"
	"net/http"
	"sort"

	cache "github.com/patrickmn/go-cache"

	"github.com/hashgraph-online/flora-price-oracle/hedera"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
)

type rosterResponse struct {
	Petals   []*rosterPetal  `json:"petals"`
	Adapters *rosterAdapters `json:"adapters"`
	Topics   *rosterTopics   `json:"topics"`
	Metadata *rosterMetadata `json:"metadata"`
}

type rosterPetal struct {
	PetalID      string            `json:"petalId"`
	AccountID    string            `json:"accountId"`
	StateTopicID string            `json:"stateTopicId,omitempty"`
	PublicKey    string            `json:"publicKey,omitempty"`
	KeyType      string            `json:"keyType,omitempty"`
	Adapters     []string          `json:"adapters"`
	Fingerprints map[string]string `json:"fingerprints"`
	LastEpoch    uint64            `json:"lastEpoch"`
}

type rosterAdapters struct {
	IDs          []string          `json:"ids"`
	Fingerprints map[string]string `json:"fingerprints"`
}

type rosterTopics struct {
	State        string `json:"state"`
	Coordination string `json:"coordination"`
	Transaction  string `json:"transaction"`
	Registry     string `json:"registry,omitempty"`
}

type rosterMetadata struct {
	Registry       string `json:"registry,omitempty"`
	Network        string `json:"network"`
	FloraAccountID string `json:"floraAccountId"`
	SessionID      string `json:"sessionId"`
}

// adapterRoster reports every petal seen this run together with the
// aggregate adapter set and the flora's topic layout.
func (s *Service) adapterRoster(w http.ResponseWriter, r *http.Request) {
	b := s.cfg.Bootstrap
	observations := b.Observations()

	petals := make([]*rosterPetal, 0, len(observations))
	allIDs := make(map[string]bool)
	allFingerprints := make(map[string]string)
	for _, obs := range observations {
		petal := &rosterPetal{
			PetalID:      obs.PetalID,
			AccountID:    obs.AccountID,
			StateTopicID: obs.StateTopicID,
			Adapters:     make([]string, 0, len(obs.Adapters)),
			Fingerprints: obs.Adapters,
			LastEpoch:    obs.LastEpoch,
		}
		for id, fp := range obs.Adapters {
			petal.Adapters = append(petal.Adapters, id)
			allIDs[id] = true
			allFingerprints[id] = fp
		}
		sort.Strings(petal.Adapters)
		if key := s.accountKey(r.Context(), obs.AccountID); key != nil {
			petal.PublicKey = key.Key
			petal.KeyType = key.KeyType
		}
		petals = append(petals, petal)
	}

	ids := make([]string, 0, len(allIDs))
	for id := range allIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	registry := ""
	if b.RegistryTopicID() != "" {
		registry = "hcs://17/" + b.RegistryTopicID()
	}
	writeJSON(w, &rosterResponse{
		Petals:   petals,
		Adapters: &rosterAdapters{IDs: ids, Fingerprints: allFingerprints},
		Topics: &rosterTopics{
			State:        b.StateTopicID(),
			Coordination: b.CoordinationTopicID(),
			Transaction:  b.TransactionTopicID(),
			Registry:     b.RegistryTopicID(),
		},
		Metadata: &rosterMetadata{
			Registry:       registry,
			Network:        s.cfg.Network,
			FloraAccountID: b.FloraAccountID(),
			SessionID:      s.cfg.SessionID,
		},
	})
}

// accountKey resolves a petal's public key through the ledger, caching
// results for the configured TTL. Nil when the key cannot be served.
func (s *Service) accountKey(ctx context.Context, accountID string) *hedera.AccountKey {
	if s.cfg.Accounts == nil || accountID == "" {
		return nil
	}
	if v, ok := s.keys.Get(accountID); ok {
		if key, ok := v.(*hedera.AccountKey); ok {
			return key
		}
	}
	ctx, cancel := context.WithTimeout(ctx, params.FloraConfig().MirrorTimeout)
	defer cancel()
	key, err := s.cfg.Accounts.AccountKey(ctx, accountID)
	if err != nil {
		log.WithError(err).WithField("account", accountID).Debug("Could not resolve account key")
		return nil
	}
	s.keys.Set(accountID, key, cache.DefaultExpiration)
	return key
}
