package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testDB "github.com/hashgraph-online/flora-price-oracle/db/testing"
	"github.com/hashgraph-online/flora-price-oracle/flora/aggregator"
	"github.com/hashgraph-online/flora-price-oracle/flora/bootstrap"
	"github.com/hashgraph-online/flora-price-oracle/flora/intake"
	"github.com/hashgraph-online/flora-price-oracle/hedera"
	"github.com/hashgraph-online/flora-price-oracle/proof"
)

type fakeAccountReader struct {
	mu    sync.Mutex
	keys  map[string]*hedera.AccountKey
	calls int
}

func (f *fakeAccountReader) AccountKey(_ context.Context, accountID string) (*hedera.AccountKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key, ok := f.keys[accountID]
	if !ok {
		return nil, errors.New("account not found")
	}
	return key, nil
}

func newTestService(t *testing.T, accounts hedera.AccountReader) (*Service, *aggregator.Service, *bootstrap.Store) {
	t.Helper()
	ctx := context.Background()
	d := testDB.SetupDB(t)
	b, err := bootstrap.NewStore(ctx, &bootstrap.Config{
		DB:                  d,
		FloraAccountID:      "0.0.7001",
		RegistryTopicID:     "0.0.6001",
		StateTopicID:        "0.0.5001",
		CoordinationTopicID: "0.0.5002",
		TransactionTopicID:  "0.0.5003",
		Participants:        []string{"petal-a", "petal-b", "petal-c"},
	})
	require.NoError(t, err)
	agg := aggregator.NewService(ctx, &aggregator.Config{DB: d, Bootstrap: b, ConsensusFeed: new(event.Feed)})
	agg.Start()
	t.Cleanup(func() { require.NoError(t, agg.Stop()) })
	in := intake.NewIntake(&intake.Config{Bootstrap: b, Sink: agg})

	s := NewService(ctx, &Config{
		Host:       "127.0.0.1",
		Port:       0,
		Intake:     in,
		Aggregator: agg,
		Bootstrap:  b,
		Accounts:   accounts,
		Network:    "testnet",
		SessionID:  "session-1",
	})
	t.Cleanup(func() { require.NoError(t, s.Stop()) })
	return s, agg, b
}

func testProof(t *testing.T, petalID string, epoch uint64, price float64) *proof.ProofPayload {
	t.Helper()
	records := []*proof.AdapterRecord{{
		AdapterID:         "coingecko",
		EntityID:          "HBAR-USD",
		Payload:           map[string]interface{}{"price": price, "source": "coingecko"},
		Timestamp:         "2023-11-14T22:13:20.000Z",
		SourceFingerprint: "fp-record",
	}}
	fingerprints := map[string]string{"coingecko": "fp-coingecko"}
	hash, err := proof.ComputeStateHash(records, "thresh-fp", fingerprints, "0.0.6001")
	require.NoError(t, err)
	return &proof.ProofPayload{
		Epoch:                epoch,
		StateHash:            hash,
		ThresholdFingerprint: "thresh-fp",
		PetalID:              petalID,
		PetalAccountID:       "0.0.1001",
		PetalStateTopicID:    "0.0.3001",
		FloraAccountID:       "0.0.7001",
		Participants:         []string{"0.0.1001", "0.0.1002", "0.0.1003"},
		Records:              records,
		AdapterFingerprints:  fingerprints,
		RegistryTopicID:      "0.0.6001",
		Timestamp:            "2023-11-14T22:13:20.000Z",
	}
}

func do(t *testing.T, s *Service, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestSubmitProof_Accepted(t *testing.T) {
	s, _, b := newTestService(t, nil)
	body, err := json.Marshal(testProof(t, "petal-a", 3, 0.0712))
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/proof", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var acc acceptedResponse
	decodeJSON(t, rec, &acc)
	assert.Equal(t, "accepted", acc.Status)
	require.Len(t, b.Observations(), 1)
}

func TestSubmitProof_RejectedWithoutMutation(t *testing.T) {
	s, agg, b := newTestService(t, nil)
	bad := testProof(t, "petal-b", 3, 0.0712)
	bad.FloraAccountID = "0.0.9999"
	body, err := json.Marshal(bad)
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/proof", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var je jsonError
	decodeJSON(t, rec, &je)
	assert.Equal(t, "floraAccountId", je.Field)
	assert.Equal(t, http.StatusBadRequest, je.Code)
	assert.NotEmpty(t, je.Error)

	assert.Empty(t, agg.History())
	assert.Empty(t, b.Observations())
}

func TestSubmitProof_RejectsOversizedBody(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	body := bytes.Repeat([]byte("a"), 1<<20+1)

	rec := do(t, s, http.MethodPost, "/proof", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLatestPrice(t *testing.T) {
	s, agg, _ := newTestService(t, nil)

	rec := do(t, s, http.MethodGet, "/price/latest", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	agg.SubmitProof(testProof(t, "petal-a", 5, 0.0713))
	agg.SubmitProof(testProof(t, "petal-b", 5, 0.0713))

	rec = do(t, s, http.MethodGet, "/price/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entry proof.ConsensusEntry
	decodeJSON(t, rec, &entry)
	assert.Equal(t, uint64(5), entry.Epoch)
	assert.InDelta(t, 0.0713, entry.Price, 1e-12)
	assert.Equal(t, "hcs://17/0.0.5001", entry.HCSMessage, "pointer defaults before the tailer backfills")
}

func TestPriceHistory_PagesNewestFirst(t *testing.T) {
	s, agg, _ := newTestService(t, nil)
	for epoch := uint64(1); epoch <= 5; epoch++ {
		agg.SubmitProof(testProof(t, "petal-a", epoch, 0.071))
		agg.SubmitProof(testProof(t, "petal-b", epoch, 0.071))
	}

	rec := do(t, s, http.MethodGet, "/price/history?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page historyResponse
	decodeJSON(t, rec, &page)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 0, page.Offset)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Items, 2)
	assert.Equal(t, uint64(5), page.Items[0].Epoch)
	assert.Equal(t, uint64(4), page.Items[1].Epoch)
	assert.Equal(t, "hcs://17/0.0.5001", page.Items[0].HCSMessage)

	rec = do(t, s, http.MethodGet, "/price/history?offset=4&limit=2", nil)
	decodeJSON(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, uint64(1), page.Items[0].Epoch)
}

func TestPriceHistory_ClampsAndDefaults(t *testing.T) {
	s, agg, _ := newTestService(t, nil)
	agg.SubmitProof(testProof(t, "petal-a", 1, 0.071))
	agg.SubmitProof(testProof(t, "petal-b", 1, 0.071))

	var page historyResponse
	rec := do(t, s, http.MethodGet, "/price/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &page)
	assert.Equal(t, 50, page.Limit)

	rec = do(t, s, http.MethodGet, "/price/history?limit=0", nil)
	decodeJSON(t, rec, &page)
	assert.Equal(t, 1, page.Limit)

	rec = do(t, s, http.MethodGet, "/price/history?limit=9999", nil)
	decodeJSON(t, rec, &page)
	assert.Equal(t, 200, page.Limit)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/price/history?limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/price/history?offset=-1", nil).Code)
}

func TestAdapterRoster(t *testing.T) {
	reader := &fakeAccountReader{keys: map[string]*hedera.AccountKey{
		"0.0.1001": {AccountID: "0.0.1001", KeyType: "ED25519", Key: "aabbccdd"},
	}}
	s, _, _ := newTestService(t, reader)

	first := testProof(t, "petal-a", 3, 0.0712)
	body, err := json.Marshal(first)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/proof", body).Code)

	var roster rosterResponse
	rec := do(t, s, http.MethodGet, "/adapters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &roster)

	require.Len(t, roster.Petals, 1)
	petal := roster.Petals[0]
	assert.Equal(t, "petal-a", petal.PetalID)
	assert.Equal(t, "0.0.1001", petal.AccountID)
	assert.Equal(t, "0.0.3001", petal.StateTopicID)
	assert.Equal(t, "aabbccdd", petal.PublicKey)
	assert.Equal(t, "ED25519", petal.KeyType)
	assert.Equal(t, []string{"coingecko"}, petal.Adapters)
	assert.Equal(t, "fp-coingecko", petal.Fingerprints["coingecko"])
	assert.Equal(t, uint64(3), petal.LastEpoch)

	assert.Equal(t, []string{"coingecko"}, roster.Adapters.IDs)
	assert.Equal(t, "0.0.5001", roster.Topics.State)
	assert.Equal(t, "0.0.5002", roster.Topics.Coordination)
	assert.Equal(t, "0.0.5003", roster.Topics.Transaction)
	assert.Equal(t, "0.0.6001", roster.Topics.Registry)
	assert.Equal(t, "hcs://17/0.0.6001", roster.Metadata.Registry)
	assert.Equal(t, "testnet", roster.Metadata.Network)
	assert.Equal(t, "0.0.7001", roster.Metadata.FloraAccountID)
	assert.Equal(t, "session-1", roster.Metadata.SessionID)

	// A second read serves the key from the cache.
	do(t, s, http.MethodGet, "/adapters", nil)
	assert.Equal(t, 1, reader.calls)
}

func TestHealthAndCORS(t *testing.T) {
	s, _, _ := newTestService(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dashboard.example")
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	decodeJSON(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodRouting(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/proof", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodPost, "/price/latest", nil).Code)
}
