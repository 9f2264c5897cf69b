package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMirror(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&Config{BaseURL: srv.URL})
}

func TestLatestMessages(t *testing.T) {
	c := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/topics/0.0.700/messages", r.URL.Path)
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		resp := map[string]interface{}{
			"messages": []map[string]interface{}{
				{"consensus_timestamp": "1700000002.000000000", "message": "bTI=", "sequence_number": 2, "topic_id": "0.0.700"},
				{"consensus_timestamp": "1700000001.000000000", "message": "bTE=", "sequence_number": 1, "topic_id": "0.0.700"},
			},
			"links": map[string]interface{}{"next": nil},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	msgs, err := c.LatestMessages(context.Background(), "0.0.700", 25)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(2), msgs[0].SequenceNumber)
	raw, err := msgs[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, "m2", string(raw))
}

func TestMessagesAfter_FollowsNextLinks(t *testing.T) {
	calls := 0
	c := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			assert.Equal(t, "gt:1700000000.000000000", r.URL.Query().Get("timestamp"))
			assert.Equal(t, "asc", r.URL.Query().Get("order"))
			fmt.Fprint(w, `{"messages":[{"consensus_timestamp":"1700000001.000000000","message":"YQ==","sequence_number":1,"topic_id":"0.0.700"}],"links":{"next":"/api/v1/topics/0.0.700/messages?order=asc&timestamp=gt:1700000001.000000000"}}`)
		case 2:
			assert.Equal(t, "gt:1700000001.000000000", r.URL.Query().Get("timestamp"))
			fmt.Fprint(w, `{"messages":[{"consensus_timestamp":"1700000002.000000000","message":"Yg==","sequence_number":2,"topic_id":"0.0.700"}],"links":{"next":null}}`)
		default:
			t.Errorf("unexpected call %d", calls)
		}
	})

	msgs, err := c.MessagesAfter(context.Background(), "0.0.700", "1700000000.000000000", 25)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1700000001.000000000", msgs[0].ConsensusTimestamp)
	assert.Equal(t, "1700000002.000000000", msgs[1].ConsensusTimestamp)
	assert.Equal(t, 2, calls)
}

func TestMessagesAfter_EmptyTopic(t *testing.T) {
	c := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"messages":[],"links":{"next":null}}`)
	})
	msgs, err := c.MessagesAfter(context.Background(), "0.0.700", "0", 25)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAccountKey(t *testing.T) {
	c := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/accounts/0.0.10", r.URL.Path)
		fmt.Fprint(w, `{"account":"0.0.10","key":{"_type":"ED25519","key":"abcdef"}}`)
	})
	key, err := c.AccountKey(context.Background(), "0.0.10")
	require.NoError(t, err)
	assert.Equal(t, "0.0.10", key.AccountID)
	assert.Equal(t, "ED25519", key.KeyType)
	assert.Equal(t, "abcdef", key.Key)
}

func TestGetJSON_Non200(t *testing.T) {
	c := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	_, err := c.LatestMessages(context.Background(), "0.0.700", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
