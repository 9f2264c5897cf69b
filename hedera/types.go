// Package hedera defines the narrow ledger surface the oracle consumes:
// topic provisioning, message submission, and mirror node reads of topic
// streams and account keys. Core packages depend on the interfaces here so
// tests can substitute fakes for the network.
package hedera

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TopicMessage is one message read from a topic's mirror stream. The
// message body is base64 as served by the mirror REST API.
type TopicMessage struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	Message            string `json:"message"`
	SequenceNumber     uint64 `json:"sequence_number"`
	TopicID            string `json:"topic_id"`
}

// Decode returns the raw message payload.
func (m *TopicMessage) Decode() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Message)
	if err != nil {
		return nil, errors.Wrapf(err, "message at %s is not base64", m.ConsensusTimestamp)
	}
	return raw, nil
}

// SubmitReceipt reports where a submitted message landed on the log.
type SubmitReceipt struct {
	TopicID            string
	ConsensusTimestamp string
	SequenceNumber     uint64
}

// AccountKey is the public key material of a ledger account.
type AccountKey struct {
	AccountID string
	KeyType   string
	Key       string
}

// CompareTimestamps orders two consensus timestamps of the form
// "seconds.nanoseconds". Empty strings order first. Returns -1, 0 or 1.
func CompareTimestamps(a, b string) int {
	as, an := splitTimestamp(a)
	bs, bn := splitTimestamp(b)
	if as != bs {
		if as < bs {
			return -1
		}
		return 1
	}
	if an != bn {
		if an < bn {
			return -1
		}
		return 1
	}
	return 0
}

func splitTimestamp(ts string) (int64, int64) {
	if ts == "" {
		return 0, 0
	}
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0
	}
	var nanos int64
	if len(parts) == 2 {
		// Right-pad to nanosecond precision so "1.5" orders after "1.05".
		frac := parts[1]
		if len(frac) > 9 {
			frac = frac[:9]
		}
		for len(frac) < 9 {
			frac += "0"
		}
		nanos, _ = strconv.ParseInt(frac, 10, 64)
	}
	return sec, nanos
}
