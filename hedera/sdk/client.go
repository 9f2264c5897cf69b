// Package sdk implements the write side of the ledger surface with the
// official Hedera SDK: topic creation and message submission paid by the
// configured operator account.
package sdk

import (
	"context"
	"fmt"
	"time"

	hsdk "github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/hashgraph-online/flora-price-oracle/hedera"
	"github.com/pkg/errors"
)

var _ hedera.Submitter = (*Client)(nil)
var _ hedera.TopicProvisioner = (*Client)(nil)

// Config carries the network name and the operator identity used to sign
// and pay for transactions.
type Config struct {
	Network         string
	OperatorAccount string
	OperatorKey     string
}

// Client submits topic transactions to the Hedera network.
type Client struct {
	inner *hsdk.Client
}

// NewClient builds an SDK client for the configured network and operator.
func NewClient(cfg *Config) (*Client, error) {
	client, err := hsdk.ClientForName(cfg.Network)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown hedera network %q", cfg.Network)
	}
	operator, err := hsdk.AccountIDFromString(cfg.OperatorAccount)
	if err != nil {
		return nil, errors.Wrap(err, "invalid operator account id")
	}
	key, err := hsdk.PrivateKeyFromString(cfg.OperatorKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid operator key")
	}
	client.SetOperator(operator, key)
	return &Client{inner: client}, nil
}

// SubmitMessage publishes payload to the topic and waits for the
// transaction record, so callers receive the consensus timestamp and
// sequence number assigned by the network.
func (c *Client) SubmitMessage(ctx context.Context, topicID string, payload []byte) (*hedera.SubmitReceipt, error) {
	tid, err := hsdk.TopicIDFromString(topicID)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid topic id %q", topicID)
	}
	tx := hsdk.NewTopicMessageSubmitTransaction().
		SetTopicID(tid).
		SetMessage(payload)
	if deadline, ok := ctx.Deadline(); ok {
		grpcDeadline := time.Until(deadline)
		tx.SetGrpcDeadline(&grpcDeadline)
	}
	resp, err := tx.Execute(c.inner)
	if err != nil {
		return nil, errors.Wrapf(err, "could not submit to topic %s", topicID)
	}
	record, err := resp.GetRecord(c.inner)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch transaction record")
	}
	return &hedera.SubmitReceipt{
		TopicID:            topicID,
		ConsensusTimestamp: formatConsensusTimestamp(record.ConsensusTimestamp),
		SequenceNumber:     record.Receipt.TopicSequenceNumber,
	}, nil
}

// CreateTopic provisions a new consensus topic with the given memo.
func (c *Client) CreateTopic(ctx context.Context, memo string) (string, error) {
	tx := hsdk.NewTopicCreateTransaction().SetTopicMemo(memo)
	if deadline, ok := ctx.Deadline(); ok {
		grpcDeadline := time.Until(deadline)
		tx.SetGrpcDeadline(&grpcDeadline)
	}
	resp, err := tx.Execute(c.inner)
	if err != nil {
		return "", errors.Wrap(err, "could not create topic")
	}
	receipt, err := resp.GetReceipt(c.inner)
	if err != nil {
		return "", errors.Wrap(err, "could not fetch topic create receipt")
	}
	if receipt.TopicID == nil {
		return "", errors.New("topic create receipt carries no topic id")
	}
	return receipt.TopicID.String(), nil
}

// Close releases the SDK client's network connections.
func (c *Client) Close() error {
	return c.inner.Close()
}

func formatConsensusTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}
