package hedera

import "context"

// Submitter posts a message to a consensus topic, paying from the
// configured operator account.
type Submitter interface {
	SubmitMessage(ctx context.Context, topicID string, payload []byte) (*SubmitReceipt, error)
}

// TopicReader tails a topic's message stream through a mirror node.
type TopicReader interface {
	// LatestMessages returns up to limit messages, newest first.
	LatestMessages(ctx context.Context, topicID string, limit int32) ([]*TopicMessage, error)
	// MessagesAfter returns messages with a consensus timestamp strictly
	// after the given cursor, oldest first.
	MessagesAfter(ctx context.Context, topicID, afterTimestamp string, limit int32) ([]*TopicMessage, error)
}

// AccountReader resolves an account's public key material.
type AccountReader interface {
	AccountKey(ctx context.Context, accountID string) (*AccountKey, error)
}

// TopicProvisioner creates consensus topics during bootstrap.
type TopicProvisioner interface {
	CreateTopic(ctx context.Context, memo string) (string, error)
}

// Client bundles the full ledger surface a flora process needs.
type Client interface {
	Submitter
	TopicReader
	AccountReader
	TopicProvisioner
}
