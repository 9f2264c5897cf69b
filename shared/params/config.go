// Package params defines the configurable parameters of the flora price
// oracle: epoch timing, sampling deadlines, quorum policy, leader publication
// retry policy, mirror node access and API paging. Values are read through
// the package-level accessors so tests and CLI flags can override them.
package params

import "time"

// OracleConfig contains the parameters governing one oracle deployment.
type OracleConfig struct {
	// Epoch timing.
	BlockTimeMs uint64 // Length of one epoch in milliseconds.

	// Price sampling.
	BaseAsset      string        // Asset being priced.
	QuoteAsset     string        // Asset prices are denominated in.
	AdapterTimeout time.Duration // Deadline for a single adapter call.

	// Quorum aggregation.
	Quorum         uint64        // Minimum matching proofs to form consensus.
	ExpectedPetals uint64        // Expected petal count when no roster is known.
	ProofRetention time.Duration // How long consolidated epoch buckets linger for late validation.
	ProofSweep     time.Duration // Sweep interval for expired epoch buckets.

	// Leader publication.
	TopicCheckAttempts int           // Petal state topic validation attempts.
	TopicCheckInterval time.Duration // Delay between validation attempts.
	TopicCheckWindow   int32         // Messages scanned per validation attempt.
	PublishRetryStep   time.Duration // Backoff grows by this much per attempt.
	PublishRetryCap    time.Duration // Upper bound on publish retry delay.

	// Mirror node access.
	MirrorTimeout   time.Duration // Deadline for one mirror REST call.
	PollInterval    time.Duration // Flora state topic polling cadence.
	TailPageLimit   int32         // Messages requested per tail page.
	AccountKeyTTL   time.Duration // Account public key cache lifetime.
	AccountKeySweep time.Duration // Sweep interval for the key cache.

	// HTTP surface.
	MaxBodyBytes        int64 // Request body cap for proof intake.
	HistoryDefaultLimit int   // History page size when the caller omits limit.
	HistoryMaxLimit     int   // Hard clamp on requested history page size.

	// Consensus log payloads.
	ChunkSize int // Maximum bytes per consensus log message part.

	// Flora constants.
	StateHashStandard string // Protocol label carried in state messages.
	PriceDecimals     int    // Decimal places consensus prices are rounded to.
	ConfigName        string // Human-readable name of the active config.
}

var oracleConfig = MainnetConfig()

// FloraConfig retrieves the active oracle configuration.
func FloraConfig() *OracleConfig {
	return oracleConfig
}

// OverrideFloraConfig by replacing the config. The preferred pattern is to
// call FloraConfig(), change the specific parameters, and then call
// OverrideFloraConfig(c). Any subsequent calls to params.FloraConfig() will
// return this new configuration.
func OverrideFloraConfig(c *OracleConfig) {
	oracleConfig = c
}

// Copy returns a copy of the config object.
func (c *OracleConfig) Copy() *OracleConfig {
	config := *c
	return &config
}

// EpochDuration returns the configured epoch length.
func (c *OracleConfig) EpochDuration() time.Duration {
	return time.Duration(c.BlockTimeMs) * time.Millisecond
}
