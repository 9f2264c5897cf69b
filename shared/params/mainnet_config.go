package params

import "time"

// MainnetConfig returns the configuration to be used in the main network.
func MainnetConfig() *OracleConfig {
	return mainnetOracleConfig
}

// UseMainnetConfig for flora oracle services.
func UseMainnetConfig() {
	oracleConfig = MainnetConfig()
}

// UseMainnetNetworkConfig uses the Hedera mainnet specific
// network config.
func UseMainnetNetworkConfig() {
	OverrideFloraNetworkConfig(mainnetNetworkConfig.Copy())
}

var mainnetNetworkConfig = &NetworkConfig{
	LedgerNetwork: "mainnet",
	MirrorBaseURL: "https://mainnet-public.mirrornode.hedera.com",
}

var mainnetOracleConfig = &OracleConfig{
	// Epoch timing.
	BlockTimeMs: 2000,

	// Price sampling.
	BaseAsset:      "HBAR",
	QuoteAsset:     "USD",
	AdapterTimeout: 4 * time.Second,

	// Quorum aggregation.
	Quorum:         2,
	ExpectedPetals: 3,
	ProofRetention: 10 * time.Minute,
	ProofSweep:     time.Minute,

	// Leader publication.
	TopicCheckAttempts: 6,
	TopicCheckInterval: 2 * time.Second,
	TopicCheckWindow:   25,
	PublishRetryStep:   5 * time.Second,
	PublishRetryCap:    120 * time.Second,

	// Mirror node access.
	MirrorTimeout:   5 * time.Second,
	PollInterval:    10 * time.Second,
	TailPageLimit:   100,
	AccountKeyTTL:   5 * time.Minute,
	AccountKeySweep: time.Minute,

	// HTTP surface.
	MaxBodyBytes:        1 << 20, // 1 MiB
	HistoryDefaultLimit: 50,
	HistoryMaxLimit:     200,

	// Consensus log payloads.
	ChunkSize: 1024,

	// Flora constants.
	StateHashStandard: "hcs-17",
	PriceDecimals:     8,
	ConfigName:        "mainnet",
}
