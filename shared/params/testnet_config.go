package params

// TestnetConfig returns the configuration to be used in the Hedera testnet.
func TestnetConfig() *OracleConfig {
	cfg := mainnetOracleConfig.Copy()
	cfg.ConfigName = "testnet"
	return cfg
}

// UseTestnetConfig for flora oracle services.
func UseTestnetConfig() {
	oracleConfig = TestnetConfig()
}

// UseTestnetNetworkConfig uses the Hedera testnet specific
// network config.
func UseTestnetNetworkConfig() {
	cfg := FloraNetworkConfig().Copy()
	cfg.LedgerNetwork = "testnet"
	cfg.MirrorBaseURL = "https://testnet.mirrornode.hedera.com"
	OverrideFloraNetworkConfig(cfg)
}
