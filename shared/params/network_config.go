package params

// NetworkConfig defines the ledger network parameters.
type NetworkConfig struct {
	LedgerNetwork string // LedgerNetwork is the Hedera network name (mainnet, testnet).
	MirrorBaseURL string // MirrorBaseURL is the REST endpoint of the network's mirror node.
}

var defaultNetworkConfig = mainnetNetworkConfig

// FloraNetworkConfig returns the current network config for the oracle.
func FloraNetworkConfig() *NetworkConfig {
	return defaultNetworkConfig
}

// OverrideFloraNetworkConfig will override the network
// config with the added argument.
func OverrideFloraNetworkConfig(cfg *NetworkConfig) {
	defaultNetworkConfig = cfg
}

// Copy returns a copy of the config object.
func (c *NetworkConfig) Copy() *NetworkConfig {
	config := *c
	return &config
}
