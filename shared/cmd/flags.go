// Package cmd defines the command line flags shared by the petal and flora
// processes.
package cmd

import (
	"github.com/urfave/cli/v2"
)

var (
	// VerbosityFlag defines the logrus configuration.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info=default, warn, error, fatal, panic)",
		Value: "info",
	}
	// DataDirFlag defines a path on disk.
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the history database and bootstrap state",
		Value: DefaultDataDir(),
	}
	// DisableMonitoringFlag defines a flag to disable the metrics collection.
	DisableMonitoringFlag = &cli.BoolFlag{
		Name:  "disable-monitoring",
		Usage: "Disable monitoring service.",
	}
	// MonitoringHostFlag defines the host used by the monitoring service.
	MonitoringHostFlag = &cli.StringFlag{
		Name:  "monitoring-host",
		Usage: "Host used for listening and responding metrics for prometheus.",
		Value: "127.0.0.1",
	}
	// ForceClearDB removes any previously stored data at the data directory.
	ForceClearDB = &cli.BoolFlag{
		Name:  "force-clear-db",
		Usage: "Clear any previously stored data at the data directory",
	}
	// LogFormat specifies the log output format.
	LogFormat = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Specify log formatting. Supports: text, json, fluentd.",
		Value: "text",
	}
	// MaxGoroutines specifies the maximum amount of goroutines tolerated, before a status check fails.
	MaxGoroutines = &cli.IntFlag{
		Name:  "max-goroutines",
		Usage: "Specifies the upper limit of goroutines running before a status check fails",
		Value: 5000,
	}
	// LogFileName specifies the log output file name.
	LogFileName = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Specify log file name, relative or absolute",
	}
	// ConfigFileFlag specifies the filepath to load flag values.
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config-file",
		Usage: "The filepath to a yaml file with flag values",
	}
	// HederaNetworkFlag selects the ledger network the oracle runs against.
	HederaNetworkFlag = &cli.StringFlag{
		Name:    "hedera-network",
		Usage:   "Hedera network to use (testnet, mainnet)",
		EnvVars: []string{"HEDERA_NETWORK"},
		Value:   "testnet",
	}
	// MirrorBaseURLFlag overrides the network's default mirror node endpoint.
	MirrorBaseURLFlag = &cli.StringFlag{
		Name:    "mirror-base-url",
		Usage:   "Base URL of the Hedera mirror node REST API",
		EnvVars: []string{"MIRROR_BASE_URL"},
	}
	// OperatorAccountFlag is the ledger account paying for topic operations.
	OperatorAccountFlag = &cli.StringFlag{
		Name:    "operator-id",
		Usage:   "Hedera operator account id (shard.realm.num)",
		EnvVars: []string{"HEDERA_OPERATOR_ID"},
	}
	// OperatorKeyFlag is the private key for the operator account.
	OperatorKeyFlag = &cli.StringFlag{
		Name:    "operator-key",
		Usage:   "Hedera operator private key",
		EnvVars: []string{"HEDERA_OPERATOR_KEY"},
	}
	// BlockTimeFlag sets the epoch length in milliseconds.
	BlockTimeFlag = &cli.Uint64Flag{
		Name:    "block-time-ms",
		Usage:   "Length of one epoch in milliseconds",
		EnvVars: []string{"BLOCK_TIME_MS"},
		Value:   2000,
	}
	// ThresholdFingerprintFlag is the fingerprint shared by all flora members.
	ThresholdFingerprintFlag = &cli.StringFlag{
		Name:    "threshold-fingerprint",
		Usage:   "Fingerprint of the flora threshold key, shared by all members",
		EnvVars: []string{"THRESHOLD_FINGERPRINT"},
	}
	// FloraAccountFlag is the flora's shared threshold account id.
	FloraAccountFlag = &cli.StringFlag{
		Name:    "flora-account-id",
		Usage:   "Account id of the flora threshold account",
		EnvVars: []string{"FLORA_ACCOUNT_ID"},
	}
	// RegistryTopicFlag is the adapter registry topic proofs must reference.
	RegistryTopicFlag = &cli.StringFlag{
		Name:    "registry-topic",
		Usage:   "Topic id of the adapter category registry",
		EnvVars: []string{"REGISTRY_TOPIC_ID"},
	}
	// ParticipantsFlag lists the petal members of the flora.
	ParticipantsFlag = &cli.StringFlag{
		Name:    "participants",
		Usage:   "Comma-separated petal participants, as labels or account ids",
		EnvVars: []string{"FLORA_PARTICIPANTS"},
	}
	// FloraThresholdFlag is the m-of-n of the flora's shared threshold key.
	FloraThresholdFlag = &cli.Uint64Flag{
		Name:    "flora-threshold",
		Usage:   "Number of member keys the flora threshold account requires",
		EnvVars: []string{"FLORA_THRESHOLD"},
	}
	// KeySecretFlag derives the AEAD key wrapping secret state values.
	KeySecretFlag = &cli.StringFlag{
		Name:    "key-secret",
		Usage:   "Passphrase deriving the key that wraps secrets in the state table",
		EnvVars: []string{"PETAL_KEY_SECRET"},
	}
)
