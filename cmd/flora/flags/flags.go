// Package flags defines the command line flags specific to the flora consumer.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// HTTPHostFlag is the interface the consumer's HTTP API binds to.
	HTTPHostFlag = &cli.StringFlag{
		Name:  "http-host",
		Usage: "Host on which the proof and price API listens",
		Value: "127.0.0.1",
	}
	// HTTPPortFlag is the port the consumer's HTTP API binds to.
	HTTPPortFlag = &cli.IntFlag{
		Name:    "http-port",
		Usage:   "Port on which the proof and price API listens",
		EnvVars: []string{"PORT"},
		Value:   8080,
	}
	// QuorumFlag is the matching-proof count an epoch needs to consolidate.
	QuorumFlag = &cli.Uint64Flag{
		Name:    "quorum",
		Usage:   "Minimum number of matching proofs required to form consensus",
		EnvVars: []string{"QUORUM"},
		Value:   2,
	}
	// ExpectedPetalsFlag sizes the flora when the roster is not configured.
	ExpectedPetalsFlag = &cli.Uint64Flag{
		Name:    "expected-petals",
		Usage:   "Number of petals expected to submit each epoch",
		EnvVars: []string{"EXPECTED_PETALS"},
		Value:   3,
	}
	// PollIntervalFlag paces the flora state topic tailer.
	PollIntervalFlag = &cli.Uint64Flag{
		Name:    "poll-interval-ms",
		Usage:   "Milliseconds between flora state topic polls",
		EnvVars: []string{"POLL_INTERVAL_MS"},
		Value:   10000,
	}
	// StateTopicFlag is the flora's hcs-17 state topic.
	StateTopicFlag = &cli.StringFlag{
		Name:    "flora-state-topic",
		Usage:   "Topic id consolidated proofs are published to",
		EnvVars: []string{"FLORA_STATE_TOPIC"},
	}
	// CoordinationTopicFlag is the flora's coordination topic.
	CoordinationTopicFlag = &cli.StringFlag{
		Name:    "flora-coordination-topic",
		Usage:   "Topic id the flora coordinates over",
		EnvVars: []string{"FLORA_COORDINATION_TOPIC"},
	}
	// TransactionTopicFlag is the flora's transaction topic.
	TransactionTopicFlag = &cli.StringFlag{
		Name:    "flora-transaction-topic",
		Usage:   "Topic id the flora schedules transactions over",
		EnvVars: []string{"FLORA_TRANSACTION_TOPIC"},
	}
	// MonitoringPortFlag defines the metrics port for the consumer.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listening and respond metrics for prometheus.",
		Value: 8082,
	}
)
