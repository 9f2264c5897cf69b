// Package flags defines the command line flags specific to the petal worker.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// PetalIDFlag labels this petal within the flora.
	PetalIDFlag = &cli.StringFlag{
		Name:    "petal-id",
		Usage:   "Label identifying this petal within the flora",
		EnvVars: []string{"PETAL_ID"},
	}
	// StateTopicFlag is the petal's own hcs-17 state topic.
	StateTopicFlag = &cli.StringFlag{
		Name:    "petal-state-topic",
		Usage:   "Topic id this petal publishes its state hashes to",
		EnvVars: []string{"PETAL_STATE_TOPIC"},
	}
	// ConsumerURLFlag locates the flora consumer's HTTP surface.
	ConsumerURLFlag = &cli.StringFlag{
		Name:    "consumer-url",
		Usage:   "Base URL of the flora consumer receiving proofs",
		EnvVars: []string{"CONSUMER_URL"},
		Value:   "http://127.0.0.1:8080",
	}
	// AdapterManifestFlag points at the adapter manifest file.
	AdapterManifestFlag = &cli.StringFlag{
		Name:    "adapter-manifest",
		Usage:   "Path to the yaml manifest listing this petal's price adapters",
		EnvVars: []string{"ADAPTER_MANIFEST"},
		Value:   "adapters.yaml",
	}
	// PublishStateTopicFlag toggles the fire-and-forget state publication.
	PublishStateTopicFlag = &cli.BoolFlag{
		Name:    "publish-state-topic",
		Usage:   "Publish each epoch's state hash to the petal state topic",
		EnvVars: []string{"PETAL_PUBLISH_STATE_TOPIC"},
		Value:   true,
	}
	// MonitoringPortFlag defines the metrics port for the petal.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listening and respond metrics for prometheus.",
		Value: 8081,
	}
)
