package node

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// Test that the flora consumer can build with default flag values.
func TestNode_Builds(t *testing.T) {
	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	set.String("datadir", t.TempDir()+"/datadir", "the node data directory")
	set.String("flora-account-id", "0.0.5005", "the flora account")
	set.String("flora-state-topic", "0.0.7001", "the flora state topic")
	set.String("flora-coordination-topic", "0.0.7002", "the flora coordination topic")
	set.String("flora-transaction-topic", "0.0.7003", "the flora transaction topic")
	set.String("participants", "0.0.1001,0.0.1002,0.0.1003", "the member roster")
	set.Bool("disable-monitoring", true, "disable monitoring")
	ctx := cli.NewContext(&app, set, nil)

	flora, err := New(ctx)
	require.NoError(t, err, "Failed to create FloraNode")
	require.NoError(t, flora.db.Close())
}

// Without a configured topic, a persisted one, or an operator able to
// provision, the consumer refuses to start.
func TestNode_MissingTopic(t *testing.T) {
	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	set.String("datadir", t.TempDir()+"/datadir", "the node data directory")
	set.String("flora-account-id", "0.0.5005", "the flora account")
	set.Bool("disable-monitoring", true, "disable monitoring")
	ctx := cli.NewContext(&app, set, nil)

	_, err := New(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing state topic id")
}
