// Package main defines the flora consumer for the price oracle. The consumer
// collects petal proofs over HTTP, forms quorum consensus per epoch, publishes
// consolidated proofs to the flora state topic when elected leader, and serves
// the consolidated price history.
package main

import (
	"fmt"
	"os"
	"runtime"

	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/hashgraph-online/flora-price-oracle/cmd/flora/flags"
	"github.com/hashgraph-online/flora-price-oracle/flora/node"
	"github.com/hashgraph-online/flora-price-oracle/shared/cmd"
	"github.com/hashgraph-online/flora-price-oracle/shared/logutil"
	"github.com/hashgraph-online/flora-price-oracle/shared/version"
)

var log = logrus.WithField("prefix", "main")

func startFlora(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	flora, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	flora.Start()
	return nil
}

var appFlags = []cli.Flag{
	cmd.VerbosityFlag,
	cmd.DataDirFlag,
	cmd.DisableMonitoringFlag,
	cmd.MonitoringHostFlag,
	flags.MonitoringPortFlag,
	cmd.MaxGoroutines,
	cmd.ForceClearDB,
	cmd.LogFileName,
	cmd.LogFormat,
	cmd.ConfigFileFlag,
	cmd.HederaNetworkFlag,
	cmd.MirrorBaseURLFlag,
	cmd.OperatorAccountFlag,
	cmd.OperatorKeyFlag,
	cmd.BlockTimeFlag,
	cmd.ThresholdFingerprintFlag,
	cmd.FloraThresholdFlag,
	cmd.FloraAccountFlag,
	cmd.RegistryTopicFlag,
	cmd.ParticipantsFlag,
	cmd.KeySecretFlag,
	flags.HTTPHostFlag,
	flags.HTTPPortFlag,
	flags.QuorumFlag,
	flags.ExpectedPetalsFlag,
	flags.PollIntervalFlag,
	flags.StateTopicFlag,
	flags.CoordinationTopicFlag,
	flags.TransactionTopicFlag,
}

func init() {
	appFlags = cmd.WrapFlags(appFlags)
}

func main() {
	app := cli.App{}
	app.Name = "flora"
	app.Usage = "launches the flora consumer that aggregates petal proofs into a consolidated price feed."
	app.Version = version.GetVersion()
	app.Flags = appFlags
	app.Action = startFlora
	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(cmd.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(
				appFlags,
				altsrc.NewYamlSourceFromFlagFunc(
					cmd.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as Gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := logutil.ConfigurePersistentLogging(logFileName, format); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
