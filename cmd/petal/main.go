// Package main defines a petal worker for the flora price oracle. A petal
// samples its price adapters once per epoch, builds a state-hash proof and
// submits it to the flora consumer and its own consensus state topic.
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

	"github.com/hashgraph-online/flora-price-oracle/cmd/petal/flags"
	"github.com/hashgraph-online/flora-price-oracle/petal/node"
	"github.com/hashgraph-online/flora-price-oracle/shared/cmd"
	"github.com/hashgraph-online/flora-price-oracle/shared/logutil"
	"github.com/hashgraph-online/flora-price-oracle/shared/version"
)

var log = logrus.WithField("prefix", "main")

func startPetal(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	petal, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	petal.Start()
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
	flags.PetalIDFlag,
	flags.StateTopicFlag,
	flags.ConsumerURLFlag,
	flags.AdapterManifestFlag,
	flags.PublishStateTopicFlag,
}

func init() {
	appFlags = cmd.WrapFlags(appFlags)
}

func main() {
	app := cli.App{}
	app.Name = "petal"
	app.Usage = "launches a petal worker that samples price adapters and submits epoch proofs to its flora."
	app.Version = version.GetVersion()
	app.Flags = appFlags
	app.Action = startPetal
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
