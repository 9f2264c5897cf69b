// Package node defines the flora consumer process. It ties together the
// proof intake, quorum aggregation, leader publication and the consensus log
// tailer, and handles the lifecycle of the entire system through a service
// registry.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/hashgraph-online/flora-price-oracle/cmd/flora/flags"
	"github.com/hashgraph-online/flora-price-oracle/db"
	"github.com/hashgraph-online/flora-price-oracle/flora/aggregator"
	"github.com/hashgraph-online/flora-price-oracle/flora/bootstrap"
	"github.com/hashgraph-online/flora-price-oracle/flora/intake"
	"github.com/hashgraph-online/flora-price-oracle/flora/leader"
	"github.com/hashgraph-online/flora-price-oracle/flora/rpc"
	"github.com/hashgraph-online/flora-price-oracle/flora/tailer"
	"github.com/hashgraph-online/flora-price-oracle/hedera/mirror"
	"github.com/hashgraph-online/flora-price-oracle/hedera/sdk"
	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared"
	"github.com/hashgraph-online/flora-price-oracle/shared/cmd"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
	"github.com/hashgraph-online/flora-price-oracle/shared/prometheus"
)

var log = logrus.WithField("prefix", "node")

const floraDBDirName = "floradata"

// FloraNode handles the lifecycle of the flora consumer and registers its
// services to a service registry.
type FloraNode struct {
	cliCtx        *cli.Context
	ctx           context.Context
	cancel        context.CancelFunc
	services      *shared.ServiceRegistry
	lock          sync.RWMutex
	stop          chan struct{} // Channel to wait for termination notifications.
	db            db.Database
	consensusFeed *event.Feed
	bootstrap     *bootstrap.Store
	aggregator    *aggregator.Service
	mirror        *mirror.Client
	submitter     *sdk.Client
	sessionID     uuid.UUID
}

// New creates a new flora consumer, sets up configuration options, and
// registers every required service.
func New(cliCtx *cli.Context) (*FloraNode, error) {
	configureNetwork(cliCtx)
	configureOracle(cliCtx)

	ctx, cancel := context.WithCancel(cliCtx.Context)
	flora := &FloraNode{
		cliCtx:        cliCtx,
		ctx:           ctx,
		cancel:        cancel,
		services:      shared.NewServiceRegistry(),
		stop:          make(chan struct{}),
		consensusFeed: new(event.Feed),
		sessionID:     uuid.New(),
	}
	log.WithFields(logrus.Fields{
		"session": flora.sessionID.String(),
		"network": params.FloraNetworkConfig().LedgerNetwork,
	}).Info("Initializing flora consumer")

	flora.mirror = mirror.NewClient(&mirror.Config{
		BaseURL: params.FloraNetworkConfig().MirrorBaseURL,
	})

	if err := flora.startDB(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if err := flora.startBootstrap(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if err := flora.registerAggregatorService(); err != nil {
		cancel()
		return nil, err
	}
	if err := flora.registerLeaderService(); err != nil {
		cancel()
		return nil, err
	}
	if err := flora.registerTailerService(); err != nil {
		cancel()
		return nil, err
	}
	if err := flora.registerRPCService(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := flora.registerPrometheusService(cliCtx); err != nil {
			cancel()
			return nil, err
		}
	}
	return flora, nil
}

// Start the flora node and kick off every registered service.
func (f *FloraNode) Start() {
	f.lock.Lock()
	f.services.StartAll()
	f.lock.Unlock()

	stop := f.stop
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go f.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the flora node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (f *FloraNode) Close() {
	f.lock.Lock()
	defer f.lock.Unlock()

	log.Info("Stopping flora node")
	f.services.StopAll()
	f.cancel()
	if err := f.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
	close(f.stop)
}

func configureNetwork(cliCtx *cli.Context) {
	switch network := cliCtx.String(cmd.HederaNetworkFlag.Name); network {
	case "mainnet":
		params.UseMainnetConfig()
		params.UseMainnetNetworkConfig()
	default:
		params.UseTestnetConfig()
		params.UseTestnetNetworkConfig()
	}
	if url := cliCtx.String(cmd.MirrorBaseURLFlag.Name); url != "" {
		netCfg := params.FloraNetworkConfig().Copy()
		netCfg.MirrorBaseURL = url
		params.OverrideFloraNetworkConfig(netCfg)
	}
}

func configureOracle(cliCtx *cli.Context) {
	cfg := params.FloraConfig().Copy()
	if cliCtx.IsSet(cmd.BlockTimeFlag.Name) {
		cfg.BlockTimeMs = cliCtx.Uint64(cmd.BlockTimeFlag.Name)
	}
	if cliCtx.IsSet(flags.QuorumFlag.Name) {
		cfg.Quorum = cliCtx.Uint64(flags.QuorumFlag.Name)
	}
	if cliCtx.IsSet(flags.ExpectedPetalsFlag.Name) {
		cfg.ExpectedPetals = cliCtx.Uint64(flags.ExpectedPetalsFlag.Name)
	}
	if cliCtx.IsSet(flags.PollIntervalFlag.Name) {
		cfg.PollInterval = time.Duration(cliCtx.Uint64(flags.PollIntervalFlag.Name)) * time.Millisecond
	}
	params.OverrideFloraConfig(cfg)
}

func (f *FloraNode) startDB(cliCtx *cli.Context) error {
	baseDir := cliCtx.String(cmd.DataDirFlag.Name)
	dbPath := filepath.Join(baseDir, floraDBDirName)
	log.WithField("database-path", dbPath).Info("Checking DB")

	d, err := db.NewDB(dbPath, &db.Config{
		KeySecret: cliCtx.String(cmd.KeySecretFlag.Name),
	})
	if err != nil {
		return err
	}
	if cliCtx.Bool(cmd.ForceClearDB.Name) {
		log.Warning("Removing database")
		if err := d.Close(); err != nil {
			return errors.Wrap(err, "could not close db prior to clearing")
		}
		if err := d.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		d, err = db.NewDB(dbPath, &db.Config{
			KeySecret: cliCtx.String(cmd.KeySecretFlag.Name),
		})
		if err != nil {
			return err
		}
	}
	f.db = d
	return nil
}

// startBootstrap resolves the registry context. The ledger client is built
// eagerly when both operator flags are set so it can provision missing
// topics; otherwise it is built after the store recovers a persisted key.
func (f *FloraNode) startBootstrap(cliCtx *cli.Context) error {
	operatorAccount := cliCtx.String(cmd.OperatorAccountFlag.Name)
	operatorKey := cliCtx.String(cmd.OperatorKeyFlag.Name)
	if operatorAccount != "" && operatorKey != "" {
		client, err := sdk.NewClient(&sdk.Config{
			Network:         params.FloraNetworkConfig().LedgerNetwork,
			OperatorAccount: operatorAccount,
			OperatorKey:     operatorKey,
		})
		if err != nil {
			return errors.Wrap(err, "could not build ledger client")
		}
		f.submitter = client
	}

	participants := splitParticipants(cliCtx.String(cmd.ParticipantsFlag.Name))
	fingerprint, err := resolveThresholdFingerprint(cliCtx, participants)
	if err != nil {
		return err
	}
	cfg := &bootstrap.Config{
		DB:                   f.db,
		FloraAccountID:       cliCtx.String(cmd.FloraAccountFlag.Name),
		ThresholdFingerprint: fingerprint,
		RegistryTopicID:      cliCtx.String(cmd.RegistryTopicFlag.Name),
		StateTopicID:         cliCtx.String(flags.StateTopicFlag.Name),
		CoordinationTopicID:  cliCtx.String(flags.CoordinationTopicFlag.Name),
		TransactionTopicID:   cliCtx.String(flags.TransactionTopicFlag.Name),
		Participants:         participants,
		OperatorKey:          operatorKey,
	}
	if f.submitter != nil {
		cfg.Provisioner = f.submitter
	}
	store, err := bootstrap.NewStore(f.ctx, cfg)
	if err != nil {
		return err
	}
	f.bootstrap = store

	if f.submitter == nil && operatorAccount != "" && store.OperatorKey() != "" {
		// The key was recovered from application state rather than the flag.
		client, err := sdk.NewClient(&sdk.Config{
			Network:         params.FloraNetworkConfig().LedgerNetwork,
			OperatorAccount: operatorAccount,
			OperatorKey:     store.OperatorKey(),
		})
		if err != nil {
			return errors.Wrap(err, "could not build ledger client from recovered key")
		}
		f.submitter = client
	}
	return nil
}

func (f *FloraNode) registerAggregatorService() error {
	f.aggregator = aggregator.NewService(f.ctx, &aggregator.Config{
		DB:            f.db,
		Bootstrap:     f.bootstrap,
		ConsensusFeed: f.consensusFeed,
	})
	return f.services.RegisterService(f.aggregator)
}

func (f *FloraNode) registerLeaderService() error {
	cfg := &leader.Config{
		ConsensusFeed: f.consensusFeed,
		Bootstrap:     f.bootstrap,
		Stamper:       f.aggregator,
		Reader:        f.mirror,
	}
	if f.submitter != nil {
		cfg.Submitter = f.submitter
	}
	service, err := leader.NewService(f.ctx, cfg)
	if err != nil {
		return err
	}
	return f.services.RegisterService(service)
}

func (f *FloraNode) registerTailerService() error {
	service, err := tailer.NewService(f.ctx, &tailer.Config{
		DB:         f.db,
		Bootstrap:  f.bootstrap,
		Aggregator: f.aggregator,
		Reader:     f.mirror,
	})
	if err != nil {
		return err
	}
	return f.services.RegisterService(service)
}

func (f *FloraNode) registerRPCService(cliCtx *cli.Context) error {
	service := rpc.NewService(f.ctx, &rpc.Config{
		Host: cliCtx.String(flags.HTTPHostFlag.Name),
		Port: cliCtx.Int(flags.HTTPPortFlag.Name),
		Intake: intake.NewIntake(&intake.Config{
			Bootstrap: f.bootstrap,
			Sink:      f.aggregator,
		}),
		Aggregator: f.aggregator,
		Bootstrap:  f.bootstrap,
		Accounts:   f.mirror,
		Network:    params.FloraNetworkConfig().LedgerNetwork,
		SessionID:  f.sessionID.String(),
	})
	return f.services.RegisterService(service)
}

func (f *FloraNode) registerPrometheusService(cliCtx *cli.Context) error {
	logrus.AddHook(prometheus.NewLogrusCollector())
	service := prometheus.NewPrometheusService(
		fmt.Sprintf("%s:%d", cliCtx.String(cmd.MonitoringHostFlag.Name), cliCtx.Int(flags.MonitoringPortFlag.Name)),
		f.services,
	)
	return f.services.RegisterService(service)
}

// resolveThresholdFingerprint prefers an explicitly configured fingerprint
// and otherwise derives one from the participant roster and the flora
// threshold, so operators only need to distribute the roster.
func resolveThresholdFingerprint(cliCtx *cli.Context, participants []string) (string, error) {
	if fingerprint := cliCtx.String(cmd.ThresholdFingerprintFlag.Name); fingerprint != "" {
		return fingerprint, nil
	}
	threshold := cliCtx.Uint64(cmd.FloraThresholdFlag.Name)
	if threshold == 0 || len(participants) == 0 {
		return "", nil
	}
	fingerprint, err := proof.DeriveThresholdFingerprint(participants, threshold)
	if err != nil {
		return "", errors.Wrap(err, "could not derive threshold fingerprint")
	}
	log.WithField("thresholdFingerprint", fingerprint).Info("Derived threshold fingerprint from roster")
	return fingerprint, nil
}

func splitParticipants(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
