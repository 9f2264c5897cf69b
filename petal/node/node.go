// Package node defines the petal worker process. It ties together the
// history store, the adapter set and the epoch scheduler, and handles the
// lifecycle of the entire system through a service registry.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/hashgraph-online/flora-price-oracle/cmd/petal/flags"
	"github.com/hashgraph-online/flora-price-oracle/db"
	"github.com/hashgraph-online/flora-price-oracle/hedera/sdk"
	"github.com/hashgraph-online/flora-price-oracle/petal/adapters"
	"github.com/hashgraph-online/flora-price-oracle/petal/scheduler"
	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared"
	"github.com/hashgraph-online/flora-price-oracle/shared/cmd"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
	"github.com/hashgraph-online/flora-price-oracle/shared/prometheus"
)

var log = logrus.WithField("prefix", "node")

const petalDBDirName = "petaldata"

// epochOriginKey persists the first-boot epoch origin so restarts keep the
// same epoch numbering.
const epochOriginKey = "epochOriginMs"

// PetalNode handles the lifecycle of a petal worker and registers its
// services to a service registry.
type PetalNode struct {
	cliCtx    *cli.Context
	ctx       context.Context
	cancel    context.CancelFunc
	services  *shared.ServiceRegistry
	lock      sync.RWMutex
	stop      chan struct{} // Channel to wait for termination notifications.
	db        db.Database
	sessionID uuid.UUID
}

// New creates a new petal node, sets up configuration options, and
// registers every required service.
func New(cliCtx *cli.Context) (*PetalNode, error) {
	configureNetwork(cliCtx)
	configureOracle(cliCtx)

	ctx, cancel := context.WithCancel(cliCtx.Context)
	petal := &PetalNode{
		cliCtx:    cliCtx,
		ctx:       ctx,
		cancel:    cancel,
		services:  shared.NewServiceRegistry(),
		stop:      make(chan struct{}),
		sessionID: uuid.New(),
	}
	log.WithFields(logrus.Fields{
		"session": petal.sessionID.String(),
		"network": params.FloraNetworkConfig().LedgerNetwork,
	}).Info("Initializing petal worker")

	if err := petal.startDB(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if err := petal.registerSchedulerService(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := petal.registerPrometheusService(cliCtx); err != nil {
			cancel()
			return nil, err
		}
	}
	return petal, nil
}

// Start the petal node and kick off every registered service.
func (p *PetalNode) Start() {
	p.lock.Lock()
	p.services.StartAll()
	p.lock.Unlock()

	stop := p.stop
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go p.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the petal node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (p *PetalNode) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()

	log.Info("Stopping petal node")
	p.services.StopAll()
	p.cancel()
	if err := p.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
	close(p.stop)
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
	params.OverrideFloraConfig(cfg)
}

func (p *PetalNode) startDB(cliCtx *cli.Context) error {
	baseDir := cliCtx.String(cmd.DataDirFlag.Name)
	dbPath := filepath.Join(baseDir, petalDBDirName)
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
	p.db = d
	return nil
}

// epochOrigin loads the persisted epoch origin, or persists the current
// time on first boot. A stored origin in the future is clamped to now so a
// clock rollback cannot schedule future epochs.
func (p *PetalNode) epochOrigin() (int64, error) {
	now := time.Now().UnixMilli()
	stored, found, err := p.db.State(p.ctx, epochOriginKey)
	if err != nil {
		return 0, err
	}
	if found {
		origin, err := strconv.ParseInt(stored, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "corrupt %s state", epochOriginKey)
		}
		if origin > now {
			log.WithField("origin", origin).Warn("Stored epoch origin is in the future, clamping to now")
			origin = now
			if err := p.db.SaveState(p.ctx, epochOriginKey, strconv.FormatInt(origin, 10)); err != nil {
				return 0, err
			}
		}
		return origin, nil
	}
	if err := p.db.SaveState(p.ctx, epochOriginKey, strconv.FormatInt(now, 10)); err != nil {
		return 0, err
	}
	return now, nil
}

func (p *PetalNode) registerSchedulerService(cliCtx *cli.Context) error {
	manifest, err := adapters.LoadManifest(cliCtx.String(flags.AdapterManifestFlag.Name))
	if err != nil {
		return err
	}
	adapterSet, err := adapters.New(manifest)
	if err != nil {
		return err
	}
	origin, err := p.epochOrigin()
	if err != nil {
		return err
	}

	petalAccount := cliCtx.String(cmd.OperatorAccountFlag.Name)
	stateTopic := cliCtx.String(flags.StateTopicFlag.Name)
	participants := splitParticipants(cliCtx.String(cmd.ParticipantsFlag.Name))
	fingerprint, err := resolveThresholdFingerprint(cliCtx, participants)
	if err != nil {
		return err
	}
	builder := &proof.BuilderConfig{
		EpochOriginMs:        origin,
		BlockTimeMs:          params.FloraConfig().BlockTimeMs,
		ThresholdFingerprint: fingerprint,
		AdapterFingerprints:  adapters.Fingerprints(adapterSet),
		RegistryTopicID:      cliCtx.String(cmd.RegistryTopicFlag.Name),
		FloraAccountID:       cliCtx.String(cmd.FloraAccountFlag.Name),
		PetalID:              cliCtx.String(flags.PetalIDFlag.Name),
		PetalAccountID:       petalAccount,
		PetalStateTopicID:    stateTopic,
		Participants:         participants,
	}
	if builder.PetalID == "" {
		return errors.New("petal-id is required")
	}

	var submitter *sdk.Client
	if cliCtx.Bool(flags.PublishStateTopicFlag.Name) {
		if stateTopic == "" {
			return errors.New("petal-state-topic is required when state publishing is on")
		}
		submitter, err = sdk.NewClient(&sdk.Config{
			Network:         params.FloraNetworkConfig().LedgerNetwork,
			OperatorAccount: petalAccount,
			OperatorKey:     cliCtx.String(cmd.OperatorKeyFlag.Name),
		})
		if err != nil {
			return errors.Wrap(err, "could not build ledger client")
		}
	}

	cfg := &scheduler.Config{
		Adapters:    adapterSet,
		Builder:     builder,
		ConsumerURL: strings.TrimRight(cliCtx.String(flags.ConsumerURLFlag.Name), "/"),
		StateTopics: []string{stateTopic},
	}
	if submitter != nil {
		cfg.Submitter = submitter
	}
	return p.services.RegisterService(scheduler.NewService(p.ctx, cfg))
}

func (p *PetalNode) registerPrometheusService(cliCtx *cli.Context) error {
	logrus.AddHook(prometheus.NewLogrusCollector())
	service := prometheus.NewPrometheusService(
		fmt.Sprintf("%s:%d", cliCtx.String(cmd.MonitoringHostFlag.Name), cliCtx.Int(flags.MonitoringPortFlag.Name)),
		p.services,
	)
	return p.services.RegisterService(service)
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
