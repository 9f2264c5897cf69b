// Package rpc serves the flora JSON API: proof intake, consensus price
// reads and the adapter roster.
package rpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	cache "github.com/patrickmn/go-cache"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/hashgraph-online/flora-price-oracle/flora/aggregator"
	"github.com/hashgraph-online/flora-price-oracle/flora/bootstrap"
	"github.com/hashgraph-online/flora-price-oracle/flora/intake"
	"github.com/hashgraph-online/flora-price-oracle/hedera"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
)

var log = logrus.WithField("prefix", "rpc")

// Config options for the flora API service.
type Config struct {
	Host       string
	Port       int
	Intake     *intake.Intake
	Aggregator *aggregator.Service
	Bootstrap  *bootstrap.Store
	Accounts   hedera.AccountReader
	Network    string
	SessionID  string
}

// Service exposes the flora over HTTP with open CORS.
type Service struct {
	ctx          context.Context
	cancel       context.CancelFunc
	cfg          *Config
	server       *http.Server
	keys         *cache.Cache
	startFailure error
}

// NewService builds the router and the underlying http server.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		keys:   cache.New(params.FloraConfig().AccountKeyTTL, params.FloraConfig().AccountKeySweep),
	}

	router := mux.NewRouter()
	router.HandleFunc("/proof", s.submitProof).Methods(http.MethodPost)
	router.HandleFunc("/price/latest", s.latestPrice).Methods(http.MethodGet)
	router.HandleFunc("/price/history", s.priceHistory).Methods(http.MethodGet)
	router.HandleFunc("/adapters", s.adapterRoster).Methods(http.MethodGet)
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(router)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: handler,
	}
	return s
}

// Start the API listener.
func (s *Service) Start() {
	log.WithField("address", s.server.Addr).Info("Starting flora API")
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("Could not serve flora API")
			s.startFailure = err
		}
	}()
}

// Stop the service with a graceful shutdown.
func (s *Service) Stop() error {
	log.Info("Stopping service")
	shutdownCtx, shutdownCancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer shutdownCancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Could not gracefully shut down flora API")
	}
	s.cancel()
	return nil
}

// Status returns an error if the listener never came up.
func (s *Service) Status() error {
	return s.startFailure
}
