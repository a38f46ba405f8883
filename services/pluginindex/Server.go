package pluginindex

import (
	"context"
	"net/http"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/pkg/plugin"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util/health"
)

// Server runs the plugin index as a service: the indexer itself and the HTTP
// API in front of it.
type Server struct {
	logger      ulogger.Logger
	settings    *settings.Settings
	store       plugindata.Store
	registry    *plugin.Registry
	utxoChecker UtxoChecker
	indexer     *Indexer
	httpServer  *HTTP
}

// NewServer creates the service. A nil registry is loaded from the manifest
// configured in tSettings during Init.
func NewServer(logger ulogger.Logger, tSettings *settings.Settings, store plugindata.Store, registry *plugin.Registry, utxoChecker UtxoChecker) *Server {
	return &Server{
		logger:      logger,
		settings:    tSettings,
		store:       store,
		registry:    registry,
		utxoChecker: utxoChecker,
	}
}

// Indexer returns the indexer the host feeds events to. It is nil before Init.
func (s *Server) Indexer() *Indexer {
	return s.indexer
}

// Health reports liveness when checkLiveness is set, otherwise readiness of the
// store and the HTTP listener.
func (s *Server) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	checks := make([]health.Check, 0, 3)

	if s.store != nil {
		checks = append(checks, health.Check{Name: "PluginDataStore", Check: s.store.Health})
	}

	if s.indexer != nil {
		checks = append(checks, health.Check{Name: "PluginIndexer", Check: s.indexer.Health})
	}

	if s.settings.PluginIndex.HTTPListenAddress != "" && s.httpServer != nil {
		checks = append(checks, health.Check{Name: "HTTPServer", Check: health.CheckHTTPServer(HTTPAddress(s.settings.PluginIndex.HTTPListenAddress), "/health")})
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}

// Init loads the plugin registry, if none was given, and builds the indexer.
// Any plugin that fails to load stops the service from starting.
func (s *Server) Init(ctx context.Context) (err error) {
	if s.registry == nil {
		s.registry, err = plugin.LoadRegistry(s.logger, s.settings)
		if err != nil {
			return err
		}
	}

	s.indexer = New(s.logger, s.settings, s.store, s.registry, s.utxoChecker)

	if s.settings.PluginIndex.HTTPListenAddress != "" {
		s.httpServer = NewHTTP(s.logger, s.indexer)
	}

	return nil
}

// Start starts the indexer, signals readiness and serves HTTP until ctx is done.
func (s *Server) Start(ctx context.Context, readyCh chan<- struct{}) error {
	if s.indexer == nil {
		return errors.NewServiceNotStartedError("[PluginIndex] Start called before Init")
	}

	if err := s.indexer.Start(ctx); err != nil {
		return err
	}

	close(readyCh)

	if s.httpServer == nil {
		<-ctx.Done()
		return nil
	}

	s.logger.Infof("[PluginIndex] HTTP API listening on %s", s.settings.PluginIndex.HTTPListenAddress)

	if err := s.httpServer.Start(ctx, s.settings.PluginIndex.HTTPListenAddress); err != nil {
		return errors.NewServiceError("[PluginIndex] HTTP server failed", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.logger.Errorf("[PluginIndex] error stopping http server: %v", err)
		}
	}

	if s.indexer != nil {
		if err := s.indexer.Stop(ctx); err != nil {
			s.logger.Errorf("[PluginIndex] error stopping indexer: %v", err)
		}
	}

	return s.store.Close(ctx)
}

// HTTPAddress turns a listen address into a URL the health check can dial.
func HTTPAddress(listenAddress string) string {
	if len(listenAddress) > 0 && listenAddress[0] == ':' {
		return "http://localhost" + listenAddress
	}

	return "http://" + listenAddress
}
