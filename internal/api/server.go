package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dkmorland/homeview-core/internal/auth"
	"github.com/dkmorland/homeview-core/internal/dashboard"
	"github.com/dkmorland/homeview-core/internal/infrastructure/config"
	"github.com/dkmorland/homeview-core/internal/infrastructure/logging"
	"github.com/dkmorland/homeview-core/internal/settings"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Users      auth.UserRepository
	Settings   settings.Repository
	UserPrefs  settings.UserSettingsRepository
	Timeouts   *settings.TimeoutCache
	Brokers    settings.BrokerRepository
	Dashboards *dashboard.Manager
	Version    string
}

// Server is the HTTP API server for Homeview Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket hub
// streaming dashboard events. Create with New() and start with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	users      auth.UserRepository
	settings   settings.Repository
	userPrefs  settings.UserSettingsRepository
	timeouts   *settings.TimeoutCache
	brokers    settings.BrokerRepository
	dashboards *dashboard.Manager
	version    string
	server     *http.Server
	hub        *Hub
	tickets    *ticketStore
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Dashboards == nil {
		return nil, fmt.Errorf("dashboard manager is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		users:      deps.Users,
		settings:   deps.Settings,
		userPrefs:  deps.UserPrefs,
		timeouts:   deps.Timeouts,
		brokers:    deps.Brokers,
		dashboards: deps.Dashboards,
		version:    deps.Version,
		tickets:    newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and the ticket cleanup
// loop, and launches the HTTP listener in a background goroutine. The
// server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.logger)
	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
