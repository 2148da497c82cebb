package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/webmixer/internal/history"
	"github.com/nerrad567/webmixer/internal/infrastructure/config"
	"github.com/nerrad567/webmixer/internal/infrastructure/logging"
	"github.com/nerrad567/webmixer/internal/mixer"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HistoryReader lists recorded control changes. *history.Recorder
// satisfies it.
type HistoryReader interface {
	Query(ctx context.Context, address string, limit int) ([]history.Record, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	// Config is the live configuration. POST /admin edits it in place
	// and persists it to ConfigPath.
	Config     *config.Config
	ConfigPath string
	Logger     *logging.Logger
	Engine     *mixer.Engine

	// History is optional; without it GET /history answers 503.
	History HistoryReader

	// ServerIP is reported to the admin page as the address clients use.
	ServerIP string
	Version  string
}

// Server is the HTTP and WebSocket front end of the mixer.
//
// It is created with New and started with Start.
type Server struct {
	cfgMu      sync.RWMutex
	cfg        *config.Config
	configPath string

	logger    *logging.Logger
	engine    *mixer.Engine
	history   HistoryReader
	serverIP  string
	version   string
	startTime time.Time

	metrics *metrics
	server  *http.Server
	addr    net.Addr
	cancel  context.CancelFunc
	conns   sync.WaitGroup
}

// New creates an API server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("mixer engine is required")
	}

	s := &Server{
		cfg:        deps.Config,
		configPath: deps.ConfigPath,
		logger:     deps.Logger,
		engine:     deps.Engine,
		history:    deps.History,
		serverIP:   deps.ServerIP,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	s.metrics = newMetrics(prometheus.NewRegistry(), deps.Engine, deps.Version)
	return s, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// Cancelling ctx, or calling Close, stops the WebSocket pumps.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.cfgMu.RLock()
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(srvCtx),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
	}
	s.cfgMu.RUnlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.addr = ln.Addr()
	s.logger.Info("web server listening", "address", s.addr.String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("web server shutting down")
	err := s.server.Shutdown(ctx)
	s.conns.Wait()
	if err != nil {
		return fmt.Errorf("shutting down web server: %w", err)
	}
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// HealthCheck verifies the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("web server not started")
	}
	return nil
}

// config returns the live configuration under the read lock.
func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}
