// Package daemon implements the shellsense background daemon: the Unix
// socket server, request dispatch, background indexing and retention, and
// process lifecycle (lock file, PID file, signals).
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"shellsense/internal/config"
	"shellsense/internal/protocol"
	"shellsense/internal/provider"
	"shellsense/internal/store"
	"shellsense/internal/suggest"
	"shellsense/internal/transport"
)

// Version is set at build time.
var Version = "dev"

// ErrTimedOut means a request exceeded the per-request deadline. The
// connection is closed afterwards because the stream position is no
// longer trustworthy.
var ErrTimedOut = errors.New("request timed out")

// maxLineBytes bounds a single request line.
const maxLineBytes = 1 << 20

// Server is the daemon server handling all socket requests.
type Server struct {
	store    store.Store
	cascade  *suggest.Cascade
	indexer  *Indexer
	registry *provider.Registry
	cfg      *config.Config
	paths    *config.Paths
	logger   *slog.Logger

	transport *transport.Unix
	listener  net.Listener

	startTime    time.Time
	lastActivity time.Time
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	mu             sync.RWMutex
	commandsLogged int64
}

// ServerConfig contains the server's dependencies.
type ServerConfig struct {
	// Store is the command store (required).
	Store store.Store

	// Cascade is the suggestion cascade (required).
	Cascade *suggest.Cascade

	// Indexer feeds logged commands into the vector index (optional).
	Indexer *Indexer

	// Registry serves explain_command (optional, empty registry if nil).
	Registry *provider.Registry

	// Config is the live configuration (required).
	Config *config.Config

	// Paths is the filesystem layout (optional, defaults if nil).
	Paths *config.Paths

	// Logger is the structured logger (optional, default if nil).
	Logger *slog.Logger

	// ReloadFn is called on SIGHUP. If nil, SIGHUP is ignored.
	ReloadFn ReloadFunc
}

// NewServer creates a daemon server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Cascade == nil {
		return nil, fmt.Errorf("cascade is required")
	}
	if cfg.Config == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	paths := cfg.Paths
	if paths == nil {
		paths = config.DefaultPaths()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = provider.NewRegistry()
	}

	socketPath := cfg.Config.Daemon.SocketPath
	if socketPath == "" {
		socketPath = paths.SocketFile()
	}

	now := time.Now()
	return &Server{
		store:        cfg.Store,
		cascade:      cfg.Cascade,
		indexer:      cfg.Indexer,
		registry:     registry,
		cfg:          cfg.Config,
		paths:        paths,
		logger:       logger,
		transport:    transport.NewUnix(socketPath),
		startTime:    now,
		lastActivity: now,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start binds the socket and serves requests until ctx is cancelled or a
// fatal listener error occurs.
func (s *Server) Start(ctx context.Context) error {
	if err := s.paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	listener, err := s.transport.Listen()
	if err != nil {
		if errors.Is(err, transport.ErrSocketActive) {
			return fmt.Errorf("%w: %v", ErrAlreadyRunning, err)
		}
		return err
	}
	s.listener = listener

	if err := s.writePIDFile(); err != nil {
		s.transport.Close()
		return fmt.Errorf("write PID file: %w", err)
	}

	s.logger.Info("daemon starting",
		"socket", s.transport.SocketPath(),
		"pid", os.Getpid(),
		"version", Version,
	)

	s.wg.Add(1)
	go s.watchIdle(ctx)

	s.wg.Add(1)
	go s.retentionLoop(ctx)

	if s.indexer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.indexer.Run(ctx)
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.acceptLoop(ctx)
	}()

	select {
	case <-ctx.Done():
		s.Shutdown()
		<-errChan
		return nil
	case err := <-errChan:
		if err != nil {
			s.Shutdown()
		}
		return err
	}
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// handleConn serves one client connection: newline-delimited JSON requests,
// one response line per request, in order.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	if err := checkPeer(conn); err != nil {
		s.logger.Warn("rejecting connection", "error", err)
		return
	}

	connID := uuid.NewString()[:8]
	logger := s.logger.With("conn", connID)
	logger.Debug("connection opened")
	defer logger.Debug("connection closed")

	settings := s.cfg.DaemonSettings()
	readTimeout := time.Duration(settings.ReadTimeoutMs) * time.Millisecond
	if readTimeout <= 0 {
		readTimeout = 5 * time.Minute
	}
	requestTimeout := time.Duration(settings.RequestTimeoutMs) * time.Millisecond
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Second
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) && !os.IsTimeout(err) {
				logger.Debug("read failed", "error", err)
			}
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		s.touchActivity()

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			if !s.writeResponse(conn, logger, protocol.Error("malformed request: "+err.Error())) {
				return
			}
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		respCh := make(chan *protocol.Response, 1)
		go func() {
			respCh <- s.dispatch(reqCtx, logger, &req)
		}()

		// The deadline must fire even when a handler ignores its context;
		// an abandoned dispatch drains into the buffered channel whenever
		// it finishes, with its context already cancelled.
		var resp *protocol.Response
		select {
		case resp = <-respCh:
		case <-reqCtx.Done():
		}
		timedOut := errors.Is(reqCtx.Err(), context.DeadlineExceeded)
		cancel()

		if timedOut {
			logger.Warn("request timed out", "type", req.Type, "timeout", requestTimeout)
			s.writeResponse(conn, logger, protocol.Error(ErrTimedOut.Error()))
			return
		}
		if resp == nil {
			// Shutdown cancelled the request before the handler finished.
			return
		}
		if !s.writeResponse(conn, logger, resp) {
			return
		}
	}
}

// writeResponse writes one response line, reporting whether the
// connection is still usable.
func (s *Server) writeResponse(conn net.Conn, logger *slog.Logger, resp *protocol.Response) bool {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("marshal response", "error", err)
		return false
	}
	data = append(data, '\n')

	if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return false
	}
	if _, err := conn.Write(data); err != nil {
		logger.Debug("write failed", "error", err)
		return false
	}
	return true
}

// Shutdown stops the server, draining in-flight requests within the
// configured grace window.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Info("daemon shutting down")
		close(s.shutdownChan)

		if s.cancel != nil {
			s.cancel()
		}
		if s.listener != nil {
			s.listener.Close()
		}

		grace := time.Duration(s.cfg.DaemonSettings().ShutdownGraceMs) * time.Millisecond
		if grace <= 0 {
			grace = 5 * time.Second
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(grace):
			s.logger.Warn("shutdown grace expired with requests in flight", "grace", grace)
		}

		s.cleanup()
		s.logger.Info("daemon stopped")
	})
}

// cleanup removes the socket and PID file.
func (s *Server) cleanup() {
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("failed to close socket", "error", err)
	}
	if err := os.Remove(s.paths.PIDFile()); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove PID file", "error", err)
	}
}

func (s *Server) writePIDFile() error {
	return os.WriteFile(s.paths.PIDFile(), []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600)
}

func (s *Server) touchActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Server) getLastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Server) incrementCommandsLogged() {
	s.mu.Lock()
	s.commandsLogged++
	s.mu.Unlock()
}

// watchIdle shuts the daemon down after the configured idle period.
// Disabled when idle_timeout_mins is zero.
func (s *Server) watchIdle(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownChan:
			return
		case <-ticker.C:
			mins := s.cfg.DaemonSettings().IdleTimeoutMins
			if mins <= 0 {
				continue
			}
			idleTimeout := time.Duration(mins) * time.Minute
			if since := time.Since(s.getLastActivity()); since > idleTimeout {
				s.logger.Info("idle timeout reached", "idle_duration", since, "timeout", idleTimeout)
				go s.Shutdown()
				return
			}
		}
	}
}

// retentionLoop prunes expired history hourly, and once at startup.
func (s *Server) retentionLoop(ctx context.Context) {
	defer s.wg.Done()

	s.pruneExpired(ctx)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownChan:
			return
		case <-ticker.C:
			s.pruneExpired(ctx)
		}
	}
}

// pruneExpired applies the retention window. Zero retention keeps forever.
func (s *Server) pruneExpired(ctx context.Context) {
	days := s.cfg.RetentionDays()
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	pruned, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Warn("retention prune failed", "error", err)
		return
	}
	if pruned > 0 {
		s.logger.Info("pruned expired history", "count", pruned, "cutoff", cutoff)
	}
}
