package sim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/shellyscan/internal/logging"
)

// Config holds the server configuration
type Config struct {
	Host string
	Port int // 0 picks a free port
}

// Server serves one simulated device
type Server struct {
	config      *Config
	device      *Device
	listener    net.Listener
	httpServer  *http.Server
	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]net.Conn
	closing     bool
}

// New creates a new Server instance
func New(config *Config, device *Device) *Server {
	s := &Server{
		config:      config,
		device:      device,
		activeConns: make(map[string]net.Conn),
	}
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ConnState:         s.trackConn,
	}
	return s
}

// Device returns the simulated device
func (s *Server) Device() *Device {
	return s.device
}

// Listen binds the listener and serves in the background
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	logging.Info("Simulated device listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("id", s.device.ID),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Simulated device stopped", zap.String("id", s.device.ID), zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URL returns the device base URL, e.g. "http://127.0.0.1:8080"
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

func (s *Server) trackConn(conn net.Conn, state http.ConnState) {
	remoteAddr := conn.RemoteAddr().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch state {
	case http.StateNew:
		s.activeConns[remoteAddr] = conn
		logging.LogConnection(remoteAddr, "connection_accepted")
	case http.StateClosed:
		delete(s.activeConns, remoteAddr)
		logging.LogConnection(remoteAddr, "connection_closed")
	}
	// Hijacked connections are WebSockets; the handler forgets them when
	// it returns.
}

func (s *Server) forget(remoteAddr string) {
	s.mu.Lock()
	delete(s.activeConns, remoteAddr)
	s.mu.Unlock()
	logging.LogConnection(remoteAddr, "connection_closed")
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down simulated device...", zap.String("id", s.device.ID))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)

	// Hijacked WebSocket connections are not closed by http.Server
	s.mu.Lock()
	for addr, conn := range s.activeConns {
		logging.Debug("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Debug("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
