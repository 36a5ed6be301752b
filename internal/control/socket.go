// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package control serves HTTP over a Unix socket for inspecting and
// steering a running plugin host.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/plughost/internal/plugin"
	"github.com/holomush/plughost/internal/plugin/actor"
	"github.com/holomush/plughost/internal/xdg"
)

// SocketName is the socket filename inside the runtime directory.
const SocketName = "plughost.sock"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Running       bool  `json:"running"`
	PID           int   `json:"pid"`
	UptimeSeconds int64 `json:"uptime_seconds"`
	Plugins       int   `json:"plugins"`
	Pending       int   `json:"pending"`
}

// PluginsResponse is returned by GET /plugins.
type PluginsResponse struct {
	Plugins []plugin.Info `json:"plugins"`
}

// LoadRequest is the body of POST /plugins/load.
type LoadRequest struct {
	Dir string `json:"dir"`
}

// UnloadRequest is the body of POST /plugins/unload.
type UnloadRequest struct {
	Name string `json:"name"`
}

// AcceptedResponse is returned when a command was queued.
type AcceptedResponse struct {
	CommandID string `json:"command_id"`
}

// MessageResponse carries a plain message or error.
type MessageResponse struct {
	Message string `json:"message"`
}

// Host is what the control socket reads and steers. *actor.Actor
// satisfies it.
type Host interface {
	Snapshot() []plugin.Info
	Pending() int
	Send(cmd actor.Command) error
}

// ShutdownFunc is called when shutdown is requested.
type ShutdownFunc func()

// Server runs HTTP over a Unix socket.
type Server struct {
	socketPath   string
	host         Host
	shutdownFunc ShutdownFunc
	logger       *slog.Logger
	startTime    time.Time
	listener     net.Listener
	httpServer   *http.Server
	running      atomic.Bool
}

// NewServer creates a control server for host listening on socketPath.
func NewServer(socketPath string, host Host, shutdownFunc ShutdownFunc) *Server {
	s := &Server{
		socketPath:   socketPath,
		host:         host,
		shutdownFunc: shutdownFunc,
		logger:       slog.Default(),
		startTime:    time.Now(),
	}
	s.running.Store(true)
	return s
}

// SocketPath returns the default socket path in the runtime directory.
func SocketPath() (string, error) {
	runtimeDir, err := xdg.RuntimeDir()
	if err != nil {
		return "", oops.In("control").Wrapf(err, "failed to get runtime directory")
	}
	return filepath.Join(runtimeDir, SocketName), nil
}

// Handler returns the control API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /plugins", s.handlePlugins)
	mux.HandleFunc("POST /plugins/load", s.handleLoad)
	mux.HandleFunc("POST /plugins/unload", s.handleUnload)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	return mux
}

// Start begins listening on the socket, replacing a stale socket file.
func (s *Server) Start() error {
	if err := xdg.EnsureDir(filepath.Dir(s.socketPath)); err != nil {
		return oops.In("control").Wrapf(err, "failed to create runtime directory")
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return oops.In("control").With("path", s.socketPath).Wrapf(err, "failed to remove existing socket")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return oops.In("control").With("path", s.socketPath).Wrapf(err, "failed to listen on socket")
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return oops.In("control").With("path", s.socketPath).Wrapf(err, "failed to set socket permissions")
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control socket server error", "error", err)
		}
	}()

	s.logger.Info("control socket listening", "path", s.socketPath)
	return nil
}

// Stop shuts the server down and removes the socket file.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.In("control").Wrapf(err, "failed to shutdown http server")
		}
	}

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("failed to close control socket listener", "error", err)
		}
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove control socket file",
				"path", s.socketPath,
				"error", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.reply(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.reply(w, http.StatusOK, StatusResponse{
		Running:       s.running.Load(),
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Plugins:       len(s.host.Snapshot()),
		Pending:       s.host.Pending(),
	})
}

func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	s.reply(w, http.StatusOK, PluginsResponse{Plugins: s.host.Snapshot()})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Dir == "" {
		s.reply(w, http.StatusBadRequest, MessageResponse{Message: "dir is required"})
		return
	}
	dir, err := filepath.Abs(req.Dir)
	if err != nil {
		s.reply(w, http.StatusBadRequest, MessageResponse{Message: err.Error()})
		return
	}
	s.send(w, actor.Load(dir, actor.SourceControl))
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	var req UnloadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.reply(w, http.StatusBadRequest, MessageResponse{Message: "name is required"})
		return
	}
	s.send(w, actor.Unload(req.Name, actor.SourceControl))
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	s.reply(w, http.StatusOK, MessageResponse{Message: "shutdown initiated"})
	if s.shutdownFunc != nil {
		go s.shutdownFunc()
	}
}

func (s *Server) send(w http.ResponseWriter, cmd actor.Command) {
	if err := s.host.Send(cmd); err != nil {
		s.reply(w, http.StatusServiceUnavailable, MessageResponse{Message: err.Error()})
		return
	}
	s.logger.Info("control command queued", cmd.LogAttrs()...)
	s.reply(w, http.StatusAccepted, AcceptedResponse{CommandID: cmd.ID.String()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.reply(w, http.StatusBadRequest, MessageResponse{Message: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) reply(w http.ResponseWriter, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		s.logger.Error("failed to write control response",
			"status", status,
			"error", err)
	}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}
