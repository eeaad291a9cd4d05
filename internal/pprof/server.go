// Package pprof runs an opt-in localhost profiling endpoint and records its
// port so other term-chat invocations can find it.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Server wraps the net/http/pprof handlers.
type Server struct {
	server   *http.Server
	listener net.Listener
	port     int
	log      *zap.Logger
}

// NewServer creates a Server. A nil logger discards serve errors.
func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log.Named("pprof")}
}

// Start binds to 127.0.0.1 on port (0 picks a free one) and returns the
// bound port.
func (s *Server) Start(port int) (int, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("bind to %s: %w", addr, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	// Dedicated mux: nothing registered on http.DefaultServeMux leaks out.
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("pprof server stopped", zap.Error(err))
		}
	}()

	if err := writePortFile(s.port); err != nil {
		s.log.Warn("could not write pprof port file", zap.Error(err))
	}
	s.log.Info("pprof server listening", zap.Int("port", s.port))
	return s.port, nil
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// Stop shuts the server down and removes the port file.
func (s *Server) Stop(ctx context.Context) error {
	removePortFile()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// PrintUsage prints go tool commands for the server on port.
func PrintUsage(w io.Writer, port int) {
	base := fmt.Sprintf("http://127.0.0.1:%d/debug/pprof", port)
	fmt.Fprintf(w, "pprof server: %s/\n\n", base)
	fmt.Fprintf(w, "  go tool pprof %s/profile?seconds=30\n", base)
	fmt.Fprintf(w, "  go tool pprof %s/heap\n", base)
	fmt.Fprintf(w, "  curl %s/goroutine?debug=2\n", base)
}

// CacheDir returns $XDG_CACHE_HOME/term-chat, falling back to ~/.cache.
func CacheDir() (string, error) {
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, "term-chat"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cache", "term-chat"), nil
}

func portFilePath() (string, error) {
	cacheDir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "pprof.port"), nil
}

func writePortFile(port int) error {
	path, err := portFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(port)), 0600)
}

func removePortFile() {
	if path, err := portFilePath(); err == nil {
		os.Remove(path)
	}
}

// ReadPortFile returns the port recorded by a running server.
func ReadPortFile() (int, error) {
	path, err := portFilePath()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.New("no pprof server running (port file not found)")
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid port file: %w", err)
	}
	return port, nil
}

// IsServerRunning reports the recorded port when something accepts
// connections on it.
func IsServerRunning() (int, bool) {
	port, err := ReadPortFile()
	if err != nil {
		return 0, false
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return 0, false
	}
	conn.Close()
	return port, true
}
