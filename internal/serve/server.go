// Package serve runs a local streaming backend speaking the same event/data
// protocol the chat client consumes. It performs no inference: replies are
// composed from the prompt by a Responder.
package serve

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/term-chat/internal/stream"
	"go.uber.org/zap"
)

// EmptyMessageError is sent when a request carries no usable user text.
const EmptyMessageError = "Empty user message"

const (
	defaultChunkDelay = 10 * time.Millisecond
	sessionIdleTTL    = 30 * time.Minute
	gcInterval        = 5 * time.Minute
)

// Responder composes the reply for one turn.
type Responder func(userText string, turn int) (string, error)

// EchoResponder acknowledges the prompt and repeats it back.
func EchoResponder(userText string, turn int) (string, error) {
	return fmt.Sprintf("Turn %d. You said:\n\n> %s\n\nThis reply comes from the local term-chat backend, which echoes prompts instead of generating answers.",
		turn, strings.ReplaceAll(userText, "\n", "\n> ")), nil
}

// Config configures a Server.
type Config struct {
	Addr       string
	Token      string
	ChunkSize  int
	ChunkDelay time.Duration
	Responder  Responder
	Logger     *zap.Logger
}

// ChatMessage is an optional history entry in a stream request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequest is the body accepted by the stream endpoint.
type StreamRequest struct {
	SessionID string        `json:"session_id"`
	UserText  string        `json:"user_text"`
	Messages  []ChatMessage `json:"messages,omitempty"`
}

// ResolveUserText returns the trimmed user_text, falling back to the newest
// non-empty user message.
func (r StreamRequest) ResolveUserText() string {
	if text := strings.TrimSpace(r.UserText); text != "" {
		return text
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		msg := r.Messages[i]
		if msg.Role == "user" && strings.TrimSpace(msg.Content) != "" {
			return strings.TrimSpace(msg.Content)
		}
	}
	return ""
}

type remoteSession struct {
	turns        int
	lastActiveAt time.Time
	streaming    bool
}

// Server tracks per-session turn state and serves the streaming endpoints.
type Server struct {
	cfg      Config
	log      *zap.Logger
	mu       sync.Mutex
	sessions map[string]*remoteSession
}

// New creates a Server, filling unset options with defaults.
func New(cfg Config) *Server {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = stream.MockChunkSize
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	} else if cfg.ChunkDelay == 0 {
		cfg.ChunkDelay = defaultChunkDelay
	}
	if cfg.Responder == nil {
		cfg.Responder = EchoResponder
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		log:      cfg.Logger.Named("serve"),
		sessions: make(map[string]*remoteSession),
	}
}

// HTTPHandler returns an http.Handler for the backend endpoints.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc(stream.EndpointPath, s.auth(s.handleStream))
	return cors(mux)
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down
// gracefully. ready, when non-nil, receives the bound address.
func (s *Server) Run(ctx context.Context, ready func(addr string)) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	gcCtx, stopGC := context.WithCancel(ctx)
	defer stopGC()
	go s.StartGC(gcCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	s.log.Info("backend listening", zap.String("addr", addr), zap.Bool("auth", s.cfg.Token != ""))
	if ready != nil {
		ready(addr)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// StartGC drops idle sessions until ctx is cancelled.
func (s *Server) StartGC(ctx context.Context) {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.gcSessions(time.Now().Add(-sessionIdleTTL))
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) gcSessions(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if !sess.streaming && sess.lastActiveAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.log.Debug("dropped idle sessions", zap.Int("count", removed))
	}
	return removed
}

// SessionCount returns the number of tracked sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// beginTurn claims the session for one streamed reply. It fails while
// another reply for the same session is still streaming.
func (s *Server) beginTurn(sessionID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &remoteSession{}
		s.sessions[sessionID] = sess
	}
	if sess.streaming {
		return 0, false
	}
	sess.turns++
	sess.streaming = true
	sess.lastActiveAt = time.Now()
	return sess.turns, true
}

func (s *Server) endTurn(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.streaming = false
		sess.lastActiveAt = time.Now()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"service":  "term-chat-backend",
		"sessions": s.SessionCount(),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "session_id is required"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	userText := req.ResolveUserText()
	turn := 0
	if userText != "" {
		var ok bool
		if turn, ok = s.beginTurn(req.SessionID); !ok {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "stream already in progress"})
			return
		}
		defer s.endTurn(req.SessionID)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := s.log.With(zap.String("session_id", req.SessionID))
	send := func(name string, payload any) bool {
		if err := writeEvent(w, name, payload); err != nil {
			log.Debug("client went away", zap.Error(err))
			return false
		}
		flusher.Flush()
		return true
	}

	if userText == "" {
		send(stream.EventError, map[string]string{"message": EmptyMessageError})
		return
	}

	reply, err := s.cfg.Responder(userText, turn)
	if err != nil {
		log.Warn("responder failed", zap.Error(err))
		send(stream.EventError, map[string]string{"message": err.Error()})
		return
	}

	ctx := r.Context()
	for i, chunk := range stream.SplitChunks(reply, s.cfg.ChunkSize) {
		if ctx.Err() != nil {
			log.Debug("stream cancelled by client", zap.Int("chunks_sent", i))
			return
		}
		if !send(stream.EventDelta, map[string]string{"text": chunk}) {
			return
		}
		if s.cfg.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.ChunkDelay):
			}
		}
	}
	send(stream.EventDone, map[string]bool{"ok": true})
	log.Debug("turn streamed", zap.Int("turn", turn), zap.Int("bytes", len(reply)))
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimSpace(s.cfg.Token)
	if token == "" {
		return true
	}
	value := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	got := strings.TrimSpace(strings.TrimPrefix(value, prefix))
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// cors allows browser clients from any origin, mirroring a permissive dev
// proxy.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeEvent(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
