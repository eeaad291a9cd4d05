// Package stream consumes incremental assistant replies.
//
// A Source opens a Stream for one prompt. Stream.Recv yields text deltas in
// order and finishes with io.EOF, ErrAborted when the context passed to Open
// is cancelled, or a *StreamError. Cancellation is cooperative: sources check
// the context before every blocking wait and before handing out each delta.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Request identifies what to stream a reply for.
type Request struct {
	SessionID string `json:"session_id"`
	UserText  string `json:"user_text"`
}

// Stream yields text deltas for a single reply.
type Stream interface {
	// Recv returns the next delta, io.EOF on normal termination, ErrAborted
	// on cancellation or a *StreamError.
	Recv() (string, error)
	Close() error
}

// Source opens reply streams.
type Source interface {
	Open(ctx context.Context, req Request) (Stream, error)
}

// Modes accepted by New.
const (
	ModeMock   = "mock"
	ModeRemote = "remote"
)

// Config selects and configures a Source.
type Config struct {
	Mode      string
	BaseURL   string
	Token     string
	MockReply string

	// MockMinDelay and MockMaxDelay override the mock chunk delay range.
	MockMinDelay time.Duration
	MockMaxDelay time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New returns the Source selected by cfg.Mode.
func New(cfg Config) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeMock:
		m := NewMockSource(cfg.MockReply)
		if cfg.MockMinDelay > 0 || cfg.MockMaxDelay > 0 {
			m.MinDelay, m.MaxDelay = cfg.MockMinDelay, cfg.MockMaxDelay
		}
		return m, nil
	case ModeRemote:
		return NewRemoteSource(cfg.BaseURL, cfg.Token, cfg.HTTPClient, cfg.Logger)
	default:
		return nil, fmt.Errorf("unknown stream mode %q (want %q or %q)", cfg.Mode, ModeMock, ModeRemote)
	}
}

// Collect drains s, calling onDelta for every chunk. It returns nil when the
// stream terminated normally.
func Collect(s Stream, onDelta func(string)) error {
	for {
		text, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		onDelta(text)
	}
}

// Consume opens a stream on src and collects it.
func Consume(ctx context.Context, src Source, req Request, onDelta func(string)) error {
	s, err := src.Open(ctx, req)
	if err != nil {
		return err
	}
	defer s.Close()
	return Collect(s, onDelta)
}

// interpret maps a parsed event onto the consumer's behaviour: a text chunk,
// normal termination, a failure, or nothing for events that are skipped.
func interpret(ev Event) (text string, done bool, err error) {
	switch ev.Name {
	case EventDelta:
		if ev.Data == "" {
			return "", false, nil
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			return "", false, &StreamError{Message: "malformed delta payload", Err: err}
		}
		return payload.Text, false, nil
	case EventError:
		if ev.Data == "" {
			return "", false, nil
		}
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			return "", false, &StreamError{Message: "malformed error payload", Err: err}
		}
		msg := strings.TrimSpace(payload.Message)
		if msg == "" {
			msg = DefaultErrorMessage
		}
		return "", false, &StreamError{Message: msg}
	case EventDone:
		return "", true, nil
	default:
		return "", false, nil
	}
}
