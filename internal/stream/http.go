package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// EndpointPath is the streaming endpoint relative to the base URL.
const EndpointPath = "/api/chat/stream"

const readBufferSize = 4096

// RemoteSource streams replies from an HTTP backend speaking the
// event/data text protocol.
type RemoteSource struct {
	endpoint string
	token    string
	client   *http.Client
	log      *zap.Logger
}

// NewRemoteSource creates a RemoteSource for baseURL. A nil client uses
// http.DefaultClient; no timeout is imposed beyond the transport's own.
func NewRemoteSource(baseURL, token string, client *http.Client, log *zap.Logger) (*RemoteSource, error) {
	endpoint, err := endpointURL(baseURL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RemoteSource{
		endpoint: endpoint,
		token:    strings.TrimSpace(token),
		client:   client,
		log:      log.Named("stream"),
	}, nil
}

func endpointURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", errors.New("remote stream requires stream.base_url")
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		value = "http://" + value
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + EndpointPath
	return parsed.String(), nil
}

// Endpoint returns the full URL requests are posted to.
func (s *RemoteSource) Endpoint() string {
	return s.endpoint
}

// Open posts the request and returns a stream over the response body.
func (s *RemoteSource) Open(ctx context.Context, req Request) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrAborted
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &StreamError{Message: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &StreamError{Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	s.log.Debug("opening stream", zap.String("endpoint", s.endpoint), zap.String("session_id", req.SessionID))
	resp, err := s.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrAborted
		}
		return nil, &StreamError{Message: "request failed", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		s.log.Warn("stream rejected", zap.Int("status", resp.StatusCode))
		return nil, &StreamError{
			Message: fmt.Sprintf("request failed: %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	return &httpStream{
		ctx:  ctx,
		body: resp.Body,
		buf:  make([]byte, readBufferSize),
	}, nil
}

type httpStream struct {
	ctx     context.Context
	body    io.ReadCloser
	buf     []byte
	parser  Parser
	pending []Event
	readErr error
	final   error
	closed  bool
}

func (s *httpStream) Recv() (string, error) {
	for {
		if s.final != nil {
			return "", s.final
		}
		if s.ctx.Err() != nil {
			return "", s.finish(ErrAborted)
		}

		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			text, done, err := interpret(ev)
			switch {
			case err != nil:
				return "", s.finish(err)
			case done:
				return "", s.finish(io.EOF)
			case text != "":
				if s.ctx.Err() != nil {
					return "", s.finish(ErrAborted)
				}
				return text, nil
			}
			continue
		}

		if s.readErr != nil {
			if errors.Is(s.readErr, io.EOF) {
				return "", s.finish(io.EOF)
			}
			if s.ctx.Err() != nil {
				return "", s.finish(ErrAborted)
			}
			return "", s.finish(&StreamError{Message: "read stream", Err: s.readErr})
		}

		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.parser.Feed(s.buf[:n])...)
		}
		if err != nil {
			s.readErr = err
		}
	}
}

// finish records the terminal result, drops anything still buffered and
// releases the body.
func (s *httpStream) finish(err error) error {
	s.final = err
	s.pending = nil
	s.parser.Reset()
	s.Close()
	return err
}

func (s *httpStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
