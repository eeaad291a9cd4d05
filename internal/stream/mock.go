package stream

import (
	"context"
	"io"
	"math/rand/v2"
	"time"
)

// DefaultMockReply is the canned text streamed by the mock source.
const DefaultMockReply = "This is a simulated reply from the local mock stream. " +
	"It arrives in small chunks with a short random pause between them, " +
	"so the transcript behaves the way it would with a real backend. " +
	"Set stream.mode to remote to talk to one."

// MockChunkSize is the number of characters per mock delta.
const MockChunkSize = 8

const (
	defaultMockMinDelay = 40 * time.Millisecond
	defaultMockMaxDelay = 80 * time.Millisecond
)

// MockSource synthesises replies locally for development. It never
// contacts the network and ignores the request content.
type MockSource struct {
	Reply    string
	MinDelay time.Duration
	MaxDelay time.Duration
}

// NewMockSource creates a MockSource. An empty reply uses DefaultMockReply.
func NewMockSource(reply string) *MockSource {
	if reply == "" {
		reply = DefaultMockReply
	}
	return &MockSource{
		Reply:    reply,
		MinDelay: defaultMockMinDelay,
		MaxDelay: defaultMockMaxDelay,
	}
}

// Open returns a stream over the canned reply.
func (m *MockSource) Open(ctx context.Context, req Request) (Stream, error) {
	if ctx.Err() != nil {
		return nil, ErrAborted
	}
	minDelay, maxDelay := m.MinDelay, m.MaxDelay
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &mockStream{
		ctx:      ctx,
		chunks:   SplitChunks(m.Reply, MockChunkSize),
		minDelay: minDelay,
		maxDelay: maxDelay,
	}, nil
}

type mockStream struct {
	ctx      context.Context
	chunks   []string
	next     int
	minDelay time.Duration
	maxDelay time.Duration
	closed   bool
}

func (s *mockStream) Recv() (string, error) {
	if s.closed || s.ctx.Err() != nil {
		return "", ErrAborted
	}
	if s.next >= len(s.chunks) {
		return "", io.EOF
	}

	timer := time.NewTimer(s.delay())
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return "", ErrAborted
	case <-timer.C:
	}
	if s.ctx.Err() != nil {
		return "", ErrAborted
	}

	chunk := s.chunks[s.next]
	s.next++
	return chunk, nil
}

func (s *mockStream) delay() time.Duration {
	return s.minDelay + rand.N(s.maxDelay-s.minDelay+1)
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

// SplitChunks slices text into pieces of at most size characters.
func SplitChunks(text string, size int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
