// Package controller owns the chat application state: the session
// collection, the single in-flight generation and its cancel handle.
// The TUI and the CLI both drive it; neither touches sessions directly.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/term-chat/internal/session"
	"github.com/samsaffron/term-chat/internal/stream"
	"go.uber.org/zap"
)

// ErrorMarker prefixes the notice appended to an assistant message when its
// stream fails.
const ErrorMarker = "\n\n[stream error] "

// Outcome describes how a SendMessage call ended.
type Outcome int

const (
	// OutcomeSkipped means nothing happened: unknown session, empty prompt
	// or a generation already in flight.
	OutcomeSkipped Outcome = iota
	OutcomeCompleted
	OutcomeAborted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Change tells observers what kind of state moved.
type Change int

const (
	// ChangeSessions covers creation, deletion, selection and new messages.
	ChangeSessions Change = iota + 1
	// ChangeDelta means streamed text was appended to an assistant message.
	ChangeDelta
	// ChangeGeneration means generation started or stopped.
	ChangeGeneration
)

// Options configures a Controller.
type Options struct {
	Persister *session.Persister
	Source    stream.Source
	Logger    *zap.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Controller serialises all access to the session state.
type Controller struct {
	mu        sync.Mutex
	sessions  *session.Collection
	persister *session.Persister
	source    stream.Source
	log       *zap.Logger
	now       func() time.Time

	generating   bool
	generatingID string
	cancel       context.CancelFunc

	// seq numbers snapshots taken under mu; saveMu orders the writes so an
	// older snapshot never overwrites a newer one.
	seq      uint64
	saveMu   sync.Mutex
	savedSeq uint64

	obsMu     sync.Mutex
	observers []func(Change)
}

type snapshot struct {
	seq      uint64
	sessions []session.Session
}

// New loads stored sessions and seeds a welcome session when there are none.
func New(ctx context.Context, opts Options) (*Controller, error) {
	if opts.Source == nil {
		return nil, errors.New("controller: stream source is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		sessions:  session.NewCollection(opts.Persister.Load(ctx)),
		persister: opts.Persister,
		source:    opts.Source,
		log:       log.Named("controller"),
		now:       now,
	}
	if c.sessions.Len() == 0 {
		s := c.sessions.Create(session.WelcomeTitle)
		c.log.Info("seeded welcome session", zap.String("session_id", s.ID))
		c.persister.Save(ctx, c.sessions.Sessions())
	}
	return c, nil
}

// Subscribe registers fn to be called after every state change. Callbacks
// run on the goroutine that made the change, outside the state lock.
func (c *Controller) Subscribe(fn func(Change)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) notify(changes ...Change) {
	c.obsMu.Lock()
	observers := append([]func(Change){}, c.observers...)
	c.obsMu.Unlock()
	for _, change := range changes {
		for _, fn := range observers {
			fn(change)
		}
	}
}

// snapshot copies the collection for persisting. Must be called with mu held.
func (c *Controller) snapshot() snapshot {
	c.seq++
	return snapshot{seq: c.seq, sessions: c.sessions.Sessions()}
}

// persist writes snap unless a newer snapshot has already been saved. Must
// be called without mu held.
func (c *Controller) persist(ctx context.Context, snap snapshot) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if snap.seq <= c.savedSeq {
		return
	}
	c.savedSeq = snap.seq
	c.persister.Save(context.WithoutCancel(ctx), snap.sessions)
}

// Sessions returns a copy of every session, newest first.
func (c *Controller) Sessions() []session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions.Sessions()
}

// Session returns a copy of one session.
func (c *Controller) Session(id string) (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions.Get(id)
}

// Resolve looks a session up by full id, short id or unique prefix.
func (c *Controller) Resolve(ref string) (session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions.Resolve(ref)
}

// ActiveSession returns the active session, if any exist.
func (c *Controller) ActiveSession() (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions.Active()
}

// IsGenerating reports whether a reply is being streamed.
func (c *Controller) IsGenerating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// GeneratingSession returns the id of the session receiving the current
// reply, or "" when idle.
func (c *Controller) GeneratingSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generatingID
}

// NewSession creates an empty session and makes it active.
func (c *Controller) NewSession(ctx context.Context) session.Session {
	c.mu.Lock()
	s := c.sessions.Create(session.DefaultTitle)
	snap := c.snapshot()
	c.mu.Unlock()
	c.persist(ctx, snap)

	c.log.Debug("session created", zap.String("session_id", s.ID))
	c.notify(ChangeSessions)
	return s
}

// SelectSession makes id the active session.
func (c *Controller) SelectSession(ctx context.Context, id string) bool {
	c.mu.Lock()
	ok := c.sessions.Select(id)
	var snap snapshot
	if ok {
		snap = c.snapshot()
	}
	c.mu.Unlock()

	if ok {
		c.persist(ctx, snap)
		c.notify(ChangeSessions)
	}
	return ok
}

// DeleteSession removes a session. Deleting the active session while a
// reply is streaming is refused.
func (c *Controller) DeleteSession(ctx context.Context, id string) bool {
	c.mu.Lock()
	if c.generating && id == c.sessions.ActiveID() {
		c.mu.Unlock()
		c.log.Debug("refusing to delete active session during generation", zap.String("session_id", id))
		return false
	}
	ok := c.sessions.Delete(id)
	var snap snapshot
	if ok {
		snap = c.snapshot()
	}
	c.mu.Unlock()

	if ok {
		c.persist(ctx, snap)
		c.log.Debug("session deleted", zap.String("session_id", id))
		c.notify(ChangeSessions)
	}
	return ok
}

// StopGenerating cancels the in-flight reply. It does nothing when idle.
func (c *Controller) StopGenerating() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// SendMessage appends the prompt and an empty assistant reply to the
// session, then streams the reply into it until the source finishes, fails
// or is stopped. It blocks for the whole generation.
//
// The returned error is non-nil only with OutcomeFailed; the same failure is
// also recorded inline in the assistant message.
func (c *Controller) SendMessage(ctx context.Context, sessionID, prompt string) (Outcome, error) {
	text := strings.TrimSpace(prompt)
	if text == "" {
		return OutcomeSkipped, nil
	}

	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return OutcomeSkipped, nil
	}
	if _, ok := c.sessions.Get(sessionID); !ok {
		c.mu.Unlock()
		return OutcomeSkipped, nil
	}

	now := c.now()
	userMsg := session.NewMessage(session.RoleUser, text, now)
	replyMsg := session.NewMessage(session.RoleAssistant, "", now.Add(time.Millisecond))
	c.sessions.Update(sessionID, func(s session.Session) session.Session {
		if len(s.Messages) == 0 {
			s.Title = session.TitleFromPrompt(text)
		}
		s.Messages = append(s.Messages, userMsg, replyMsg)
		s.Touch(now)
		return s
	})

	genCtx, cancel := context.WithCancel(ctx)
	c.generating = true
	c.generatingID = sessionID
	c.cancel = cancel
	snap := c.snapshot()
	c.mu.Unlock()
	c.persist(ctx, snap)

	defer c.finish(cancel)
	c.notify(ChangeSessions, ChangeGeneration)

	log := c.log.With(zap.String("session_id", sessionID), zap.String("message_id", replyMsg.ID))
	log.Debug("generation started")

	err := stream.Consume(genCtx, c.source, stream.Request{SessionID: sessionID, UserText: text}, func(chunk string) {
		c.mu.Lock()
		applied := c.sessions.AppendDelta(sessionID, replyMsg.ID, chunk, c.now())
		var snap snapshot
		if applied {
			snap = c.snapshot()
		}
		c.mu.Unlock()
		if applied {
			c.persist(ctx, snap)
			c.notify(ChangeDelta)
		}
	})

	switch {
	case err == nil:
		log.Debug("generation completed")
		return OutcomeCompleted, nil
	case stream.IsAborted(err):
		log.Debug("generation aborted")
		return OutcomeAborted, nil
	default:
		log.Warn("generation failed", zap.Error(err))
		c.mu.Lock()
		applied := c.sessions.AppendDelta(sessionID, replyMsg.ID, ErrorMarker+err.Error(), c.now())
		var snap snapshot
		if applied {
			snap = c.snapshot()
		}
		c.mu.Unlock()
		if applied {
			c.persist(ctx, snap)
			c.notify(ChangeDelta)
		}
		return OutcomeFailed, err
	}
}

func (c *Controller) finish(cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	c.generating = false
	c.generatingID = ""
	c.cancel = nil
	c.mu.Unlock()
	c.notify(ChangeGeneration)
}

// Close releases the persistence backend.
func (c *Controller) Close() error {
	c.StopGenerating()
	return c.persister.Close()
}
