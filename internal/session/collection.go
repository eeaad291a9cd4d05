package session

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrAmbiguous = errors.New("session reference is ambiguous")
)

// Collection is the in-memory set of sessions, kept sorted by descending
// UpdatedAt, plus the id of the active session.
//
// Collection is not safe for concurrent use; callers serialise access.
type Collection struct {
	sessions []Session
	activeID string
}

// NewCollection builds a collection from previously stored sessions.
// The newest session becomes active.
func NewCollection(sessions []Session) *Collection {
	c := &Collection{sessions: make([]Session, 0, len(sessions))}
	for _, s := range sessions {
		if s.Messages == nil {
			s.Messages = []Message{}
		}
		c.sessions = append(c.sessions, s.Clone())
	}
	c.sort()
	c.activeID = c.resolveActive()
	return c
}

// Len returns the number of sessions.
func (c *Collection) Len() int {
	return len(c.sessions)
}

// Sessions returns a deep copy of all sessions, newest first.
func (c *Collection) Sessions() []Session {
	out := make([]Session, len(c.sessions))
	for i := range c.sessions {
		out[i] = c.sessions[i].Clone()
	}
	return out
}

// Get returns a copy of the session with the given id.
func (c *Collection) Get(id string) (Session, bool) {
	i := c.index(id)
	if i < 0 {
		return Session{}, false
	}
	return c.sessions[i].Clone(), true
}

// Resolve finds a session by full id, ShortID or unambiguous prefix.
func (c *Collection) Resolve(ref string) (Session, error) {
	if s, ok := c.Get(ref); ok {
		return s, nil
	}
	var found []Session
	for i := range c.sessions {
		if MatchesRef(c.sessions[i].ID, ref) {
			found = append(found, c.sessions[i])
		}
	}
	switch len(found) {
	case 0:
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case 1:
		return found[0].Clone(), nil
	default:
		return Session{}, fmt.Errorf("%w: %q matches %d sessions", ErrAmbiguous, ref, len(found))
	}
}

// Create adds a new empty session and makes it active.
func (c *Collection) Create(title string) Session {
	s := NewSession(title)
	c.sessions = append([]Session{s}, c.sessions...)
	c.sort()
	c.activeID = s.ID
	return s.Clone()
}

// Update applies fn to the session with the given id as a read-modify-write
// over the whole session, then re-sorts the collection. UpdatedAt never moves
// backwards and the id cannot be changed by fn.
func (c *Collection) Update(id string, fn func(Session) Session) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	prev := c.sessions[i]
	next := fn(prev.Clone())
	next.ID = prev.ID
	if next.UpdatedAt.Before(prev.UpdatedAt) {
		next.UpdatedAt = prev.UpdatedAt
	}
	if next.Messages == nil {
		next.Messages = []Message{}
	}
	c.sessions[i] = next
	c.sort()
	return true
}

// AppendDelta appends chunk to the message identified by messageID inside the
// given session and refreshes the session's UpdatedAt.
func (c *Collection) AppendDelta(sessionID, messageID, chunk string, now time.Time) bool {
	applied := false
	c.Update(sessionID, func(s Session) Session {
		i := s.MessageIndex(messageID)
		if i < 0 {
			return s
		}
		s.Messages[i].Content += chunk
		s.Touch(now)
		applied = true
		return s
	})
	return applied
}

// Delete removes a session. When the active session is removed, the first
// remaining session becomes active, or none if the collection is empty.
func (c *Collection) Delete(id string) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.sessions = slices.Delete(c.sessions, i, i+1)
	if c.activeID == id {
		c.activeID = ""
	}
	c.activeID = c.resolveActive()
	return true
}

// Select makes the session with the given id active.
func (c *Collection) Select(id string) bool {
	if c.index(id) < 0 {
		return false
	}
	c.activeID = id
	return true
}

// ActiveID returns the id of the active session, falling back to the first
// session when the tracked id no longer exists. Empty when there are none.
func (c *Collection) ActiveID() string {
	c.activeID = c.resolveActive()
	return c.activeID
}

// Active returns a copy of the active session.
func (c *Collection) Active() (Session, bool) {
	id := c.ActiveID()
	if id == "" {
		return Session{}, false
	}
	return c.Get(id)
}

func (c *Collection) resolveActive() string {
	if c.activeID != "" && c.index(c.activeID) >= 0 {
		return c.activeID
	}
	if len(c.sessions) == 0 {
		return ""
	}
	return c.sessions[0].ID
}

func (c *Collection) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.sessions {
		if c.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection) sort() {
	slices.SortStableFunc(c.sessions, func(a, b Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
}
