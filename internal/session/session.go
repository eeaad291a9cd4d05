package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultTitle is used for sessions that have not received a prompt yet.
const DefaultTitle = "New Chat"

// WelcomeTitle names the session seeded on first run.
const WelcomeTitle = "Welcome"

// Message is a single entry in a session transcript.
// Only Content changes after creation, and only by appending.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one conversation thread with its own history and title.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// NewSession creates an empty session with the given title.
func NewSession(title string) Session {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := time.Now()
	return Session{
		ID:        NewID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
}

// NewMessage creates a message with a fresh id.
func NewMessage(role Role, content string, createdAt time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// Touch advances UpdatedAt to now without ever moving it backwards.
func (s *Session) Touch(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}

// MessageIndex returns the position of the message with the given id, or -1.
func (s Session) MessageIndex(id string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// LastMessage returns the newest message, if any.
func (s Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// TitleFromPrompt derives a session title from the first line of a prompt.
func TitleFromPrompt(prompt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return DefaultTitle
	}
	return line
}
