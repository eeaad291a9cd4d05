package chat

import (
	"context"

	"github.com/samsaffron/term-chat/internal/controller"
	"github.com/samsaffron/term-chat/internal/session"
)

// Backend is the slice of the session controller the TUI drives.
// *controller.Controller satisfies it.
type Backend interface {
	Sessions() []session.Session
	ActiveSession() (session.Session, bool)
	IsGenerating() bool
	GeneratingSession() string
	NewSession(ctx context.Context) session.Session
	SelectSession(ctx context.Context, id string) bool
	DeleteSession(ctx context.Context, id string) bool
	StopGenerating()
	SendMessage(ctx context.Context, sessionID, prompt string) (controller.Outcome, error)
	Subscribe(fn func(controller.Change))
}

var _ Backend = (*controller.Controller)(nil)
