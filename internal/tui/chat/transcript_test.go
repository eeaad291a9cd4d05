package chat

import (
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/samsaffron/term-chat/internal/controller"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/samsaffron/term-chat/internal/ui"
	"github.com/stretchr/testify/assert"
)

func transcriptSession(reply string) session.Session {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	return session.Session{
		ID:    "s",
		Title: "t",
		Messages: []session.Message{
			{ID: "u", Role: session.RoleUser, Content: "What is Go?", CreatedAt: at},
			{ID: "a", Role: session.RoleAssistant, Content: reply, CreatedAt: at.Add(time.Millisecond)},
		},
	}
}

func TestRenderTranscript_EmptySession(t *testing.T) {
	out := ansi.Strip(renderTranscript(ui.DefaultStyles(), session.Session{}, false, 60))
	assert.Equal(t, emptyTranscript, out)
}

func TestRenderTranscript_PendingReplyWhileGenerating(t *testing.T) {
	styles := ui.DefaultStyles()

	out := ansi.Strip(renderTranscript(styles, transcriptSession(""), true, 60))
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "What is Go?")
	assert.Contains(t, out, pendingReply)

	out = ansi.Strip(renderTranscript(styles, transcriptSession(""), false, 60))
	assert.NotContains(t, out, pendingReply)
}

func TestRenderTranscript_MarkdownReply(t *testing.T) {
	out := ansi.Strip(renderTranscript(ui.DefaultStyles(), transcriptSession("Go is **fast**."), false, 60))
	assert.Contains(t, out, "Assistant")
	assert.Contains(t, out, "fast")
	assert.NotContains(t, out, "**")
}

func TestRenderTranscript_ErrorNotice(t *testing.T) {
	out := ansi.Strip(renderTranscript(ui.DefaultStyles(), transcriptSession("partial"+controller.ErrorMarker+"boom"), false, 60))
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "[stream error] boom")
}
