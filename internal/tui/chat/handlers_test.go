package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/samsaffron/term-chat/internal/controller"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/samsaffron/term-chat/internal/stream"
	"github.com/samsaffron/term-chat/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records calls and serves canned sessions.
type fakeBackend struct {
	sessions     []session.Session
	activeID     string
	generating   bool
	generatingID string
	refuseDelete bool

	sent      []string
	stopCalls int
	created   int
	selected  []string
	deleted   []string
	observers []func(controller.Change)
	outcome   controller.Outcome
	sendErr   error
}

func newFakeBackend(titles ...string) *fakeBackend {
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	b := &fakeBackend{outcome: controller.OutcomeCompleted}
	for i, title := range titles {
		b.sessions = append(b.sessions, session.Session{
			ID:        "sess-" + title,
			Title:     title,
			CreatedAt: base,
			UpdatedAt: base.Add(-time.Duration(i) * time.Hour),
			Messages:  []session.Message{},
		})
	}
	if len(b.sessions) > 0 {
		b.activeID = b.sessions[0].ID
	}
	return b
}

func (b *fakeBackend) Sessions() []session.Session { return b.sessions }

func (b *fakeBackend) ActiveSession() (session.Session, bool) {
	for _, s := range b.sessions {
		if s.ID == b.activeID {
			return s, true
		}
	}
	return session.Session{}, false
}

func (b *fakeBackend) IsGenerating() bool        { return b.generating }
func (b *fakeBackend) GeneratingSession() string { return b.generatingID }

func (b *fakeBackend) NewSession(context.Context) session.Session {
	b.created++
	s := session.NewSession(session.DefaultTitle)
	b.sessions = append([]session.Session{s}, b.sessions...)
	b.activeID = s.ID
	return s
}

func (b *fakeBackend) SelectSession(_ context.Context, id string) bool {
	b.selected = append(b.selected, id)
	b.activeID = id
	return true
}

func (b *fakeBackend) DeleteSession(_ context.Context, id string) bool {
	if b.refuseDelete {
		return false
	}
	b.deleted = append(b.deleted, id)
	for i, s := range b.sessions {
		if s.ID == id {
			b.sessions = append(b.sessions[:i], b.sessions[i+1:]...)
			break
		}
	}
	if b.activeID == id {
		b.activeID = ""
		if len(b.sessions) > 0 {
			b.activeID = b.sessions[0].ID
		}
	}
	return true
}

func (b *fakeBackend) StopGenerating() { b.stopCalls++ }

func (b *fakeBackend) SendMessage(_ context.Context, sessionID, prompt string) (controller.Outcome, error) {
	b.sent = append(b.sent, sessionID+":"+prompt)
	return b.outcome, b.sendErr
}

func (b *fakeBackend) Subscribe(fn func(controller.Change)) {
	b.observers = append(b.observers, fn)
}

func newTestModel(t *testing.T, b *fakeBackend) *Model {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := New(ctx, Options{
		Backend: b,
		Styles:  ui.DefaultStyles(),
		Now:     func() time.Time { return time.Date(2025, 5, 1, 12, 5, 0, 0, time.UTC) },
	})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestHandleKeyMsg_EnterSendsTrimmedPrompt(t *testing.T) {
	b := newFakeBackend("Welcome")
	m := newTestModel(t, b)
	m.textarea.SetValue("  hello world  ")

	_, cmd := m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, "", m.textarea.Value(), "composer should clear on send")

	msg := cmd()
	done, ok := msg.(sendDoneMsg)
	require.True(t, ok)
	assert.Equal(t, controller.OutcomeCompleted, done.outcome)
	assert.Equal(t, []string{"sess-Welcome:hello world"}, b.sent)
}

func TestHandleKeyMsg_EnterOnBlankComposerDoesNothing(t *testing.T) {
	b := newFakeBackend("Welcome")
	m := newTestModel(t, b)
	m.textarea.SetValue("   \n  ")

	_, cmd := m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, b.sent)
}

func TestHandleKeyMsg_NewlineBindingsInsertNewline(t *testing.T) {
	for _, msg := range []tea.KeyMsg{
		{Type: tea.KeyEnter, Alt: true},
		{Type: tea.KeyCtrlJ},
	} {
		b := newFakeBackend("Welcome")
		m := newTestModel(t, b)
		m.textarea.SetValue("line one")

		_, _ = m.handleKeyMsg(msg)
		m.textarea.InsertString("line two")

		assert.Equal(t, "line one\nline two", m.textarea.Value(), "key %s", msg.String())
		assert.Empty(t, b.sent)
	}
}

func TestNewlineHintAdvertisesWorkingKeys(t *testing.T) {
	keys := defaultKeyMap()
	assert.ElementsMatch(t, []string{"alt+enter", "ctrl+j"}, keys.Newline.Keys())
	assert.NotContains(t, keys.Newline.Help().Key, "shift")

	m := newTestModel(t, newFakeBackend("Welcome"))
	row := m.buttonRow()
	assert.Contains(t, row, "alt+enter")
	assert.Contains(t, row, "ctrl+j")
	assert.NotContains(t, row, "shift")
}

func TestHandleKeyMsg_EnterWhileGeneratingShowsHint(t *testing.T) {
	b := newFakeBackend("Welcome")
	b.generating = true
	b.generatingID = "sess-Welcome"
	m := newTestModel(t, b)
	m.textarea.SetValue("queued")

	_, cmd := m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, b.sent)
	assert.Equal(t, "queued", m.textarea.Value())
	assert.Contains(t, m.status, "Esc")
}

func TestHandleKeyMsg_EscStopsGeneration(t *testing.T) {
	b := newFakeBackend("Welcome")
	b.generating = true
	m := newTestModel(t, b)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, 1, b.stopCalls)
	assert.Equal(t, "Stopping...", m.status)
}

func TestHandleKeyMsg_EscWhenIdleDoesNotStop(t *testing.T) {
	b := newFakeBackend("Welcome")
	m := newTestModel(t, b)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, 0, b.stopCalls)
}

func TestHandleKeyMsg_SendOrStopToggles(t *testing.T) {
	b := newFakeBackend("Welcome")
	m := newTestModel(t, b)
	m.textarea.SetValue("hi")

	_, cmd := m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	cmd()
	assert.Len(t, b.sent, 1)

	b.generating = true
	m.refresh()
	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Equal(t, 1, b.stopCalls)
}

func TestHandleKeyMsg_CtrlCQuitsAndStops(t *testing.T) {
	b := newFakeBackend("Welcome")
	m := newTestModel(t, b)

	_, cmd := m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
	assert.Equal(t, 1, b.stopCalls)
}

func TestHandleKeyMsg_NewChatFocusesComposer(t *testing.T) {
	b := newFakeBackend("Welcome")
	m := newTestModel(t, b)
	m.setFocus(focusSidebar)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Equal(t, 1, b.created)
	assert.Equal(t, focusComposer, m.focus)
	assert.Equal(t, session.DefaultTitle, m.active.Title)
	assert.Len(t, m.sidebar.Visible(), 2)
}

func TestHandleKeyMsg_DeleteActiveChat(t *testing.T) {
	b := newFakeBackend("Alpha", "Beta")
	m := newTestModel(t, b)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyCtrlD})
	assert.Equal(t, []string{"sess-Alpha"}, b.deleted)
	assert.Equal(t, "sess-Beta", m.active.ID)
	assert.Len(t, m.sidebar.Visible(), 1)
}

func TestHandleKeyMsg_DeleteRefusedSilently(t *testing.T) {
	b := newFakeBackend("Alpha")
	b.refuseDelete = true
	m := newTestModel(t, b)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyCtrlD})
	assert.Equal(t, "", m.status)
	assert.Equal(t, "sess-Alpha", m.active.ID)
}

func TestHandleKeyMsg_SidebarNavigationSelects(t *testing.T) {
	b := newFakeBackend("Alpha", "Beta", "Gamma")
	m := newTestModel(t, b)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, focusSidebar, m.focus)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyDown})
	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, []string{"sess-Beta", "sess-Gamma"}, b.selected)
	assert.Equal(t, "sess-Gamma", m.active.ID)

	// Already at the bottom: nothing more to select.
	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyDown})
	assert.Len(t, b.selected, 2)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, focusComposer, m.focus)
	assert.Empty(t, b.sent)
}

func TestHandleKeyMsg_SidebarFuzzyFilter(t *testing.T) {
	b := newFakeBackend("Welcome", "Go generics", "Grocery list")
	m := newTestModel(t, b)
	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyTab})

	_, _ = m.handleKeyMsg(keyRunes("/"))
	require.True(t, m.sidebar.Filtering())

	for _, r := range "gro" {
		_, _ = m.handleKeyMsg(keyRunes(string(r)))
	}
	assert.Equal(t, "gro", m.sidebar.Query())
	visible := m.sidebar.Visible()
	require.NotEmpty(t, visible)
	assert.Equal(t, "Grocery list", visible[0].Title)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.sidebar.Filtering())
	assert.Equal(t, "sess-Grocery list", m.active.ID)

	_, _ = m.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, "", m.sidebar.Query())
	assert.Len(t, m.sidebar.Visible(), 3)
}

func TestUpdate_SendDoneReportsFailure(t *testing.T) {
	b := newFakeBackend("Welcome")
	m := newTestModel(t, b)

	m.Update(sendDoneMsg{outcome: controller.OutcomeFailed, err: &stream.StreamError{Message: "boom"}})
	assert.Equal(t, "Reply failed: boom", m.status)

	m.Update(sendDoneMsg{outcome: controller.OutcomeAborted})
	assert.Equal(t, "Stopped.", m.status)

	m.Update(sendDoneMsg{outcome: controller.OutcomeCompleted, err: errors.New("ignored")})
	assert.Equal(t, "", m.status)
}

func TestObserverNotificationsCoalesce(t *testing.T) {
	b := newFakeBackend("Welcome")
	m := newTestModel(t, b)
	require.Len(t, b.observers, 1)

	for range 5 {
		b.observers[0](controller.ChangeDelta)
	}
	assert.Len(t, m.changes, 1)

	msg := m.waitForChange()()
	assert.IsType(t, changeMsg{}, msg)
	assert.Len(t, m.changes, 0)
}

func TestView_SendStopToggle(t *testing.T) {
	b := newFakeBackend("Welcome")
	m := newTestModel(t, b)

	view := ansi.Strip(m.View())
	assert.Contains(t, view, "Send")
	assert.NotContains(t, view, "Stop")

	b.generating = true
	b.generatingID = "sess-Welcome"
	m.Update(changeMsg{})
	view = ansi.Strip(m.View())
	assert.Contains(t, view, "Stop")
}

func TestView_ListsSessionsWithRelativeTime(t *testing.T) {
	b := newFakeBackend("Welcome", "Older chat")
	m := newTestModel(t, b)

	view := ansi.Strip(m.View())
	assert.Contains(t, view, "Welcome")
	assert.Contains(t, view, "Older chat")
	assert.Contains(t, view, "5 minutes ago")
	assert.True(t, strings.Contains(view, "Chats"))
}
