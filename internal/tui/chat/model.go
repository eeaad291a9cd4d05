// Package chat implements the interactive terminal chat UI: a session
// sidebar, the active transcript and a composer.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samsaffron/term-chat/internal/controller"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/samsaffron/term-chat/internal/ui"
	"go.uber.org/zap"
)

const (
	composerLines   = 3
	minSidebarWidth = 22
	maxSidebarWidth = 36
)

type focusArea int

const (
	focusComposer focusArea = iota
	focusSidebar
)

// changeMsg signals that controller state moved and the view should
// refresh from it.
type changeMsg struct{}

// sendDoneMsg reports the end of a SendMessage call.
type sendDoneMsg struct {
	outcome controller.Outcome
	err     error
}

// Options configures New.
type Options struct {
	Backend Backend
	Styles  *ui.Styles
	Logger  *zap.Logger
	// Now overrides the clock used for relative timestamps.
	Now func() time.Time
}

// Model is the bubbletea model for the chat screen.
type Model struct {
	ctx     context.Context
	backend Backend
	styles  *ui.Styles
	keys    keyMap
	log     *zap.Logger
	now     func() time.Time

	width  int
	height int
	focus  focusArea

	sidebar  *SidebarModel
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	active       session.Session
	hasActive    bool
	generating   bool
	generatingID string
	status       string
	changes      chan struct{}
	quitting     bool
}

// New builds the chat model and subscribes it to backend changes.
func New(ctx context.Context, opts Options) *Model {
	styles := opts.Styles
	if styles == nil {
		styles = ui.DefaultStyles()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetHeight(composerLines)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = styles.Muted

	m := &Model{
		ctx:      ctx,
		backend:  opts.Backend,
		styles:   styles,
		keys:     defaultKeyMap(),
		log:      log.Named("tui"),
		now:      now,
		sidebar:  newSidebar(styles),
		textarea: ta,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		changes:  make(chan struct{}, 1),
	}
	m.backend.Subscribe(func(controller.Change) {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	m.refresh()
	return m
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	m := New(ctx, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	opts.Backend.StopGenerating()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForChange())
}

// waitForChange blocks until the backend reports a change. Notifications
// coalesce, so a burst of deltas costs one refresh.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return changeMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case changeMsg:
		wasGenerating := m.generating
		m.refresh()
		cmds := []tea.Cmd{m.waitForChange()}
		if m.generating && !wasGenerating {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case sendDoneMsg:
		m.refresh()
		switch msg.outcome {
		case controller.OutcomeFailed:
			m.status = "Reply failed: " + msg.err.Error()
		case controller.OutcomeAborted:
			m.status = "Stopped."
		default:
			m.status = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !m.generating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.backend.StopGenerating()
		m.quitting = true
		return m, tea.Quit
	}

	if m.sidebar.Filtering() {
		return m.handleFilterKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.NewChat):
		m.backend.NewSession(m.ctx)
		m.sidebar.StopFilter(true)
		m.setFocus(focusComposer)
		m.status = ""
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		m.deleteSelected()
		return m, nil

	case key.Matches(msg, m.keys.SwitchFocus):
		if m.focus == focusComposer {
			m.setFocus(focusSidebar)
		} else {
			m.setFocus(focusComposer)
		}
		return m, nil

	case key.Matches(msg, m.keys.Stop):
		if m.generating {
			m.backend.StopGenerating()
			m.status = "Stopping..."
			return m, nil
		}
		if m.focus == focusSidebar && m.sidebar.Query() != "" {
			m.sidebar.StopFilter(true)
		}
		return m, nil

	case key.Matches(msg, m.keys.SendOrStop):
		if m.generating {
			m.backend.StopGenerating()
			m.status = "Stopping..."
			return m, nil
		}
		return m.submit()
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleComposerKey(msg)
}

func (m *Model) handleComposerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Newline):
		m.textarea.InsertString("\n")
		return m, nil
	case key.Matches(msg, m.keys.Send):
		return m.submit()
	case msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.sidebar.MoveUp() {
			m.selectUnderCursor()
		}
	case key.Matches(msg, m.keys.Down):
		if m.sidebar.MoveDown() {
			m.selectUnderCursor()
		}
	case key.Matches(msg, m.keys.Filter):
		return m, m.sidebar.StartFilter()
	case key.Matches(msg, m.keys.Send):
		m.selectUnderCursor()
		m.setFocus(focusComposer)
	}
	return m, nil
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyEsc:
		m.sidebar.StopFilter(true)
		return m, nil
	case msg.Type == tea.KeyEnter:
		m.sidebar.StopFilter(false)
		m.selectUnderCursor()
		return m, nil
	case msg.Type == tea.KeyUp:
		m.sidebar.MoveUp()
		return m, nil
	case msg.Type == tea.KeyDown:
		m.sidebar.MoveDown()
		return m, nil
	}
	return m, m.sidebar.UpdateFilter(msg)
}

// submit sends the composer text to the active session. The send blocks in
// a command goroutine; progress arrives as changeMsg.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.textarea.Value())
	if text == "" {
		return m, nil
	}
	if m.generating {
		m.status = "A reply is still streaming. Press Esc to stop it."
		return m, nil
	}
	if !m.hasActive {
		m.backend.NewSession(m.ctx)
		m.refresh()
	}

	sessionID := m.active.ID
	m.textarea.Reset()
	m.status = ""
	m.viewport.GotoBottom()

	ctx, backend := m.ctx, m.backend
	return m, func() tea.Msg {
		outcome, err := backend.SendMessage(ctx, sessionID, text)
		return sendDoneMsg{outcome: outcome, err: err}
	}
}

func (m *Model) selectUnderCursor() {
	item, ok := m.sidebar.Selected()
	if !ok || item.ID == m.active.ID {
		return
	}
	if m.backend.SelectSession(m.ctx, item.ID) {
		m.refresh()
		m.viewport.GotoBottom()
	}
}

func (m *Model) deleteSelected() {
	id := m.active.ID
	if m.focus == focusSidebar {
		if item, ok := m.sidebar.Selected(); ok {
			id = item.ID
		}
	}
	if id == "" {
		return
	}
	if m.backend.DeleteSession(m.ctx, id) {
		m.log.Debug("deleted session", zap.String("session_id", id))
		m.refresh()
	}
}

func (m *Model) setFocus(f focusArea) {
	m.focus = f
	if f == focusComposer {
		m.textarea.Focus()
	} else {
		m.textarea.Blur()
	}
}

// refresh pulls the current state from the backend into the view.
func (m *Model) refresh() {
	sessions := m.backend.Sessions()
	m.active, m.hasActive = m.backend.ActiveSession()
	m.generating = m.backend.IsGenerating()
	m.generatingID = m.backend.GeneratingSession()
	m.sidebar.SetSessions(sessions, m.active.ID)

	atBottom := m.viewport.AtBottom()
	if m.hasActive {
		streaming := m.generating && m.generatingID == m.active.ID
		m.viewport.SetContent(renderTranscript(m.styles, m.active, streaming, m.viewport.Width))
	} else {
		m.viewport.SetContent(m.styles.Placeholder.Render("No chats. Press ctrl+n to start one."))
	}
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) sidebarWidth() int {
	return min(maxSidebarWidth, max(minSidebarWidth, m.width/4))
}

func (m *Model) layout() {
	sw := m.sidebarWidth()
	mainWidth := max(20, m.width-sw)

	m.textarea.SetWidth(max(10, mainWidth-4))
	m.textarea.SetHeight(composerLines)

	// Composer border (2) + button row (1) + status bar (1).
	m.viewport.Width = max(10, mainWidth-2)
	m.viewport.Height = max(1, m.height-composerLines-4)

	m.sidebar.SetSize(max(10, sw-4), max(2, m.height-3))
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	sw := m.sidebarWidth()
	bodyHeight := max(3, m.height-1)

	sidebarPane := m.styles.PaneBlurred
	if m.focus == focusSidebar {
		sidebarPane = m.styles.PaneFocused
	}
	left := sidebarPane.
		Width(max(1, sw-2)).
		Height(max(1, bodyHeight-2)).
		Render(m.sidebar.View(m.focus == focusSidebar, m.generatingID, m.now()))

	composerPane := m.styles.PaneBlurred
	if m.focus == focusComposer {
		composerPane = m.styles.PaneFocused
	}
	composer := composerPane.Render(m.textarea.View())
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		composer,
		m.buttonRow(),
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusBar())
}

// buttonRow renders the Send/Stop toggle.
func (m *Model) buttonRow() string {
	if m.generating {
		return m.styles.StopButton.Render("Stop") + " " + m.spinner.View() + m.styles.Muted.Render(" streaming · esc to stop")
	}
	return m.styles.SendButton.Render("Send") + m.styles.Muted.Render(" enter to send · alt+enter or ctrl+j for newline")
}

func (m *Model) statusBar() string {
	if m.status != "" {
		return m.styles.StatusBar.Render(m.status)
	}
	k := m.keys
	return m.styles.StatusBar.Render(k.helpLine(k.NewChat, k.Delete, k.SwitchFocus, k.Filter, k.Quit))
}
