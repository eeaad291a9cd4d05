package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Color palette shared by the TUI and the CLI.
var (
	Green  = lipgloss.Color("10") // success, send
	Red    = lipgloss.Color("9")  // errors, stop
	Grey   = lipgloss.Color("8")  // muted text
	Blue   = lipgloss.Color("4")  // borders, assistant label
	Cyan   = lipgloss.Color("6")  // user label
	White  = lipgloss.Color("15") // titles
	Subtle = lipgloss.Color("236")
)

// Status indicators
const (
	ActiveIcon   = "●"
	InactiveIcon = " "
	SuccessIcon  = "✓"
	FailIcon     = "✗"
)

// Styles holds the lipgloss styles bound to one renderer.
type Styles struct {
	renderer *lipgloss.Renderer

	Title   lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style

	// Sidebar
	SidebarItem    lipgloss.Style
	SidebarActive  lipgloss.Style
	SidebarCursor  lipgloss.Style
	PaneFocused    lipgloss.Style
	PaneBlurred    lipgloss.Style
	FilterPrompt   lipgloss.Style
	TimestampMuted lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserText       lipgloss.Style
	Placeholder    lipgloss.Style

	// Composer
	SendButton lipgloss.Style
	StopButton lipgloss.Style
	StatusBar  lipgloss.Style
}

// NewStyles creates a new Styles instance for the given output.
func NewStyles(output *os.File) *Styles {
	r := lipgloss.NewRenderer(output)

	pane := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)

	button := r.NewStyle().
		Bold(true).
		Padding(0, 1)

	return &Styles{
		renderer: r,

		Title:   r.NewStyle().Bold(true).Foreground(White),
		Muted:   r.NewStyle().Foreground(Grey),
		Bold:    r.NewStyle().Bold(true),
		Success: r.NewStyle().Foreground(Green),
		Error:   r.NewStyle().Foreground(Red),

		SidebarItem:    r.NewStyle().PaddingLeft(1),
		SidebarActive:  r.NewStyle().PaddingLeft(1).Bold(true).Foreground(Green),
		SidebarCursor:  r.NewStyle().PaddingLeft(1).Background(Subtle),
		PaneFocused:    pane.BorderForeground(Blue),
		PaneBlurred:    pane.BorderForeground(Grey),
		FilterPrompt:   r.NewStyle().Foreground(Cyan),
		TimestampMuted: r.NewStyle().Foreground(Grey).Italic(true),

		UserLabel:      r.NewStyle().Bold(true).Foreground(Cyan),
		AssistantLabel: r.NewStyle().Bold(true).Foreground(Blue),
		UserText:       r.NewStyle().Foreground(White),
		Placeholder:    r.NewStyle().Foreground(Grey).Italic(true),

		SendButton: button.Foreground(lipgloss.Color("0")).Background(Green),
		StopButton: button.Foreground(White).Background(Red),
		StatusBar:  r.NewStyle().Foreground(Grey).PaddingLeft(1),
	}
}

// DefaultStyles returns styles for stderr (default TUI output)
func DefaultStyles() *Styles {
	return NewStyles(os.Stderr)
}

// FormatResult returns a styled success/fail result
func (s *Styles) FormatResult(success bool, msg string) string {
	if success {
		return s.Success.Render(SuccessIcon+" ") + msg
	}
	return s.Error.Render(FailIcon+" ") + msg
}
