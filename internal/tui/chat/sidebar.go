package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/samsaffron/term-chat/internal/ui"
)

// linesPerItem is the height of one sidebar entry: title plus details.
const linesPerItem = 2

type sidebarItem struct {
	ID        string
	Title     string
	UpdatedAt time.Time
	Messages  int
}

// sessionSource implements fuzzy.Source over sidebar titles.
type sessionSource []sidebarItem

func (s sessionSource) String(i int) string {
	return s[i].Title
}

func (s sessionSource) Len() int {
	return len(s)
}

// SidebarModel lists sessions with a fuzzy title filter.
type SidebarModel struct {
	styles *ui.Styles

	items    []sidebarItem
	filtered []sidebarItem
	cursor   int
	activeID string

	filter    textinput.Model
	filtering bool

	width  int
	height int
}

func newSidebar(styles *ui.Styles) *SidebarModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "filter chats"
	ti.PromptStyle = styles.FilterPrompt
	return &SidebarModel{styles: styles, filter: ti}
}

func (s *SidebarModel) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.filter.Width = max(1, width-2)
}

// SetSessions replaces the listed sessions and moves the cursor onto the
// active one when it is visible.
func (s *SidebarModel) SetSessions(sessions []session.Session, activeID string) {
	s.items = make([]sidebarItem, len(sessions))
	for i, sess := range sessions {
		s.items[i] = sidebarItem{
			ID:        sess.ID,
			Title:     sess.Title,
			UpdatedAt: sess.UpdatedAt,
			Messages:  len(sess.Messages),
		}
	}
	s.activeID = activeID
	s.filterItems()
	for i, item := range s.filtered {
		if item.ID == activeID {
			s.cursor = i
			break
		}
	}
}

// Selected returns the item under the cursor.
func (s *SidebarModel) Selected() (sidebarItem, bool) {
	if len(s.filtered) == 0 {
		return sidebarItem{}, false
	}
	if s.cursor >= len(s.filtered) {
		s.cursor = len(s.filtered) - 1
	}
	return s.filtered[s.cursor], true
}

// Visible returns the items that pass the filter.
func (s *SidebarModel) Visible() []sidebarItem {
	return s.filtered
}

func (s *SidebarModel) MoveUp() bool {
	if s.cursor > 0 {
		s.cursor--
		return true
	}
	return false
}

func (s *SidebarModel) MoveDown() bool {
	if s.cursor < len(s.filtered)-1 {
		s.cursor++
		return true
	}
	return false
}

func (s *SidebarModel) Filtering() bool {
	return s.filtering
}

func (s *SidebarModel) Query() string {
	return s.filter.Value()
}

// StartFilter focuses the filter input.
func (s *SidebarModel) StartFilter() tea.Cmd {
	s.filtering = true
	return s.filter.Focus()
}

// StopFilter leaves filter mode. When clear is set the query is dropped and
// every session is listed again.
func (s *SidebarModel) StopFilter(clear bool) {
	s.filtering = false
	s.filter.Blur()
	if clear {
		s.filter.SetValue("")
		s.filterItems()
		for i, item := range s.filtered {
			if item.ID == s.activeID {
				s.cursor = i
				break
			}
		}
	}
}

// SetQuery replaces the filter text.
func (s *SidebarModel) SetQuery(query string) {
	s.filter.SetValue(query)
	s.filterItems()
}

// UpdateFilter feeds a key to the filter input and refilters.
func (s *SidebarModel) UpdateFilter(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	s.filter, cmd = s.filter.Update(msg)
	s.filterItems()
	return cmd
}

func (s *SidebarModel) filterItems() {
	query := strings.TrimSpace(s.filter.Value())
	if query == "" {
		s.filtered = s.items
	} else {
		matches := fuzzy.FindFrom(query, sessionSource(s.items))
		s.filtered = make([]sidebarItem, 0, len(matches))
		for _, match := range matches {
			s.filtered = append(s.filtered, s.items[match.Index])
		}
	}
	if s.cursor >= len(s.filtered) {
		s.cursor = max(0, len(s.filtered)-1)
	}
}

// View renders the list. now drives the relative timestamps.
func (s *SidebarModel) View(focused bool, generatingID string, now time.Time) string {
	var b strings.Builder

	b.WriteString(s.styles.Title.Render(ui.Fit("Chats", s.width)))
	b.WriteString("\n")
	header := 1
	if s.filtering || s.Query() != "" {
		b.WriteString(s.filter.View())
		b.WriteString("\n")
		header++
	}

	if len(s.filtered) == 0 {
		if s.Query() != "" {
			b.WriteString(s.styles.Muted.Render("no matches"))
		} else {
			b.WriteString(s.styles.Muted.Render("no chats yet"))
		}
		return b.String()
	}

	maxVisible := max(1, (s.height-header)/linesPerItem)
	startIdx := 0
	if s.cursor >= maxVisible {
		startIdx = s.cursor - maxVisible + 1
	}
	endIdx := min(startIdx+maxVisible, len(s.filtered))

	for i := startIdx; i < endIdx; i++ {
		item := s.filtered[i]

		icon := ui.InactiveIcon
		if item.ID == generatingID {
			icon = "…"
		} else if item.ID == s.activeID {
			icon = ui.ActiveIcon
		}
		title := icon + " " + ui.Fit(item.Title, max(1, s.width-3))

		style := s.styles.SidebarItem
		switch {
		case focused && i == s.cursor:
			style = s.styles.SidebarCursor
		case item.ID == s.activeID:
			style = s.styles.SidebarActive
		}
		b.WriteString(style.Render(title))
		b.WriteString("\n")

		detail := fmt.Sprintf("  %s · %d msgs", humanize.RelTime(item.UpdatedAt, now, "ago", "from now"), item.Messages)
		b.WriteString(s.styles.TimestampMuted.Render(ui.Truncate(detail, max(1, s.width-1))))
		if i < endIdx-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
