package session

import (
	"fmt"
	"strings"
)

// escapeTableCell escapes special characters for markdown table cells.
func escapeTableCell(s string) string {
	// Replace pipe characters and newlines which break tables
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// ExportMarkdown renders a session transcript as markdown.
func ExportMarkdown(sess Session) string {
	var b strings.Builder

	title := sess.Title
	if title == "" {
		title = ShortID(sess.ID)
	}
	b.WriteString(fmt.Sprintf("# Session: %s\n\n", escapeTableCell(title)))
	b.WriteString("> Exported from [term-chat](https://github.com/samsaffron/term-chat)\n\n")

	b.WriteString("| | |\n")
	b.WriteString("|---|---|\n")
	b.WriteString(fmt.Sprintf("| **ID** | `%s` |\n", sess.ID))
	b.WriteString(fmt.Sprintf("| **Created** | %s |\n", sess.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")))
	b.WriteString(fmt.Sprintf("| **Updated** | %s |\n", sess.UpdatedAt.UTC().Format("2006-01-02 15:04 UTC")))
	b.WriteString(fmt.Sprintf("| **Messages** | %d |\n\n", len(sess.Messages)))

	b.WriteString("---\n\n")
	b.WriteString("## Conversation\n\n")

	if len(sess.Messages) == 0 {
		b.WriteString("_No messages._\n")
		return b.String()
	}

	for _, msg := range sess.Messages {
		switch msg.Role {
		case RoleUser:
			b.WriteString("### User\n\n")
		case RoleAssistant:
			b.WriteString("### Assistant\n\n")
		default:
			b.WriteString(fmt.Sprintf("### %s\n\n", msg.Role))
		}
		content := strings.TrimRight(msg.Content, "\n")
		if content == "" {
			content = "_(empty)_"
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	return b.String()
}
