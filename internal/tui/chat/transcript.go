package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samsaffron/term-chat/internal/controller"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/samsaffron/term-chat/internal/ui"
)

// pendingReply stands in for an assistant message that has not received
// any text yet.
const pendingReply = "..."

const emptyTranscript = "No messages yet. Type below and press Enter to start."

// renderTranscript renders every message of sess for a pane width cells
// wide. generating marks the last assistant message as still streaming.
func renderTranscript(styles *ui.Styles, sess session.Session, generating bool, width int) string {
	width = max(10, width)
	if len(sess.Messages) == 0 {
		return styles.Placeholder.Render(emptyTranscript)
	}

	wrap := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	for i, msg := range sess.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Role {
		case session.RoleUser:
			b.WriteString(styles.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(styles.UserText.Render(wrap.Render(msg.Content)))
		default:
			b.WriteString(styles.AssistantLabel.Render("Assistant"))
			b.WriteString("\n")
			streaming := generating && i == len(sess.Messages)-1
			b.WriteString(renderReply(styles, msg.Content, streaming, width))
		}
	}
	return b.String()
}

func renderReply(styles *ui.Styles, content string, streaming bool, width int) string {
	if content == "" {
		if streaming {
			return styles.Placeholder.Render(pendingReply)
		}
		return ""
	}

	body, notice, failed := strings.Cut(content, controller.ErrorMarker)
	var b strings.Builder
	if strings.TrimSpace(body) != "" {
		b.WriteString(ui.RenderMarkdown(body, width))
	}
	if failed {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(styles.Error.Render(lipgloss.NewStyle().Width(width).Render("[stream error] " + notice)))
	}
	return b.String()
}
