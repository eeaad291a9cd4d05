package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samsaffron/term-chat/internal/controller"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/samsaffron/term-chat/internal/stream"
	"github.com/samsaffron/term-chat/internal/ui"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	Long: `List, show, create, delete, and export chat sessions.

Sessions can be referenced by full id, short id (as shown by list) or any
unambiguous prefix.

Examples:
  term-chat sessions                       # List sessions
  term-chat sessions list --json
  term-chat sessions show <id>
  term-chat sessions new
  term-chat sessions delete <id>
  term-chat sessions export <id> [path.md|-]`,
	RunE: runSessionsList, // Default to list
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:               "show <id>",
	Short:             "Show a session transcript",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: SessionArgCompletion,
	RunE:              runSessionsShow,
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an empty session and make it active",
	Args:  cobra.NoArgs,
	RunE:  runSessionsNew,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:               "delete <id>",
	Short:             "Delete a session",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: SessionArgCompletion,
	RunE:              runSessionsDelete,
}

var sessionsExportCmd = &cobra.Command{
	Use:               "export <id> [path]",
	Short:             "Export session as markdown",
	Args:              cobra.RangeArgs(1, 2),
	ValidArgsFunction: SessionArgCompletion,
	RunE:              runSessionsExport,
}

// Flags
var (
	sessionsLimit int
	sessionsJSON  bool
	sessionsYes   bool
)

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 0, "Maximum number of sessions to list (0 for all)")
	sessionsListCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsShowCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsDeleteCmd.Flags().BoolVarP(&sessionsYes, "yes", "y", false, "Do not ask for confirmation")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)

	rootCmd.AddCommand(sessionsCmd)
}

// withSessions opens the session store and runs fn against it. The reply
// source is always the mock one: these commands never stream.
func withSessions(ctx context.Context, fn func(*controller.Controller) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Stream.Mode = stream.ModeMock

	log, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctrl, err := openController(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ctrl.Close()
	return fn(ctrl)
}

// sessionSummary is the list --json shape.
type sessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  int       `json:"messages"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withSessions(cmd.Context(), func(ctrl *controller.Controller) error {
		sessions := ctrl.Sessions()
		if sessionsLimit > 0 && len(sessions) > sessionsLimit {
			sessions = sessions[:sessionsLimit]
		}
		activeID := ""
		if active, ok := ctrl.ActiveSession(); ok {
			activeID = active.ID
		}

		if sessionsJSON {
			summaries := make([]sessionSummary, 0, len(sessions))
			for _, s := range sessions {
				summaries = append(summaries, sessionSummary{
					ID:        s.ID,
					Title:     s.Title,
					Messages:  len(s.Messages),
					Active:    s.ID == activeID,
					CreatedAt: s.CreatedAt,
					UpdatedAt: s.UpdatedAt,
				})
			}
			return writeJSON(out, summaries)
		}

		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}

		fmt.Fprintf(out, "  %-24s %-5s %-16s %s\n", "ID", "Msgs", "Updated", "Title")
		fmt.Fprintln(out, strings.Repeat("-", 80))
		for _, s := range sessions {
			marker := " "
			if s.ID == activeID {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-24s %-5d %-16s %s\n",
				marker, s.ID, len(s.Messages), humanize.Time(s.UpdatedAt), ui.Truncate(s.Title, 32))
		}
		return nil
	})
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withSessions(cmd.Context(), func(ctrl *controller.Controller) error {
		sess, err := ctrl.Resolve(args[0])
		if err != nil {
			return err
		}

		if sessionsJSON {
			return writeJSON(out, sess)
		}

		fmt.Fprintf(out, "Session: %s\n", sess.ID)
		fmt.Fprintf(out, "Title: %s\n", sess.Title)
		fmt.Fprintf(out, "Created: %s\n", sess.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Updated: %s (%s)\n", sess.UpdatedAt.Format(time.RFC3339), humanize.Time(sess.UpdatedAt))
		fmt.Fprintf(out, "Messages: %d\n", len(sess.Messages))
		fmt.Fprintln(out)

		for _, msg := range sess.Messages {
			role := string(msg.Role)
			if msg.Role == session.RoleUser {
				role = "❯"
			} else if msg.Role == session.RoleAssistant {
				role = "●"
			}
			fmt.Fprintf(out, "%s %s\n\n", role, msg.Content)
		}
		return nil
	})
}

func runSessionsNew(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withSessions(cmd.Context(), func(ctrl *controller.Controller) error {
		sess := ctrl.NewSession(cmd.Context())
		fmt.Fprintf(out, "Created session: %s\n", sess.ID)
		return nil
	})
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withSessions(cmd.Context(), func(ctrl *controller.Controller) error {
		sess, err := ctrl.Resolve(args[0])
		if err != nil {
			return err
		}
		if !sessionsYes && stdinIsTerminal() && isTerminal(out) {
			ok, err := ui.Confirm(fmt.Sprintf("Delete %q (%d messages)?", sess.Title, len(sess.Messages)))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}
		if !ctrl.DeleteSession(cmd.Context(), sess.ID) {
			return fmt.Errorf("failed to delete session %s", sess.ID)
		}
		fmt.Fprintf(out, "Deleted session: %s\n", sess.ID)
		return nil
	})
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withSessions(cmd.Context(), func(ctrl *controller.Controller) error {
		sess, err := ctrl.Resolve(args[0])
		if err != nil {
			return err
		}
		markdown := session.ExportMarkdown(sess)

		outputPath := session.ShortID(sess.ID) + ".md"
		if len(args) > 1 {
			outputPath = args[1]
		}
		if outputPath == "-" {
			_, err := io.WriteString(out, markdown)
			return err
		}

		if err := os.WriteFile(outputPath, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		fmt.Fprintf(out, "Exported %d messages to %s\n", len(sess.Messages), outputPath)
		return nil
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
