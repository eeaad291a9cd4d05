package cmd

import (
	"os"
	"os/signal"

	"github.com/samsaffron/term-chat/internal/tui/chat"
	"github.com/samsaffron/term-chat/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat UI",
	Long: `Open the full-screen chat UI with the session list on the left and the
active transcript on the right.

Examples:
  term-chat chat
  term-chat chat --mock          # canned local replies
  term-chat chat --remote http://localhost:8787
  term-chat chat --ephemeral     # keep sessions in memory only

Keyboard shortcuts:
  Enter        - Send message
  Alt+Enter    - Insert newline (Ctrl+J also works; Shift+Enter is
                 reported as Enter by most terminals and sends)
  Ctrl+S       - Send, or stop the reply being streamed
  Esc          - Stop the reply being streamed
  Ctrl+N       - New chat
  Ctrl+D       - Delete the selected chat
  Tab          - Switch between the session list and the composer
  /            - Filter sessions (in the session list)
  Ctrl+C       - Quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	addChatFlags(chatCmd)
	rootCmd.AddCommand(chatCmd)
}

// addChatFlags registers the flags that pick the reply source and storage.
func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagMock, "mock", false, "Use the local mock stream (overrides stream.mode)")
	cmd.Flags().StringVar(&flagRemote, "remote", "", "Stream replies from this backend URL")
	cmd.Flags().BoolVar(&flagEphemeral, "ephemeral", false, "Keep sessions in memory only")
	cmd.MarkFlagsMutuallyExclusive("mock", "remote")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	_, log, ctrl, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer ctrl.Close()

	log.Info("chat started", zap.Int("sessions", len(ctrl.Sessions())))
	return chat.Run(ctx, chat.Options{
		Backend: ctrl,
		Styles:  ui.NewStyles(os.Stdout),
		Logger:  log,
	})
}
