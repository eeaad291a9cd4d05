package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samsaffron/term-chat/internal/controller"
	"github.com/samsaffron/term-chat/internal/exitcode"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/samsaffron/term-chat/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	askSession string
	askNew     bool
	askText    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send one prompt and stream the reply to stdout",
	Long: `Send a prompt to a session and stream the assistant reply as it arrives.
The exchange is stored like any other turn and shows up in the chat UI.

Examples:
  term-chat ask "What is the capital of France?"
  term-chat ask --new "Start a fresh thread"
  term-chat ask --session 3f2a "Follow up on that"
  term-chat ask --text "List 5 programming languages" | less`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "Session id or prefix to continue (default: the active session)")
	askCmd.Flags().BoolVar(&askNew, "new", false, "Start a new session")
	askCmd.Flags().BoolVarP(&askText, "text", "t", false, "Output plain text instead of rendered markdown")
	askCmd.MarkFlagsMutuallyExclusive("session", "new")
	if err := askCmd.RegisterFlagCompletionFunc("session", SessionFlagCompletion); err != nil {
		panic(fmt.Sprintf("failed to register session completion: %v", err))
	}
	addChatFlags(askCmd)
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return exitcode.ExitError{Code: exitcode.Usage, Message: "prompt is empty"}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	_, log, ctrl, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer ctrl.Close()

	target, err := askTarget(ctx, ctrl)
	if err != nil {
		return err
	}
	log.Debug("ask", zap.String("session_id", target.ID))

	out := cmd.OutOrStdout()
	useGlamour := !askText && isTerminal(out)

	tail := &replyTail{ctrl: ctrl, sessionID: target.ID}
	var outcome controller.Outcome
	var sendErr error
	if useGlamour {
		outcome, sendErr, err = askWithBubbleTea(ctx, ctrl, tail, prompt, out)
		if err != nil {
			return err
		}
	} else {
		ctrl.Subscribe(func(change controller.Change) {
			if change == controller.ChangeDelta {
				io.WriteString(out, tail.next())
			}
		})
		outcome, sendErr = ctrl.SendMessage(ctx, target.ID, prompt)
		if tail.printed > 0 {
			fmt.Fprintln(out)
		}
	}

	return askResult(outcome, sendErr)
}

// askTarget picks the session a prompt goes to.
func askTarget(ctx context.Context, ctrl *controller.Controller) (session.Session, error) {
	switch {
	case askNew:
		return ctrl.NewSession(ctx), nil
	case askSession != "":
		sess, err := ctrl.Resolve(askSession)
		if err != nil {
			return session.Session{}, err
		}
		ctrl.SelectSession(ctx, sess.ID)
		return sess, nil
	}
	sess, ok := ctrl.ActiveSession()
	if !ok {
		return ctrl.NewSession(ctx), nil
	}
	return sess, nil
}

func askResult(outcome controller.Outcome, err error) error {
	switch outcome {
	case controller.OutcomeCompleted:
		return nil
	case controller.OutcomeAborted:
		return exitcode.Cancel()
	case controller.OutcomeFailed:
		return exitcode.Failed(err.Error())
	default:
		return fmt.Errorf("prompt was not sent")
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// replyTail hands out the part of the streaming reply not yet printed.
type replyTail struct {
	ctrl      *controller.Controller
	sessionID string
	printed   int
}

func (r *replyTail) next() string {
	sess, ok := r.ctrl.Session(r.sessionID)
	if !ok {
		return ""
	}
	msg, ok := sess.LastMessage()
	if !ok || msg.Role != session.RoleAssistant || len(msg.Content) <= r.printed {
		return ""
	}
	chunk := msg.Content[r.printed:]
	r.printed = len(msg.Content)
	return chunk
}

// askModel renders the reply as markdown while it streams.
type askModel struct {
	spinner   spinner.Model
	content   strings.Builder
	output    <-chan string
	width     int
	done      bool
	finalView string
}

type chunkMsg string

type doneMsg struct{}

func newAskModel(output <-chan string, width int) *askModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &askModel{spinner: s, output: output, width: width}
}

func (m *askModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForChunk(m.output))
}

func waitForChunk(output <-chan string) tea.Cmd {
	return func() tea.Msg {
		chunk, ok := <-output
		if !ok {
			return doneMsg{}
		}
		return chunkMsg(chunk)
	}
}

func (m *askModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "esc" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case chunkMsg:
		m.content.WriteString(string(msg))
		return m, waitForChunk(m.output)

	case doneMsg:
		m.done = true
		m.finalView = m.render()
		return m, tea.Quit
	}
	return m, nil
}

func (m *askModel) render() string {
	if m.content.Len() == 0 {
		return ""
	}
	return strings.TrimSpace(ui.RenderMarkdown(m.content.String(), m.width)) + "\n"
}

func (m *askModel) View() string {
	if m.done {
		return m.finalView
	}
	if m.content.Len() == 0 {
		return m.spinner.View() + " Waiting for reply..."
	}
	return m.render()
}

// askWithBubbleTea streams the reply through a small inline program. The
// third return value reports a failure of the program itself.
func askWithBubbleTea(ctx context.Context, ctrl *controller.Controller, tail *replyTail, prompt string, out io.Writer) (controller.Outcome, error, error) {
	output := make(chan string)
	quit := make(chan struct{})
	ctrl.Subscribe(func(change controller.Change) {
		if change != controller.ChangeDelta {
			return
		}
		chunk := tail.next()
		if chunk == "" {
			return
		}
		select {
		case output <- chunk:
		case <-quit:
		}
	})

	type result struct {
		outcome controller.Outcome
		err     error
	}
	resCh := make(chan result, 1)
	go func() {
		outcome, err := ctrl.SendMessage(ctx, tail.sessionID, prompt)
		close(output)
		resCh <- result{outcome, err}
	}()

	width := 80
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	p := tea.NewProgram(newAskModel(output, width), tea.WithOutput(out), tea.WithContext(ctx))
	_, runErr := p.Run()
	close(quit)
	ctrl.StopGenerating()
	res := <-resCh
	if runErr != nil && ctx.Err() == nil {
		return res.outcome, res.err, runErr
	}
	return res.outcome, res.err, nil
}
