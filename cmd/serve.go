package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samsaffron/term-chat/internal/serve"
	"github.com/spf13/cobra"
)

var (
	serveAddr  string
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local streaming backend",
	Long: `Run an HTTP backend that speaks the same streaming protocol the chat
client consumes. It does not generate answers: each reply acknowledges the
turn and echoes the prompt back, chunk by chunk.

Endpoints:
  POST /api/chat/stream   {"session_id": "...", "user_text": "..."}
  GET  /healthz

Examples:
  term-chat serve
  term-chat serve --addr :9000 --token secret
  term-chat --remote http://127.0.0.1:8787   # in another terminal`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default serve.addr)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Require this bearer token (default serve.token)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}
	if serveToken != "" {
		cfg.Serve.Token = serveToken
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Sync()

	srv := serve.New(serve.Config{
		Addr:   cfg.Serve.Addr,
		Token:  cfg.Serve.Token,
		Logger: log,
	})
	return srv.Run(ctx, func(addr string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
	})
}
