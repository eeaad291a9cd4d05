package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/term-chat/internal/exitcode"
	pprofserver "github.com/samsaffron/term-chat/internal/pprof"
	"github.com/samsaffron/term-chat/internal/serve"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every state directory at a temp dir and keeps mock
// replies short.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("TERM_CHAT_STREAM_MOCK_REPLY", "Hello from mock")
	t.Setenv("TERM_CHAT_STREAM_MODE", "")
	t.Setenv("TERM_CHAT_STORAGE_BACKEND", "")
	return dir
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func listSessions(t *testing.T) []sessionSummary {
	t.Helper()
	out, err := runCLI(t, "sessions", "list", "--json")
	require.NoError(t, err)
	var summaries []sessionSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries), out)
	return summaries
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "term-chat version dev"), out)
}

func TestSessionsListSeedsWelcome(t *testing.T) {
	isolate(t)

	summaries := listSessions(t)
	require.Len(t, summaries, 1)
	assert.Equal(t, session.WelcomeTitle, summaries[0].Title)
	assert.True(t, summaries[0].Active)
	assert.Zero(t, summaries[0].Messages)

	out, err := runCLI(t, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, summaries[0].ID)
	assert.Contains(t, out, "* ")
}

func TestAskStreamsMockReplyAndPersists(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "ask", "hi", "there")
	require.NoError(t, err)
	assert.Equal(t, "Hello from mock\n", out)

	summaries := listSessions(t)
	require.Len(t, summaries, 1)
	assert.Equal(t, "hi there", summaries[0].Title)
	assert.Equal(t, 2, summaries[0].Messages)

	out, err = runCLI(t, "sessions", "show", summaries[0].ID, "--json")
	require.NoError(t, err)
	var sess session.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sess))
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, session.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, "hi there", sess.Messages[0].Content)
	assert.Equal(t, "Hello from mock", sess.Messages[1].Content)
}

func TestAskNewAndSessionFlags(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "ask", "first")
	require.NoError(t, err)
	_, err = runCLI(t, "ask", "--new", "second")
	require.NoError(t, err)

	summaries := listSessions(t)
	require.Len(t, summaries, 2)
	assert.Equal(t, "second", summaries[0].Title)
	assert.True(t, summaries[0].Active)

	_, err = runCLI(t, "ask", "--session", summaries[1].ID, "again")
	require.NoError(t, err)

	summaries = listSessions(t)
	require.Len(t, summaries, 2)
	assert.Equal(t, "first", summaries[0].Title)
	assert.Equal(t, 4, summaries[0].Messages)
	assert.True(t, summaries[0].Active)

	_, err = runCLI(t, "ask", "--session", "nope", "x")
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = runCLI(t, "ask", "--session", summaries[0].ID, "--new", "x")
	assert.Error(t, err)
}

func TestAskEmptyPromptIsUsageError(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "ask", "   ")
	var exitErr exitcode.ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, exitcode.Usage, exitErr.Code)
}

func TestAskEphemeralLeavesStoreUntouched(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "ask", "--ephemeral", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello from mock\n", out)

	summaries := listSessions(t)
	require.Len(t, summaries, 1)
	assert.Equal(t, session.WelcomeTitle, summaries[0].Title)
}

func TestAskAgainstLocalBackend(t *testing.T) {
	isolate(t)

	backend := serve.New(serve.Config{
		ChunkSize:  4,
		ChunkDelay: -1,
		Responder: func(userText string, turn int) (string, error) {
			return "echo: " + userText, nil
		},
	})
	srv := httptest.NewServer(backend.HTTPHandler())
	defer srv.Close()

	out, err := runCLI(t, "ask", "--remote", srv.URL, "ping")
	require.NoError(t, err)
	assert.Equal(t, "echo: ping\n", out)
}

func TestAskRemoteFailureRecordsMarker(t *testing.T) {
	isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	out, err := runCLI(t, "ask", "--remote", srv.URL, "ping")
	var exitErr exitcode.ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, exitcode.Error, exitErr.Code)
	assert.Equal(t, "request failed: 500", exitErr.Message)
	assert.Contains(t, out, "[stream error] request failed: 500")

	summaries := listSessions(t)
	out, err = runCLI(t, "sessions", "show", summaries[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "[stream error] request failed: 500")
}

func TestMockAndRemoteAreExclusive(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "ask", "--mock", "--remote", "http://localhost:1", "x")
	assert.Error(t, err)
}

func TestSessionsNewDeleteExport(t *testing.T) {
	dir := isolate(t)

	_, err := runCLI(t, "ask", "export me")
	require.NoError(t, err)
	out, err := runCLI(t, "sessions", "new")
	require.NoError(t, err)
	assert.Contains(t, out, "Created session:")

	summaries := listSessions(t)
	require.Len(t, summaries, 2)
	fresh, exported := summaries[0], summaries[1]
	assert.Equal(t, session.DefaultTitle, fresh.Title)

	out, err = runCLI(t, "sessions", "export", exported.ID, "-")
	require.NoError(t, err)
	assert.Contains(t, out, "# Session: export me")
	assert.Contains(t, out, "### Assistant\n\nHello from mock")

	path := filepath.Join(dir, "out.md")
	out, err = runCLI(t, "sessions", "export", exported.ID, path)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 messages")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "export me")

	out, err = runCLI(t, "sessions", "delete", fresh.ID)
	require.NoError(t, err)
	assert.Contains(t, out, fresh.ID)

	summaries = listSessions(t)
	require.Len(t, summaries, 1)
	assert.Equal(t, exported.ID, summaries[0].ID)
	assert.True(t, summaries[0].Active)

	_, err = runCLI(t, "sessions", "delete", "nope")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSessionsWithSQLiteBackend(t *testing.T) {
	dir := isolate(t)
	t.Setenv("TERM_CHAT_STORAGE_BACKEND", "sqlite")
	t.Setenv("TERM_CHAT_STORAGE_PATH", filepath.Join(dir, "chat.db"))

	_, err := runCLI(t, "ask", "stored in sqlite")
	require.NoError(t, err)

	summaries := listSessions(t)
	require.Len(t, summaries, 1)
	assert.Equal(t, "stored in sqlite", summaries[0].Title)
	assert.FileExists(t, filepath.Join(dir, "chat.db"))
}

func TestConfigCommands(t *testing.T) {
	dir := isolate(t)
	t.Setenv("TERM_CHAT_STREAM_TOKEN", "secret")

	out, err := runCLI(t, "config", "path")
	require.NoError(t, err)
	want := filepath.Join(dir, "config", "term-chat", "config.yaml")
	assert.Equal(t, want+"\n", out)

	out, err = runCLI(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default config")
	assert.FileExists(t, want)

	out, err = runCLI(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = runCLI(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "mode: mock")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "secret")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	isolate(t)
	t.Setenv("TERM_CHAT_STREAM_MODE", "carrier-pigeon")

	_, err := runCLI(t, "ask", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.mode")
}

func TestSessionCompletion(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "ask", "complete me")
	require.NoError(t, err)
	summaries := listSessions(t)
	require.Len(t, summaries, 1)

	sessionsShowCmd.SetContext(context.Background())
	got, directive := SessionArgCompletion(sessionsShowCmd, nil, summaries[0].ID[:4])
	assert.Equal(t, []string{summaries[0].ID + "\tcomplete me"}, got)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	got, _ = SessionArgCompletion(sessionsShowCmd, nil, "zzz")
	assert.Empty(t, got)

	_, directive = SessionArgCompletion(sessionsExportCmd, []string{"x"}, "")
	assert.Equal(t, cobra.ShellCompDirectiveDefault, directive)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	isolate(t)

	ctx, cancel := context.WithCancel(context.Background())
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- rootCmd.ExecuteContext(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestPprofCommand(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "pprof", "6060")
	require.NoError(t, err)
	assert.Contains(t, out, "http://127.0.0.1:6060/debug/pprof/")

	_, err = runCLI(t, "pprof")
	assert.ErrorContains(t, err, "no pprof server running")

	_, err = runCLI(t, "pprof", "abc")
	assert.Error(t, err)
}

func TestPprofFlagStartsAndStopsServer(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "version", "--pprof")
	require.NoError(t, err)
	assert.Contains(t, out, "pprof server: http://127.0.0.1:")
	assert.Contains(t, out, "term-chat version")

	_, running := pprofserver.IsServerRunning()
	assert.False(t, running)
}
