package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/samsaffron/term-chat/internal/config"
	"github.com/samsaffron/term-chat/internal/exitcode"
	"github.com/samsaffron/term-chat/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create the config file",
	Long: `Show where term-chat reads its configuration from and what it resolves to.

Every setting can also be overridden with a TERM_CHAT_* environment variable,
for example TERM_CHAT_STREAM_MODE=remote or TERM_CHAT_STORAGE_BACKEND=sqlite.

Examples:
  term-chat config path
  term-chat config show
  term-chat config init`,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file",
	Long: `Create the config file. On a terminal this asks a few questions; otherwise
the defaults are written unless a file already exists.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func configPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return config.GetConfigPath()
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	shown := *cfg
	shown.Stream.Token = redact(shown.Stream.Token)
	shown.Serve.Token = redact(shown.Serve.Token)

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if !isTerminal(cmd.OutOrStdout()) || !stdinIsTerminal() {
		written, err := config.Init(path)
		if err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		if !written {
			fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", path)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
		return nil
	}

	if _, err := os.Stat(path); err == nil {
		overwrite, err := ui.Confirm(fmt.Sprintf("Overwrite %s?", path))
		if err != nil || !overwrite {
			return err
		}
	}
	cfg, err := ui.RunSetupWizard(config.Default())
	if errors.Is(err, ui.ErrAborted) {
		return exitcode.Cancel()
	}
	if err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", path)
	return nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
