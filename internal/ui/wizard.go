package ui

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/samsaffron/term-chat/internal/config"
)

// ErrAborted is returned when the user backs out of a prompt.
var ErrAborted = errors.New("aborted")

// RunSetupWizard asks where replies come from and where sessions are kept,
// starting from base. base is not modified.
func RunSetupWizard(base *config.Config) (*config.Config, error) {
	cfg := *base

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should replies come from?").
				Options(
					huh.NewOption("Local mock stream (no network)", "mock"),
					huh.NewOption("Remote streaming backend", "remote"),
				).
				Value(&cfg.Stream.Mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Backend base URL").
				Description("The stream is posted to <base>/api/chat/stream").
				Value(&cfg.Stream.BaseURL).
				Validate(validateBaseURL),
		).WithHideFunc(func() bool { return cfg.Stream.Mode != "remote" }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should sessions be stored?").
				Options(
					huh.NewOption("JSON file", "file"),
					huh.NewOption("SQLite database", "sqlite"),
					huh.NewOption("Redis", "redis"),
					huh.NewOption("Memory only (lost on exit)", "memory"),
				).
				Value(&cfg.Storage.Backend),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Redis URL").
				Placeholder("redis://localhost:6379/0").
				Value(&cfg.Storage.RedisURL).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("required for the redis backend")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return cfg.Storage.Backend != "redis" }),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, ErrAborted
		}
		return nil, err
	}
	return &cfg, nil
}

func validateBaseURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("base URL is required")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return fmt.Errorf("not a URL: %q", s)
	}
	return nil
}

// Confirm asks a yes/no question, defaulting to no.
func Confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
