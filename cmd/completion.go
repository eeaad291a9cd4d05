package cmd

import (
	"strings"

	"github.com/samsaffron/term-chat/internal/controller"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/spf13/cobra"
)

// sessionCompletions lists "id\ttitle" pairs for sessions whose id starts
// with toComplete. Failures produce no completions.
func sessionCompletions(cmd *cobra.Command, toComplete string) []string {
	var completions []string
	_ = withSessions(cmd.Context(), func(ctrl *controller.Controller) error {
		for _, s := range ctrl.Sessions() {
			if toComplete != "" && !session.MatchesRef(s.ID, toComplete) {
				continue
			}
			completions = append(completions, s.ID+"\t"+strings.ReplaceAll(s.Title, "\t", " "))
		}
		return nil
	})
	return completions
}

// SessionArgCompletion completes the session reference of sessions subcommands.
func SessionArgCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		// export takes a file path second
		return nil, cobra.ShellCompDirectiveDefault
	}
	return sessionCompletions(cmd, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// SessionFlagCompletion handles --session flag completion.
func SessionFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return sessionCompletions(cmd, toComplete), cobra.ShellCompDirectiveNoFileComp
}
