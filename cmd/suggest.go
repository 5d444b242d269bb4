package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagApplySuggestions bool

	suggestCmd = &cobra.Command{
		Use:   "suggest",
		Short: "Show advisor findings, optionally acting on them",
		Args:  cobra.NoArgs,
		RunE:  runSuggest,
	}
)

func init() {
	suggestCmd.Flags().BoolVar(&flagApplySuggestions, "apply", false, "apply every actionable suggestion once")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	s.orch.FollowOnce(ctx)
	if err := s.orch.WarmUp(ctx); err != nil {
		return err
	}
	s.orch.RefreshOnce(ctx)

	suggestions := s.orch.Suggestions(ctx)
	if len(suggestions) == 0 {
		fmt.Println("No suggestions right now.")
		return nil
	}
	for _, sg := range suggestions {
		action := sg.Action
		if action == "" {
			action = "-"
		}
		fmt.Printf("%-7d %-24s %-15s %s\n", sg.PID, truncate(sg.Name, 24), action, sg.Reason)
	}
	if flagApplySuggestions {
		fmt.Println()
		printOutcomes(s.orch.ApplySuggestions(ctx))
	}
	return nil
}
