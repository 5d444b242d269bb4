package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xgov/config"
	"github.com/ftahirops/xgov/engine"
)

var (
	flagProfileSave bool

	profileCmd = &cobra.Command{
		Use:   "profile [name]",
		Short: "List profiles or apply one",
		Long: `A profile switches the power plan, the governor and foreground follow
in one step. Without a name, the available profiles are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProfile,
	}
)

func init() {
	profileCmd.Flags().BoolVar(&flagProfileSave, "save", true, "remember the profile in the config file")
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, name := range engine.ProfileNames() {
			p, _ := engine.LookupProfile(name)
			fmt.Printf("%-10s %s\n", p.Name, p.Description)
			fmt.Printf("%-10s power=%s governor=%t follow=%t foreground=%s\n", "", p.PowerPlan, p.Governor, p.Follow, p.ForegroundClass)
		}
		return nil
	}

	ctx := cmd.Context()
	s, err := newSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	s.orch.SampleOnce(ctx)
	if err := s.orch.ApplyProfile(ctx, args[0]); err != nil {
		return fmt.Errorf("%w (known: %s)", err, strings.Join(engine.ProfileNames(), ", "))
	}
	p, _ := engine.LookupProfile(args[0])
	fmt.Printf("Profile %s applied.\n", p.Name)

	if flagProfileSave {
		cfg := s.cfg
		cfg.Profile = strings.ToLower(p.Name)
		cfg.GovernorEnabled = p.Governor
		cfg.FollowForeground = p.Follow
		if err := config.Save(s.configPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}
	return nil
}
