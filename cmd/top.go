package cmd

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ftahirops/xgov/config"
	"github.com/ftahirops/xgov/ui"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Interactive console (default)",
	Args:  cobra.NoArgs,
	RunE:  runTop,
}

func init() {
	rootCmd.AddCommand(topCmd)
}

func runTop(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := newSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()
	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "Warning: running without root; some controls will be refused")
	}

	if s.cfg.Profile != "" {
		if err := s.orch.ApplyProfile(ctx, s.cfg.Profile); err != nil {
			s.log.Warn("startup profile ignored", zap.String("profile", s.cfg.Profile), zap.Error(err))
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.orch.Run(ctx) }()

	if s.configPath != "" {
		w := config.NewWatcher(s.configPath, 0, s.orch.ApplyConfig, s.log.Named("config"))
		go func() {
			if err := w.Run(ctx); err != nil {
				s.log.Warn("config watch disabled", zap.Error(err))
			}
		}()
	}

	m := ui.NewModel(s.orch, ui.Options{
		Interval:   s.cfg.SampleInterval,
		ConfigPath: s.configPath,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	cancel()
	if runErr := <-done; runErr != nil && err == nil && ctx.Err() == nil {
		err = runErr
	}
	return err
}
