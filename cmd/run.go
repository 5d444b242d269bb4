package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ftahirops/xgov/engine"
)

var (
	flagMetricsAddr string
	flagNoWatch     bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the engine headless (daemon mode)",
		Long: `Runs sampling, the governor, foreground follow, rules and effect
measurement until interrupted. Config edits are picked up live.`,
		Args: cobra.NoArgs,
		RunE: runDaemon,
	}
)

func init() {
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	runCmd.Flags().BoolVar(&flagNoWatch, "no-watch", false, "do not reload the config file on change")
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	if s.cfg.Profile != "" {
		if err := s.orch.ApplyProfile(ctx, s.cfg.Profile); err != nil {
			s.log.Warn("startup profile ignored", zap.String("profile", s.cfg.Profile), zap.Error(err))
		}
	}

	dc := engine.DaemonConfig{
		StateDir: s.stateDir,
		Gatherer: s.registry,
		Logger:   s.log,
	}
	if !flagNoWatch {
		dc.ConfigPath = s.configPath
	}
	switch {
	case flagMetricsAddr != "":
		dc.MetricsAddr = flagMetricsAddr
	case s.cfg.Prometheus.Enabled:
		dc.MetricsAddr = s.cfg.Prometheus.Addr
	}
	return engine.RunDaemon(ctx, s.orch, dc)
}
