package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ftahirops/xgov/collector"
	"github.com/ftahirops/xgov/config"
	"github.com/ftahirops/xgov/engine"
	"github.com/ftahirops/xgov/platform"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

var (
	flagConfig   string
	flagLogLevel string
	flagLogJSON  bool

	rootCmd = &cobra.Command{
		Use:   "xgov",
		Short: "Process governor and telemetry console",
		Long: `xgov watches every process, keeps the focused app responsive and
tames background load with reversible priority, memory, affinity,
throttle and containment controls.

Run without a subcommand to open the interactive console.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTop,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default $XDG_CONFIG_HOME/xgov/config.yaml)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.BoolVar(&flagLogJSON, "log-json", false, "emit JSON logs")
}

// Run parses the command line and executes the selected command.
func Run() error {
	return rootCmd.Execute()
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.Path()
}

// loadConfig reads the config file. A broken file is reported and the
// defaults are used so the tool stays usable.
func loadConfig() (config.Config, string) {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	return cfg, path
}

// newLogger builds the process logger. outputs defaults to stderr; the
// console redirects it to a file so log lines do not tear the screen.
func newLogger(cfg config.Config, outputs ...string) (*zap.Logger, error) {
	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var zc zap.Config
	if flagLogJSON || cfg.Log.JSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if len(outputs) > 0 {
		zc.OutputPaths = outputs
		zc.ErrorOutputPaths = outputs
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zc.Build()
}

// session is everything a command needs to drive the engine.
type session struct {
	cfg        config.Config
	configPath string
	stateDir   string
	log        *zap.Logger
	registry   *prometheus.Registry
	orch       *engine.Orchestrator
}

// newSession loads config, sets up logging and metrics, and builds the
// orchestrator against the live system. With console set, logs go to a
// file under the state dir instead of stderr.
func newSession(ctx context.Context, console bool) (*session, error) {
	cfg, path := loadConfig()
	stateDir := config.StateDir(cfg)
	var outputs []string
	if console {
		if stateDir != "" {
			if err := os.MkdirAll(stateDir, 0700); err != nil {
				return nil, fmt.Errorf("create state dir: %w", err)
			}
		}
		outputs = append(outputs, consoleLogPath(stateDir))
	}
	log, err := newLogger(cfg, outputs...)
	if err != nil {
		return nil, err
	}
	for _, note := range cfg.Validate() {
		log.Warn("config corrected", zap.String("note", note))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctrl := platform.NewController(platform.Options{Cores: collector.LogicalCores(ctx)})
	orch, err := engine.New(engine.Options{
		Controller:  ctrl,
		Source:      collector.PsutilSource{},
		Foreground:  platform.CommandForeground{Argv: cfg.ForegroundCommand},
		Config:      cfg,
		Logger:      log,
		Registerer:  reg,
		StateDir:    stateDir,
		MemoryUsage: collector.MemoryUsedPercent,
		SelfPID:     os.Getpid(),
		ParentPID:   os.Getppid(),
	})
	if err != nil {
		log.Sync()
		return nil, err
	}
	if os.Geteuid() != 0 {
		log.Debug("running unprivileged; raising priority and containing other users' processes will be refused")
	}
	return &session{
		cfg:        cfg,
		configPath: path,
		stateDir:   stateDir,
		log:        log,
		registry:   reg,
		orch:       orch,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) close() {
	_ = s.log.Sync()
}

// consoleLogPath is where the interactive console writes its log.
func consoleLogPath(stateDir string) string {
	if stateDir == "" {
		return filepath.Join(os.TempDir(), "xgov.log")
	}
	return filepath.Join(stateDir, "xgov.log")
}
