package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ftahirops/xgov/config"
)

// DaemonConfig holds daemon-specific configuration.
type DaemonConfig struct {
	StateDir    string
	ConfigPath  string // watched for hot reload when set
	MetricsAddr string // empty disables the /metrics listener
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// RunDaemon runs the orchestrator headless until ctx is done, alongside the
// metrics listener and the config watcher.
func RunDaemon(ctx context.Context, o *Orchestrator, cfg DaemonConfig) error {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
		pidPath := filepath.Join(cfg.StateDir, "daemon.pid")
		if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer os.Remove(pidPath)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.Run(ctx) })

	if cfg.MetricsAddr != "" && cfg.Gatherer != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.ConfigPath != "" {
		w := config.NewWatcher(cfg.ConfigPath, 0, o.ApplyConfig, log.Named("config"))
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				// a missing config directory only disables hot reload
				log.Warn("config watch disabled", zap.Error(err))
			}
			return nil
		})
	}

	log.Info("daemon started", zap.Int("pid", os.Getpid()), zap.String("state_dir", cfg.StateDir))
	return g.Wait()
}
