package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xgov/config"
	"github.com/ftahirops/xgov/engine"
)

var (
	flagEffectsExport string
	flagEffectsLast   int
	flagEventsLast    int

	effectsCmd = &cobra.Command{
		Use:   "effects",
		Short: "Show measured before/after effects of past actions",
		Args:  cobra.NoArgs,
		RunE:  runEffects,
	}

	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "Show the engine event log",
		Args:  cobra.NoArgs,
		RunE:  runEvents,
	}
)

func init() {
	effectsCmd.Flags().StringVar(&flagEffectsExport, "export", "", "write the full history as JSON to this file")
	effectsCmd.Flags().IntVarP(&flagEffectsLast, "last", "n", 20, "records to print (0 for all)")
	eventsCmd.Flags().IntVarP(&flagEventsLast, "last", "n", 50, "events to print (0 for all)")
	rootCmd.AddCommand(effectsCmd, eventsCmd)
}

func runEffects(_ *cobra.Command, _ []string) error {
	cfg, _ := loadConfig()
	store := engine.NewHistoryStore(filepath.Join(config.StateDir(cfg), engine.EffectsHistoryFile))
	recs, err := store.Load()
	if err != nil {
		return err
	}
	if flagEffectsExport != "" {
		if err := engine.Export(flagEffectsExport, recs); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Printf("Exported %d record(s) to %s\n", len(recs), flagEffectsExport)
		return nil
	}
	if len(recs) == 0 {
		fmt.Println("No effects recorded yet.")
		return nil
	}
	if flagEffectsLast > 0 && len(recs) > flagEffectsLast {
		recs = recs[len(recs)-flagEffectsLast:]
	}
	fmt.Printf("%-8s %-7s %-24s %8s %8s %9s %9s\n", "TIME", "PID", "ACTION", "CPU0", "CPU1", "dCPU", "dMEM MB")
	for _, r := range recs {
		fmt.Printf("%-8s %-7d %-24s %7.1f%% %7.1f%% %+8.1f%% %+9.0f\n",
			r.T1.Format("15:04:05"), r.PID, truncate(r.Action, 24), r.CPU0, r.CPU1, r.DCPU, r.DMem)
	}
	return nil
}

func runEvents(_ *cobra.Command, _ []string) error {
	cfg, _ := loadConfig()
	events, err := engine.ReadEventLog(filepath.Join(config.StateDir(cfg), engine.EventLogFile))
	if err != nil {
		return err
	}
	if flagEventsLast > 0 && len(events) > flagEventsLast {
		events = events[len(events)-flagEventsLast:]
	}
	for _, e := range events {
		fmt.Printf("%s  %-7s %s\n", e.Time.Format(time.DateTime), e.Kind, e.Message)
	}
	return nil
}
