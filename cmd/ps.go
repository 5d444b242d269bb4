package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ftahirops/xgov/model"
)

var (
	flagSort   string
	flagFilter string
	flagJSON   bool
	flagLimit  int

	psCmd = &cobra.Command{
		Use:   "ps",
		Short: "Print one process snapshot and exit",
		Long: `Samples twice one interval apart so CPU usage is meaningful, then
prints the process list. --json emits the snapshot with health flags
for scripting.`,
		Example: `  xgov ps --sort memory --limit 10
  xgov ps --filter chrome
  xgov ps --json | jq '.processes[0]'`,
		Args: cobra.NoArgs,
		RunE: runPS,
	}
)

func init() {
	f := psCmd.Flags()
	f.StringVar(&flagSort, "sort", "cpu", "sort key: cpu, memory, pid, name")
	f.StringVar(&flagFilter, "filter", "", "show only names containing this text")
	f.BoolVar(&flagJSON, "json", false, "output JSON")
	f.IntVar(&flagLimit, "limit", 25, "rows to print (0 for all)")
	rootCmd.AddCommand(psCmd)
}

type psReport struct {
	Timestamp     time.Time                 `json:"timestamp"`
	CoreCount     int                       `json:"core_count"`
	ForegroundPID int                       `json:"foreground_pid"`
	Processes     []model.ProcessSnapshot   `json:"processes"`
	Health        map[int]model.HealthFlags `json:"health,omitempty"`
	Suggestions   []model.Suggestion        `json:"suggestions,omitempty"`
}

func runPS(cmd *cobra.Command, _ []string) error {
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

	snap := s.orch.Snapshot()
	if snap == nil {
		return fmt.Errorf("no processes sampled")
	}
	procs := s.orch.Processes(model.ParseSortKey(flagSort), flagFilter)
	if flagLimit > 0 && len(procs) > flagLimit {
		procs = procs[:flagLimit]
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(psReport{
			Timestamp:     snap.Timestamp,
			CoreCount:     snap.CoreCount,
			ForegroundPID: snap.ForegroundPID,
			Processes:     procs,
			Health:        s.orch.Health(),
			Suggestions:   s.orch.Suggestions(ctx),
		})
	}

	fmt.Printf("%-7s %-28s %6s %9s  %s\n", "PID", "NAME", "CPU%", "RSS", "ROLE")
	for _, p := range procs {
		fmt.Printf("%-7d %-28s %6.1f %9s  %s\n",
			p.PID, truncate(p.Name, 28), p.CPUPct, humanize.IBytes(p.RSSBytes), p.Role)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
