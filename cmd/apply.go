package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xgov/model"
)

var (
	flagPriority string
	flagGuard    string
	flagLevel    int
	flagPreset   string
	flagOff      bool
	flagYes      bool
	flagMeasure  time.Duration

	applyCmd = &cobra.Command{
		Use:   "apply <action> <pid>...",
		Short: "Apply one resource control to processes",
		Long: `Actions: priority, memprio, trim, affinity, throttle, contain,
suspend, resume, terminate.

Each pid is handled independently; one failure does not stop the rest.
Protected system processes are refused. terminate asks for confirmation
unless --yes is given.

With --measure the command waits, samples again and records the CPU and
memory effect of each change in the effect history.`,
		Example: `  xgov apply priority --priority "below normal" 4242
  xgov apply affinity --preset first2 4242 4243
  xgov apply throttle 4242
  xgov apply terminate --yes 4242`,
		Args: cobra.MinimumNArgs(2),
		RunE: runApply,
	}
)

func init() {
	f := applyCmd.Flags()
	f.StringVar(&flagPriority, "priority", "below normal", "priority class: idle, below normal, normal, above normal, high, realtime")
	f.StringVar(&flagGuard, "guard", "none", "priority guard: none, down (only lower), up (only raise)")
	f.IntVar(&flagLevel, "level", int(model.MemoryPriorityLow), "memory priority level 1 (very low) to 4 (high)")
	f.StringVar(&flagPreset, "preset", "", "affinity preset: all, even, odd, first2")
	f.BoolVar(&flagOff, "off", false, "switch throttling off instead of on")
	f.BoolVar(&flagYes, "yes", false, "confirm terminate without prompting")
	f.DurationVar(&flagMeasure, "measure", 0, "wait this long, then record the effect of each change")
	rootCmd.AddCommand(applyCmd)
}

// buildSpec turns the action name and flags into an ActionSpec.
func buildSpec(action string) (model.ActionSpec, error) {
	kind, err := model.ParseActionKind(action)
	if err != nil {
		return model.ActionSpec{}, err
	}
	spec := model.ActionSpec{Kind: kind}
	switch kind {
	case model.KindPriority:
		if spec.Priority, err = model.ParsePriorityClass(flagPriority); err != nil {
			return spec, err
		}
		switch strings.ToLower(flagGuard) {
		case "", "none":
		case "down", "downgrade":
			spec.Guard = model.GuardDowngradeOnly
		case "up", "upgrade":
			spec.Guard = model.GuardUpgradeOnly
		default:
			return spec, fmt.Errorf("unknown guard %q", flagGuard)
		}
	case model.KindMemPrio:
		spec.MemoryLevel = model.MemoryPriority(flagLevel)
	case model.KindAffinity:
		if flagPreset == "" {
			return spec, fmt.Errorf("affinity needs --preset")
		}
		spec.AffinityPreset = flagPreset
	case model.KindThrottle:
		spec.Throttle = !flagOff
	}
	return spec, nil
}

func parsePIDs(args []string) ([]int, error) {
	pids := make([]int, 0, len(args))
	for _, a := range args {
		pid, err := strconv.Atoi(a)
		if err != nil || pid <= 0 {
			return nil, fmt.Errorf("invalid pid %q", a)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// confirm asks on the terminal; anything but y/yes declines.
func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func runApply(cmd *cobra.Command, args []string) error {
	spec, err := buildSpec(args[0])
	if err != nil {
		return err
	}
	pids, err := parsePIDs(args[1:])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	s, err := newSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()
	if err := s.orch.WarmUp(ctx); err != nil {
		return err
	}

	if spec.Kind == model.KindTerminate {
		spec.Confirmed = flagYes || confirm(fmt.Sprintf("Terminate %d process(es)?", len(pids)))
	}

	applied := time.Now()
	outcomes := s.orch.ApplyAction(ctx, pids, spec)
	printOutcomes(outcomes)

	if flagMeasure > 0 {
		if err := sleepCtx(ctx, max(flagMeasure, s.cfg.SettleDelay)); err != nil {
			return err
		}
		s.orch.SampleOnce(ctx)
		s.orch.SettleOnce(ctx)
		for _, rec := range s.orch.EffectHistory(len(outcomes)) {
			if rec.T0.Before(applied) {
				continue
			}
			fmt.Printf("effect  pid %-7d %-24s CPU %+.1f%%  MEM %+.0f MB\n", rec.PID, rec.Action, rec.DCPU, rec.DMem)
		}
	}

	for _, o := range outcomes {
		if !o.OK() && o.Status != model.StatusUnsupported {
			return fmt.Errorf("%d of %d targets not changed", countFailed(outcomes), len(outcomes))
		}
	}
	return nil
}

func printOutcomes(outcomes []model.Outcome) {
	for _, o := range outcomes {
		line := fmt.Sprintf("%-11s pid %-7d %s", o.Status, o.PID, o.Kind)
		if o.Reason != "" {
			line += "  " + o.Reason
		}
		fmt.Println(line)
	}
}

func countFailed(outcomes []model.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK() && o.Status != model.StatusUnsupported {
			n++
		}
	}
	return n
}
