package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jcdickinson/eguinet/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded generator runs",
	Example: `  eguinet history
  eguinet history drift
  eguinet history coverage 3`,
	Args: cobra.NoArgs,
	Run:  runHistory,
}

var historyDriftCmd = &cobra.Command{
	Use:   "drift [from [to]]",
	Short: "Compare the dispatch ordinals of two runs",
	Long: `Compare two recorded runs by sequence number or id. Defaults to the two
most recent completed runs. Exits with status 1 when an ordinal moved or a
key vanished without a reserved slot.`,
	Args: cobra.MaximumNArgs(2),
	Run:  runHistoryDrift,
}

var historyCoverageCmd = &cobra.Command{
	Use:   "coverage [run]",
	Short: "Show bound, unbound and reserved ordinals of a run",
	Args:  cobra.MaximumNArgs(1),
	Run:   runHistoryCoverage,
}

var (
	historyLimit int
	historyJSON  bool
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max runs")
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "output as JSON")

	historyCmd.AddCommand(historyDriftCmd)
	historyCmd.AddCommand(historyCoverageCmd)
}

func mustOpenHistory() *history.DB {
	db, err := openHistory()
	if err != nil {
		logger.Fatal("opening history", zap.Error(err))
	}
	return db
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func runHistory(cmd *cobra.Command, args []string) {
	db := mustOpenHistory()
	defer db.Close()

	runs, err := db.Runs(context.Background(), historyLimit)
	if err != nil {
		logger.Fatal("listing runs", zap.Error(err))
	}
	if historyJSON {
		printJSON(runs)
		return
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return
	}
	for _, r := range runs {
		state := r.State
		if r.Failure != "" {
			state += " (" + r.Failure + ")"
		}
		fmt.Printf("  %4d  %s  %s  %-20s %d ordinals, %d reserved, %d diagnostics, %d changed\n",
			r.Seq, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.ID, state,
			r.Ordinals, r.Reserved, r.Diagnostics, r.Changed)
	}
}

// resolveRun accepts a sequence number or a run id.
func resolveRun(ctx context.Context, db *history.DB, arg string) *history.Run {
	if seq, err := strconv.Atoi(arg); err == nil {
		runs, err := db.Runs(ctx, int(^uint32(0)>>1))
		if err != nil {
			logger.Fatal("listing runs", zap.Error(err))
		}
		for i := range runs {
			if runs[i].Seq == seq {
				return &runs[i]
			}
		}
		logger.Fatal("no run with this sequence number", zap.Int("seq", seq))
	}
	id, err := uuid.Parse(arg)
	if err != nil {
		logger.Fatal("run must be a sequence number or id", zap.String("run", arg))
	}
	r, err := db.GetRun(ctx, id)
	if err != nil {
		logger.Fatal("reading run", zap.Error(err))
	}
	if r == nil {
		logger.Fatal("no run with this id", zap.String("id", arg))
	}
	return r
}

func latestComplete(ctx context.Context, db *history.DB, before int) *history.Run {
	r, err := db.LatestComplete(ctx, before)
	if err != nil {
		logger.Fatal("reading runs", zap.Error(err))
	}
	if r == nil {
		logger.Fatal("not enough completed runs recorded")
	}
	return r
}

func runHistoryDrift(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	db := mustOpenHistory()
	defer db.Close()

	var from, to *history.Run
	switch len(args) {
	case 2:
		from, to = resolveRun(ctx, db, args[0]), resolveRun(ctx, db, args[1])
	case 1:
		from, to = resolveRun(ctx, db, args[0]), latestComplete(ctx, db, 0)
	default:
		to = latestComplete(ctx, db, 0)
		from = latestComplete(ctx, db, to.Seq)
	}

	drift, err := db.Drift(ctx, from.ID, to.ID)
	if err != nil {
		logger.Fatal("comparing runs", zap.Error(err))
	}

	breaking := 0
	for _, d := range drift {
		if d.Breaking() {
			breaking++
		}
	}
	if historyJSON {
		printJSON(drift)
	} else {
		fmt.Printf("run %d -> run %d\n", from.Seq, to.Seq)
		for _, d := range drift {
			fmt.Printf("  %-9s %-45s %s -> %s\n", d.Kind, d.Key, ordinalString(d.Before), ordinalString(d.After))
		}
		if len(drift) == 0 {
			fmt.Println("  no ordinal changes")
		}
	}
	if breaking > 0 {
		logger.Error("ordinals are not stable", zap.Int("breaking", breaking))
		os.Exit(1)
	}
}

func ordinalString(n *uint32) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*n), 10)
}

func runHistoryCoverage(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	db := mustOpenHistory()
	defer db.Close()

	var run *history.Run
	if len(args) == 1 {
		run = resolveRun(ctx, db, args[0])
	} else {
		run = latestComplete(ctx, db, 0)
	}

	c, err := db.Coverage(ctx, run.ID)
	if err != nil {
		logger.Fatal("reading coverage", zap.Error(err))
	}
	diags, err := db.Diagnostics(ctx, run.ID)
	if err != nil {
		logger.Fatal("reading diagnostics", zap.Error(err))
	}
	if historyJSON {
		printJSON(struct {
			*history.Coverage
			Diagnostics []history.Diagnostic
		}{c, diags})
		return
	}

	total := c.Bound + c.Unbound
	pct := 100.0
	if total > 0 {
		pct = 100 * float64(c.Bound) / float64(total)
	}
	fmt.Printf("run %d: %d bound, %d unbound, %d reserved (%.1f%% dispatchable)\n",
		run.Seq, c.Bound, c.Unbound, c.Reserved, pct)
	for _, k := range c.UnboundKeys {
		fmt.Printf("  unbound  %s\n", k)
	}
	for _, d := range diags {
		fmt.Printf("  %-21s %s: %s\n", d.Kind, d.Subject, d.Detail)
	}
}
