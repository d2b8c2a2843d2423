package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jcdickinson/eguinet/internal/config"
	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/history"
	"github.com/jcdickinson/eguinet/internal/pipeline"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the native dispatch enum and the managed C# surface",
	Long: `Load the configured rustdoc inputs, trace the schema, enumerate functions and
write the registry, ordinal lock, native source and managed sources. Files
whose content is unchanged are left untouched.`,
	Example: `  eguinet generate
  eguinet generate --dry-run
  eguinet --config ci/eguinet.toml generate --record`,
	Args: cobra.NoArgs,
	Run:  runGenerate,
}

var (
	generateDryRun bool
	generateRecord bool
	generateQuiet  bool
)

func init() {
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "report what would change without writing")
	generateCmd.Flags().BoolVar(&generateRecord, "record", false, "record the run in the history database (also enabled by history.enabled)")
	generateCmd.Flags().BoolVarP(&generateQuiet, "quiet", "q", false, "do not list unchanged files")
}

func runGenerate(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	p, res, err := runPipeline(ctx, pipeline.Options{DryRun: generateDryRun})
	if generateRecord || cfg.History.Enabled {
		recordRun(ctx, p, res)
	}
	if err != nil {
		logger.Fatal("generation failed", zap.Error(err))
	}

	printChanges(res.Changes, generateDryRun, generateQuiet)
	printDiagnostics(res)
}

func recordRun(ctx context.Context, p *pipeline.Pipeline, res *pipeline.Result) {
	db, err := openHistory()
	if err != nil {
		logger.Warn("history unavailable", zap.Error(err))
		return
	}
	defer db.Close()
	run, err := db.Record(ctx, cfg.Generate.Inputs, p, res)
	if err != nil {
		logger.Warn("failed to record run", zap.Error(err))
		return
	}
	logger.Info("recorded run", zap.Stringer("id", run.ID), zap.Int("seq", run.Seq))
}

func openHistory() (*history.DB, error) {
	path := cfg.History.Path
	if path == "" {
		path = config.DBPath()
	}
	return history.Open(path)
}

func printChanges(changes []pipeline.FileChange, dryRun, quiet bool) {
	verb := ""
	if dryRun {
		verb = " (dry run)"
	}
	counts := make(map[pipeline.Change]int)
	for _, c := range changes {
		counts[c.Change]++
		if quiet && c.Change == pipeline.Unchanged {
			continue
		}
		fmt.Printf("  %-9s %s\n", c.Change, c.Path)
	}
	fmt.Printf("%d created, %d updated, %d removed, %d unchanged%s\n",
		counts[pipeline.Created], counts[pipeline.Updated], counts[pipeline.Removed], counts[pipeline.Unchanged], verb)
}

func printDiagnostics(res *pipeline.Result) {
	summary := res.Summary()
	if len(summary) == 0 {
		return
	}
	kinds := make([]string, 0, len(summary))
	for k := range summary {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("%d %s\n", summary[bgerr.Kind(k)], k)
	}
	for _, d := range res.Diagnostics {
		logger.Debug("diagnostic",
			zap.String("kind", string(d.Kind)),
			zap.String("subject", d.Subject),
			zap.String("detail", d.Detail))
	}
}
