package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/eguinet/internal/pipeline"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fail if the generated files are out of date",
	Long: `Run the whole pipeline without writing and exit with status 1 when any
output would be created, updated or removed. Intended for CI.`,
	Args: cobra.NoArgs,
	Run:  runCheck,
}

var checkStrict bool

func init() {
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "also fail when any function was skipped or any field is unsupported")
}

func runCheck(cmd *cobra.Command, args []string) {
	res := mustRun(pipeline.Options{DryRun: true})

	stale := 0
	for _, c := range res.Changes {
		if c.Change != pipeline.Unchanged {
			fmt.Printf("  %-9s %s\n", c.Change, c.Path)
			stale++
		}
	}
	printDiagnostics(res)

	if stale > 0 {
		fmt.Printf("%d generated files are out of date; run eguinet generate\n", stale)
		os.Exit(1)
	}
	if checkStrict && len(res.Diagnostics) > 0 {
		fmt.Printf("%d diagnostics with --strict\n", len(res.Diagnostics))
		os.Exit(1)
	}
	fmt.Println("generated files are up to date")
}
