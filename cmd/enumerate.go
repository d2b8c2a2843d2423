package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/eguinet/internal/pipeline"
)

var enumerateCmd = &cobra.Command{
	Use:   "enumerate",
	Short: "List the dispatch ordinals without writing anything",
	Example: `  eguinet enumerate
  eguinet enumerate --native > egui_fn.rs
  eguinet enumerate --json`,
	Args: cobra.NoArgs,
	Run:  runEnumerate,
}

var (
	enumerateNative  bool
	enumerateJSON    bool
	enumerateSkipped bool
)

func init() {
	enumerateCmd.Flags().BoolVar(&enumerateNative, "native", false, "print the native dispatch source instead of the table")
	enumerateCmd.Flags().BoolVar(&enumerateJSON, "json", false, "output as JSON")
	enumerateCmd.Flags().BoolVar(&enumerateSkipped, "skipped", false, "also list functions that were not enumerated, with the reason")
}

type slotOutput struct {
	Ordinal   uint32 `json:"ordinal"`
	Key       string `json:"key"`
	State     string `json:"state"`
	Signature string `json:"signature,omitempty"`
}

func runEnumerate(cmd *cobra.Command, args []string) {
	res := mustRun(pipeline.Options{Stop: pipeline.Enumerated})
	e := res.Enumeration

	if enumerateNative {
		os.Stdout.Write(res.Native)
		return
	}

	var slots []slotOutput
	for _, s := range e.Slots() {
		out := slotOutput{Ordinal: s.Ordinal, Key: s.Variant, State: "reserved"}
		if d := s.Descriptor; d != nil {
			out.Signature = d.Signature()
			out.State = "bound"
			if !d.Bound {
				out.State = "unbound"
			}
		}
		slots = append(slots, out)
	}

	if enumerateJSON {
		out, _ := json.MarshalIndent(slots, "", "  ")
		fmt.Println(string(out))
		return
	}

	for _, s := range slots {
		fmt.Printf("  %4d  %-8s %-45s %s\n", s.Ordinal, s.State, s.Key, s.Signature)
	}
	if enumerateSkipped {
		for _, d := range e.Diagnostics {
			fmt.Printf("     -  skipped  %-45s %s\n", d.Subject, d.Detail)
		}
	}
	fmt.Printf("%d ordinals, %d reserved, %d skipped\n", e.Len(), len(e.Reserved), len(e.Diagnostics))
}
