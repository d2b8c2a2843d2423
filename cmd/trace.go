package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jcdickinson/eguinet/internal/pipeline"
	"github.com/jcdickinson/eguinet/internal/schema"
)

var traceCmd = &cobra.Command{
	Use:   "trace [type ...]",
	Short: "Print the traced type registry as YAML",
	Long: `Trace the configured inputs and print the registry in the serde-reflection
YAML layout. With arguments, only the named types are printed.`,
	Example: `  eguinet trace
  eguinet trace Vec2 Theme`,
	Run: runTrace,
}

func runTrace(cmd *cobra.Command, args []string) {
	res := mustRun(pipeline.Options{Stop: pipeline.Traced})

	reg := res.Registry
	if len(args) > 0 {
		reg = make(schema.Registry, len(args))
		for _, name := range args {
			c, ok := res.Registry[name]
			if !ok {
				logger.Fatal("type was not traced", zap.String("type", name))
			}
			reg[name] = c
		}
	}

	out, err := schema.Marshal(reg)
	if err != nil {
		logger.Fatal("rendering registry", zap.Error(err))
	}
	os.Stdout.Write(out)
}
