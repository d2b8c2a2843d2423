package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jcdickinson/eguinet/internal/mcp"
	"github.com/jcdickinson/eguinet/internal/pipeline"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the traced types and enumerated functions over MCP (stdio)",
	Long: `Run the pipeline up to emission without writing, then answer MCP tool calls
about the result: list_types, describe_type, lookup_function and
coverage_gaps. Generated sources are exposed as resources.`,
	Args: cobra.NoArgs,
	Run:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) {
	res := mustRun(pipeline.Options{Stop: pipeline.Emitted, DryRun: true})

	server := mcp.NewServer(res, version)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	ctx, cancel := signalContext()
	defer cancel()
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}
}
