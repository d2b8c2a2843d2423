package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jcdickinson/eguinet/internal/config"
	"github.com/jcdickinson/eguinet/internal/pipeline"
	"github.com/jcdickinson/eguinet/internal/rustdoc"
)

// version is stamped by the release build.
var version = "0.1.0-dev"

var (
	debug      bool
	configPath string

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "eguinet",
	Short: "Generate C# bindings for egui from rustdoc JSON",
	Long: `eguinet reads rustdoc JSON for egui and its companion crates, traces the
wire layout of every reachable type, assigns stable dispatch ordinals to the
bindable functions and emits the native dispatch enum plus the managed C#
surface.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose log output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to eguinet.toml (default: ./eguinet.toml or $XDG_CONFIG_HOME/eguinet)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(enumerateCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(mcpCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	l, err := newLogger(debug)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	logger = l
	rustdoc.SetLogger(l.Named("rustdoc"))
	pipeline.SetLogger(l.Named("pipeline"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Debug("configuration loaded", zap.String("file", viper.ConfigFileUsed()))
	return nil
}

// newLogger logs human-readable lines to a terminal and JSON otherwise.
func newLogger(debug bool) (*zap.Logger, error) {
	var zc zap.Config
	if fd := os.Stderr.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
		zc.Level.SetLevel(zapcore.InfoLevel)
	} else {
		zc = zap.NewProductionConfig()
	}
	if debug {
		zc.Level.SetLevel(zapcore.DebugLevel)
	}
	return zc.Build()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runPipeline runs the generator with the loaded configuration. On failure
// the partial result is still returned.
func runPipeline(ctx context.Context, opts pipeline.Options) (*pipeline.Pipeline, *pipeline.Result, error) {
	p := pipeline.New(cfg, opts)
	res, err := p.Run(ctx)
	return p, res, err
}

// mustRun runs the pipeline and exits on failure.
func mustRun(opts pipeline.Options) *pipeline.Result {
	ctx, cancel := signalContext()
	defer cancel()
	_, res, err := runPipeline(ctx, opts)
	if err != nil {
		logger.Fatal("generation failed", zap.Error(err))
	}
	return res
}
