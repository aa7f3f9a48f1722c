package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rohits-web03/meshforge/internal/config"
	"github.com/rohits-web03/meshforge/internal/telemetry"
)

type rootOptions struct {
	endpoint string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "forgectl",
		Short:         "Turns photos into a 3D model from the terminal",
		Long:          `forgectl submits 1 or 4 photos to the image-to-3D endpoint and shows progress until the model is ready.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&opts.endpoint, "endpoint", config.Envs.Generation.Endpoint, "image-to-3D endpoint URL")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newGenerateCmd(opts))
	return rootCmd
}

func (o *rootOptions) logger() *zap.Logger {
	return telemetry.NewLogger(config.LogConfig{Level: o.logLevel, Format: "console"})
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
