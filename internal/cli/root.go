// Package cli wires the skinml commands.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/skinml/internal/config"
	"github.com/YuminosukeSato/skinml/pkg/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
}

// NewRootCmd builds the skinml command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "skinml",
		Short: "Train and run the skin-type quiz classifier",
		Long: `skinml fits a random forest that predicts a skin type from the seven
numeric answers of the skin quiz, and writes the model together with its
label encoder.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML configuration file (defaults are used when empty)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: console or json")
	pf.StringVar(&opts.logFile, "log-file", "", "also write JSON logs to this rotating file")

	cmd.AddCommand(newTrainCmd(opts), newPredictCmd(opts))
	return cmd
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// loadConfig returns the defaults, or the --config file over them, with the
// persistent log flags applied. The caller validates after its own overrides.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = o.logFile
	}
	return cfg, nil
}

func setupLogger(cmd *cobra.Command, cfg *config.Config) (log.Logger, io.Closer, error) {
	opts := cfg.Log.Options()
	opts.Out = cmd.ErrOrStderr()
	return log.Setup(opts)
}
