package cli

import (
	"errors"

	"l3v3l_server/config"
	"l3v3l_server/logger"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the loaded configuration.
type RootOptions struct {
	ConfigDir string
	LogLevel  string

	Config config.Config
}

var errNoJWTSecret = errors.New("jwt.secret is required (set L3V3L_JWT_SECRET)")

// NewRootCommand creates the root command for the l3v3l server binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "l3v3l",
		Short: "L3V3L contact privacy and notification backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var dirs []string
			if opts.ConfigDir != "" {
				dirs = append(dirs, opts.ConfigDir)
			}
			cfg, err := config.Load(dirs...)
			if err != nil {
				return err
			}
			if opts.LogLevel != "" {
				cfg.LogLevel = opts.LogLevel
			}
			if err := logger.SetLevel(cfg.LogLevel); err != nil {
				return err
			}
			opts.Config = cfg
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "", "directory containing config.yaml")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWorkerCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}
