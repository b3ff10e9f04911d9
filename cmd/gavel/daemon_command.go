package main

import (
	"strings"

	"github.com/spf13/cobra"

	"gavel/internal/config"
	"gavel/internal/daemonrun"
)

// newDaemonRunCommand is the hidden entry point `gavel start` launches in a
// detached child process.
func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the gavel daemon (internal)",
		Hidden:       true,
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel: resolveLogLevel(logLevel, cfg),
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	return cmd
}

// newForegroundCommand runs the daemon attached to the terminal, which is the
// convenient shape for systemd units and debugging sessions.
func newForegroundCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Run the gavel daemon in the foreground",
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    resolveLogLevel(logLevel, cfg),
				Development: true,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	return cmd
}

func resolveLogLevel(flagValue string, cfg *config.Config) string {
	if level := strings.TrimSpace(flagValue); level != "" {
		return level
	}
	if cfg != nil {
		return cfg.Logging.Level
	}
	return ""
}
