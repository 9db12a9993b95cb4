package main

import (
	"github.com/spf13/cobra"

	"squeeze/internal/daemonrun"
)

// newDaemonRunCommand returns the hidden foreground daemon runner that
// `squeeze start` launches as a detached child.
func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:          "daemon",
		Short:        "Run the squeeze daemon (internal)",
		Hidden:       true,
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var socketPath string
			if ctx.socketFlag != nil {
				socketPath = *ctx.socketFlag
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   ctx.logLevel(),
				SocketPath: socketPath,
			})
		},
	}
}
