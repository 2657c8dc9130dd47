// cmd/synthctl/root.go
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/VidSynth/vidsynth-studio-go/internal/config"
	"github.com/VidSynth/vidsynth-studio-go/internal/gateway"
)

// commandContext carries the lazily built collaborators shared by all
// subcommands.
type commandContext struct {
	backendFlag *string
	client      *gateway.Client
	logger      *slog.Logger
}

func newCommandContext(backendFlag *string) *commandContext {
	return &commandContext{
		backendFlag: backendFlag,
		logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// gatewayClient builds the HTTP gateway client once, preferring the
// --backend flag over the configured backend URL.
func (c *commandContext) gatewayClient() (*gateway.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	base := ""
	if c.backendFlag != nil {
		base = *c.backendFlag
	}
	if base == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		base = cfg.BackendURL
	}

	c.client = gateway.NewClient(base)
	return c.client, nil
}

func newRootCommand() *cobra.Command {
	var backendFlag string

	ctx := newCommandContext(&backendFlag)

	rootCmd := &cobra.Command{
		Use:           "synthctl",
		Short:         "Synthesis studio CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Base URL of the synthd backend")

	rootCmd.AddCommand(newCatalogCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newRenameCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))

	return rootCmd
}
