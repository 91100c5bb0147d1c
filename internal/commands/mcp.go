package commands

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"msmanager/internal/mcpserver"
)

// cmdMCP serves the dashboard to MCP clients over stdio.
func cmdMCP() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve read-only dashboard tools over MCP (stdio)",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "refresh-interval",
				Value:   mcpserver.DefaultConfig().RefreshInterval,
				Sources: cli.EnvVars("MSM_MCP_REFRESH"),
				Usage:   "background refresh interval, 0 disables it",
			},
		},
		Action: serveMCP,
	}
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the protocol.
	e, err := openEnv(ctx, cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	cfg := mcpserver.DefaultConfig()
	cfg.ServerVersion = BuildDisplayVersion()
	cfg.RefreshInterval = cmd.Duration("refresh-interval")

	var history mcpserver.History
	if e.journal != nil {
		history = e.journal
	}
	srv, err := mcpserver.NewServer(cfg, e.rec, e.log, history)
	if err != nil {
		return err
	}
	defer srv.Close(context.Background())

	return srv.Start(ctx)
}
