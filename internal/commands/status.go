package commands

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"msmanager/internal/output"
	"msmanager/ui/console"
)

// cmdStatus prints a one-shot health report.
func cmdStatus() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Print the dashboard as a one-shot report",
		Action: status,
	}
}

func status(ctx context.Context, cmd *cli.Command) error {
	e, err := openEnv(ctx, cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	snap, err := output.RunSnapshot(ctx, e.rec)
	if err != nil {
		return err
	}
	console.Print(stdout(cmd), snap.Report)
	return nil
}
