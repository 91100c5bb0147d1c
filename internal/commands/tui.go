package commands

import (
	"context"
	"io"

	"github.com/urfave/cli/v3"

	"msmanager/internal/dashboard"
	"msmanager/ui/tui"
)

// cmdTUI opens the interactive dashboard. It is also the default action.
func cmdTUI() *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Open the interactive dashboard",
		Action: runTUI,
	}
}

func runTUI(ctx context.Context, cmd *cli.Command) error {
	picker := tui.NewFolderPicker()
	// Logs would paint over the alternate screen.
	e, err := openEnv(ctx, cmd, io.Discard, dashboard.WithFolderPicker(picker))
	if err != nil {
		return err
	}
	defer e.Close()

	return tui.Run(ctx, e.rec, picker)
}
