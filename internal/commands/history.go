package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"msmanager/internal/activity"
	"msmanager/internal/journal"
)

// cmdHistory lists archived activity.
func cmdHistory() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List archived activity, oldest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 50,
				Usage: "number of entries",
			},
			&cli.StringFlag{
				Name:  "scope",
				Value: "all",
				Usage: "all, ui, net, install, flash, device or fs",
			},
		},
		Action: history,
	}
}

func history(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("no-journal") {
		return errJournalDisabled
	}
	closeLog, err := setupLogging(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	var scope activity.Scope
	if s := cmd.String("scope"); s != "" && s != "all" {
		sc, ok := activity.ParseScope(s)
		if !ok {
			return fmt.Errorf("invalid scope: %s", s)
		}
		scope = sc
	}

	path := cmd.String("journal")
	if path == "" {
		if path, err = dataPath("activity.duckdb"); err != nil {
			return err
		}
	}
	j, err := journal.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to open activity archive: %w", err)
	}
	defer j.Close()

	entries, err := j.Recent(ctx, int(cmd.Int("limit")), scope)
	if err != nil {
		return err
	}

	w := stdout(cmd)
	for i := len(entries) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "%s %s\n", entries[i].Time.Local().Format("2006-01-02"), activity.Line(entries[i]))
	}
	return nil
}
