package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"msmanager/internal/api"
	"msmanager/internal/dashboard"
)

// cmdChannel switches the release channel.
func cmdChannel() *cli.Command {
	return &cli.Command{
		Name:      "channel",
		Usage:     "Select the release channel (stable, beta or nightly)",
		ArgsUsage: "<channel>",
		Action:    setChannel,
	}
}

// cmdProfile switches the firmware profile.
func cmdProfile() *cli.Command {
	return &cli.Command{
		Name:      "profile",
		Usage:     "Select the firmware profile",
		ArgsUsage: "<profile>",
		Action:    setProfile,
	}
}

// cmdPin pins a release tag; without an argument it follows the latest.
func cmdPin() *cli.Command {
	return &cli.Command{
		Name:      "pin",
		Usage:     "Pin a release tag, or follow the latest release when no tag is given",
		ArgsUsage: "[tag]",
		Action:    setPin,
	}
}

func setChannel(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return errChannelRequired
	}
	ch, err := api.ParseChannel(name)
	if err != nil {
		return err
	}
	return withSelection(ctx, cmd, func(e *env) dashboard.Outcome {
		return e.rec.SetChannel(ctx, ch)
	})
}

func setProfile(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return errProfileRequired
	}
	return withSelection(ctx, cmd, func(e *env) dashboard.Outcome {
		return e.rec.SetProfile(ctx, name)
	})
}

func setPin(ctx context.Context, cmd *cli.Command) error {
	tag := cmd.Args().First()
	return withSelection(ctx, cmd, func(e *env) dashboard.Outcome {
		e.rec.RefreshTags(ctx)
		return e.rec.SetPinnedTag(ctx, tag)
	})
}

// withSelection loads the current selection, applies change and prints the
// resulting selection.
func withSelection(ctx context.Context, cmd *cli.Command, change func(*env) dashboard.Outcome) error {
	e, err := openEnv(ctx, cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.rec.RefreshStatus(ctx); err != nil {
		return err
	}
	if err := e.outcomeErr(change(e), errActionSkipped); err != nil {
		return err
	}

	printSelection(cmd, e.rec.State())
	return nil
}

func printSelection(cmd *cli.Command, s dashboard.State) {
	w := stdout(cmd)
	pin := "latest"
	if s.PinnedTag != "" {
		pin = s.PinnedTag
	}
	fmt.Fprintf(w, "channel: %s\nprofile: %s\npinned:  %s\n", s.Channel, s.Profile, pin)
	if s.Release != nil {
		if s.Release.Available {
			fmt.Fprintf(w, "release: %s\n", s.Release.Tag)
		} else {
			fmt.Fprintf(w, "release: none (%s)\n", orNone(s.Release.Message))
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "no release"
	}
	return s
}
