package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"msmanager/internal/dashboard"
)

// cmdInstall installs the selected release.
func cmdInstall() *cli.Command {
	return &cli.Command{
		Name:   "install",
		Usage:  "Install the selected release and profile",
		Action: install,
	}
}

// cmdFlash flashes the connected controller.
func cmdFlash() *cli.Command {
	return &cli.Command{
		Name:  "flash",
		Usage: "Flash the installed firmware onto the connected controller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "firmware profile (default: the selected profile)",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "confirm that the controller may be rebooted and overwritten",
			},
		},
		Action: flash,
	}
}

// cmdRelocate moves the payload root.
func cmdRelocate() *cli.Command {
	return &cli.Command{
		Name:      "relocate",
		Usage:     "Move the installed payload to another folder",
		ArgsUsage: "<folder>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "confirm the move",
			},
		},
		Action: relocate,
	}
}

func install(ctx context.Context, cmd *cli.Command) error {
	e, err := openEnv(ctx, cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	stop, err := e.follow(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if err := e.rec.RefreshStatus(ctx); err != nil {
		return err
	}
	if err := e.outcomeErr(e.rec.Install(ctx), errActionSkipped); err != nil {
		return err
	}

	st := e.rec.State()
	if st.Installed != nil {
		fmt.Fprintf(stdout(cmd), "installed %s (%s) from %s\n", st.Installed.Tag, st.Installed.Profile, st.Installed.Channel)
	}
	return nil
}

func flash(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return errAckRequired
	}

	e, err := openEnv(ctx, cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	stop, err := e.follow(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if err := e.rec.RefreshStatus(ctx); err != nil {
		return err
	}
	profile := strings.TrimSpace(cmd.String("profile"))
	if profile == "" {
		profile = e.rec.State().Profile
	}

	p := mpb.NewWithContext(ctx, mpb.WithOutput(stdout(cmd)), mpb.WithWidth(60))
	bar := p.AddBar(100,
		mpb.PrependDecorators(
			decor.Name("Flashing "+profile+": "),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO), "done!"),
		),
	)
	unsub := e.rec.Subscribe(func(s dashboard.State) {
		if pct := int64(s.FlashPercent); pct > bar.Current() {
			bar.SetCurrent(pct)
		}
	})

	e.rec.OpenFlashModal(profile)
	e.rec.SetFlashAck(true)
	outcome := e.rec.ConfirmFlashModal(ctx)
	unsub()

	if outcome == dashboard.Applied {
		bar.SetCurrent(100)
	} else {
		bar.Abort(false)
	}
	p.Wait()

	if err := e.outcomeErr(outcome, errActionSkipped); err != nil {
		return err
	}
	if lf := e.rec.State().LastFlashed; lf != nil {
		fmt.Fprintf(stdout(cmd), "flashed %s (%s)\n", lf.Tag, lf.Profile)
	}
	return nil
}

func relocate(ctx context.Context, cmd *cli.Command) error {
	root := strings.TrimSpace(cmd.Args().First())
	if root == "" {
		return errPathRequired
	}
	if !cmd.Bool("yes") {
		return errAckRequired
	}

	e, err := openEnv(ctx, cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.rec.RefreshStatus(ctx); err != nil {
		return err
	}
	e.rec.OpenRelocateModal()
	e.rec.SetRelocateRoot(root)
	e.rec.SetRelocateAck(true)
	if err := e.outcomeErr(e.rec.ConfirmRelocateModal(ctx), errActionSkipped); err != nil {
		return err
	}

	fmt.Fprintf(stdout(cmd), "payload root: %s\n", e.rec.State().PayloadRoot)
	return nil
}
