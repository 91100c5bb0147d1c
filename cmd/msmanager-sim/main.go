package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"msmanager/internal/api"
	"msmanager/internal/logging"
	"msmanager/internal/sim"
	"msmanager/internal/simserver"
)

func main() {
	_ = godotenv.Load()

	app := &cli.Command{
		Name:  "msmanager-sim",
		Usage: "Serve a simulated firmware backend over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   "127.0.0.1:7420",
				Sources: cli.EnvVars("MSM_SIM_ADDR"),
				Usage:   "listen address",
			},
			&cli.StringFlag{
				Name:    "state-file",
				Value:   "msmanager-sim.db",
				Sources: cli.EnvVars("MSM_STATE_FILE"),
				Usage:   "bbolt file holding settings, install state and the last flash",
			},
			&cli.StringFlag{
				Name:    "payload-root",
				Sources: cli.EnvVars("MSM_PAYLOAD_ROOT"),
				Usage:   "payload root used until one is stored",
			},
			&cli.DurationFlag{
				Name:    "step-delay",
				Value:   250 * time.Millisecond,
				Sources: cli.EnvVars("MSM_STEP_DELAY"),
				Usage:   "simulated time per install or flash step",
			},
			&cli.IntFlag{
				Name:    "fake-controllers",
				Sources: cli.EnvVars("MSM_FAKE_CONTROLLERS"),
				Usage:   "report this many simulated controllers instead of probing USB",
			},
			&cli.BoolFlag{
				Name:  "fail-flash",
				Usage: "make every flash fail",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("MSM_LOG_LEVEL"),
			},
		},
		Action: serve,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	logging.Configure(logging.Options{Output: os.Stderr, Level: logging.ParseLevel(cmd.String("log-level"))})
	logger := logging.Logger(logging.SourceApp)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sim.OpenStore(cmd.String("state-file"))
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []sim.Option{sim.WithStepDelay(cmd.Duration("step-delay"))}
	if root := cmd.String("payload-root"); root != "" {
		opts = append(opts, sim.WithPayloadRoot(root))
	}
	if n := int(cmd.Int("fake-controllers")); n > 0 {
		targets := make([]api.DeviceTarget, 0, n)
		for i := range n {
			targets = append(targets, api.DeviceTarget{
				ID:   fmt.Sprintf("sim:%d", i+1),
				Kind: api.TargetSerial,
				Port: fmt.Sprintf("/dev/ttyACM%d", i),
			})
		}
		opts = append(opts, sim.WithProbe(sim.NewStaticProbe(targets...)))
	}

	backend, err := sim.New(store, opts...)
	if err != nil {
		return err
	}
	backend.SetFlashFailure(cmd.Bool("fail-flash"))

	logger.Info("simulated backend ready", "addr", cmd.String("addr"), "state", cmd.String("state-file"))
	return simserver.New(backend).Run(ctx, cmd.String("addr"))
}
