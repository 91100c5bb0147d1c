package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"msmanager/internal/activity"
	"msmanager/internal/api"
	"msmanager/internal/dashboard"
	"msmanager/internal/journal"
	"msmanager/internal/logging"
	"msmanager/internal/sim"
)

// env is everything one command invocation talks to.
type env struct {
	backend api.Backend
	events  api.EventSource
	log     *activity.Log
	rec     *dashboard.Reconciler
	journal *journal.Journal

	closers []func() error
}

// openEnv configures logging, connects to the backend, opens the activity
// archive and builds a reconciler over them.
func openEnv(ctx context.Context, cmd *cli.Command, logOut io.Writer, opts ...dashboard.Option) (*env, error) {
	e := &env{}
	closeLog, err := setupLogging(cmd, logOut)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeLog)

	if err := e.openBackend(ctx, cmd); err != nil {
		e.Close()
		return nil, err
	}

	cfg := dashboard.DefaultConfig().
		WithDevicePollInterval(cmd.Duration("device-poll")).
		WithBridgePollInterval(cmd.Duration("bridge-poll")).
		WithPollTimeout(cmd.Duration("poll-timeout")).
		WithActivityLimit(int(cmd.Int("activity-limit")))

	e.log = activity.New(cfg.ActivityLimit,
		activity.WithSink(activity.LoggerSink{Logger: logging.Logger(logging.SourceActivity)}))

	if err := e.openJournal(ctx, cmd); err != nil {
		e.Close()
		return nil, err
	}

	e.rec, err = dashboard.New(cfg, e.backend, e.events, e.log, opts...)
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) openBackend(ctx context.Context, cmd *cli.Command) error {
	if url := cmd.String("backend-url"); url != "" {
		c := api.NewClient(url)
		e.backend, e.events = c, c
		logging.Logger(logging.SourceApp).Info("using remote backend", "url", url)
		return nil
	}

	path := cmd.String("state-file")
	if path == "" {
		var err error
		if path, err = dataPath("state.db"); err != nil {
			return err
		}
	}
	store, err := sim.OpenStore(path)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, store.Close)

	opts := []sim.Option{sim.WithStepDelay(cmd.Duration("step-delay"))}
	if root := cmd.String("payload-root"); root != "" {
		opts = append(opts, sim.WithPayloadRoot(root))
	}
	if n := int(cmd.Int("fake-controllers")); n > 0 {
		opts = append(opts, sim.WithProbe(sim.NewStaticProbe(fakeTargets(n)...)))
	}
	b, err := sim.New(store, opts...)
	if err != nil {
		return err
	}
	e.backend, e.events = b, b
	logging.Logger(logging.SourceApp).Debug("using simulated backend", "state", path)
	return nil
}

func fakeTargets(n int) []api.DeviceTarget {
	out := make([]api.DeviceTarget, 0, n)
	for i := range n {
		out = append(out, api.DeviceTarget{
			ID:     fmt.Sprintf("sim:%d", i+1),
			Kind:   api.TargetSerial,
			Port:   fmt.Sprintf("/dev/ttyACM%d", i),
			Serial: fmt.Sprintf("SIM%04d", i+1),
		})
	}
	return out
}

func (e *env) openJournal(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("no-journal") {
		return nil
	}
	path := cmd.String("journal")
	if path == "" {
		var err error
		if path, err = dataPath("activity.duckdb"); err != nil {
			return err
		}
	}
	j, err := journal.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to open activity archive: %w", err)
	}
	e.journal = j
	e.closers = append(e.closers, j.Close)

	w := journal.NewWorker(j)
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	e.closers = append(e.closers, w.Stop)
	e.log.AddSink(w)
	return nil
}

// follow routes live install and flash events into the reconciler for
// commands that do not start a full session.
func (e *env) follow(ctx context.Context) (func(), error) {
	if e.events == nil {
		return func() {}, nil
	}
	installSub, err := e.events.SubscribeInstall(ctx, e.rec.HandleInstallEvent)
	if err != nil {
		return nil, err
	}
	flashSub, err := e.events.SubscribeFlash(ctx, e.rec.HandleFlashEvent)
	if err != nil {
		_ = installSub.Unsubscribe()
		return nil, err
	}
	return func() {
		_ = flashSub.Unsubscribe()
		_ = installSub.Unsubscribe()
	}, nil
}

// Close releases everything in reverse order of acquisition.
func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// outcomeErr turns a non-applied outcome into an error for the shell.
func (e *env) outcomeErr(o dashboard.Outcome, noop error) error {
	switch o {
	case dashboard.Applied:
		return nil
	case dashboard.Failed:
		if le := e.rec.State().LastError; le != nil {
			return le
		}
		return errors.New("action failed")
	default:
		return noop
	}
}
