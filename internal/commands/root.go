package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"msmanager/internal/logging"
)

// Root builds the msmanager command tree. Running it without a subcommand
// opens the dashboard.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "msmanager",
		Usage:   "Install, pin and flash controller firmware",
		Version: BuildDisplayVersion(),
		Flags:   globalFlags(),
		Action:  runTUI,
		Commands: []*cli.Command{
			cmdTUI(),
			cmdStatus(),
			cmdInstall(),
			cmdFlash(),
			cmdChannel(),
			cmdProfile(),
			cmdPin(),
			cmdRelocate(),
			cmdHistory(),
			cmdMCP(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Sources: cli.EnvVars("MSM_LOG_LEVEL"),
			Usage:   "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:    "log-file",
			Sources: cli.EnvVars("MSM_LOG_FILE"),
			Usage:   "write logs to this file instead of stderr (the dashboard discards them otherwise)",
		},
		&cli.StringFlag{
			Name:    "backend-url",
			Sources: cli.EnvVars("MSM_BACKEND_URL"),
			Usage:   "talk to a running backend (e.g. http://127.0.0.1:7420) instead of the in-process simulator",
		},
		&cli.StringFlag{
			Name:    "state-file",
			Sources: cli.EnvVars("MSM_STATE_FILE"),
			Usage:   "simulator state database (default: <config dir>/msmanager/state.db)",
		},
		&cli.StringFlag{
			Name:    "payload-root",
			Sources: cli.EnvVars("MSM_PAYLOAD_ROOT"),
			Usage:   "simulator payload root used until one is stored",
		},
		&cli.DurationFlag{
			Name:    "step-delay",
			Value:   150 * time.Millisecond,
			Sources: cli.EnvVars("MSM_STEP_DELAY"),
			Usage:   "simulated time per install or flash step",
		},
		&cli.IntFlag{
			Name:    "fake-controllers",
			Sources: cli.EnvVars("MSM_FAKE_CONTROLLERS"),
			Usage:   "report this many simulated controllers instead of probing USB",
		},
		&cli.StringFlag{
			Name:    "journal",
			Sources: cli.EnvVars("MSM_JOURNAL"),
			Usage:   "activity archive database (default: <config dir>/msmanager/activity.duckdb)",
		},
		&cli.BoolFlag{
			Name:    "no-journal",
			Sources: cli.EnvVars("MSM_NO_JOURNAL"),
			Usage:   "do not archive activity",
		},
		&cli.DurationFlag{
			Name:    "device-poll",
			Value:   4 * time.Second,
			Sources: cli.EnvVars("MSM_DEVICE_POLL"),
			Usage:   "controller presence poll interval",
		},
		&cli.DurationFlag{
			Name:    "bridge-poll",
			Value:   2 * time.Second,
			Sources: cli.EnvVars("MSM_BRIDGE_POLL"),
			Usage:   "bridge health poll interval",
		},
		&cli.DurationFlag{
			Name:    "poll-timeout",
			Value:   3 * time.Second,
			Sources: cli.EnvVars("MSM_POLL_TIMEOUT"),
			Usage:   "deadline for a single poll",
		},
		&cli.IntFlag{
			Name:    "activity-limit",
			Value:   500,
			Sources: cli.EnvVars("MSM_ACTIVITY_LIMIT"),
			Usage:   "activity entries kept in memory",
		},
	}
}

// setupLogging installs the process logger. fallback receives the logs
// when no --log-file was given.
func setupLogging(cmd *cli.Command, fallback io.Writer) (func() error, error) {
	level := logging.ParseLevel(cmd.String("log-level"))

	path := cmd.String("log-file")
	if path == "" {
		logging.Configure(logging.Options{Output: fallback, Level: level})
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logging.Configure(logging.Options{Output: f, Level: level})
	return f.Close, nil
}

// dataPath resolves name inside the per-user msmanager directory.
func dataPath(name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	dir = filepath.Join(dir, "msmanager")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return filepath.Join(dir, name), nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
