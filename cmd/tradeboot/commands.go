package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vantor/tradeboot"
	"github.com/vantor/tradeboot/internal/deps"
	"github.com/vantor/tradeboot/internal/interp"
	"github.com/vantor/tradeboot/internal/metrics"
)

type command struct {
	out io.Writer
	in  io.Reader
}

func (c command) loadConfig(globalFlags *GlobalFlags) (tradeboot.Config, error) {
	cfg, err := tradeboot.LoadConfig(globalFlags.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Run executes the full launch sequence and maps the outcome onto the
// launcher's exit-code contract: 0 on success, 1 on a fatal setup error,
// 2 when the main program exits non-zero. All three paths pause for
// acknowledgment unless non-interactive mode is set.
func (c command) Run(globalFlags *GlobalFlags, runFlags RunFlags) error {
	cfg, err := c.loadConfig(globalFlags)
	if err != nil {
		return err
	}
	cfg.NonInteractive = cfg.NonInteractive || runFlags.NonInteractive
	cfg.Debug = cfg.Debug || runFlags.Debug

	log := tradeboot.NewLogger(os.Stderr, cfg.Debug)
	launcher := tradeboot.New(cfg, log)
	defer launcher.Close()

	if cfg.Metrics.Enabled {
		if err := tradeboot.RegisterMetricsDefault(); err != nil {
			log.Warn("metrics registration failed", "error", err)
		}
		srv := tradeboot.NewHTTPServer(cfg.Metrics.Listen, "", launcher, metrics.Handler())
		defer func() { _ = srv.Close() }()
	}

	outcome, err := launcher.Run(context.Background())
	if err != nil {
		c.printSetupGuidance(err)
		c.waitForAck(cfg.NonInteractive)
		return exitError{code: tradeboot.ExitSetupFailed, err: err}
	}
	if outcome.MainExitCode != 0 {
		_, _ = fmt.Fprintf(c.out, "main program exited with code %d. Check the files under %s for details.\n",
			outcome.MainExitCode, cfg.Log.Dir)
		c.waitForAck(cfg.NonInteractive)
		return exitError{
			code: tradeboot.ExitMainFailed,
			err:  fmt.Errorf("main program exited with code %d", outcome.MainExitCode),
		}
	}
	_, _ = fmt.Fprintln(c.out, "main program finished normally.")
	if outcome.MonitorPID != 0 {
		_, _ = fmt.Fprintf(c.out, "monitor keeps running with PID %d (use 'tradeboot status' to probe it).\n", outcome.MonitorPID)
	}
	c.waitForAck(cfg.NonInteractive)
	return nil
}

func (c command) printSetupGuidance(err error) {
	switch {
	case errors.Is(err, interp.ErrInterpreterNotFound):
		_, _ = fmt.Fprintln(c.out, "fatal: Python interpreter not found or not runnable.")
		_, _ = fmt.Fprintln(c.out, "Install Python 3 and point [interpreter] path at it (or put it on PATH).")
	case errors.Is(err, interp.ErrPipUnavailable):
		_, _ = fmt.Fprintln(c.out, "fatal: pip is not callable through the interpreter.")
		_, _ = fmt.Fprintln(c.out, "Repair the installation, e.g. 'python3 -m ensurepip --upgrade'.")
	default:
		_, _ = fmt.Fprintf(c.out, "fatal: %v\n", err)
	}
}

// Check verifies the interpreter and pip, then reports which dependency
// modules import cleanly. Nothing is installed and nothing is spawned.
func (c command) Check(globalFlags *GlobalFlags, checkFlags CheckFlags) error {
	cfg, err := c.loadConfig(globalFlags)
	if err != nil {
		return err
	}
	log := tradeboot.NewLogger(os.Stderr, cfg.Debug || checkFlags.Debug)
	launcher := tradeboot.New(cfg, log)
	defer launcher.Close()

	ctx := context.Background()
	it, err := launcher.Preflight(ctx)
	if err != nil {
		c.printSetupGuidance(err)
		return exitError{code: tradeboot.ExitSetupFailed, err: err}
	}
	_, _ = fmt.Fprintf(c.out, "interpreter: %s\n", it.Path)

	results := deps.Check(ctx, it, cfg.Deps.Packages)
	for _, res := range results {
		state := "present"
		if !res.Present {
			state = "missing (would install " + res.Package.Install + ")"
		}
		_, _ = fmt.Fprintf(c.out, "  %-12s %s\n", res.Package.Module, state)
	}
	return nil
}

// Deps runs the provisioning half of the launch: verify the toolchain and
// install whatever is missing, without spawning any program.
func (c command) Deps(globalFlags *GlobalFlags, depsFlags DepsFlags) error {
	cfg, err := c.loadConfig(globalFlags)
	if err != nil {
		return err
	}
	log := tradeboot.NewLogger(os.Stderr, cfg.Debug || depsFlags.Debug)
	launcher := tradeboot.New(cfg, log)
	defer launcher.Close()

	ctx := context.Background()
	it, err := launcher.Preflight(ctx)
	if err != nil {
		c.printSetupGuidance(err)
		return exitError{code: tradeboot.ExitSetupFailed, err: err}
	}
	for _, res := range launcher.EnsureDeps(ctx, it) {
		switch {
		case res.Present:
			_, _ = fmt.Fprintf(c.out, "  %-12s present\n", res.Package.Module)
		case res.Installed:
			_, _ = fmt.Fprintf(c.out, "  %-12s installed (%s)\n", res.Package.Module, res.Package.Install)
		default:
			_, _ = fmt.Fprintf(c.out, "  %-12s install failed: %v\n", res.Package.Module, res.Err)
		}
	}
	return nil
}

// Status probes the monitor's PID file and prints the result as JSON.
func (c command) Status(globalFlags *GlobalFlags) error {
	cfg, err := c.loadConfig(globalFlags)
	if err != nil {
		return err
	}
	launcher := tradeboot.New(cfg, tradeboot.NewLogger(io.Discard, false))
	defer launcher.Close()
	alive, pid, meta, err := launcher.MonitorStatus()
	if err != nil {
		return err
	}
	type statusOut struct {
		Running   bool   `json:"running"`
		PID       int    `json:"pid,omitempty"`
		Name      string `json:"name,omitempty"`
		StartUnix int64  `json:"start_unix,omitempty"`
		PIDFile   string `json:"pid_file"`
	}
	out := statusOut{Running: alive, PIDFile: cfg.MonitorPIDFile()}
	if alive {
		out.PID = pid
		out.Name = meta.Name
		out.StartUnix = meta.StartUnix
	}
	printJSON(c.out, out)
	return nil
}

// Version prints the build version.
func (c command) Version() {
	_, _ = fmt.Fprintf(c.out, "tradeboot %s\n", version)
}
