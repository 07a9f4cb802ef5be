package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vantor/tradeboot/internal/config"
	"github.com/vantor/tradeboot/internal/deps"
	"github.com/vantor/tradeboot/internal/detector"
	"github.com/vantor/tradeboot/internal/env"
	"github.com/vantor/tradeboot/internal/history"
	"github.com/vantor/tradeboot/internal/interp"
	"github.com/vantor/tradeboot/internal/logger"
	"github.com/vantor/tradeboot/internal/metrics"
	"github.com/vantor/tradeboot/internal/process"
)

// Exit codes reported by the CLI. Fatal setup errors and main-program
// failures are distinguishable for automation.
const (
	ExitSuccess     = 0
	ExitSetupFailed = 1
	ExitMainFailed  = 2
)

// Child process names used in logs, metrics and history.
const (
	NameMonitor = "monitor"
	NameMain    = "main"
)

// Outcome summarizes a completed run (setup succeeded, main program ran).
type Outcome struct {
	MainExitCode int
	MonitorPID   int
}

// Launcher executes the bootstrap sequence: verify interpreter, verify pip,
// ensure dependencies, prepare the log directory, spawn the detached monitor
// and run the main program in the foreground.
type Launcher struct {
	cfg  config.Config
	log  *slog.Logger
	sink history.Sink
}

// New builds a Launcher. The history sink is opened here when configured so
// a bad DSN surfaces before any child is spawned; sink failures downgrade to
// a warning rather than blocking the launch.
func New(cfg config.Config, log *slog.Logger) *Launcher {
	var sink history.Sink = history.NopSink{}
	if cfg.History.DSN != "" {
		s, err := history.NewSQLSinkFromDSN(cfg.History.DSN)
		if err != nil {
			log.Warn("launch history disabled", "dsn", cfg.History.DSN, "error", err)
		} else {
			sink = s
		}
	}
	return &Launcher{cfg: cfg, log: log, sink: sink}
}

// Close releases the history sink.
func (l *Launcher) Close() {
	_ = l.sink.Close()
}

func (l *Launcher) record(e history.Event) {
	e.OccurredAt = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.sink.Send(ctx, e); err != nil {
		l.log.Warn("history write failed", "event", e.Type, "error", err)
	}
}

// Preflight resolves and verifies the interpreter, then its pip subsystem.
// Both failures are fatal: no dependency check or spawn may follow.
func (l *Launcher) Preflight(ctx context.Context) (*interp.Interpreter, error) {
	it, err := interp.Resolve(l.cfg.Interpreter.Path)
	if err != nil {
		l.record(history.Event{Type: history.EventBootstrapFailed, Detail: err.Error()})
		return nil, err
	}
	checkCtx, cancel := context.WithTimeout(ctx, l.cfg.Interpreter.CheckTimeout)
	defer cancel()
	version, err := it.Verify(checkCtx)
	if err != nil {
		l.record(history.Event{Type: history.EventBootstrapFailed, Detail: err.Error()})
		return nil, err
	}
	l.log.Info("interpreter verified", "path", it.Path, "version", version)

	pipCtx, cancel2 := context.WithTimeout(ctx, l.cfg.Interpreter.CheckTimeout)
	defer cancel2()
	pipVersion, err := it.VerifyPip(pipCtx)
	if err != nil {
		l.record(history.Event{Type: history.EventBootstrapFailed, Detail: err.Error()})
		return nil, err
	}
	l.log.Info("pip verified", "version", pipVersion)
	return it, nil
}

// EnsureDeps runs the idempotent dependency loop and fans results out to
// metrics and history. Install failures are deferred per the launch
// contract: they surface when the main program fails its own imports.
func (l *Launcher) EnsureDeps(ctx context.Context, it *interp.Interpreter) []deps.Result {
	results := deps.Ensure(ctx, it, l.cfg.Deps.Packages, l.cfg.Deps.InstallTimeout, l.log)
	for _, res := range results {
		metrics.IncDepCheck(res.Package.Module, res.Present)
		switch {
		case res.Present:
			l.record(history.Event{Type: history.EventDepPresent, Process: res.Package.Module})
		case res.Installed:
			metrics.IncDepInstall(res.Package.Install, true)
			l.record(history.Event{Type: history.EventDepInstalled, Process: res.Package.Install})
		default:
			metrics.IncDepInstall(res.Package.Install, false)
			detail := ""
			if res.Err != nil {
				detail = res.Err.Error()
			}
			l.record(history.Event{Type: history.EventDepInstallFailed, Process: res.Package.Install, Detail: detail})
		}
	}
	return results
}

// EnsureLogDir creates the log directory if absent. Idempotent.
func (l *Launcher) EnsureLogDir() error {
	if err := os.MkdirAll(l.cfg.Log.Dir, 0o750); err != nil {
		return fmt.Errorf("create log dir %s: %w", l.cfg.Log.Dir, err)
	}
	return nil
}

func (l *Launcher) childEnv(extra []string) ([]string, error) {
	e := env.New()
	if l.cfg.UseOSEnv {
		e.FromOS()
	} else {
		e.NoOS()
	}
	global, err := l.cfg.GlobalEnv()
	if err != nil {
		return nil, err
	}
	e.SetAll(global)
	return e.Merge(extra), nil
}

func (l *Launcher) logConfig() logger.Config {
	return logger.Config{
		Dir:        l.cfg.Log.Dir,
		MaxSizeMB:  l.cfg.Log.MaxSizeMB,
		MaxBackups: l.cfg.Log.MaxBackups,
		MaxAgeDays: l.cfg.Log.MaxAgeDays,
		Compress:   l.cfg.Log.Compress,
	}
}

// StartMonitor spawns the monitor program detached in its own
// session/console and releases it. The launcher keeps no handle; the PID
// file is the only trace. A monitor start failure is reported but does not
// block the main program (matching the original fire-and-forget behavior).
func (l *Launcher) StartMonitor(it *interp.Interpreter) (*process.Process, error) {
	mergedEnv, err := l.childEnv(l.cfg.Monitor.Env)
	if err != nil {
		return nil, err
	}
	argv := append([]string{it.Path, l.cfg.Monitor.Script}, l.cfg.Monitor.Args...)
	p := process.New(process.Spec{
		Name:     NameMonitor,
		Argv:     argv,
		WorkDir:  l.cfg.Monitor.WorkDir,
		Detached: true,
		PIDFile:  l.cfg.MonitorPIDFile(),
		Log:      l.logConfig(),
	})
	if err := p.Start(mergedEnv); err != nil {
		return nil, fmt.Errorf("start monitor: %w", err)
	}
	st := p.Snapshot()
	metrics.IncChildStart(NameMonitor)
	l.record(history.Event{Type: history.EventMonitorStarted, Process: NameMonitor, PID: st.PID})
	l.log.Info("monitor started", "pid", st.PID, "pidfile", l.cfg.MonitorPIDFile())
	if err := p.Release(); err != nil {
		l.log.Warn("monitor release failed", "error", err)
	}
	return p, nil
}

// RunMain spawns the main program in the foreground, inheriting the
// launcher's console, and blocks until it exits. Interrupt/termination
// signals received meanwhile are forwarded to the child's process group.
func (l *Launcher) RunMain(ctx context.Context, it *interp.Interpreter) (int, error) {
	mergedEnv, err := l.childEnv(l.cfg.Main.Env)
	if err != nil {
		return -1, err
	}
	argv := append([]string{it.Path, l.cfg.Main.Script}, l.cfg.Main.Args...)
	p := process.New(process.Spec{
		Name:         NameMain,
		Argv:         argv,
		WorkDir:      l.cfg.Main.WorkDir,
		InheritStdio: true,
	})
	if err := p.Start(mergedEnv); err != nil {
		return -1, fmt.Errorf("start main program: %w", err)
	}
	st := p.Snapshot()
	metrics.IncChildStart(NameMain)
	l.record(history.Event{Type: history.EventMainStarted, Process: NameMain, PID: st.PID})
	l.log.Info("main program started", "pid", st.PID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	go func() {
		// Cancellation forwards a single SIGTERM; a closed Done channel
		// stays ready, so it is nilled out after the first fire.
		cancelled := ctx.Done()
		for {
			select {
			case sig := <-sigCh:
				l.log.Info("forwarding signal to main program", "signal", sig.String())
				p.Forward(sig)
			case <-cancelled:
				p.Forward(syscall.SIGTERM)
				cancelled = nil
			case <-done:
				return
			}
		}
	}()

	waitErr := p.Wait()
	close(done)
	st = p.Snapshot()
	code := st.ExitCode
	if waitErr != nil && code == 0 {
		code = -1
	}
	metrics.IncChildExit(NameMain, code)
	detail := ""
	if waitErr != nil {
		detail = waitErr.Error()
	}
	l.record(history.Event{Type: history.EventMainExited, Process: NameMain, PID: st.PID, ExitCode: &code, Detail: detail})
	return code, nil
}

// stopMonitor terminates the monitor's process group and removes its PID
// file. Only called when stop_on_exit is configured.
func (l *Launcher) stopMonitor(p *process.Process) {
	if p == nil {
		return
	}
	st := p.Snapshot()
	if err := p.Terminate(l.cfg.Monitor.StopWait); err != nil {
		l.log.Warn("monitor stop failed", "pid", st.PID, "error", err)
		return
	}
	p.RemovePIDFile()
	metrics.IncChildStopped(NameMonitor)
	l.record(history.Event{Type: history.EventMonitorStopped, Process: NameMonitor, PID: st.PID})
	l.log.Info("monitor stopped", "pid", st.PID)
}

// Run executes the whole bootstrap sequence. A non-nil error means setup
// failed before the main program ran (exit code ExitSetupFailed); otherwise
// the Outcome carries the main program's exit code.
func (l *Launcher) Run(ctx context.Context) (Outcome, error) {
	setupStart := time.Now()
	l.record(history.Event{Type: history.EventBootstrapStarted})

	it, err := l.Preflight(ctx)
	if err != nil {
		metrics.IncBootstrapRun("setup_failed")
		return Outcome{}, err
	}
	l.EnsureDeps(ctx, it)
	if err := l.EnsureLogDir(); err != nil {
		metrics.IncBootstrapRun("setup_failed")
		l.record(history.Event{Type: history.EventBootstrapFailed, Detail: err.Error()})
		return Outcome{}, err
	}
	metrics.ObserveBootstrapDuration(time.Since(setupStart).Seconds())

	monitor, err := l.StartMonitor(it)
	if err != nil {
		// Fire-and-forget: a dead monitor is not fatal to the main program.
		l.log.Warn("monitor not started", "error", err)
	}

	code, err := l.RunMain(ctx, it)
	if err != nil {
		metrics.IncBootstrapRun("setup_failed")
		l.record(history.Event{Type: history.EventBootstrapFailed, Detail: err.Error()})
		return Outcome{}, err
	}

	if l.cfg.Monitor.StopOnExit {
		l.stopMonitor(monitor)
	}

	outcome := Outcome{MainExitCode: code}
	if monitor != nil {
		outcome.MonitorPID = monitor.Snapshot().PID
	}
	if code == 0 {
		metrics.IncBootstrapRun("success")
	} else {
		metrics.IncBootstrapRun("main_failed")
	}
	return outcome, nil
}

// MonitorStatus probes the monitor PID file. It returns liveness, the
// recorded PID and its metadata.
func (l *Launcher) MonitorStatus() (bool, int, detector.Meta, error) {
	pidFile := l.cfg.MonitorPIDFile()
	pid, meta, err := detector.ReadPIDFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, detector.Meta{}, nil
		}
		return false, 0, detector.Meta{}, err
	}
	alive, err := detector.PIDFileDetector{PIDFile: pidFile}.Alive()
	return alive, pid, meta, err
}
