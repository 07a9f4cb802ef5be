//go:build !windows

package launcher

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vantor/tradeboot/internal/config"
	"github.com/vantor/tradeboot/internal/interp"
	"github.com/vantor/tradeboot/internal/logger"
)

// fixture lays out a fake python interpreter plus monitor/main scripts in a
// temp dir. The interpreter records every invocation into calls.log.
type fixture struct {
	dir     string
	python  string
	monitor string
	main    string
}

func newFixture(t *testing.T, pythonBody string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		python:  filepath.Join(dir, "python3"),
		monitor: filepath.Join(dir, "take_profit.py"),
		main:    filepath.Join(dir, "main.py"),
	}
	script := `#!/bin/sh
echo "$@" >> "` + filepath.Join(dir, "calls.log") + `"
` + pythonBody
	if err := os.WriteFile(f.python, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{f.monitor, f.main} {
		if err := os.WriteFile(p, []byte("# placeholder\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

// workingPython behaves like a healthy interpreter: version and pip checks
// pass, every default module imports, the monitor sleeps and the main
// program exits with $MAIN_EXIT.
const workingPython = `
case "$1" in
  --version) echo "Python 3.11.0"; exit 0 ;;
  -m)
    case "$2 $3" in
      "pip --version") echo "pip 24.0"; exit 0 ;;
      "pip install") exit 0 ;;
    esac
    exit 1 ;;
  -c) exit 0 ;;
  *take_profit.py) sleep 5; exit 0 ;;
  *main.py) exit "${MAIN_EXIT:-0}" ;;
esac
exit 0`

func (f *fixture) calls(t *testing.T) []string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(f.dir, "calls.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func (f *fixture) config() config.Config {
	cfg := config.Default()
	cfg.Interpreter.Path = f.python
	cfg.Interpreter.CheckTimeout = 5 * time.Second
	cfg.Deps.InstallTimeout = 10 * time.Second
	cfg.Log.Dir = filepath.Join(f.dir, "logs")
	cfg.Monitor.Script = f.monitor
	cfg.Monitor.StopWait = time.Second
	cfg.Main.Script = f.main
	return cfg
}

func newLauncher(t *testing.T, cfg config.Config) *Launcher {
	t.Helper()
	l := New(cfg, logger.New(io.Discard, false))
	t.Cleanup(l.Close)
	return l
}

func TestRun_EndToEndSuccess(t *testing.T) {
	f := newFixture(t, workingPython)
	cfg := f.config()
	cfg.Monitor.StopOnExit = true // leave no stray sleep process behind
	l := newLauncher(t, cfg)

	outcome, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.MainExitCode != 0 {
		t.Fatalf("main exit: %d", outcome.MainExitCode)
	}
	if outcome.MonitorPID == 0 {
		t.Fatalf("monitor PID not recorded")
	}
	if _, err := os.Stat(cfg.Log.Dir); err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	// The monitor was stopped on exit, so its pidfile must be gone.
	if _, err := os.Stat(cfg.MonitorPIDFile()); !os.IsNotExist(err) {
		t.Fatalf("monitor pidfile should be removed after stop_on_exit")
	}
}

func TestRun_MainFailureReported(t *testing.T) {
	f := newFixture(t, workingPython)
	cfg := f.config()
	cfg.Monitor.StopOnExit = true
	cfg.Main.Env = []string{"MAIN_EXIT=3"}
	l := newLauncher(t, cfg)

	outcome, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should not error on main failure: %v", err)
	}
	if outcome.MainExitCode != 3 {
		t.Fatalf("main exit: got %d want 3", outcome.MainExitCode)
	}
}

func TestRun_FireAndForgetMonitorSurvives(t *testing.T) {
	f := newFixture(t, workingPython)
	cfg := f.config() // stop_on_exit defaults to false
	l := newLauncher(t, cfg)

	outcome, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	alive, pid, meta, err := l.MonitorStatus()
	if err != nil {
		t.Fatalf("MonitorStatus: %v", err)
	}
	if !alive {
		t.Fatalf("monitor should outlive the main program")
	}
	if pid != outcome.MonitorPID || meta.Name != NameMonitor {
		t.Fatalf("pidfile mismatch: pid=%d meta=%+v outcome=%+v", pid, meta, outcome)
	}
	// reap the detached sleeper
	reapPID(pid)
}

func reapPID(pid int) {
	if pid <= 0 {
		return
	}
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}

func TestRunMain_CtxCancelForwardsOneTerm(t *testing.T) {
	f := newFixture(t, workingPython)
	sigLog := filepath.Join(f.dir, "sigs.log")
	// Main traps TERM, records each receipt and keeps running for a while,
	// so repeated forwarding would show up as extra lines.
	trapPython := `#!/bin/sh
case "$1" in
  *main.py)
    trap 'echo term >> "` + sigLog + `"' TERM
    n=0
    while [ "$n" -lt 10 ]; do
      sleep 0.1
      n=$((n+1))
    done
    exit 5 ;;
esac
exit 0`
	if err := os.WriteFile(f.python, []byte(trapPython), 0o755); err != nil {
		t.Fatal(err)
	}
	l := newLauncher(t, f.config())
	it := &interp.Interpreter{Path: f.python}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()
	code, err := l.RunMain(ctx, it)
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	// The launcher keeps waiting for the child's own exit code.
	if code != 5 {
		t.Fatalf("exit code: got %d want 5", code)
	}
	b, err := os.ReadFile(sigLog)
	if err != nil {
		t.Fatalf("main never received the forwarded signal: %v", err)
	}
	if got := len(strings.Split(strings.TrimSpace(string(b)), "\n")); got != 1 {
		t.Fatalf("one cancellation must forward one SIGTERM, child saw %d", got)
	}
}

func TestPreflight_MissingInterpreterStopsEverything(t *testing.T) {
	f := newFixture(t, workingPython)
	cfg := f.config()
	cfg.Interpreter.Path = filepath.Join(f.dir, "no-such-python")
	l := newLauncher(t, cfg)

	_, err := l.Run(context.Background())
	if !errors.Is(err, interp.ErrInterpreterNotFound) {
		t.Fatalf("want ErrInterpreterNotFound, got %v", err)
	}
	if calls := f.calls(t); len(calls) != 0 {
		t.Fatalf("no interpreter command may run, got %v", calls)
	}
	if _, statErr := os.Stat(cfg.MonitorPIDFile()); !os.IsNotExist(statErr) {
		t.Fatalf("nothing may be spawned on setup failure")
	}
}

func TestPreflight_BrokenPipStopsBeforeSpawn(t *testing.T) {
	f := newFixture(t, `
case "$1" in
  --version) echo "Python 3.11.0"; exit 0 ;;
esac
exit 1`)
	cfg := f.config()
	l := newLauncher(t, cfg)

	_, err := l.Run(context.Background())
	if !errors.Is(err, interp.ErrPipUnavailable) {
		t.Fatalf("want ErrPipUnavailable, got %v", err)
	}
	for _, c := range f.calls(t) {
		if strings.Contains(c, "main.py") || strings.Contains(c, "take_profit.py") {
			t.Fatalf("no program may be spawned after pip failure: %v", c)
		}
		if strings.HasPrefix(c, "-c import") {
			t.Fatalf("no dependency check may run after pip failure: %v", c)
		}
	}
}

func TestEnsureDeps_AllPresentNoInstall(t *testing.T) {
	f := newFixture(t, workingPython)
	l := newLauncher(t, f.config())
	it := &interp.Interpreter{Path: f.python}

	l.EnsureDeps(context.Background(), it)
	for _, c := range f.calls(t) {
		if strings.Contains(c, "pip install") {
			t.Fatalf("no install expected when all modules import: %v", c)
		}
	}
}

func TestEnsureDeps_MissingGetsOneInstall(t *testing.T) {
	f := newFixture(t, `
case "$1 $2" in
  "-c import binance") exit 1 ;;
  "-c import"*) exit 0 ;;
esac
if [ "$1 $2 $3" = "-m pip install" ]; then exit 1; fi
exit 0`)
	l := newLauncher(t, f.config())
	it := &interp.Interpreter{Path: f.python}

	results := l.EnsureDeps(context.Background(), it)
	installs := 0
	for _, c := range f.calls(t) {
		if strings.Contains(c, "pip install") {
			installs++
			if !strings.HasSuffix(c, "python-binance") {
				t.Fatalf("wrong package installed: %v", c)
			}
		}
	}
	if installs != 1 {
		t.Fatalf("exactly one install expected, got %d", installs)
	}
	// Install failed (exit 1) but the loop still completed all three packages.
	if len(results) != 3 {
		t.Fatalf("all packages must be processed: %+v", results)
	}
	if results[1].Err == nil || results[1].Installed {
		t.Fatalf("binance install failure must be recorded: %+v", results[1])
	}
	if !results[2].Present {
		t.Fatalf("requests must still be checked after the failure: %+v", results[2])
	}
}

func TestEnsureLogDir_Idempotent(t *testing.T) {
	f := newFixture(t, workingPython)
	cfg := f.config()
	l := newLauncher(t, cfg)
	if err := l.EnsureLogDir(); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := l.EnsureLogDir(); err != nil {
		t.Fatalf("existing dir must be a no-op: %v", err)
	}
}

func TestMonitorStatus_NoPIDFile(t *testing.T) {
	f := newFixture(t, workingPython)
	l := newLauncher(t, f.config())
	alive, pid, _, err := l.MonitorStatus()
	if err != nil {
		t.Fatalf("MonitorStatus: %v", err)
	}
	if alive || pid != 0 {
		t.Fatalf("no pidfile must mean not running: alive=%v pid=%d", alive, pid)
	}
}

func TestRun_RecordsHistory(t *testing.T) {
	f := newFixture(t, workingPython)
	cfg := f.config()
	cfg.Monitor.StopOnExit = true
	cfg.History.DSN = filepath.Join(f.dir, "history.db")
	l := newLauncher(t, cfg)

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	l.Close()

	db, err := sql.Open("sqlite", cfg.History.DSN)
	if err != nil {
		t.Fatalf("open history db: %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, event := range []string{"bootstrap_started", "monitor_started", "main_started", "main_exited", "monitor_stopped"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM launch_history WHERE event = ?`, event).Scan(&n); err != nil {
			t.Fatalf("query %s: %v", event, err)
		}
		if n != 1 {
			t.Fatalf("event %s: got %d rows, want 1", event, n)
		}
	}
}
