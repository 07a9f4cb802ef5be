package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/vantor/tradeboot/internal/detector"
)

// Process wraps one spawned program. Foreground processes are started and
// waited on; detached processes are started and then released, leaving the
// PID file as the only handle.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	status    Status
	mu        sync.Mutex
	outCloser io.WriteCloser
	errCloser io.WriteCloser
}

func New(spec Spec) *Process { return &Process{spec: spec} }

func (p *Process) Spec() Spec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spec
}

// configure builds the *exec.Cmd: workdir, environment, stdio wiring and
// platform process attributes (new session/console when detached).
func (p *Process) configure(mergedEnv []string) (*exec.Cmd, error) {
	p.mu.Lock()
	spec := p.spec
	p.mu.Unlock()

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd, spec.Detached)

	switch {
	case spec.InheritStdio:
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	case spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "":
		if spec.Log.Dir != "" {
			if err := os.MkdirAll(spec.Log.Dir, 0o750); err != nil {
				return nil, err
			}
		}
		outW, errW, err := spec.Log.Writers(spec.Name)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.outCloser, p.errCloser = outW, errW
		p.mu.Unlock()
		if outW != nil {
			cmd.Stdout = outW
		}
		if errW != nil {
			cmd.Stderr = errW
		}
	default:
		// nil stdio: os/exec connects the child to the null device
	}
	return cmd, nil
}

// Start launches the program. mergedEnv is the composed environment ("K=V");
// pass nil to inherit the launcher's. The PID file, when configured, is
// written synchronously so callers can probe liveness right after Start.
func (p *Process) Start(mergedEnv []string) error {
	if err := p.spec.Validate(); err != nil {
		return err
	}
	cmd, err := p.configure(mergedEnv)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		p.CloseWriters()
		return err
	}
	p.mu.Lock()
	p.cmd = cmd
	p.status = Status{
		Name:      p.spec.Name,
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	p.mu.Unlock()
	p.writePIDFile()
	return nil
}

// Wait blocks until the program exits and records the outcome.
// Only meaningful for foreground processes.
func (p *Process) Wait() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return errors.New("process not started")
	}
	err := cmd.Wait()
	code := 0
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	} else if err != nil {
		code = -1
	}
	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	p.status.ExitCode = code
	p.status.ExitErr = err
	p.mu.Unlock()
	p.CloseWriters()
	return err
}

// Release detaches from the child so it keeps running after the launcher
// exits. The PID file remains the only way to find it again.
func (p *Process) Release() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return errors.New("process not started")
	}
	return cmd.Process.Release()
}

// Terminate signals the process group to stop, escalating to a kill after
// the grace period. Used when the launcher owns the child's shutdown.
func (p *Process) Terminate(wait time.Duration) error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if err := terminateGroup(pid); err != nil {
		return err
	}
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if alive, _ := p.DetectAlive(); !alive {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return killGroup(pid)
}

// Forward relays a signal received by the launcher to the child's group.
func (p *Process) Forward(sig os.Signal) {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	forwardSignal(cmd.Process.Pid, sig)
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	s := p.status
	p.mu.Unlock()
	return s
}

// DetectAlive probes liveness via the PID file detector when configured,
// falling back to a direct PID probe.
func (p *Process) DetectAlive() (bool, error) {
	p.mu.Lock()
	pidFile := p.spec.PIDFile
	pid := 0
	if p.cmd != nil && p.cmd.Process != nil {
		pid = p.cmd.Process.Pid
	}
	p.mu.Unlock()

	if pidFile != "" {
		return detector.PIDFileDetector{PIDFile: pidFile}.Alive()
	}
	return detector.PIDDetector{PID: pid}.Alive()
}

func (p *Process) CloseWriters() {
	p.mu.Lock()
	out, errW := p.outCloser, p.errCloser
	p.outCloser, p.errCloser = nil, nil
	p.mu.Unlock()
	if out != nil {
		_ = out.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
}

func (p *Process) writePIDFile() {
	p.mu.Lock()
	pidFile := p.spec.PIDFile
	name := p.spec.Name
	pid := 0
	if p.cmd != nil && p.cmd.Process != nil {
		pid = p.cmd.Process.Pid
	}
	p.mu.Unlock()

	if pidFile == "" || pid == 0 {
		return
	}
	_ = os.MkdirAll(filepath.Dir(pidFile), 0o750)
	meta := detector.Meta{StartUnix: detector.ProcStartUnix(pid), Name: name}
	_ = detector.WritePIDFile(pidFile, pid, meta)
}

// RemovePIDFile best-effort
func (p *Process) RemovePIDFile() {
	p.mu.Lock()
	pidFile := p.spec.PIDFile
	p.mu.Unlock()
	if pidFile == "" {
		return
	}
	_ = os.Remove(pidFile)
}
