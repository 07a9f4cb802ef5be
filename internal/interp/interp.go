package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Sentinel errors for the two fatal bootstrap conditions. Callers branch on
// these to decide guidance text and exit codes.
var (
	ErrInterpreterNotFound = errors.New("python interpreter not found")
	ErrPipUnavailable      = errors.New("pip is not callable")
)

// Interpreter is a resolved Python executable. It is fixed at resolve time
// and never re-derived.
type Interpreter struct {
	Path string
}

// Resolve locates the interpreter. Absolute paths are taken as-is; bare
// names are searched on PATH. Resolution failure wraps
// ErrInterpreterNotFound so callers can fail fast with guidance.
func Resolve(path string) (*Interpreter, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, fmt.Errorf("%w: empty interpreter path", ErrInterpreterNotFound)
	}
	if filepath.IsAbs(p) {
		return &Interpreter{Path: p}, nil
	}
	abs, err := exec.LookPath(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %q not on PATH: %v", ErrInterpreterNotFound, p, err)
	}
	return &Interpreter{Path: abs}, nil
}

// Verify runs `<python> --version` and returns the reported version line.
// Launch failure or a non-zero exit wraps ErrInterpreterNotFound.
func (i *Interpreter) Verify(ctx context.Context) (string, error) {
	out, err := i.run(ctx, "--version")
	if err != nil {
		return "", fmt.Errorf("%w: %s --version failed: %v", ErrInterpreterNotFound, i.Path, err)
	}
	return firstLine(out), nil
}

// VerifyPip runs `<python> -m pip --version` and returns the version line.
// Failure wraps ErrPipUnavailable.
func (i *Interpreter) VerifyPip(ctx context.Context) (string, error) {
	out, err := i.run(ctx, "-m", "pip", "--version")
	if err != nil {
		return "", fmt.Errorf("%w: %s -m pip --version failed: %v", ErrPipUnavailable, i.Path, err)
	}
	return firstLine(out), nil
}

// CheckImport attempts a throwaway `import <module>` in the interpreter.
// A nil return means the module is importable.
func (i *Interpreter) CheckImport(ctx context.Context, module string) error {
	_, err := i.run(ctx, "-c", "import "+module)
	if err != nil {
		return fmt.Errorf("import %s failed: %w", module, err)
	}
	return nil
}

// Install runs `<python> -m pip install <pkg>`.
func (i *Interpreter) Install(ctx context.Context, pkg string) error {
	out, err := i.run(ctx, "-m", "pip", "install", pkg)
	if err != nil {
		return fmt.Errorf("pip install %s failed: %w (output: %s)", pkg, err, firstLine(out))
	}
	return nil
}

func (i *Interpreter) run(ctx context.Context, args ...string) (string, error) {
	// ok: interpreter path is resolved configuration, args are fixed
	// #nosec G204
	cmd := exec.CommandContext(ctx, i.Path, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
