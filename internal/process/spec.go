package process

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/vantor/tradeboot/internal/logger"
)

// Spec describes one program the launcher spawns.
// Argv is the full argument vector (interpreter first); no shell is involved,
// so script paths with spaces need no quoting.
type Spec struct {
	Name         string        `json:"name"`
	Argv         []string      `json:"argv"`
	WorkDir      string        `json:"work_dir"`      // optional working dir
	Env          []string      `json:"env"`           // optional extra env (K=V)
	Detached     bool          `json:"detached"`      // new session/console, fire-and-forget
	InheritStdio bool          `json:"inherit_stdio"` // attach launcher's stdin/stdout/stderr
	PIDFile      string        `json:"pid_file"`      // optional pidfile path
	Log          logger.Config `json:"log"`           // rotated file logging (detached children)
}

// Validate checks the fields required before a start is attempted.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("process requires name")
	}
	if len(s.Argv) == 0 || strings.TrimSpace(s.Argv[0]) == "" {
		return fmt.Errorf("process %q requires a non-empty argv", s.Name)
	}
	if s.Detached && s.InheritStdio {
		return fmt.Errorf("process %q cannot be both detached and inherit stdio", s.Name)
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec's argv.
func (s *Spec) BuildCommand() *exec.Cmd {
	name := s.Argv[0]
	var args []string
	if len(s.Argv) > 1 {
		args = s.Argv[1:]
	}
	// ok: intentional execution of a configured program
	// #nosec G204
	return exec.Command(name, args...)
}
