package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// exitError carries a process exit code alongside the underlying error so
// main can honor the launch contract's exit-code taxonomy.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

// exitCode maps an Execute error onto a process exit code. Errors without an
// explicit code (flag parsing, config loading) exit 1.
func exitCode(err error) int {
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// waitForAck blocks until the user sends a line on stdin. Skipped in
// non-interactive mode so automated invocations terminate unattended.
func (c command) waitForAck(nonInteractive bool) {
	if nonInteractive || c.in == nil {
		return
	}
	_, _ = fmt.Fprint(c.out, "Press Enter to exit...")
	reader := bufio.NewReader(c.in)
	_, _ = reader.ReadString('\n')
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
