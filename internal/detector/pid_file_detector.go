package detector

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PIDFileDetector detects a process via a PID file.
// The file holds the PID on the first line; an optional second line carries
// JSON metadata with the process start time, used to reject reused PIDs.
type PIDFileDetector struct {
	PIDFile string
}

// Meta is the optional JSON payload following the PID line.
type Meta struct {
	StartUnix int64  `json:"start_unix"`
	Name      string `json:"name,omitempty"`
}

// ReadPIDFile parses a PID file into its PID and optional metadata.
// Legacy files containing only a PID yield a zero Meta.
func ReadPIDFile(path string) (int, Meta, error) {
	var meta Meta
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, meta, err
	}
	pidLine, rest, _ := strings.Cut(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, meta, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		// Metadata is best-effort; a PID alone is still valid.
		_ = json.Unmarshal([]byte(rest), &meta)
	}
	return pid, meta, nil
}

// WritePIDFile writes pid and meta in the format ReadPIDFile expects.
func WritePIDFile(path string, pid int, meta Meta) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	content := strconv.Itoa(pid) + "\n" + string(b) + "\n"
	return os.WriteFile(path, []byte(content), 0o600)
}

func (d PIDFileDetector) Alive() (bool, error) {
	pid, meta, err := ReadPIDFile(d.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if meta.StartUnix > 0 {
		cur := getProcStartUnix(pid)
		if cur > 0 && cur != meta.StartUnix {
			return false, nil // PID reused; not our process
		}
	}
	return pidAlive(pid), nil
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }

// PIDDetector detects by a provided PID number.
type PIDDetector struct{ PID int }

func (d PIDDetector) Alive() (bool, error) { return pidAlive(d.PID), nil }
func (d PIDDetector) Describe() string     { return fmt.Sprintf("pid:%d", d.PID) }

// ProcStartUnix exposes the platform start-time lookup for PID file writers.
func ProcStartUnix(pid int) int64 { return getProcStartUnix(pid) }
