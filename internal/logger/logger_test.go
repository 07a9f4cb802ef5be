package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWriters_WithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	outW, errW, err := cfg.Writers("monitor")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	outPath := filepath.Join(dir, "monitor.stdout.log")
	errPath := filepath.Join(dir, "monitor.stderr.log")
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("stdout log not created at %s: %v", outPath, err)
	}
	if _, err := os.Stat(errPath); err != nil {
		t.Fatalf("stderr log not created at %s: %v", errPath, err)
	}
}

func TestWriters_NoneConfigured(t *testing.T) {
	cfg := Config{}
	outW, errW, _ := cfg.Writers("n")
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers when no Dir/stdout/stderr set")
	}
}

func TestWriters_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{StdoutPath: filepath.Join(dir, "x"), StderrPath: filepath.Join(dir, "y")}
	outW, errW, _ := cfg.Writers("n")
	ol, ok1 := outW.(*lj.Logger)
	el, ok2 := errW.(*lj.Logger)
	if !ok1 || !ok2 {
		t.Fatalf("writers are not lumberjack.Logger")
	}
	if ol.MaxSize != 10 || ol.MaxBackups != 3 || ol.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", ol.MaxSize, ol.MaxBackups, ol.MaxAge)
	}
	if el.MaxSize != 10 || el.MaxBackups != 3 || el.MaxAge != 7 {
		t.Fatalf("unexpected defaults (stderr): size=%d backups=%d age=%d", el.MaxSize, el.MaxBackups, el.MaxAge)
	}
	closeIf(outW)
	closeIf(errW)
}

func TestWriters_Overrides(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		StdoutPath: filepath.Join(dir, "x2"),
		StderrPath: filepath.Join(dir, "y2"),
		MaxSizeMB:  1, MaxBackups: 9, MaxAgeDays: 11, Compress: true,
	}
	outW, errW, _ := cfg.Writers("n")
	ol := outW.(*lj.Logger)
	el := errW.(*lj.Logger)
	if ol.MaxSize != 1 || ol.MaxBackups != 9 || ol.MaxAge != 11 || !ol.Compress {
		t.Fatalf("stdout overrides not applied: %+v", ol)
	}
	if el.MaxSize != 1 || el.MaxBackups != 9 || el.MaxAge != 11 || !el.Compress {
		t.Fatalf("stderr overrides not applied: %+v", el)
	}
	closeIf(outW)
	closeIf(errW)
}

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, false)
	lg.Debug("hidden")
	lg.Info("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug should be suppressed at info level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("info message missing: %q", out)
	}

	buf.Reset()
	lg = New(&buf, true)
	lg.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug message missing in debug mode: %q", buf.String())
	}
}
