package tradeboot

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	cfg "github.com/vantor/tradeboot/internal/config"
	"github.com/vantor/tradeboot/internal/deps"
	"github.com/vantor/tradeboot/internal/detector"
	"github.com/vantor/tradeboot/internal/history"
	"github.com/vantor/tradeboot/internal/interp"
	lnch "github.com/vantor/tradeboot/internal/launcher"
	"github.com/vantor/tradeboot/internal/logger"
	"github.com/vantor/tradeboot/internal/metrics"
	iapi "github.com/vantor/tradeboot/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Interpreter = interp.Interpreter

type Package = deps.Package

type DepResult = deps.Result

type Outcome = lnch.Outcome

type HistorySink = history.Sink

type MonitorMeta = detector.Meta

// Exit codes of the launch contract.
const (
	ExitSuccess     = lnch.ExitSuccess
	ExitSetupFailed = lnch.ExitSetupFailed
	ExitMainFailed  = lnch.ExitMainFailed
)

// Launcher is a thin facade over internal/launcher.Launcher.
// It provides a stable public API for embedding.
type Launcher struct{ inner *lnch.Launcher }

func New(c Config, log *slog.Logger) *Launcher {
	return &Launcher{inner: lnch.New(c, log)}
}

func (l *Launcher) Run(ctx context.Context) (Outcome, error) { return l.inner.Run(ctx) }
func (l *Launcher) Preflight(ctx context.Context) (*Interpreter, error) {
	return l.inner.Preflight(ctx)
}
func (l *Launcher) EnsureDeps(ctx context.Context, it *Interpreter) []DepResult {
	return l.inner.EnsureDeps(ctx, it)
}
func (l *Launcher) MonitorStatus() (bool, int, MonitorMeta, error) {
	return l.inner.MonitorStatus()
}
func (l *Launcher) Close() { l.inner.Close() }

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

func DefaultConfig() Config { return cfg.Default() }

// NewLogger builds the launcher's console logger writing to w.
func NewLogger(w io.Writer, debug bool) *slog.Logger { return logger.New(w, debug) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.RegisterDefault() }

// NewHTTPServer starts the status/health server for l, with /metrics mounted
// when metricsHandler is non-nil.
func NewHTTPServer(addr, basePath string, l *Launcher, metricsHandler http.Handler) *http.Server {
	return iapi.NewServer(addr, basePath, l.inner, metricsHandler)
}
