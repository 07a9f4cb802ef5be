package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vantor/tradeboot/internal/detector"
)

// StatusSource reports the liveness of the detached monitor. The launcher
// implements it; tests substitute fakes.
type StatusSource interface {
	MonitorStatus() (bool, int, detector.Meta, error)
}

// Router provides embeddable HTTP handlers for observing a launch.
// Endpoints:
//
//	GET {basePath}/healthz   liveness of the launcher itself
//	GET {basePath}/status    monitor liveness probed via its PID file
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	src      StatusSource
	basePath string
	metrics  http.Handler
}

// NewRouter constructs a Router with a configurable basePath. metrics may be
// nil when the metrics endpoint is disabled.
func NewRouter(src StatusSource, basePath string, metrics http.Handler) *Router {
	return &Router{src: src, basePath: sanitizeBase(basePath), metrics: metrics}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/status", r.handleStatus)
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Callers shut it down with http.Server's Close or Shutdown.
func NewServer(addr, basePath string, src StatusSource, metrics http.Handler) *http.Server {
	r := NewRouter(src, basePath, metrics)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type healthResp struct {
	OK bool `json:"ok"`
}

type monitorResp struct {
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	Name      string `json:"name,omitempty"`
	StartUnix int64  `json:"start_unix,omitempty"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, healthResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	alive, pid, meta, err := r.src.MonitorStatus()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	resp := monitorResp{Running: alive}
	if alive {
		resp.PID = pid
		resp.Name = meta.Name
		resp.StartUnix = meta.StartUnix
	}
	writeJSON(c, http.StatusOK, gin.H{"monitor": resp})
}
