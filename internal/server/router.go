// Package server exposes the orchestrator over a loopback HTTP control API.
// The desktop shell (tray menu, settings wizard) is the intended caller.
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/stagehand/internal/metrics"
	"github.com/atelierhq/stagehand/internal/netprobe"
	"github.com/atelierhq/stagehand/internal/orchestrator"
)

// Router provides embeddable HTTP handlers for the orchestrator.
// Endpoints under basePath:
//
//	POST /start     start seaweed-if-enabled then core
//	POST /stop      stop core then seaweed (best-effort)
//	POST /restart   stop followed by start
//	GET  /status    live status snapshot
//	GET  /ports/suggest?base=43210  first free port from base
//	GET  /events?limit=50           recent lifecycle events
type Router struct {
	orch     *orchestrator.Orchestrator
	basePath string
}

func NewRouter(orch *orchestrator.Orchestrator, basePath string) *Router {
	return &Router{orch: orch, basePath: sanitizeBase(basePath)}
}

// Handler returns a gin-powered http.Handler that can be mounted anywhere.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.GET("/status", r.handleStatus)
	group.GET("/ports/suggest", r.handleSuggestPort)
	group.GET("/events", r.handleEvents)
	g.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, okResp{OK: true}) })
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, orch *orchestrator.Orchestrator) *http.Server {
	r := NewRouter(orch, basePath)
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

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.orch.Start(); err != nil {
		// The status snapshot still reflects whatever did come up.
		c.JSON(http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	r.orch.Stop()
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	if err := r.orch.Restart(); err != nil {
		c.JSON(http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.orch.Status())
}

func (r *Router) handleSuggestPort(c *gin.Context) {
	base := 43210
	if q := c.Query("base"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 || v > 65535 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid base port"})
			return
		}
		base = v
	}
	c.JSON(http.StatusOK, gin.H{"port": netprobe.SuggestPort(base, 200)})
}

func (r *Router) handleEvents(c *gin.Context) {
	limit := 50
	if q := c.Query("limit"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid limit"})
			return
		}
		limit = v
	}
	events, err := r.orch.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" {
		return "/api"
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}
