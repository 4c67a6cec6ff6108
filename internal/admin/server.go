// Package admin provides the optional operator-facing HTTP surface: a
// plaintext cache dump() endpoint and JSON stats snapshots for the
// answer cache and address database (spec §9's "local API/RPC"
// mention, scoped down from the teacher's REST management API since
// zone/filtering/cluster administration is out of scope here).
package admin

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydradns/internal/adb"
	"github.com/jroosing/hydradns/internal/cache"
	"github.com/jroosing/hydradns/internal/config"
)

// Server is the debug/operator HTTP server exposing cache and ADB
// introspection. It is never required for DNS resolution itself.
//
// Security note: do not expose this to untrusted networks; admin.api_key
// gates every route when set.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the admin server bound to cfg.Admin.Host:Port, wiring c and
// a for its dump/stats routes.
func New(cfg config.AdminConfig, c *cache.Cache, a *adb.ADB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	if cfg.APIKey != "" {
		engine.Use(requireAPIKey(cfg.APIKey))
	}

	registerRoutes(engine, c, a)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) ListenAndServe() error { return s.httpServer.ListenAndServe() }

func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("admin request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// requireAPIKey enforces a simple shared-secret API key via the
// X-API-Key header.
func requireAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") == expected {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}
