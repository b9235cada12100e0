// Package server hosts the Gin-powered liqo API: the snapshot listing, the
// on-demand stats and leaderboard queries, CSV export, the GraphQL proxy and
// the live update feed.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/enviodev/liqo/config"
	"github.com/enviodev/liqo/internal/capture"
	"github.com/enviodev/liqo/internal/export"
	"github.com/enviodev/liqo/internal/indexer"
	"github.com/enviodev/liqo/internal/store"
	"github.com/enviodev/liqo/logger"
)

// Server wires the dashboard's HTTP surface together. The snapshot store is
// read-only from here; only the poller writes it.
type Server struct {
	cfg        config.ServerConfig
	exportCfg  config.ExportConfig
	log        *logger.Log
	snapshot   *store.SnapshotStore
	client     *indexer.Client
	exporter   *export.Service
	captureDB  capture.Store
	hub        *Hub
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer constructs the API server. captureDB may be nil when the email
// capture store is not configured.
func NewServer(
	cfg config.ServerConfig,
	exportCfg config.ExportConfig,
	snap *store.SnapshotStore,
	client *indexer.Client,
	exporter *export.Service,
	captureDB capture.Store,
) *Server {
	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	return &Server{
		cfg:       cfg,
		exportCfg: exportCfg,
		log:       logger.GetLogger(),
		snapshot:  snap,
		client:    client,
		exporter:  exporter,
		captureDB: captureDB,
		hub:       NewHub(),
		limiter:   rate.NewLimiter(rate.Limit(exportCfg.RatePerSec), exportCfg.RateBurst),
	}
}

// Hub exposes the websocket hub so the poller's update callback can reach it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	return s.cfg.Address
}

// Run starts the HTTP server and blocks until the provided context is
// cancelled or the underlying server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	s.log.WithComponent("server").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("api server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.hub.Close()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		s.log.WithComponent("server").Info("api server stopped")
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method Not Allowed"})
	})

	router.GET("/api/liquidations", s.handleLiquidations)
	router.GET("/api/stats", s.handleStats)
	router.GET("/api/leaderboard", s.handleLeaderboard)
	router.GET("/api/export", s.handleExport)
	router.POST("/api/graphql", s.handleProxy)
	router.GET("/ws", s.hub.Handle)

	return router
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:3000"
	}

	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "3000"
		}
		return net.JoinHostPort(host, port)
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "3000")
	}

	return addr
}
