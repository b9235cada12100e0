package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/enviodev/liqo/internal/export"
	"github.com/enviodev/liqo/internal/table"
)

// Simple but practical email validation, re-applied server-side so the gate
// cannot be bypassed with a hand-built request.
var emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// handleLiquidations serves the filter/sort/page view over the held
// snapshot. All parameters live in the query string so the chosen view
// survives a reload.
func (s *Server) handleLiquidations(c *gin.Context) {
	q := table.Query{
		Search:    c.Query("search"),
		Protocols: c.QueryArray("protocol"),
		SortKey:   c.DefaultQuery("sort", table.SortTimestamp),
		SortAsc:   c.Query("dir") == "asc",
		Page:      atoiOr(c.Query("page"), 1),
		PageSize:  atoiOr(c.Query("page_size"), table.DefaultPageSize),
	}
	for _, raw := range c.QueryArray("chain") {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			q.ChainIDs = append(q.ChainIDs, id)
		}
	}

	res := table.Apply(s.snapshot.Snapshot(), q)
	c.JSON(http.StatusOK, gin.H{
		"rows":           res.Rows,
		"total":          res.TotalMatched,
		"page":           res.Page,
		"pageSize":       res.PageSize,
		"protocolCounts": res.ProtocolCounts,
		"chainCounts":    res.ChainCounts,
	})
}

// handleStats fetches the aggregate-statistics record on demand.
func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.client.Stats(c.Request.Context())
	if err != nil {
		s.log.WithComponent("server").WithError(err).Warn("stats fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream request failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// handleLeaderboard fetches the liquidator ranking on demand. The client
// clamps the limit to [1,100] with a default of 50.
func (s *Server) handleLeaderboard(c *gin.Context) {
	limit := atoiOr(c.Query("limit"), 0)

	rows, err := s.client.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		s.log.WithComponent("server").WithError(err).Warn("leaderboard fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream request failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// handleExport serves the CSV download. Unlike polling, failures here are
// surfaced: export is a deliberate one-shot action and silent failure would
// mislead the user.
func (s *Server) handleExport(c *gin.Context) {
	if !s.limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many export requests"})
		return
	}

	email := c.Query("email")
	if s.exportCfg.RequireEmail && !emailRegexp.MatchString(email) {
		// Rejected before any upstream request is issued.
		c.JSON(http.StatusBadRequest, gin.H{"error": "Valid email is required"})
		return
	}

	limit := atoiOr(c.Query("limit"), 0)

	data, filename, err := s.exporter.Export(c.Request.Context(), limit)
	if err != nil {
		s.log.WithComponent("server").WithError(err).Error("export failed")
		if errors.Is(err, export.ErrUpstream) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream request failed"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate CSV"})
		}
		return
	}

	if s.captureDB != nil && email != "" {
		// Best effort: a capture failure never blocks the download.
		if err := s.captureDB.Record(c.Request.Context(), email, limit); err != nil {
			s.log.WithComponent("server").WithError(err).Warn("email capture failed")
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store, max-age=0")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// handleProxy forwards an arbitrary query body to the indexer and returns
// its status and body verbatim, so browsers never learn the upstream
// address.
func (s *Server) handleProxy(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	status, respBody, err := s.client.Forward(c.Request.Context(), body)
	if err != nil {
		s.log.WithComponent("server").WithError(err).Warn("proxy request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream request failed"})
		return
	}

	c.Data(status, "application/json", respBody)
}

func atoiOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
