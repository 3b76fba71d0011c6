package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lfbot-project/lfbot/internal/db"
	"github.com/lfbot-project/lfbot/internal/util"
)

// handleGetStatus returns the connection snapshot and process stats.
func (s *Server) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ribbon":  s.bot.Snapshot(),
		"process": util.GetProcessStats(),
		"version": s.version,
	})
}

// handleGetJournal returns the most recent journal entries, newest first.
func (s *Server) handleGetJournal(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal is disabled"})
		return
	}

	limit := db.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := s.journal.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
	})
}

// handleMetrics serves the Prometheus registry.
func (s *Server) handleMetrics(c *gin.Context) {
	if s.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics are disabled"})
		return
	}
	s.metrics.ServeHTTP(c.Writer, c.Request)
}
