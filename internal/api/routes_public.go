package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "lfbot",
		"version": s.version,
	})
}

// handleGetVersion returns the bot version and the server build it last
// authorized against.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":        s.version,
		"server_version": s.bot.Snapshot().SignatureVersion,
	})
}
