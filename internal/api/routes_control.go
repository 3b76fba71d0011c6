package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lfbot-project/lfbot/internal/protocol"
	"github.com/lfbot-project/lfbot/internal/ribbon"
)

// handleReconnect drops the socket and resumes the session on a new one.
func (s *Server) handleReconnect(c *gin.Context) {
	if err := s.bot.Reconnect(); err != nil {
		respondControlError(c, err)
		return
	}

	log.Info().Str("client_ip", c.ClientIP()).Msg("API: reconnect requested")
	c.JSON(http.StatusAccepted, gin.H{"status": "reconnecting"})
}

// handleChat posts a message in the current room.
func (s *Server) handleChat(c *gin.Context) {
	var body struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	if err := s.bot.Chat(c.Request.Context(), body.Content); err != nil {
		respondControlError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "sent",
		"content": body.Content,
	})
}

// handleJoin joins a room by code.
func (s *Server) handleJoin(c *gin.Context) {
	var body struct {
		Room string `json:"room" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	if err := s.bot.JoinRoom(c.Request.Context(), body.Room); err != nil {
		respondControlError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "joining", "room": body.Room})
}

// handleLeave leaves the current room.
func (s *Server) handleLeave(c *gin.Context) {
	if err := s.bot.LeaveRoom(c.Request.Context()); err != nil {
		respondControlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "leaving"})
}

// handleBracket moves the bot between players and spectators.
func (s *Server) handleBracket(c *gin.Context) {
	var body struct {
		Bracket string `json:"bracket" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bracket is required"})
		return
	}
	if body.Bracket != protocol.BracketPlayer && body.Bracket != protocol.BracketSpectator {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bracket must be player or spectator"})
		return
	}

	if err := s.bot.SwitchBracket(c.Request.Context(), body.Bracket); err != nil {
		respondControlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "switched", "bracket": body.Bracket})
}

func respondControlError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, ribbon.ErrNotConnected) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
