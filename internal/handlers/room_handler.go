package handlers

import (
	"net/http"

	"docsync-api/internal/realtime"

	"github.com/gin-gonic/gin"
)

// CreateRoom handles POST /api/rooms and hands out a fresh room code. The
// room itself only exists once someone joins it.
func CreateRoom(c *gin.Context) {
	code, err := realtime.NewRoomCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate room code"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"roomCode": code})
}

// GetRoomMembers handles GET /api/rooms/:code/members
func GetRoomMembers(broker *realtime.Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		if err := realtime.ValidateRoomCode(code); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		members := broker.Registry().MembersOf(code)
		c.JSON(http.StatusOK, gin.H{
			"roomCode": code,
			"members":  members,
			"count":    len(members),
		})
	}
}

// Stats handles GET /stats
func Stats(broker *realtime.Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, connections := broker.Stats()
		c.JSON(http.StatusOK, gin.H{"rooms": rooms, "connections": connections})
	}
}
