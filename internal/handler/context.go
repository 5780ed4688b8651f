package handler

import (
	"net/http"

	"github.com/Baaaki/scooter-fleet/internal/middleware"
	"github.com/Baaaki/scooter-fleet/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// actor returns the authenticated caller or writes 401.
func actor(c *gin.Context) (service.Actor, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return service.Actor{}, false
	}
	return service.ActorFromUser(user), true
}

// chatIDParam parses :id or writes 400.
func chatIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chat id", "code": "bad_request"})
		return uuid.Nil, false
	}
	return id, true
}
