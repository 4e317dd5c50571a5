package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shadecraft/channelsync/internal/service"
	"github.com/shadecraft/channelsync/internal/utils"
)

var startTime = time.Now()

// HealthHandler provides the health endpoint, including per-channel
// connectivity checks.
type HealthHandler struct {
	channels []service.Channel
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(channels ...service.Channel) *HealthHandler {
	return &HealthHandler{channels: channels}
}

// GetHealth responds with service status and the connection state of each
// configured channel.
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	channels := gin.H{}
	for _, ch := range h.channels {
		status := "connected"
		detail := ""
		res, err := ch.TestConnection(ctx)
		switch {
		case err != nil:
			status = "disconnected"
			detail = err.Error()
		case !res.OK:
			status = "disconnected"
			detail = res.Detail
		default:
			detail = res.Detail
		}
		channels[string(ch.Code())] = gin.H{
			"status": status,
			"detail": detail,
		}
	}

	utils.Success(c, http.StatusOK, "Service is healthy", gin.H{
		"status":   "healthy",
		"version":  "1.0.0",
		"uptime":   int(time.Since(startTime).Seconds()),
		"channels": channels,
	})
}
