package obs

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandlers backs the probe endpoints. Ready reports whether the chat
// store can serve traffic; liveness never depends on downstream state, so a
// slow Mongo cluster degrades readiness without triggering restarts.
type HealthHandlers struct {
	Ready func() error
}

func (h HealthHandlers) Livez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h HealthHandlers) Readyz(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
