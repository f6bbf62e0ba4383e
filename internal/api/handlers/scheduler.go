package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"empowertours/internal/models"
	"empowertours/internal/scheduler"
)

// SchedulerHandler exposes the queue-advance tick to the external cron
// trigger. The trigger fires every 30 seconds with the shared keeper secret.
type SchedulerHandler struct {
	svc    *scheduler.Service
	secret string
}

func NewSchedulerHandler(svc *scheduler.Service, keeperSecret string) *SchedulerHandler {
	return &SchedulerHandler{svc: svc, secret: keeperSecret}
}

// Tick handles POST /api/live-radio/scheduler.
func (h *SchedulerHandler) Tick(c *gin.Context) {
	var input struct {
		Secret string `json:"secret" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, models.SchedulerResult{
			Success: false, Action: models.ActionNone, Details: "missing secret",
		})
		return
	}

	if subtle.ConstantTimeCompare([]byte(input.Secret), []byte(h.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, models.SchedulerResult{
			Success: false, Action: models.ActionNone, Details: "invalid secret",
		})
		return
	}

	c.JSON(http.StatusOK, h.svc.Advance(c.Request.Context()))
}
