package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"empowertours/internal/models"
	"empowertours/internal/relay"
	"empowertours/internal/store"
)

// StatsHandler aggregates the station dashboard numbers.
type StatsHandler struct {
	db    *gorm.DB
	store *store.Client
	relay *relay.Relay
}

func NewStatsHandler(db *gorm.DB, st *store.Client, r *relay.Relay) *StatsHandler {
	return &StatsHandler{db: db, store: st, relay: r}
}

// GetStats handles GET /api/stats.
func (h *StatsHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	state, err := h.store.GetState(ctx)
	if err != nil {
		state = models.DefaultRadioState()
	}

	songDepth, noteDepth, err := h.store.QueueLengths(ctx)
	if err != nil {
		slog.Warn("queue depth unavailable", "error", err)
	}

	var recent []models.PlayHistory
	if h.db != nil {
		if err := h.db.Order("played_at DESC").Limit(20).Find(&recent).Error; err != nil {
			slog.Error("play history read failed", "error", err)
		}
	}
	if recent == nil {
		recent = []models.PlayHistory{}
	}

	c.JSON(http.StatusOK, gin.H{
		"isLive":                state.IsLive,
		"listeners":             h.relay.ListenerCount(),
		"totalSongsPlayed":      state.TotalSongsPlayed,
		"totalVoiceNotesPlayed": state.TotalVoiceNotesPlayed,
		"queueDepth":            songDepth,
		"voiceNoteDepth":        noteDepth,
		"recentPlays":           recent,
	})
}
