package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"empowertours/internal/models"
	"empowertours/internal/relay"
	"empowertours/internal/store"
)

// RadioHandler serves the plain-JSON views of the radio state for clients
// that don't hold an SSE connection, plus the admin enqueue route.
type RadioHandler struct {
	store       *store.Client
	relay       *relay.Relay
	queueWindow int
	voiceWindow int
}

func NewRadioHandler(st *store.Client, r *relay.Relay, queueWindow, voiceWindow int) *RadioHandler {
	return &RadioHandler{store: st, relay: r, queueWindow: queueWindow, voiceWindow: voiceWindow}
}

// GetState returns the same snapshot the SSE initial_state frame carries.
func (h *RadioHandler) GetState(c *gin.Context) {
	ctx := c.Request.Context()

	state, err := h.store.GetState(ctx)
	if err != nil {
		// Same degradation contract as the stream: 200 with the empty shape
		slog.Warn("state snapshot degraded", "error", err)
		c.JSON(http.StatusOK, models.StreamSnapshot{
			Queue: []models.Song{}, VoiceNotes: []models.VoiceNote{},
		})
		return
	}

	queue, _ := h.store.PeekQueue(ctx, h.queueWindow)
	notes, _ := h.store.PeekVoiceNotes(ctx, h.voiceWindow)
	if queue == nil {
		queue = []models.Song{}
	}
	if notes == nil {
		notes = []models.VoiceNote{}
	}

	c.JSON(http.StatusOK, models.StreamSnapshot{
		State:       state,
		Queue:       queue,
		VoiceNotes:  notes,
		WSConnected: true,
	})
}

// Enqueue lets curators push a song or voice note directly, bypassing the
// chain ingester (station IDs, event jingles).
func (h *RadioHandler) Enqueue(c *gin.Context) {
	var input struct {
		Kind     string  `json:"kind" binding:"required"` // "song" or "voicenote"
		CID      string  `json:"cid" binding:"required"`
		Title    string  `json:"title"`
		Artist   string  `json:"artist"`
		Duration float64 `json:"duration"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	switch input.Kind {
	case "song":
		song := models.Song{
			ID:       uuid.NewString(),
			CID:      input.CID,
			Title:    input.Title,
			Artist:   input.Artist,
			Duration: input.Duration,
		}
		if err := h.store.PushSong(ctx, song); err != nil {
			slog.Error("enqueue failed", "cid", input.CID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Queue unavailable"})
			return
		}
		h.relay.Broadcast("live-radio", "queue_update", song)
		c.JSON(http.StatusCreated, song)

	case "voicenote":
		note := models.VoiceNote{
			ID:       uuid.NewString(),
			CID:      input.CID,
			Author:   input.Artist,
			Duration: input.Duration,
		}
		if err := h.store.PushVoiceNote(ctx, note); err != nil {
			slog.Error("enqueue failed", "cid", input.CID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Queue unavailable"})
			return
		}
		h.relay.Broadcast("live-radio", "voicenote_update", note)
		c.JSON(http.StatusCreated, note)

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be 'song' or 'voicenote'"})
	}
}
