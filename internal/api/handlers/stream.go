package handlers

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"empowertours/internal/models"
	"empowertours/internal/relay"
	"empowertours/internal/store"
)

// Starter is the lazy ingester hook; the connection never waits on it.
type Starter interface {
	EnsureStarted(ctx context.Context) bool
}

// StreamHandler serves GET /api/live-radio/stream as Server-Sent Events.
// One instance handles all connections; per-connection state lives in the
// relay client.
type StreamHandler struct {
	store    *store.Client
	relay    *relay.Relay
	ingester Starter // nil when the ingester runs as its own process

	heartbeat   time.Duration
	queueWindow int
	voiceWindow int

	// newTicker is swapped for a fake in tests
	newTicker func(d time.Duration) (<-chan time.Time, func())
}

func NewStreamHandler(st *store.Client, r *relay.Relay, ingester Starter, heartbeat time.Duration, queueWindow, voiceWindow int) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &StreamHandler{
		store:       st,
		relay:       r,
		ingester:    ingester,
		heartbeat:   heartbeat,
		queueWindow: queueWindow,
		voiceWindow: voiceWindow,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// WithTicker injects a fake heartbeat source; used by tests.
func (h *StreamHandler) WithTicker(f func(d time.Duration) (<-chan time.Time, func())) *StreamHandler {
	h.newTicker = f
	return h
}

// Stream upgrades the request to text/event-stream, sends the initial
// snapshot, then parks the connection on the relay until the client hangs
// up. The response is always 200: a dead Redis only degrades the payload.
func (h *StreamHandler) Stream(c *gin.Context) {
	w := c.Writer

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Kick the ingester exactly once per process. Fire-and-forget: a failed
	// start is the ingester's problem, not this connection's.
	if h.ingester != nil {
		if h.ingester.EnsureStarted(context.Background()) {
			log.Println("⛓️  Ingester started by first stream subscriber")
		}
	}

	// Register before the first write: if the initial frame fails,
	// SendToClient evicts the client instead of leaving a dead registration.
	client := relay.NewClient(w)
	h.relay.AddClient(client, "live-radio")
	h.mirrorListenerCount()
	defer func() {
		h.relay.RemoveClient(client)
		h.mirrorListenerCount()
	}()

	h.relay.SendToClient(client, "initial_state", h.snapshot(c.Request.Context()))

	ticks, stop := h.newTicker(h.heartbeat)
	defer stop()

	for {
		select {
		case <-c.Request.Context().Done():
			// Client hung up: deregister immediately, no grace period
			return
		case <-ticks:
			// Comment frame keeps proxies from timing the connection out
			if err := client.WriteComment("ping"); err != nil {
				return
			}
		}
	}
}

// mirrorListenerCount pushes the relay's gauge into the shared state so the
// plain-JSON snapshot shows it too. Detached and best effort.
func (h *StreamHandler) mirrorListenerCount() {
	count := h.relay.ListenerCount()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.store.SetListenerCount(ctx, count); err != nil {
			slog.Debug("listener count mirror failed", "error", err)
		}
	}()
}

// snapshot assembles the initial_state payload. Store failures degrade to
// the disconnected shape instead of failing the request.
func (h *StreamHandler) snapshot(ctx context.Context) models.StreamSnapshot {
	degraded := models.StreamSnapshot{
		State:       nil,
		Queue:       []models.Song{},
		VoiceNotes:  []models.VoiceNote{},
		WSConnected: false,
	}

	state, err := h.store.GetState(ctx)
	if err != nil {
		slog.Warn("stream snapshot degraded", "error", err)
		return degraded
	}

	queue, err := h.store.PeekQueue(ctx, h.queueWindow)
	if err != nil {
		slog.Warn("stream snapshot degraded", "error", err)
		return degraded
	}

	notes, err := h.store.PeekVoiceNotes(ctx, h.voiceWindow)
	if err != nil {
		slog.Warn("stream snapshot degraded", "error", err)
		return degraded
	}

	return models.StreamSnapshot{
		State:       state,
		Queue:       queue,
		VoiceNotes:  notes,
		WSConnected: true,
	}
}
