package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics
var (
	subscriberGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "radio_sse_subscribers", Help: "Currently connected SSE subscribers"},
	)
	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "radio_sse_broadcasts_total", Help: "Broadcast frames sent"},
		[]string{"topic"},
	)
	droppedWrites = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "radio_sse_dropped_writes_total", Help: "Frames dropped on dead connections"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(subscriberGauge, broadcastsTotal, droppedWrites)
}

// Flusher is the slice of http.ResponseWriter the relay needs: a byte sink
// that can be flushed after each frame. httptest recorders satisfy it too.
type Flusher interface {
	io.Writer
	Flush()
}

// Client is one subscriber connection held by the relay.
type Client struct {
	ID string

	mu sync.Mutex // serializes frame writes on this connection
	w  Flusher
}

func NewClient(w Flusher) *Client {
	return &Client{ID: uuid.NewString(), w: w}
}

// writeFrame writes one SSE frame (event: name\ndata: json\n\n).
func (c *Client) writeFrame(event string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	c.w.Flush()
	return nil
}

// WriteComment writes a comment frame (": text\n\n"), used for heartbeats.
func (c *Client) WriteComment(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.w, ": %s\n\n", text); err != nil {
		return err
	}
	c.w.Flush()
	return nil
}

// Relay is the in-memory registry mapping topics to subscriber connections.
// Delivery is fire-and-forget: there are no retries and no buffering, a
// disconnected client just misses events until it reconnects and gets a
// fresh snapshot.
type Relay struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Client
}

func New() *Relay {
	return &Relay{topics: make(map[string]map[string]*Client)}
}

// AddClient registers a connection under one or more topics.
func (r *Relay) AddClient(client *Client, topics ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, topic := range topics {
		if r.topics[topic] == nil {
			r.topics[topic] = make(map[string]*Client)
		}
		r.topics[topic][client.ID] = client
	}
	subscriberGauge.Set(float64(r.countLocked()))
}

// RemoveClient deregisters a connection from every topic.
// Safe to call multiple times; removing an unknown client is a no-op.
func (r *Relay) RemoveClient(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic, clients := range r.topics {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(r.topics, topic)
		}
	}
	subscriberGauge.Set(float64(r.countLocked()))
}

// SendToClient delivers a single named event to one connection.
// A write failure means the connection is gone: it is swallowed and the
// client is implicitly removed from the registry.
func (r *Relay) SendToClient(client *Client, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ Relay: cannot marshal %s payload: %v", event, err)
		return
	}

	if err := client.writeFrame(event, data); err != nil {
		droppedWrites.Inc()
		r.RemoveClient(client)
	}
}

// Broadcast delivers a named event to every connection registered under
// topic. Per-connection write failures are isolated: one dead connection
// never blocks delivery to the rest.
func (r *Relay) Broadcast(topic, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ Relay: cannot marshal %s payload: %v", event, err)
		return
	}

	r.mu.RLock()
	targets := make([]*Client, 0, len(r.topics[topic]))
	for _, client := range r.topics[topic] {
		targets = append(targets, client)
	}
	r.mu.RUnlock()

	var dead []*Client
	for _, client := range targets {
		if err := client.writeFrame(event, data); err != nil {
			dead = append(dead, client)
		}
	}

	for _, client := range dead {
		droppedWrites.Inc()
		r.RemoveClient(client)
	}

	broadcastsTotal.WithLabelValues(topic).Inc()
}

// ListenerCount returns the number of distinct connected clients.
func (r *Relay) ListenerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked()
}

func (r *Relay) countLocked() int {
	seen := make(map[string]struct{})
	for _, clients := range r.topics {
		for id := range clients {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
