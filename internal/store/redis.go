package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"empowertours/internal/config"
	"empowertours/internal/models"
)

// Fixed keys. The state blob is a singleton; the queues are plain FIFO lists
// (LPop from the head, RPush to the tail, nothing else).
const (
	KeyState      = "live-radio:state"
	KeyQueue      = "live-radio:queue"
	KeyVoiceNotes = "live-radio:voice-notes"
)

// Client wraps the Redis connection with radio-shaped operations.
type Client struct {
	rdb *redis.Client
}

func New(cfg *config.Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// The stream endpoint degrades gracefully, so a dead Redis at boot
		// is worth shouting about but not worth dying for.
		log.Printf("⚠️ Redis unreachable at %s: %v", cfg.Redis.Addr, err)
	} else {
		log.Println("✅ Redis Connected")
	}

	return &Client{rdb: rdb}
}

// NewWithClient is used by tests to point the store at miniredis.
func NewWithClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// GetState returns the current radio state. A missing key is NOT an error:
// the station is simply off air and callers get the default state.
func (c *Client) GetState(ctx context.Context) (*models.RadioState, error) {
	raw, err := c.rdb.Get(ctx, KeyState).Result()
	if err == redis.Nil {
		return models.DefaultRadioState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var state models.RadioState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		log.Printf("⚠️ Corrupt state blob, serving default: %v", err)
		return models.DefaultRadioState(), nil
	}
	return &state, nil
}

func (c *Client) SetState(ctx context.Context, state *models.RadioState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, KeyState, data, 0).Err()
}

// PushSong appends a song to the tail of the queue.
func (c *Client) PushSong(ctx context.Context, song models.Song) error {
	data, err := json.Marshal(song)
	if err != nil {
		return err
	}
	return c.rdb.RPush(ctx, KeyQueue, data).Err()
}

// PopSong removes and returns the head of the song queue.
// Returns (nil, nil) when the queue is empty.
func (c *Client) PopSong(ctx context.Context) (*models.Song, error) {
	raw, err := c.rdb.LPop(ctx, KeyQueue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop song: %w", err)
	}

	var song models.Song
	if err := json.Unmarshal([]byte(raw), &song); err != nil {
		return nil, fmt.Errorf("decode song: %w", err)
	}
	return &song, nil
}

func (c *Client) PushVoiceNote(ctx context.Context, note models.VoiceNote) error {
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return c.rdb.RPush(ctx, KeyVoiceNotes, data).Err()
}

func (c *Client) PopVoiceNote(ctx context.Context) (*models.VoiceNote, error) {
	raw, err := c.rdb.LPop(ctx, KeyVoiceNotes).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop voice note: %w", err)
	}

	var note models.VoiceNote
	if err := json.Unmarshal([]byte(raw), &note); err != nil {
		return nil, fmt.Errorf("decode voice note: %w", err)
	}
	return &note, nil
}

// PeekQueue reads up to n songs from the head without removing them.
// This is a display window, not a storage cap.
func (c *Client) PeekQueue(ctx context.Context, n int) ([]models.Song, error) {
	raws, err := c.rdb.LRange(ctx, KeyQueue, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("peek queue: %w", err)
	}

	songs := make([]models.Song, 0, len(raws))
	for _, raw := range raws {
		var song models.Song
		if err := json.Unmarshal([]byte(raw), &song); err != nil {
			log.Printf("⚠️ Skipping corrupt queue entry: %v", err)
			continue
		}
		songs = append(songs, song)
	}
	return songs, nil
}

func (c *Client) PeekVoiceNotes(ctx context.Context, n int) ([]models.VoiceNote, error) {
	raws, err := c.rdb.LRange(ctx, KeyVoiceNotes, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("peek voice notes: %w", err)
	}

	notes := make([]models.VoiceNote, 0, len(raws))
	for _, raw := range raws {
		var note models.VoiceNote
		if err := json.Unmarshal([]byte(raw), &note); err != nil {
			log.Printf("⚠️ Skipping corrupt voice note entry: %v", err)
			continue
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// QueueLengths returns the current depths of both queues.
func (c *Client) QueueLengths(ctx context.Context) (songs int64, notes int64, err error) {
	songs, err = c.rdb.LLen(ctx, KeyQueue).Result()
	if err != nil {
		return 0, 0, err
	}
	notes, err = c.rdb.LLen(ctx, KeyVoiceNotes).Result()
	return songs, notes, err
}

// SetListenerCount mirrors the relay's listener gauge into the shared state
// so non-SSE clients see it. Best effort; a miss just leaves the old number.
func (c *Client) SetListenerCount(ctx context.Context, count int) error {
	state, err := c.GetState(ctx)
	if err != nil {
		return err
	}
	state.ListenerCount = count
	state.LastUpdated = time.Now().UTC()
	return c.SetState(ctx, state)
}
