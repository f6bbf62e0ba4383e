package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"empowertours/internal/models"
	"empowertours/internal/store"
)

var actionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "radio_scheduler_actions_total", Help: "Scheduler tick outcomes"},
	[]string{"action"},
)

func RegisterMetrics() {
	prometheus.MustRegister(actionsTotal)
}

// Broadcaster is the slice of the relay the scheduler needs.
type Broadcaster interface {
	Broadcast(topic, event string, payload any)
	ListenerCount() int
}

// Announcer posts a now-playing cast. Best effort only.
type Announcer interface {
	Announce(text string)
}

// Service advances the radio queue. It is invoked by the cron trigger via
// POST /api/live-radio/scheduler every 30 seconds.
//
// The cron cadence is what serializes ticks across replicas; the mutex below
// only closes the race between overlapping ticks inside one process.
type Service struct {
	mu       sync.Mutex
	store    *store.Client
	relay    Broadcaster
	db       *gorm.DB  // nil disables the play-history ledger
	announce Announcer // nil disables casts
	clock    Clock
}

func New(st *store.Client, relay Broadcaster, db *gorm.DB, announce Announcer) *Service {
	return &Service{
		store:    st,
		relay:    relay,
		db:       db,
		announce: announce,
		clock:    RealClock{},
	}
}

// WithClock swaps the time source; used by tests.
func (s *Service) WithClock(c Clock) *Service {
	s.clock = c
	return s
}

// Advance runs one scheduler tick: finish whatever stopped playing, then put
// the next queued voice note or song on air. Voice notes preempt songs.
func (s *Service) Advance(ctx context.Context) models.SchedulerResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()

	state, err := s.store.GetState(ctx)
	if err != nil {
		log.Printf("❌ Scheduler: cannot read state: %v", err)
		return models.SchedulerResult{Success: false, Action: models.ActionNone, Details: "state unavailable"}
	}

	// 1. Is something still on air?
	if playing, what := s.stillPlaying(state, now); playing {
		actionsTotal.WithLabelValues(models.ActionNone).Inc()
		return models.SchedulerResult{Success: true, Action: models.ActionNone, Details: what + " still playing"}
	}

	wasOnAir := state.CurrentSong != nil || state.CurrentVoiceNote != nil

	// 2. Voice notes jump the queue
	note, err := s.store.PopVoiceNote(ctx)
	if err != nil {
		log.Printf("❌ Scheduler: voice note pop failed: %v", err)
		return models.SchedulerResult{Success: false, Action: models.ActionNone, Details: "queue unavailable"}
	}
	if note != nil {
		note.ScheduledAt = now
		state.CurrentVoiceNote = note
		state.IsLive = true
		state.TotalVoiceNotesPlayed++
		s.commit(ctx, state, now)

		s.recordHistory("voicenote", note.CID, note.Author, "", note.Duration, now)
		actionsTotal.WithLabelValues(models.ActionPlayVoiceNote).Inc()
		return models.SchedulerResult{
			Success: true,
			Action:  models.ActionPlayVoiceNote,
			Details: fmt.Sprintf("voice note from %s", note.Author),
		}
	}

	// 3. Next song
	song, err := s.store.PopSong(ctx)
	if err != nil {
		log.Printf("❌ Scheduler: song pop failed: %v", err)
		return models.SchedulerResult{Success: false, Action: models.ActionNone, Details: "queue unavailable"}
	}
	if song != nil {
		song.ScheduledAt = now
		state.CurrentSong = song
		state.CurrentVoiceNote = nil
		state.IsLive = true
		state.TotalSongsPlayed++
		s.commit(ctx, state, now)

		s.recordHistory("song", song.CID, song.Artist, song.Title, song.Duration, now)
		if s.announce != nil {
			text := fmt.Sprintf("🎶 Now playing on EmpowerTours Radio: %s — %s", song.Artist, song.Title)
			go s.announce.Announce(text)
		}

		action := models.ActionPlaySong
		if wasOnAir {
			action = models.ActionAdvanceQueue
		}
		actionsTotal.WithLabelValues(action).Inc()
		return models.SchedulerResult{
			Success: true,
			Action:  action,
			Details: fmt.Sprintf("%s — %s", song.Artist, song.Title),
		}
	}

	// 4. Nothing queued. Clear whatever just finished and go off air.
	if wasOnAir {
		state.CurrentSong = nil
		state.CurrentVoiceNote = nil
		state.IsLive = false
		s.commit(ctx, state, now)

		actionsTotal.WithLabelValues(models.ActionAdvanceQueue).Inc()
		return models.SchedulerResult{Success: true, Action: models.ActionAdvanceQueue, Details: "queue drained, off air"}
	}

	actionsTotal.WithLabelValues(models.ActionNone).Inc()
	return models.SchedulerResult{Success: true, Action: models.ActionNone, Details: "queue empty"}
}

// stillPlaying reports whether the current song or voice note has playback
// time left. Entries without a duration are treated as finished, so a bad
// upload can never wedge the station.
func (s *Service) stillPlaying(state *models.RadioState, now time.Time) (bool, string) {
	if vn := state.CurrentVoiceNote; vn != nil && vn.Duration > 0 {
		if now.Sub(vn.ScheduledAt) < secs(vn.Duration) {
			return true, "voice note"
		}
	}
	if song := state.CurrentSong; song != nil && state.CurrentVoiceNote == nil && song.Duration > 0 {
		if now.Sub(song.ScheduledAt) < secs(song.Duration) {
			return true, "song"
		}
	}
	return false, ""
}

// commit writes the new state and notifies subscribers. Subscribers are told
// even if the Redis write failed: they would rather see the transient state
// than nothing.
func (s *Service) commit(ctx context.Context, state *models.RadioState, now time.Time) {
	state.ListenerCount = s.relay.ListenerCount()
	state.LastUpdated = now

	if err := s.store.SetState(ctx, state); err != nil {
		log.Printf("⚠️ Scheduler: state write failed: %v", err)
	}
	s.relay.Broadcast("live-radio", "state_update", state)
}

// recordHistory appends to the play ledger. Fire-and-forget: the cron caller
// never waits on Postgres.
func (s *Service) recordHistory(kind, cid, artist, title string, duration float64, playedAt time.Time) {
	if s.db == nil {
		return
	}
	go func() {
		row := models.PlayHistory{
			Kind:     kind,
			CID:      cid,
			Artist:   artist,
			Title:    title,
			Duration: duration,
			PlayedAt: playedAt,
		}
		if err := s.db.Create(&row).Error; err != nil {
			log.Printf("⚠️ Play history write failed: %v", err)
		}
	}()
}

func secs(d float64) time.Duration {
	return time.Duration(d * float64(time.Second))
}
