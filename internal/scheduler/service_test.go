package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"empowertours/internal/models"
	"empowertours/internal/store"
)

// fakeRelay records broadcasts instead of writing to connections.
type fakeRelay struct {
	events    []string
	listeners int
}

func (f *fakeRelay) Broadcast(topic, event string, payload any) {
	f.events = append(f.events, topic+"/"+event)
}

func (f *fakeRelay) ListenerCount() int { return f.listeners }

func setup(t *testing.T) (*Service, *store.Client, *fakeRelay, MockClock) {
	mr := miniredis.RunT(t)
	st := store.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	relay := &fakeRelay{listeners: 3}
	clock := MockClock{MockTime: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	svc := New(st, relay, nil, nil).WithClock(clock)
	return svc, st, relay, clock
}

func TestEmptyQueueDoesNothing(t *testing.T) {
	svc, _, relay, _ := setup(t)

	res := svc.Advance(context.Background())
	if !res.Success || res.Action != models.ActionNone {
		t.Fatalf("expected no-op on empty station, got %+v", res)
	}
	if len(relay.events) != 0 {
		t.Errorf("no-op tick should not broadcast, got %v", relay.events)
	}
}

func TestPlaySongFromIdle(t *testing.T) {
	svc, st, relay, _ := setup(t)
	ctx := context.Background()

	st.PushSong(ctx, models.Song{ID: "s1", CID: "cid1", Artist: "Crag Crew", Title: "Belay On", Duration: 180})

	res := svc.Advance(ctx)
	if res.Action != models.ActionPlaySong {
		t.Fatalf("expected play_song, got %+v", res)
	}

	state, _ := st.GetState(ctx)
	if !state.IsLive || state.CurrentSong == nil || state.CurrentSong.ID != "s1" {
		t.Fatalf("state not marked playing: %+v", state)
	}
	if state.TotalSongsPlayed != 1 {
		t.Errorf("songs played counter = %d, want 1", state.TotalSongsPlayed)
	}
	if state.ListenerCount != 3 {
		t.Errorf("listener count not mirrored from relay: %d", state.ListenerCount)
	}
	if len(relay.events) != 1 || relay.events[0] != "live-radio/state_update" {
		t.Errorf("expected one state_update broadcast, got %v", relay.events)
	}
}

func TestSongStillPlayingIsNoOp(t *testing.T) {
	svc, st, relay, _ := setup(t)
	ctx := context.Background()

	st.PushSong(ctx, models.Song{ID: "s1", CID: "cid1", Duration: 180})
	st.PushSong(ctx, models.Song{ID: "s2", CID: "cid2", Duration: 180})

	svc.Advance(ctx) // starts s1

	res := svc.Advance(ctx) // same instant: s1 has 180s left
	if res.Action != models.ActionNone {
		t.Fatalf("expected none while song plays, got %+v", res)
	}
	if len(relay.events) != 1 {
		t.Errorf("no-op tick broadcast anyway: %v", relay.events)
	}
}

func TestAdvanceToNextSongAfterDuration(t *testing.T) {
	svc, st, _, clock := setup(t)
	ctx := context.Background()

	st.PushSong(ctx, models.Song{ID: "s1", CID: "cid1", Duration: 180})
	st.PushSong(ctx, models.Song{ID: "s2", CID: "cid2", Duration: 200})

	svc.Advance(ctx)

	// Jump past the end of s1
	svc.WithClock(MockClock{MockTime: clock.MockTime.Add(181 * time.Second)})

	res := svc.Advance(ctx)
	if res.Action != models.ActionAdvanceQueue {
		t.Fatalf("expected advance_queue, got %+v", res)
	}

	state, _ := st.GetState(ctx)
	if state.CurrentSong == nil || state.CurrentSong.ID != "s2" {
		t.Errorf("expected s2 on air, got %+v", state.CurrentSong)
	}
	if state.TotalSongsPlayed != 2 {
		t.Errorf("counter should be monotonic: %d", state.TotalSongsPlayed)
	}
}

func TestVoiceNotePreemptsSongQueue(t *testing.T) {
	svc, st, _, _ := setup(t)
	ctx := context.Background()

	st.PushSong(ctx, models.Song{ID: "s1", CID: "cid1", Duration: 180})
	st.PushVoiceNote(ctx, models.VoiceNote{ID: "v1", CID: "vcid1", Author: "alpinist.eth", Duration: 15})

	res := svc.Advance(ctx)
	if res.Action != models.ActionPlayVoiceNote {
		t.Fatalf("voice note should preempt songs, got %+v", res)
	}

	state, _ := st.GetState(ctx)
	if state.CurrentVoiceNote == nil || state.CurrentVoiceNote.ID != "v1" {
		t.Errorf("voice note not on air: %+v", state.CurrentVoiceNote)
	}
	if state.TotalVoiceNotesPlayed != 1 {
		t.Errorf("voice note counter = %d", state.TotalVoiceNotesPlayed)
	}

	// Song must still be queued
	window, _ := st.PeekQueue(ctx, 20)
	if len(window) != 1 {
		t.Errorf("song queue was consumed by voice note tick: %d left", len(window))
	}
}

func TestPlayHistoryRecorded(t *testing.T) {
	mr := miniredis.RunT(t)
	st := store.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.AutoMigrate(&models.PlayHistory{})

	clock := MockClock{MockTime: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	svc := New(st, &fakeRelay{}, db, nil).WithClock(clock)

	ctx := context.Background()
	st.PushSong(ctx, models.Song{ID: "s1", CID: "cid1", Artist: "Crag Crew", Title: "Belay On", Duration: 180})
	svc.Advance(ctx)

	// The ledger write is fire-and-forget, so give it a moment
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		db.Model(&models.PlayHistory{}).Count(&count)
		if count == 1 {
			var row models.PlayHistory
			db.First(&row)
			if row.Kind != "song" || row.CID != "cid1" {
				t.Fatalf("wrong history row: %+v", row)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("play history row never appeared")
}

func TestQueueDrainGoesOffAir(t *testing.T) {
	svc, st, _, clock := setup(t)
	ctx := context.Background()

	st.PushSong(ctx, models.Song{ID: "s1", CID: "cid1", Duration: 60})
	svc.Advance(ctx)

	svc.WithClock(MockClock{MockTime: clock.MockTime.Add(2 * time.Minute)})

	res := svc.Advance(ctx)
	if res.Action != models.ActionAdvanceQueue {
		t.Fatalf("expected advance_queue on drain, got %+v", res)
	}

	state, _ := st.GetState(ctx)
	if state.IsLive || state.CurrentSong != nil {
		t.Errorf("station should be off air: %+v", state)
	}
	if state.TotalSongsPlayed != 1 {
		t.Errorf("drain must not touch counters: %d", state.TotalSongsPlayed)
	}
}
