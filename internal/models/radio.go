package models

import "time"

// Song is a track bought/minted on-chain and queued for broadcast.
// Entries are immutable once enqueued: the scheduler only pops the head,
// the ingester only appends to the tail.
type Song struct {
	ID          string    `json:"id"`
	CID         string    `json:"cid"` // IPFS content identifier of the audio
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	ArtworkCID  string    `json:"artworkCid,omitempty"`
	Duration    float64   `json:"duration"` // seconds
	UploaderFID int64     `json:"uploaderFid,omitempty"`
	Uploader    string    `json:"uploader,omitempty"` // wallet address
	TokenID     string    `json:"tokenId,omitempty"`
	Location    string    `json:"location,omitempty"` // climbing spot tag
	ScheduledAt time.Time `json:"scheduledAt"`
}

// VoiceNote is a short spoken message queued between songs.
type VoiceNote struct {
	ID          string    `json:"id"`
	CID         string    `json:"cid"`
	Author      string    `json:"author"`
	AuthorFID   int64     `json:"authorFid,omitempty"`
	Duration    float64   `json:"duration"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// RadioState is the live status of the station.
// There is ONE value, stored as a JSON blob in Redis under live-radio:state.
type RadioState struct {
	IsLive                bool       `json:"isLive"`
	CurrentSong           *Song      `json:"currentSong"`
	CurrentVoiceNote      *VoiceNote `json:"currentVoiceNote"`
	ListenerCount         int        `json:"listenerCount"`
	LastUpdated           time.Time  `json:"lastUpdated"`
	TotalSongsPlayed      int64      `json:"totalSongsPlayed"`
	TotalVoiceNotesPlayed int64      `json:"totalVoiceNotesPlayed"`
}

// DefaultRadioState is what every reader gets on a cache miss.
// The station is simply "off air"; it is never an error to ask.
func DefaultRadioState() *RadioState {
	return &RadioState{
		IsLive:        false,
		ListenerCount: 0,
		LastUpdated:   time.Now().UTC(),
	}
}

// StreamSnapshot is the payload of the initial_state SSE frame.
type StreamSnapshot struct {
	State       *RadioState `json:"state"`
	Queue       []Song      `json:"queue"`
	VoiceNotes  []VoiceNote `json:"voiceNotes"`
	WSConnected bool        `json:"wsConnected"`
}

// SchedulerResult summarizes one scheduler tick for the cron caller.
type SchedulerResult struct {
	Success bool   `json:"success"`
	Action  string `json:"action"` // none | play_song | play_voicenote | advance_queue
	Details string `json:"details,omitempty"`
}

// Scheduler actions.
const (
	ActionNone          = "none"
	ActionPlaySong      = "play_song"
	ActionPlayVoiceNote = "play_voicenote"
	ActionAdvanceQueue  = "advance_queue"
)
