package ingest

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/sha3"

	"empowertours/internal/config"
	"empowertours/internal/ipfs"
	"empowertours/internal/models"
	"empowertours/internal/store"
)

// Event signatures emitted by the EmpowerTours contract. The string argument
// is the IPFS CID of the token metadata JSON.
const (
	sigSongMinted    = "SongMinted(uint256,address,string)"
	sigVoiceNoteCast = "VoiceNoteCast(uint256,address,string)"
)

var (
	ingestEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_chain_events_total",
			Help: "On-chain events processed by the ingester",
		},
		[]string{"event", "status"},
	)
	ingestLag = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "radio_chain_block_lag", Help: "Blocks between chain head and last scanned block"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(ingestEvents, ingestLag)
}

// Broadcaster lets the ingester nudge connected subscribers when the queue
// grows. Optional; nil means enqueue silently.
type Broadcaster interface {
	Broadcast(topic, event string, payload any)
}

// Service polls the chain RPC for contract events and appends the resulting
// songs / voice notes to the Redis queues.
//
// Started at most once per process: every stream connection calls
// EnsureStarted and exactly one of them wins the flag.
type Service struct {
	cfg     *config.Config
	store   *store.Client
	gateway *ipfs.Client
	relay   Broadcaster

	client    *http.Client
	started   atomic.Bool
	reqID     atomic.Int64
	lastBlock uint64

	topicSong  string
	topicVoice string
}

func New(cfg *config.Config, st *store.Client, gw *ipfs.Client, relay Broadcaster) *Service {
	return &Service{
		cfg:        cfg,
		store:      st,
		gateway:    gw,
		relay:      relay,
		client:     &http.Client{Timeout: 10 * time.Second},
		topicSong:  eventTopic(sigSongMinted),
		topicVoice: eventTopic(sigVoiceNoteCast),
	}
}

// EnsureStarted launches the poll loop if nobody has yet. Fire-and-forget:
// callers never wait on it. Returns true for the caller that actually
// started it.
func (s *Service) EnsureStarted(ctx context.Context) bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}
	go s.run(ctx)
	return true
}

func (s *Service) run(ctx context.Context) {
	interval := time.Duration(s.cfg.Chain.PollInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	log.Printf("⛓️  Chain ingester started (contract %s, every %s)", s.cfg.Chain.ToursContract, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("⛓️  Chain ingester stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll scans the block window since the previous tick and enqueues every
// contract event found in it.
func (s *Service) poll(ctx context.Context) {
	head, err := s.blockNumber(ctx)
	if err != nil {
		log.Printf("⚠️ Ingester: blockNumber failed: %v", err)
		return
	}

	to := head
	if lag := uint64(s.cfg.Chain.ConfirmationLag); to > lag {
		to -= lag
	}

	from := s.lastBlock + 1
	if s.lastBlock == 0 {
		// First run: don't replay the whole chain
		back := uint64(s.cfg.Chain.StartBlockLag)
		if to > back {
			from = to - back
		} else {
			from = 0
		}
	}
	if from > to {
		return
	}

	logs, err := s.getLogs(ctx, from, to)
	if err != nil {
		log.Printf("⚠️ Ingester: getLogs [%d..%d] failed: %v", from, to, err)
		return
	}

	for _, lg := range logs {
		if err := s.processLog(ctx, lg); err != nil {
			log.Printf("❌ Ingester: event at %s dropped: %v", lg.TransactionHash, err)
		}
	}

	s.lastBlock = to
	ingestLag.Set(float64(head - to))
}

func (s *Service) processLog(ctx context.Context, lg rpcLog) error {
	if len(lg.Topics) < 3 || len(lg.Topics[2]) < 26 {
		return fmt.Errorf("unexpected topic shape (%d topics)", len(lg.Topics))
	}

	metaCID, err := decodeStringArg(lg.Data)
	if err != nil {
		return fmt.Errorf("decode cid: %w", err)
	}
	author := "0x" + strings.TrimPrefix(lg.Topics[2], "0x")[24:] // address is right-aligned in the topic word
	tokenID := strings.TrimLeft(strings.TrimPrefix(lg.Topics[1], "0x"), "0")
	if tokenID == "" {
		tokenID = "0"
	}

	switch lg.Topics[0] {
	case s.topicSong:
		return s.enqueueSong(ctx, tokenID, author, metaCID)
	case s.topicVoice:
		return s.enqueueVoiceNote(ctx, tokenID, author, metaCID)
	default:
		// Filtered query should make this unreachable; count it anyway
		ingestEvents.WithLabelValues("unknown", "skipped").Inc()
		return nil
	}
}

// tokenMeta is the shape of the metadata JSON pinned alongside each token.
type tokenMeta struct {
	Name     string  `json:"name"`
	Artist   string  `json:"artist"`
	AudioCID string  `json:"audio_cid"`
	Artwork  string  `json:"artwork_cid"`
	Duration float64 `json:"duration"`
	FID      int64   `json:"fid"`
	Location string  `json:"location"`
}

func (s *Service) enqueueSong(ctx context.Context, tokenID, artist, metaCID string) error {
	var meta tokenMeta
	if err := s.gateway.FetchJSON(ctx, metaCID, &meta); err != nil {
		ingestEvents.WithLabelValues("song", "failure").Inc()
		return fmt.Errorf("token metadata %s: %w", metaCID, err)
	}

	audioCID := meta.AudioCID
	if audioCID == "" {
		audioCID = metaCID
	}

	song := models.Song{
		ID:          uuid.NewString(),
		CID:         audioCID,
		Title:       meta.Name,
		Artist:      meta.Artist,
		ArtworkCID:  meta.Artwork,
		Duration:    meta.Duration,
		Uploader:    artist,
		UploaderFID: meta.FID,
		TokenID:     tokenID,
		Location:    meta.Location,
	}

	if err := s.store.PushSong(ctx, song); err != nil {
		ingestEvents.WithLabelValues("song", "failure").Inc()
		return err
	}

	ingestEvents.WithLabelValues("song", "success").Inc()
	log.Printf("🎵 Queued from chain: %s — %s (token %s)", song.Artist, song.Title, tokenID)

	if s.relay != nil {
		s.relay.Broadcast("live-radio", "queue_update", song)
	}
	return nil
}

func (s *Service) enqueueVoiceNote(ctx context.Context, tokenID, author, metaCID string) error {
	var meta tokenMeta
	if err := s.gateway.FetchJSON(ctx, metaCID, &meta); err != nil {
		ingestEvents.WithLabelValues("voicenote", "failure").Inc()
		return fmt.Errorf("token metadata %s: %w", metaCID, err)
	}

	audioCID := meta.AudioCID
	if audioCID == "" {
		audioCID = metaCID
	}

	note := models.VoiceNote{
		ID:        uuid.NewString(),
		CID:       audioCID,
		Author:    author,
		AuthorFID: meta.FID,
		Duration:  meta.Duration,
	}

	if err := s.store.PushVoiceNote(ctx, note); err != nil {
		ingestEvents.WithLabelValues("voicenote", "failure").Inc()
		return err
	}

	ingestEvents.WithLabelValues("voicenote", "success").Inc()
	log.Printf("🎙️ Voice note queued from chain (token %s)", tokenID)

	if s.relay != nil {
		s.relay.Broadcast("live-radio", "voicenote_update", note)
	}
	return nil
}

// --- JSON-RPC plumbing ---

type rpcLog struct {
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
}

func (s *Service) blockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := s.rpcCall(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(result, "0x"), 16, 64)
}

func (s *Service) getLogs(ctx context.Context, from, to uint64) ([]rpcLog, error) {
	filter := map[string]any{
		"address":   s.cfg.Chain.ToursContract,
		"fromBlock": fmt.Sprintf("0x%x", from),
		"toBlock":   fmt.Sprintf("0x%x", to),
		"topics":    []any{[]string{s.topicSong, s.topicVoice}},
	}

	var logs []rpcLog
	if err := s.rpcCall(ctx, "eth_getLogs", []any{filter}, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Service) rpcCall(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      s.reqID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.Chain.RPCURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return json.Unmarshal(envelope.Result, result)
}

// --- ABI helpers ---

// eventTopic returns the keccak256 hash of an event signature, 0x-prefixed.
func eventTopic(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// decodeStringArg decodes a single ABI-encoded dynamic string from log data:
// word 0 is the offset, the word at the offset is the length, the bytes
// follow.
func decodeStringArg(dataHex string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(dataHex, "0x"))
	if err != nil {
		return "", err
	}
	if len(raw) < 64 {
		return "", fmt.Errorf("data too short: %d bytes", len(raw))
	}

	// Compared this way round so absurd words cannot wrap the checks
	offset := beWord(raw[0:32])
	if offset > uint64(len(raw)) || uint64(len(raw))-offset < 32 {
		return "", fmt.Errorf("offset %d out of range", offset)
	}

	length := beWord(raw[offset : offset+32])
	start := offset + 32
	if length > uint64(len(raw))-start {
		return "", fmt.Errorf("length %d out of range", length)
	}

	return string(raw[start : start+length]), nil
}

// beWord reads the low 8 bytes of a 32-byte big-endian word. CIDs and
// offsets never come near 2^64.
func beWord(word []byte) uint64 {
	var v uint64
	for _, b := range word[24:] {
		v = v<<8 | uint64(b)
	}
	return v
}
