package handlers

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"empowertours/internal/config"
	"empowertours/internal/ipfs"
	"empowertours/internal/storage"
)

func newMediaHandler(t *testing.T) (*MediaHandler, *storage.Client) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.Provider = "local"
	cfg.Storage.LocalStorage = t.TempDir()
	cfg.Storage.BucketMedia = "media"
	cfg.IPFS.GatewayURL = "https://gateway.pinata.cloud/ipfs"

	mirror := storage.New(cfg)
	return NewMediaHandler(nil, ipfs.New(cfg), mirror, nil, nil), mirror
}

func serveMedia(h *MediaHandler, kind, cid string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/media/"+kind+"/"+cid, nil)
	c.Params = gin.Params{{Key: "kind", Value: kind}, {Key: "cid", Value: cid}}
	h.Serve(c)
	return w
}

func TestServeMirroredMedia(t *testing.T) {
	h, mirror := newMediaHandler(t)

	payload := []byte("fake mp3 bytes")
	mirror.Mirror(storage.MirrorKey("song", "bafysong"), bytes.NewReader(payload), "audio/mpeg")

	w := serveMedia(h, "song", "bafysong")
	if w.Code != 200 {
		t.Fatalf("expected 200 from mirror, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), payload) {
		t.Errorf("served bytes differ: %q", w.Body.Bytes())
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("mirrored media should be immutable-cached, got %q", cc)
	}
}

func TestServeFallsBackToGateway(t *testing.T) {
	h, _ := newMediaHandler(t)

	w := serveMedia(h, "song", "bafymissing")
	if w.Code != 302 {
		t.Fatalf("expected redirect for unmirrored CID, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://gateway.pinata.cloud/ipfs/bafymissing" {
		t.Errorf("redirect target = %q", loc)
	}
}

func TestServeRejectsUnknownKind(t *testing.T) {
	h, _ := newMediaHandler(t)

	if w := serveMedia(h, "playlist", "bafy"); w.Code != 400 {
		t.Errorf("unknown kind: got %d, want 400", w.Code)
	}
}

func TestEvictMirror(t *testing.T) {
	h, mirror := newMediaHandler(t)
	key := storage.MirrorKey("song", "bafyevict")
	mirror.Mirror(key, bytes.NewReader([]byte("x")), "audio/mpeg")

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("DELETE", "/api/media/song/bafyevict", nil)
	c.Params = gin.Params{{Key: "kind", Value: "song"}, {Key: "cid", Value: "bafyevict"}}
	h.EvictMirror(c)

	if w.Code != 200 {
		t.Fatalf("evict: got %d", w.Code)
	}
	if ok, _ := mirror.Has(key); ok {
		t.Error("mirror copy survived eviction")
	}

	// After eviction the CID falls back to the gateway
	if w := serveMedia(h, "song", "bafyevict"); w.Code != 302 {
		t.Errorf("expected gateway fallback after evict, got %d", w.Code)
	}
}

func TestParseFID(t *testing.T) {
	for claim, want := range map[string]int64{"194": 194, "": 0, "alice": 0} {
		if got := parseFID(claim); got != want {
			t.Errorf("parseFID(%q) = %d, want %d", claim, got, want)
		}
	}
}
