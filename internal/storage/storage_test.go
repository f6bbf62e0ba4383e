package storage

import (
	"bytes"
	"io"
	"testing"

	"empowertours/internal/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.Provider = "local"
	cfg.Storage.LocalStorage = t.TempDir()
	cfg.Storage.BucketMedia = "media"
	return New(cfg)
}

func TestMirrorKey(t *testing.T) {
	if got := MirrorKey("song", "bafy123"); got != "song/bafy123" {
		t.Errorf("MirrorKey = %q", got)
	}
}

func TestMirrorRoundTrip(t *testing.T) {
	c := newTestClient(t)
	key := MirrorKey("song", "bafyroundtrip")
	payload := []byte("fake mp3 bytes")

	if err := c.Mirror(key, bytes.NewReader(payload), "audio/mpeg"); err != nil {
		t.Fatalf("mirror: %v", err)
	}

	ok, err := c.Has(key)
	if err != nil || !ok {
		t.Fatalf("Has after mirror = %v, %v", ok, err)
	}

	obj, err := c.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer obj.Body.Close()

	data, _ := io.ReadAll(obj.Body)
	if !bytes.Equal(data, payload) {
		t.Errorf("mirrored bytes differ: %q", data)
	}
	if obj.ContentLength != int64(len(payload)) {
		t.Errorf("content length = %d, want %d", obj.ContentLength, len(payload))
	}
}

func TestEvictDropsTheCopy(t *testing.T) {
	c := newTestClient(t)
	key := MirrorKey("voicenote", "bafyevict")

	c.Mirror(key, bytes.NewReader([]byte("note")), "audio/ogg")
	if err := c.Evict(key); err != nil {
		t.Fatalf("evict: %v", err)
	}

	ok, err := c.Has(key)
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if ok {
		t.Error("evicted key still mirrored")
	}
}

func TestHasOnMissingKey(t *testing.T) {
	c := newTestClient(t)

	ok, err := c.Has(MirrorKey("song", "never-mirrored"))
	if err != nil {
		t.Fatalf("missing key must not error: %v", err)
	}
	if ok {
		t.Error("phantom mirror entry")
	}
}
