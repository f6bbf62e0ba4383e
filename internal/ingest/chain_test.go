package ingest

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"empowertours/internal/config"
	"empowertours/internal/store"
)

func TestEventTopicMatchesKeccak(t *testing.T) {
	// The canonical ERC-721 Transfer topic is a well-known vector
	got := eventTopic("Transfer(address,address,uint256)")
	want := "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if got != want {
		t.Fatalf("eventTopic mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestDecodeStringArg(t *testing.T) {
	cid := "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

	// offset word + length word + padded bytes
	var b []byte
	b = append(b, word(32)...)
	b = append(b, word(uint64(len(cid)))...)
	b = append(b, []byte(cid)...)
	if pad := 32 - len(cid)%32; pad != 32 {
		b = append(b, make([]byte, pad)...)
	}

	got, err := decodeStringArg("0x" + hex.EncodeToString(b))
	if err != nil {
		t.Fatalf("decodeStringArg: %v", err)
	}
	if got != cid {
		t.Errorf("decoded %q, want %q", got, cid)
	}
}

func TestDecodeStringArgRejectsGarbage(t *testing.T) {
	// Valid offset word followed by an absurd length word
	hugeLength := "0x" + hex.EncodeToString(word(32)) + strings.Repeat("ff", 32)

	for _, bad := range []string{
		"0x",
		"0x00",
		"0x" + strings.Repeat("ff", 64), // absurd offset
		hugeLength,
	} {
		if _, err := decodeStringArg(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestEnsureStartedIsAtMostOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	st := store.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	cfg := &config.Config{}
	// One fast-failing poll, then the ticker never fires again
	cfg.Chain.PollInterval = 3600
	cfg.Chain.RPCURL = "http://127.0.0.1:0"

	svc := New(cfg, st, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !svc.EnsureStarted(ctx) {
		t.Fatal("first EnsureStarted should win the flag")
	}
	for i := 0; i < 5; i++ {
		if svc.EnsureStarted(ctx) {
			t.Fatal("ingester started twice")
		}
	}
}

func word(v uint64) []byte {
	w := make([]byte, 32)
	for i := 0; i < 8; i++ {
		w[31-i] = byte(v >> (8 * i))
	}
	return w
}
