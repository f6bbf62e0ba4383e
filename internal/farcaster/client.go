package farcaster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"empowertours/internal/config"
)

const neynarAPI = "https://api.neynar.com"

// Client posts casts through the Neynar API. Everything here is best effort:
// a failed cast is logged and forgotten, never surfaced to the caller.
type Client struct {
	apiKey  string
	signer  string
	channel string
	http    *http.Client
}

func New(cfg *config.Config) *Client {
	return &Client{
		apiKey:  cfg.Farcaster.NeynarAPIKey,
		signer:  cfg.Farcaster.SignerUUID,
		channel: cfg.Farcaster.Channel,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Announce publishes a cast to the configured channel. Safe to call from a
// goroutine; it never returns an error to the hot path.
func (c *Client) Announce(text string) {
	if c.apiKey == "" || c.signer == "" {
		return
	}

	if err := c.publish(text); err != nil {
		log.Printf("⚠️ Cast failed: %v", err)
	} else {
		log.Printf("📣 Cast posted: %s", text)
	}
}

func (c *Client) publish(text string) error {
	payload := map[string]any{
		"signer_uuid": c.signer,
		"text":        text,
	}
	if c.channel != "" {
		payload["channel_id"] = c.channel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", neynarAPI+"/v2/farcaster/cast", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("neynar status %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Cast    struct {
			Hash string `json:"hash"`
		} `json:"cast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("neynar rejected the cast")
	}
	return nil
}
