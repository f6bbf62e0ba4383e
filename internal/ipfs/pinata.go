package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"empowertours/internal/config"
)

const pinataAPI = "https://api.pinata.cloud"

// Client talks to the Pinata pinning API and to an IPFS gateway for reads.
type Client struct {
	jwt     string
	gateway string
	http    *http.Client
}

func New(cfg *config.Config) *Client {
	return &Client{
		jwt:     cfg.IPFS.PinataJWT,
		gateway: strings.TrimRight(cfg.IPFS.GatewayURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// GatewayURL returns the public URL for a CID.
func (c *Client) GatewayURL(cid string) string {
	return fmt.Sprintf("%s/%s", c.gateway, cid)
}

// PinFile streams a file to Pinata and returns the resulting CID.
func (c *Client) PinFile(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", pinataAPI+"/pinning/pinFileToIPFS", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.jwt)

	return c.doPin(req)
}

// PinJSON pins a metadata document and returns its CID.
func (c *Client) PinJSON(ctx context.Context, name string, v any) (string, error) {
	body, err := json.Marshal(map[string]any{
		"pinataMetadata": map[string]string{"name": name},
		"pinataContent":  v,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", pinataAPI+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.jwt)

	return c.doPin(req)
}

func (c *Client) doPin(req *http.Request) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("pinata status %d", resp.StatusCode)
	}

	var result struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.IpfsHash == "" {
		return "", fmt.Errorf("pinata returned no hash")
	}
	return result.IpfsHash, nil
}

// FetchJSON reads a pinned JSON document through the gateway.
func (c *Client) FetchJSON(ctx context.Context, cid string, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.GatewayURL(cid), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("gateway status %d for %s", resp.StatusCode, cid)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Fetch opens the raw content behind a CID (used by the media mirror).
// Caller closes the body.
func (c *Client) Fetch(ctx context.Context, cid string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.GatewayURL(cid), nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != 200 {
		resp.Body.Close()
		return nil, "", fmt.Errorf("gateway status %d for %s", resp.StatusCode, cid)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
