package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"empowertours/internal/config"
)

const nominatimAPI = "https://nominatim.openstreetmap.org"

// Client resolves coordinates to a human-readable climbing spot name.
// A failed lookup degrades to an empty location, never an error for uploads.
type Client struct {
	contact string
	http    *http.Client
}

func New(cfg *config.Config) *Client {
	return &Client{
		contact: cfg.Services.GeoContactEmail,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// ReverseLookup queries OpenStreetMap for the nearest named place.
func (c *Client) ReverseLookup(ctx context.Context, lat, lon float64) (string, error) {
	u, _ := url.Parse(nominatimAPI + "/reverse")
	q := u.Query()
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))
	q.Set("format", "json")
	q.Set("zoom", "14")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return "", err
	}
	// Nominatim REQUIRES a User-Agent
	ua := "EmpowerTours/1.0"
	if c.contact != "" {
		ua += " (" + c.contact + ")"
	}
	req.Header.Set("User-Agent", ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var result struct {
		Name    string `json:"name"`
		Address struct {
			Suburb  string `json:"suburb"`
			Village string `json:"village"`
			Town    string `json:"town"`
			City    string `json:"city"`
			Country string `json:"country"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	place := result.Name
	if place == "" {
		for _, candidate := range []string{
			result.Address.Suburb, result.Address.Village,
			result.Address.Town, result.Address.City,
		} {
			if candidate != "" {
				place = candidate
				break
			}
		}
	}
	if place == "" {
		return "", fmt.Errorf("no named place at %f,%f", lat, lon)
	}

	if result.Address.Country != "" {
		place = place + ", " + result.Address.Country
	}
	return place, nil
}
