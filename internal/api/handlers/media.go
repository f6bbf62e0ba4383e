package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"empowertours/internal/farcaster"
	"empowertours/internal/geo"
	"empowertours/internal/ipfs"
	"empowertours/internal/models"
	"empowertours/internal/storage"
)

// MediaHandler proxies uploads into IPFS: pin the file, pin its metadata,
// mirror the bytes, write the catalog row. The HTTP response waits only on
// the pins; everything else is a logged side effect.
type MediaHandler struct {
	db     *gorm.DB
	pinner *ipfs.Client
	mirror *storage.Client
	geo    *geo.Client
	caster *farcaster.Client
}

func NewMediaHandler(db *gorm.DB, pinner *ipfs.Client, mirror *storage.Client, geoClient *geo.Client, caster *farcaster.Client) *MediaHandler {
	return &MediaHandler{
		db:     db,
		pinner: pinner,
		mirror: mirror,
		geo:    geoClient,
		caster: caster,
	}
}

// Upload handles POST /api/media/upload (multipart form).
// Fields: file, kind, title, artist, duration, lat, lon.
func (h *MediaHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	kind := c.DefaultPostForm("kind", "song")
	if !validKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be song, voicenote or artwork"})
		return
	}

	title := c.PostForm("title")
	artist := c.PostForm("artist")
	duration, _ := strconv.ParseFloat(c.PostForm("duration"), 64)

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable file"})
		return
	}
	defer f.Close()

	ctx := c.Request.Context()

	// 1. Pin the content
	cid, err := h.pinner.PinFile(ctx, fileHeader.Filename, f)
	if err != nil {
		slog.Error("pin failed", "file", fileHeader.Filename, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Pinning service unavailable"})
		return
	}

	// 2. Tag the climbing spot, best effort
	location := h.lookupLocation(ctx, c.PostForm("lat"), c.PostForm("lon"))

	// 3. Pin the metadata document next to it. fid must be a JSON number:
	// the chain ingester reads these documents back as token metadata.
	fid := parseFID(c.GetString("user_fid"))
	metaCID, err := h.pinner.PinJSON(ctx, title, map[string]any{
		"name":      title,
		"artist":    artist,
		"audio_cid": cid,
		"duration":  duration,
		"location":  location,
		"fid":       fid,
	})
	if err != nil {
		slog.Warn("metadata pin failed", "cid", cid, "error", err)
	}

	// 4. Catalog row
	asset := models.MediaAsset{
		CID:         cid,
		Kind:        kind,
		Title:       title,
		Artist:      artist,
		Duration:    duration,
		SizeBytes:   fileHeader.Size,
		ContentType: fileHeader.Header.Get("Content-Type"),
		UploaderFID: fid,
		Location:    location,
		MirrorKey:   storage.MirrorKey(kind, cid),
		Pinned:      true,
	}
	if h.db != nil {
		if err := h.db.Create(&asset).Error; err != nil {
			slog.Warn("catalog write failed", "cid", cid, "error", err)
		}
	}

	// 5. Mirror + cast, fire-and-forget
	go h.mirrorPinned(kind, cid)
	if h.caster != nil && kind == "song" && title != "" {
		go h.caster.Announce("🧗 New track on EmpowerTours Radio: " + artist + " — " + title)
	}

	c.JSON(http.StatusCreated, gin.H{
		"cid":         cid,
		"metadataCid": metaCID,
		"gatewayUrl":  h.pinner.GatewayURL(cid),
		"location":    location,
	})
}

// GetAssets returns the recent catalog, newest first.
func (h *MediaHandler) GetAssets(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Catalog not configured"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit > 200 {
		limit = 200 // Hard cap to protect the server
	}

	var assets []models.MediaAsset
	if err := h.db.Order("id DESC").Limit(limit).Find(&assets).Error; err != nil {
		slog.Error("catalog read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": assets})
}

func (h *MediaHandler) lookupLocation(ctx context.Context, latStr, lonStr string) string {
	if h.geo == nil || latStr == "" || lonStr == "" {
		return ""
	}
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lon, err2 := strconv.ParseFloat(lonStr, 64)
	if err1 != nil || err2 != nil {
		return ""
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	place, err := h.geo.ReverseLookup(lookupCtx, lat, lon)
	if err != nil {
		slog.Warn("geo lookup failed", "lat", lat, "lon", lon, "error", err)
		return ""
	}
	return place
}

// mirrorPinned copies freshly pinned bytes into the media mirror.
// Runs detached from the request; outcome is logged only.
func (h *MediaHandler) mirrorPinned(kind, cid string) {
	if h.mirror == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	body, contentType, err := h.pinner.Fetch(ctx, cid)
	if err != nil {
		slog.Warn("mirror fetch failed", "cid", cid, "error", err)
		return
	}
	defer body.Close()

	if err := h.mirror.Mirror(storage.MirrorKey(kind, cid), body, contentType); err != nil {
		slog.Warn("mirror write failed", "cid", cid, "error", err)
	}
}

// Serve handles GET /api/media/:kind/:cid. Mirrored bytes are served
// directly; anything not mirrored yet redirects to the pinning gateway, so
// the URL works from the moment the CID exists.
func (h *MediaHandler) Serve(c *gin.Context) {
	kind := c.Param("kind")
	cid := c.Param("cid")
	if !validKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be song, voicenote or artwork"})
		return
	}

	if h.mirror != nil {
		key := storage.MirrorKey(kind, cid)
		if ok, err := h.mirror.Has(key); err == nil && ok {
			obj, err := h.mirror.Get(key)
			if err == nil {
				defer obj.Body.Close()
				c.Header("Cache-Control", "public, max-age=31536000, immutable")
				c.DataFromReader(http.StatusOK, obj.ContentLength, obj.ContentType, obj.Body, nil)
				return
			}
			slog.Warn("mirror read failed", "key", key, "error", err)
		}
	}

	c.Redirect(http.StatusFound, h.pinner.GatewayURL(cid))
}

// EvictMirror handles DELETE /api/media/:kind/:cid. Drops the mirrored copy
// only; the IPFS pin stays.
func (h *MediaHandler) EvictMirror(c *gin.Context) {
	if h.mirror == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Mirror not configured"})
		return
	}

	kind := c.Param("kind")
	if !validKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be song, voicenote or artwork"})
		return
	}

	key := storage.MirrorKey(kind, c.Param("cid"))
	if err := h.mirror.Evict(key); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not mirrored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"evicted": key})
}

func validKind(kind string) bool {
	return kind == "song" || kind == "voicenote" || kind == "artwork"
}

// parseFID turns the JWT subject claim into a numeric Farcaster ID.
// Unknown or malformed claims come out as 0.
func parseFID(claim string) int64 {
	fid, _ := strconv.ParseInt(claim, 10, 64)
	return fid
}
