package models

import (
	"time"

	"gorm.io/gorm"
)

// PlayHistory records every song or voice note the scheduler put on air.
type PlayHistory struct {
	gorm.Model

	Kind     string    `gorm:"size:20;index"` // "song" or "voicenote"
	CID      string    `gorm:"index;not null"`
	Title    string
	Artist   string
	Duration float64
	PlayedAt time.Time `gorm:"index"`
}

// MediaAsset is the catalog row written when a file is uploaded and pinned.
type MediaAsset struct {
	gorm.Model

	CID         string `gorm:"uniqueIndex;not null"`
	Kind        string `gorm:"size:20;index"` // "song", "voicenote", "artwork"
	Title       string `gorm:"index"`
	Artist      string `gorm:"index"`
	Duration    float64
	SizeBytes   int64
	ContentType string
	UploaderFID int64  `gorm:"index"`
	Uploader    string `gorm:"size:64"` // wallet address
	Location    string // reverse-geocoded climbing spot, may be empty
	MirrorKey   string // key in the media mirror bucket, empty if not mirrored
	Pinned      bool   `gorm:"default:false"`
}
