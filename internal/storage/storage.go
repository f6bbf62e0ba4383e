package storage

import (
	"bytes"
	"io"
	"log"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"

	"empowertours/internal/config"
)

// Client mirrors pinned media into an S3-compatible bucket so the mini app
// can serve audio without hammering public IPFS gateways. The mirror is a
// cache, not the source of truth: the CID on IPFS always wins.
type Client struct {
	backend StorageProvider
	bucket  string
}

func New(cfg *config.Config) *Client {
	var backend StorageProvider

	if cfg.Storage.Provider == "local" {
		backend = NewLocalProvider(cfg.Storage.LocalStorage)
	} else {
		s3Config := &aws.Config{
			Credentials:      credentials.NewStaticCredentials(cfg.Storage.KeyID, cfg.Storage.AppKey, ""),
			Endpoint:         aws.String(cfg.Storage.Endpoint),
			Region:           aws.String(cfg.Storage.Region),
			S3ForcePathStyle: aws.Bool(true),
		}
		sess := session.Must(session.NewSession(s3Config))
		backend = NewS3Provider(sess)
	}

	return &Client{
		backend: backend,
		bucket:  cfg.Storage.BucketMedia,
	}
}

// MirrorKey is the bucket key for a CID.
func MirrorKey(kind, cid string) string {
	return kind + "/" + cid
}

// Mirror stores a copy of pinned content. Best effort: a failed mirror only
// costs gateway bandwidth later.
func (c *Client) Mirror(key string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	err = c.backend.Put(c.bucket, key, bytes.NewReader(data), contentType, "public, max-age=31536000, immutable")
	if err == nil {
		log.Printf("🪞 Mirrored %s (%d bytes)", key, len(data))
	}
	return err
}

// Get opens a mirrored file.
func (c *Client) Get(key string) (*FileObject, error) {
	return c.backend.Get(c.bucket, key)
}

// Has reports whether a CID is already mirrored.
func (c *Client) Has(key string) (bool, error) {
	return c.backend.Exists(c.bucket, key)
}

// Evict drops a mirrored copy (the pin itself is untouched).
func (c *Client) Evict(key string) error {
	return c.backend.Delete(c.bucket, key)
}
