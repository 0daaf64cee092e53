package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// BlobCache materializes database blobs as files under one directory. Files
// are named by row id and content digest, so a changed blob for the same id
// never resolves to the old file.
type BlobCache struct {
	storage *LocalStorage
	dir     string
	prefix  string
}

func NewBlobCache(s *LocalStorage, dir, prefix string) *BlobCache {
	return &BlobCache{storage: s, dir: dir, prefix: prefix}
}

// Put returns the path of the file holding data for id, writing it when
// missing and removing files left from earlier contents of the same id.
func (c *BlobCache) Put(id int64, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	name := fmt.Sprintf("%s%s%s", c.idPrefix(id), hex.EncodeToString(sum[:8]), blobExt(data))
	rel := filepath.Join(c.dir, name)
	if !c.storage.Exists(rel) {
		if _, err := c.storage.Save(rel, data); err != nil {
			return "", err
		}
	}
	if err := c.evict(id, name); err != nil {
		return "", err
	}
	return c.storage.Path(rel), nil
}

// Evict removes every cached file of id.
func (c *BlobCache) Evict(id int64) error {
	return c.evict(id, "")
}

func (c *BlobCache) evict(id int64, keep string) error {
	prefix := c.idPrefix(id)
	return c.storage.Walk(c.dir, func(rel string) error {
		base := filepath.Base(rel)
		if base == keep || !strings.HasPrefix(base, prefix) {
			return nil
		}
		return c.storage.Delete(rel)
	})
}

func (c *BlobCache) idPrefix(id int64) string {
	return fmt.Sprintf("%s_%d_", c.prefix, id)
}

func blobExt(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".png"
	}
}
