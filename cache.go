// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Cache is the persistent store backing CacheGet/CacheSet (spec.md §6
// reserved key __cache_storage__), one zstd-compressed file per key under
// dir, named by the key's hex encoding; it is keyed by the key, not by a
// hash of the content. coreHandler serializes CacheSet calls through one
// semaphore shared by all keys, so Cache itself only needs to guard its own
// encoder/decoder pool, not cross-process coordination.
type Cache struct {
	dir string

	encMu sync.Mutex
	enc   *zstd.Encoder
	decMu sync.Mutex
	dec   *zstd.Decoder
}

// OpenCache creates a Cache rooted at dir, creating dir if necessary.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Cache{dir: dir, enc: enc, dec: dec}, nil
}

// Close releases the encoder/decoder's background goroutines.
func (c *Cache) Close() {
	c.enc.Close()
	c.dec.Close()
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.dir, hex.EncodeToString([]byte(key))+".zst")
}

// Get reads and decompresses key's value; ok is false if key was never set.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	c.decMu.Lock()
	defer c.decMu.Unlock()
	value, err := c.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set compresses and writes value for key, replacing any prior value.
func (c *Cache) Set(key string, value []byte) error {
	c.encMu.Lock()
	compressed := c.enc.EncodeAll(value, nil)
	c.encMu.Unlock()
	tmp := c.pathFor(key) + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.pathFor(key))
}
