package marketplace

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

// Cache keeps gallery answers on disk, keyed by the checksum of the query
// that produced them. Reading is enabled whenever a directory is set,
// writing only on request.
type Cache struct {
	Dir   string
	Write bool
}

// cacheKey is the crc32 of the query body, at least four hex digits wide,
// which is how earlier releases of the mirror named their cache files.
func cacheKey(query []byte) string {
	return fmt.Sprintf("%04x", crc32.ChecksumIEEE(query))
}

func (c *Cache) responsePath(query []byte) string {
	return filepath.Join(c.Dir, "response_"+cacheKey(query)+".json")
}

func (c *Cache) queryPath(query []byte) string {
	return filepath.Join(c.Dir, "query_"+cacheKey(query)+".json")
}

func (c *Cache) Load(query []byte) ([]byte, bool) {
	if c == nil || c.Dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.responsePath(query))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) Store(query, response []byte) error {
	if c == nil || c.Dir == "" || !c.Write {
		return nil
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(c.queryPath(query), query, 0644); err != nil {
		return fmt.Errorf("failed to write cached query: %w", err)
	}
	if err := os.WriteFile(c.responsePath(query), response, 0644); err != nil {
		return fmt.Errorf("failed to write cached response: %w", err)
	}
	return nil
}
