package datasource

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
)

// Cache keeps the last full contact load and reloads it only when the
// source version moves or the cache is invalidated.
type Cache struct {
	source Source
	logger *slog.Logger

	mu      sync.Mutex
	records []contact.Record
	version time.Time
	loaded  bool
}

func NewCache(source Source, logger *slog.Logger) *Cache {
	return &Cache{source: source, logger: logger}
}

// Records returns the cached contacts, reloading when the source changed.
// A failed load leaves the previous snapshot in place and returns the error.
func (c *Cache) Records(ctx context.Context) ([]contact.Record, error) {
	version, err := c.source.Version(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && version.Equal(c.version) {
		return c.records, nil
	}

	records, err := c.source.Contacts(ctx)
	if err != nil {
		return nil, err
	}
	c.records = records
	c.version = version
	c.loaded = true
	c.logger.Info("contacts loaded", "records", len(records), "version", version)
	return records, nil
}

// Invalidate forces the next Records call to reload.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.records = nil
	c.mu.Unlock()
}
