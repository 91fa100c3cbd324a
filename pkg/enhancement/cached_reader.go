package enhancement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	log "github.com/sirupsen/logrus"
)

// CachedReader keeps reference data lookups in an in-process bigcache.
// Misses and lookup errors are never cached.
type CachedReader struct {
	next  Reader
	cache *bigcache.BigCache
}

func NewCachedReader(ctx context.Context, next Reader, ttl time.Duration) (*CachedReader, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = ttl
	cfg.Verbose = false
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create reference data cache: %w", err)
	}
	return &CachedReader{next: next, cache: cache}, nil
}

func (c *CachedReader) GetEnhancement(ctx context.Context, id int) (Enhancement, error) {
	return cached(c, fmt.Sprintf("enhancement:%d", id), func() (Enhancement, error) {
		return c.next.GetEnhancement(ctx, id)
	})
}

func (c *CachedReader) GetServiceArea(ctx context.Context, id int) (ServiceArea, error) {
	return cached(c, fmt.Sprintf("service_area:%d", id), func() (ServiceArea, error) {
		return c.next.GetServiceArea(ctx, id)
	})
}

func (c *CachedReader) GetWorkPhase(ctx context.Context, id int) (WorkPhase, error) {
	return cached(c, fmt.Sprintf("work_phase:%d", id), func() (WorkPhase, error) {
		return c.next.GetWorkPhase(ctx, id)
	})
}

func (c *CachedReader) Close() error {
	return c.cache.Close()
}

func cached[T any](c *CachedReader, key string, load func() (T, error)) (T, error) {
	entry, err := c.cache.Get(key)
	if err == nil {
		var value T
		if err := json.Unmarshal(entry, &value); err == nil {
			return value, nil
		}
		log.Warnf("dropping undecodable cache entry %s", key)
		_ = c.cache.Delete(key)
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		log.Warnf("reference data cache lookup failed for %s: %v", key, err)
	}

	value, err := load()
	if err != nil {
		return value, err
	}
	if encoded, err := json.Marshal(value); err == nil {
		if err := c.cache.Set(key, encoded); err != nil {
			log.Warnf("could not cache %s: %v", key, err)
		}
	}
	return value, nil
}
