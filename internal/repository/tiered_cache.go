package repository

import (
	"context"
	"errors"
	"time"

	"github.com/SergeiKhy/shortlink/internal/metrics"
	"github.com/SergeiKhy/shortlink/internal/models"
)

// TieredCache двухуровневый кеш: L1 в памяти процесса, L2 общий (Redis).
// Промах L1 с попаданием в L2 заполняет L1.
type TieredCache struct {
	local  CacheRepository
	remote CacheRepository
}

// NewTieredCache local может быть nil, тогда работает только remote
func NewTieredCache(local, remote CacheRepository) *TieredCache {
	return &TieredCache{local: local, remote: remote}
}

func (c *TieredCache) Get(ctx context.Context, code string) (*models.Link, error) {
	if c.local != nil {
		if link, err := c.local.Get(ctx, code); err == nil {
			metrics.CacheOperations.WithLabelValues("local", "hit").Inc()
			return link, nil
		}
		metrics.CacheOperations.WithLabelValues("local", "miss").Inc()
	}

	link, err := c.remote.Get(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			metrics.CacheOperations.WithLabelValues("redis", "miss").Inc()
		} else {
			metrics.CacheOperations.WithLabelValues("redis", "error").Inc()
		}
		return nil, err
	}
	metrics.CacheOperations.WithLabelValues("redis", "hit").Inc()

	if ttl := remainingTTL(link); c.local != nil && ttl > 0 {
		_ = c.local.Set(ctx, code, link, ttl)
	}
	return link, nil
}

func (c *TieredCache) Set(ctx context.Context, code string, link *models.Link, ttl time.Duration) error {
	if c.local != nil {
		_ = c.local.Set(ctx, code, link, ttl)
	}
	return c.remote.Set(ctx, code, link, ttl)
}

// Delete удаляет с обоих уровней; ошибка L2 возвращается вызывающему
func (c *TieredCache) Delete(ctx context.Context, code string) error {
	if c.local != nil {
		_ = c.local.Delete(ctx, code)
	}
	return c.remote.Delete(ctx, code)
}

// remainingTTL для ссылок со сроком жизни L1 не должен пережить саму ссылку
func remainingTTL(link *models.Link) time.Duration {
	if link.ExpiresAt == nil {
		return localTTL
	}
	return time.Until(*link.ExpiresAt)
}
