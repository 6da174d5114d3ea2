package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/dgraph-io/ristretto"
)

// localTTL верхняя граница жизни записи в памяти процесса.
// Удаление ссылки на другом экземпляре видно здесь не позже чем через localTTL.
const localTTL = 5 * time.Minute

// LocalCache кеш ссылок в памяти процесса на ristretto
type LocalCache struct {
	cache *ristretto.Cache
}

// NewLocalCache создаёт кеш не более чем на maxItems записей
func NewLocalCache(maxItems int64) (*LocalCache, error) {
	if maxItems <= 0 {
		maxItems = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems, // cost=1 на запись
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}
	return &LocalCache{cache: cache}, nil
}

func (l *LocalCache) Get(_ context.Context, code string) (*models.Link, error) {
	v, ok := l.cache.Get(code)
	if !ok {
		return nil, ErrCacheMiss
	}
	link := v.(models.Link)
	return &link, nil
}

// Set сохраняет копию: вызывающий код может менять свою ссылку
func (l *LocalCache) Set(_ context.Context, code string, link *models.Link, ttl time.Duration) error {
	if ttl <= 0 || ttl > localTTL {
		ttl = localTTL
	}
	l.cache.SetWithTTL(code, *link, 1, ttl)
	return nil
}

func (l *LocalCache) Delete(_ context.Context, code string) error {
	l.cache.Del(code)
	return nil
}

// Wait дожидается применения буферизованных записей
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
