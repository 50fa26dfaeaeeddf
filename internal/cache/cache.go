package cache

import (
	"context"
	"time"

	"mitienda/backend/internal/domain"
)

// CatalogCache holds the rendered public catalog. Any write that can change a
// price, a stock level or an offer must invalidate it.
type CatalogCache interface {
	Get(ctx context.Context, key string) ([]domain.CatalogEntry, bool, error)
	Set(ctx context.Context, key string, entries []domain.CatalogEntry, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) ([]domain.CatalogEntry, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ []domain.CatalogEntry, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
