package stock

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Get(ctx context.Context, productID, locationID int64) (Level, error)
	List(ctx context.Context, filter ListFilter) ([]Level, error)
	TotalStock(ctx context.Context, productID int64) (int64, error)
	LowStock(ctx context.Context) ([]LowStockItem, error)
}

const lowStockCacheKey = "stock:lowstock"

// Service exposes the read side of the stock ledger. Mutations are owned by
// the document services (procurement, sales, transfers, retail, stocktake)
// which share their transactions with the ledger helpers in this package.
type Service struct {
	repo     RepositoryPort
	cache    *redis.Client
	cacheTTL time.Duration
	group    singleflight.Group
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache *redis.Client, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

// Get returns a single level.
func (s *Service) Get(ctx context.Context, productID, locationID int64) (Level, error) {
	return s.repo.Get(ctx, productID, locationID)
}

// List returns levels matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Level, error) {
	return s.repo.List(ctx, filter)
}

// TotalStock sums a product across locations.
func (s *Service) TotalStock(ctx context.Context, productID int64) (int64, error) {
	return s.repo.TotalStock(ctx, productID)
}

// LowStock returns the reorder report, served from Redis for a short TTL
// since it scans every product.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, lowStockCacheKey).Bytes()
		if err == nil {
			var items []LowStockItem
			if jsonErr := json.Unmarshal(raw, &items); jsonErr == nil {
				return items, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			// Cache trouble is not a reason to fail the report.
			_ = err
		}
	}
	// Collapse concurrent misses into one scan.
	result, err, _ := s.group.Do(lowStockCacheKey, func() (any, error) {
		items, err := s.repo.LowStock(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(items); err == nil {
				_ = s.cache.Set(ctx, lowStockCacheKey, raw, s.cacheTTL).Err()
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]LowStockItem), nil
}
