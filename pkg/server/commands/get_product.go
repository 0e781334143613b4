package commands

import (
	"context"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

type GetProductQuery struct {
	backend storage.ProductBackend
	cache   *cache.TieredCache
	logger  logger.Logger
}

type GetProductQueryOption func(*GetProductQuery)

func WithGetProductQueryLogger(l logger.Logger) GetProductQueryOption {
	return func(q *GetProductQuery) {
		q.logger = l
	}
}

func WithGetProductQueryCache(c *cache.TieredCache) GetProductQueryOption {
	return func(q *GetProductQuery) {
		q.cache = c
	}
}

func NewGetProductQuery(backend storage.ProductBackend, opts ...GetProductQueryOption) *GetProductQuery {
	q := &GetProductQuery{
		backend: backend,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *GetProductQuery) Execute(ctx context.Context, id string) (*model.Product, error) {
	if id == "" {
		return nil, serverErrors.NewValidationError("product id is required")
	}

	if q.cache == nil {
		product, err := q.backend.GetProduct(ctx, id)
		if err != nil {
			return nil, serverErrors.FromError(err)
		}
		return product, nil
	}

	product, err := cache.GetOrCreateJSON(ctx, q.cache, cache.Key("product", id), []string{productTag}, func(ctx context.Context) (*model.Product, error) {
		return q.backend.GetProduct(ctx, id)
	})
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	return product, nil
}
