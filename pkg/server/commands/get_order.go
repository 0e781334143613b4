package commands

import (
	"context"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

type GetOrderQuery struct {
	backend storage.OrderBackend
	cache   *cache.TieredCache
	logger  logger.Logger
}

type GetOrderQueryOption func(*GetOrderQuery)

func WithGetOrderQueryLogger(l logger.Logger) GetOrderQueryOption {
	return func(q *GetOrderQuery) {
		q.logger = l
	}
}

func WithGetOrderQueryCache(c *cache.TieredCache) GetOrderQueryOption {
	return func(q *GetOrderQuery) {
		q.cache = c
	}
}

func NewGetOrderQuery(backend storage.OrderBackend, opts ...GetOrderQueryOption) *GetOrderQuery {
	q := &GetOrderQuery{
		backend: backend,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *GetOrderQuery) Execute(ctx context.Context, id string) (*model.Order, error) {
	if id == "" {
		return nil, serverErrors.NewValidationError("order id is required")
	}

	if q.cache == nil {
		order, err := q.backend.GetOrder(ctx, id)
		if err != nil {
			return nil, serverErrors.FromError(err)
		}
		return order, nil
	}

	order, err := cache.GetOrCreateJSON(ctx, q.cache, cache.Key("order", id), []string{orderTag}, func(ctx context.Context) (*model.Order, error) {
		return q.backend.GetOrder(ctx, id)
	})
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	return order, nil
}
