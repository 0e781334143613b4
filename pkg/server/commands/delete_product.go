package commands

import (
	"context"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

type DeleteProductCommand struct {
	backend storage.ProductBackend
	cache   *cache.TieredCache
	logger  logger.Logger
}

type DeleteProductCommandOption func(*DeleteProductCommand)

func WithDeleteProductCommandLogger(l logger.Logger) DeleteProductCommandOption {
	return func(c *DeleteProductCommand) {
		c.logger = l
	}
}

func WithDeleteProductCommandCache(tc *cache.TieredCache) DeleteProductCommandOption {
	return func(c *DeleteProductCommand) {
		c.cache = tc
	}
}

func NewDeleteProductCommand(backend storage.ProductBackend, opts ...DeleteProductCommandOption) *DeleteProductCommand {
	c := &DeleteProductCommand{
		backend: backend,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *DeleteProductCommand) Execute(ctx context.Context, id string) error {
	if id == "" {
		return serverErrors.NewValidationError("product id is required")
	}

	// The row is read first so the grouping it leaves can be invalidated.
	before, err := c.backend.GetProduct(ctx, id)
	if err != nil {
		return serverErrors.FromError(err)
	}

	if err := c.backend.DeleteProduct(ctx, id); err != nil {
		return serverErrors.FromError(err)
	}

	invalidateTags(ctx, c.cache, productTag, categoryTag, before.Category)

	return nil
}
