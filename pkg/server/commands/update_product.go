package commands

import (
	"context"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

type UpdateProductCommand struct {
	backend storage.ProductBackend
	cache   *cache.TieredCache
	logger  logger.Logger
}

type UpdateProductCommandOption func(*UpdateProductCommand)

func WithUpdateProductCommandLogger(l logger.Logger) UpdateProductCommandOption {
	return func(c *UpdateProductCommand) {
		c.logger = l
	}
}

func WithUpdateProductCommandCache(tc *cache.TieredCache) UpdateProductCommandOption {
	return func(c *UpdateProductCommand) {
		c.cache = tc
	}
}

func NewUpdateProductCommand(backend storage.ProductBackend, opts ...UpdateProductCommandOption) *UpdateProductCommand {
	c := &UpdateProductCommand{
		backend: backend,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *UpdateProductCommand) Execute(ctx context.Context, patch *model.ProductPatch) (*model.Product, error) {
	if patch.ID == "" {
		return nil, serverErrors.NewValidationError("product id is required")
	}
	if patch.IsZero() {
		return nil, serverErrors.NewValidationError("patch carries no field changes")
	}
	if patch.PriceCents != nil && *patch.PriceCents < 0 {
		return nil, serverErrors.NewValidationError("price_cents must not be negative")
	}
	if patch.Stock != nil && *patch.Stock < 0 {
		return nil, serverErrors.NewValidationError("stock must not be negative")
	}

	// The row is read first so the grouping it leaves can be invalidated.
	before, err := c.backend.GetProduct(ctx, patch.ID)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	updated, err := c.backend.UpdateProduct(ctx, patch)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	invalidateTags(ctx, c.cache, productTag, categoryTag, before.Category, updated.Category)

	return updated, nil
}
