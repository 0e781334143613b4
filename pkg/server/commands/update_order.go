package commands

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

type UpdateOrderCommand struct {
	backend storage.OrderBackend
	cache   *cache.TieredCache
	logger  logger.Logger
}

type UpdateOrderCommandOption func(*UpdateOrderCommand)

func WithUpdateOrderCommandLogger(l logger.Logger) UpdateOrderCommandOption {
	return func(c *UpdateOrderCommand) {
		c.logger = l
	}
}

func WithUpdateOrderCommandCache(tc *cache.TieredCache) UpdateOrderCommandOption {
	return func(c *UpdateOrderCommand) {
		c.cache = tc
	}
}

func NewUpdateOrderCommand(backend storage.OrderBackend, opts ...UpdateOrderCommandOption) *UpdateOrderCommand {
	c := &UpdateOrderCommand{
		backend: backend,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *UpdateOrderCommand) Execute(ctx context.Context, patch *model.OrderPatch) (*model.Order, error) {
	if patch.ID == "" {
		return nil, serverErrors.NewValidationError("order id is required")
	}
	if patch.IsZero() {
		return nil, serverErrors.NewValidationError("patch carries no field changes")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, serverErrors.NewValidationError(fmt.Sprintf("unknown status '%s'", *patch.Status))
	}
	if patch.CustomerEmail != nil {
		if _, err := mail.ParseAddress(*patch.CustomerEmail); err != nil {
			return nil, serverErrors.NewValidationError("customer_email is not a valid address")
		}
	}

	// The row is read first so the grouping it leaves can be invalidated.
	before, err := c.backend.GetOrder(ctx, patch.ID)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	updated, err := c.backend.UpdateOrder(ctx, patch)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	invalidateTags(ctx, c.cache, orderTag, statusTag, string(before.Status), string(updated.Status))

	return updated, nil
}
