package commands

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

// CreateOrderRequest is the decoded body of an order create call. The id,
// reference, and timestamps are assigned server-side. An empty status
// defaults to pending.
type CreateOrderRequest struct {
	CustomerEmail string            `json:"customer_email"`
	Status        model.OrderStatus `json:"status"`
	TotalCents    int64             `json:"total_cents"`
	Currency      string            `json:"currency"`
}

type CreateOrderCommand struct {
	backend storage.OrderBackend
	cache   *cache.TieredCache
	logger  logger.Logger
}

type CreateOrderCommandOption func(*CreateOrderCommand)

func WithCreateOrderCommandLogger(l logger.Logger) CreateOrderCommandOption {
	return func(c *CreateOrderCommand) {
		c.logger = l
	}
}

func WithCreateOrderCommandCache(tc *cache.TieredCache) CreateOrderCommandOption {
	return func(c *CreateOrderCommand) {
		c.cache = tc
	}
}

func NewCreateOrderCommand(backend storage.OrderBackend, opts ...CreateOrderCommandOption) *CreateOrderCommand {
	c := &CreateOrderCommand{
		backend: backend,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CreateOrderCommand) Execute(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	if req.CustomerEmail == "" {
		return nil, serverErrors.NewValidationError("customer_email is required")
	}
	if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
		return nil, serverErrors.NewValidationError("customer_email is not a valid address")
	}
	if req.Currency == "" {
		return nil, serverErrors.NewValidationError("currency is required")
	}
	if req.TotalCents < 0 {
		return nil, serverErrors.NewValidationError("total_cents must not be negative")
	}

	status := req.Status
	if status == "" {
		status = model.OrderStatusPending
	}
	if !status.Valid() {
		return nil, serverErrors.NewValidationError(fmt.Sprintf("unknown status '%s'", status))
	}

	order := &model.Order{
		ID:            ulid.Make().String(),
		Reference:     uuid.NewString(),
		CustomerEmail: req.CustomerEmail,
		Status:        status,
		TotalCents:    req.TotalCents,
		Currency:      req.Currency,
	}
	if err := c.backend.CreateOrder(ctx, order); err != nil {
		return nil, serverErrors.FromError(err)
	}

	invalidateTags(ctx, c.cache, orderTag, statusTag, string(order.Status))

	return order, nil
}
