package commands

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

// CreateProductRequest is the decoded body of a product create call. The id
// and timestamps are assigned server-side.
type CreateProductRequest struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Stock       int64  `json:"stock"`
}

type CreateProductCommand struct {
	backend storage.ProductBackend
	cache   *cache.TieredCache
	logger  logger.Logger
}

type CreateProductCommandOption func(*CreateProductCommand)

func WithCreateProductCommandLogger(l logger.Logger) CreateProductCommandOption {
	return func(c *CreateProductCommand) {
		c.logger = l
	}
}

func WithCreateProductCommandCache(tc *cache.TieredCache) CreateProductCommandOption {
	return func(c *CreateProductCommand) {
		c.cache = tc
	}
}

func NewCreateProductCommand(backend storage.ProductBackend, opts ...CreateProductCommandOption) *CreateProductCommand {
	c := &CreateProductCommand{
		backend: backend,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CreateProductCommand) Execute(ctx context.Context, req *CreateProductRequest) (*model.Product, error) {
	if req.SKU == "" {
		return nil, serverErrors.NewValidationError("sku is required")
	}
	if req.Name == "" {
		return nil, serverErrors.NewValidationError("name is required")
	}
	if req.Currency == "" {
		return nil, serverErrors.NewValidationError("currency is required")
	}
	if req.PriceCents < 0 {
		return nil, serverErrors.NewValidationError("price_cents must not be negative")
	}
	if req.Stock < 0 {
		return nil, serverErrors.NewValidationError("stock must not be negative")
	}

	product := &model.Product{
		ID:          ulid.Make().String(),
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Stock:       req.Stock,
	}
	if err := c.backend.CreateProduct(ctx, product); err != nil {
		return nil, serverErrors.FromError(err)
	}

	invalidateTags(ctx, c.cache, productTag, categoryTag, product.Category)

	return product, nil
}
