package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

type BulkUpdateProductsCommand struct {
	backend    storage.ProductBackend
	cache      *cache.TieredCache
	logger     logger.Logger
	maxRecords int
	batchSize  int
}

type BulkUpdateProductsCommandOption func(*BulkUpdateProductsCommand)

func WithBulkUpdateProductsCommandLogger(l logger.Logger) BulkUpdateProductsCommandOption {
	return func(c *BulkUpdateProductsCommand) {
		c.logger = l
	}
}

func WithBulkUpdateProductsCommandCache(tc *cache.TieredCache) BulkUpdateProductsCommandOption {
	return func(c *BulkUpdateProductsCommand) {
		c.cache = tc
	}
}

// WithBulkUpdateProductsMaxRecords caps the total records accepted by one
// request.
func WithBulkUpdateProductsMaxRecords(n int) BulkUpdateProductsCommandOption {
	return func(c *BulkUpdateProductsCommand) {
		c.maxRecords = n
	}
}

// WithBulkUpdateProductsBatchSize sets the rows applied per chunk when a
// request does not carry its own batch_size.
func WithBulkUpdateProductsBatchSize(n int) BulkUpdateProductsCommandOption {
	return func(c *BulkUpdateProductsCommand) {
		c.batchSize = n
	}
}

func NewBulkUpdateProductsCommand(backend storage.ProductBackend, opts ...BulkUpdateProductsCommandOption) *BulkUpdateProductsCommand {
	c := &BulkUpdateProductsCommand{
		backend:    backend,
		logger:     logger.NewNoopLogger(),
		maxRecords: storage.DefaultMaxRecordsPerBulkUpdate,
		batchSize:  storage.DefaultBulkBatchSize,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute parses the raw bulk payload, applies the patches in one
// transaction, and invalidates the cache groupings the mutation touched.
func (c *BulkUpdateProductsCommand) Execute(ctx context.Context, body []byte) (*BulkUpdateResponse, error) {
	ctx, span := tracer.Start(ctx, "BulkUpdateProducts")
	defer span.End()

	records, batchSize, err := parseBulkBody(body, c.maxRecords)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}
	if batchSize == 0 {
		batchSize = c.batchSize
	}

	var patches []*model.ProductPatch
	if err := json.Unmarshal([]byte(records.Raw), &patches); err != nil {
		return nil, serverErrors.NewValidationError(fmt.Sprintf("malformed records: %v", err))
	}

	res, err := c.backend.BulkUpdateProducts(ctx, patches, batchSize)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	bulkAppliedRecordsCounter.WithLabelValues("product").Add(float64(res.Applied))
	invalidateTags(ctx, c.cache, productTag, categoryTag, res.AffectedGroups...)

	c.logger.InfoWithContext(ctx, "bulk product update applied",
		zap.Int("applied", res.Applied),
		zap.Int("unresolved", len(res.Unresolved)))

	return &BulkUpdateResponse{
		AppliedCount:  res.Applied,
		UnresolvedIDs: res.Unresolved,
		Message:       bulkMessage(res.Applied, len(res.Unresolved)),
	}, nil
}
