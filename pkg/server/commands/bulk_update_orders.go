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

type BulkUpdateOrdersCommand struct {
	backend    storage.OrderBackend
	cache      *cache.TieredCache
	logger     logger.Logger
	maxRecords int
	batchSize  int
}

type BulkUpdateOrdersCommandOption func(*BulkUpdateOrdersCommand)

func WithBulkUpdateOrdersCommandLogger(l logger.Logger) BulkUpdateOrdersCommandOption {
	return func(c *BulkUpdateOrdersCommand) {
		c.logger = l
	}
}

func WithBulkUpdateOrdersCommandCache(tc *cache.TieredCache) BulkUpdateOrdersCommandOption {
	return func(c *BulkUpdateOrdersCommand) {
		c.cache = tc
	}
}

// WithBulkUpdateOrdersMaxRecords caps the total records accepted by one
// request.
func WithBulkUpdateOrdersMaxRecords(n int) BulkUpdateOrdersCommandOption {
	return func(c *BulkUpdateOrdersCommand) {
		c.maxRecords = n
	}
}

// WithBulkUpdateOrdersBatchSize sets the rows applied per chunk when a
// request does not carry its own batch_size.
func WithBulkUpdateOrdersBatchSize(n int) BulkUpdateOrdersCommandOption {
	return func(c *BulkUpdateOrdersCommand) {
		c.batchSize = n
	}
}

func NewBulkUpdateOrdersCommand(backend storage.OrderBackend, opts ...BulkUpdateOrdersCommandOption) *BulkUpdateOrdersCommand {
	c := &BulkUpdateOrdersCommand{
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
func (c *BulkUpdateOrdersCommand) Execute(ctx context.Context, body []byte) (*BulkUpdateResponse, error) {
	ctx, span := tracer.Start(ctx, "BulkUpdateOrders")
	defer span.End()

	records, batchSize, err := parseBulkBody(body, c.maxRecords)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}
	if batchSize == 0 {
		batchSize = c.batchSize
	}

	var patches []*model.OrderPatch
	if err := json.Unmarshal([]byte(records.Raw), &patches); err != nil {
		return nil, serverErrors.NewValidationError(fmt.Sprintf("malformed records: %v", err))
	}

	res, err := c.backend.BulkUpdateOrders(ctx, patches, batchSize)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	bulkAppliedRecordsCounter.WithLabelValues("order").Add(float64(res.Applied))
	invalidateTags(ctx, c.cache, orderTag, statusTag, res.AffectedGroups...)

	c.logger.InfoWithContext(ctx, "bulk order update applied",
		zap.Int("applied", res.Applied),
		zap.Int("unresolved", len(res.Unresolved)))

	return &BulkUpdateResponse{
		AppliedCount:  res.Applied,
		UnresolvedIDs: res.Unresolved,
		Message:       bulkMessage(res.Applied, len(res.Unresolved)),
	}, nil
}
