// Package storage contains the datastore interfaces and shared storage types.
package storage

import (
	"context"
	"time"

	"github.com/merchantd/merchantd/pkg/model"
)

const (
	// DefaultPageSize is used when a request does not name a page size.
	DefaultPageSize = 50

	// MaxPageSize caps the page size of any single paginated read.
	MaxPageSize = 100

	// DefaultBulkBatchSize is the number of rows applied per batch inside a
	// bulk mutation transaction.
	DefaultBulkBatchSize = 100

	// MaxBulkBatchSize caps the per-batch row count of a bulk mutation.
	MaxBulkBatchSize = 1000

	// DefaultMaxRecordsPerBulkUpdate caps the total records accepted by one
	// bulk request.
	DefaultMaxRecordsPerBulkUpdate = 1000
)

// PaginationOptions parameterizes a keyset-paginated read. From is the
// decoded ordering key of the last row the caller has seen; empty means
// start of sequence.
type PaginationOptions struct {
	PageSize int
	From     string
}

// NewPaginationOptions applies the default page size when ps is zero and
// clamps it to MaxPageSize. Rejecting non-positive page sizes is the caller's
// contract check and happens before this point.
func NewPaginationOptions(ps int32, from string) PaginationOptions {
	pageSize := DefaultPageSize
	if ps > 0 {
		pageSize = int(ps)
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return PaginationOptions{
		PageSize: pageSize,
		From:     from,
	}
}

// OffsetPaginationOptions parameterizes the legacy offset-paginated read.
// Offset cost grows linearly with depth; keyset pagination is the default
// for new integrations.
type OffsetPaginationOptions struct {
	PageSize int
	Offset   int
}

func NewOffsetPaginationOptions(ps int32, offset int32) OffsetPaginationOptions {
	pageSize := DefaultPageSize
	if ps > 0 {
		pageSize = int(ps)
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return OffsetPaginationOptions{
		PageSize: pageSize,
		Offset:   int(offset),
	}
}

// ReadOptions parameterizes an iterator read over an ordered source.
type ReadOptions struct {
	// SortDescending reverses the id ordering. Keyset pagination never sets
	// this; it exists for export consumers.
	SortDescending bool
}

// ProductFilter constrains product reads. Zero value matches everything.
type ProductFilter struct {
	Category string
}

// OrderFilter constrains order reads. Zero value matches everything.
type OrderFilter struct {
	Status model.OrderStatus
}

// BulkResult reports the outcome of a bulk mutation: how many rows were
// updated, which input ids matched no row, and which grouping values
// (product categories or order statuses) had a member row touched. Both
// slices are sorted and deduplicated. AffectedGroups covers the values rows
// held before the update plus any values the patches introduced, so cache
// invalidation can target every grouping whose membership may have changed.
type BulkResult struct {
	Applied        int
	Unresolved     []string
	AffectedGroups []string
}

// ProductBackend provides R/W access to catalog products.
type ProductBackend interface {
	// GetProduct returns one product by id, or ErrNotFound.
	GetProduct(ctx context.Context, id string) (*model.Product, error)

	// ReadProducts returns a lazy iterator over products matching the filter,
	// ordered by id. The caller must drain or Stop the iterator.
	ReadProducts(ctx context.Context, filter ProductFilter, opts ReadOptions) (Iterator[*model.Product], error)

	// ReadProductsPage returns one keyset page ordered by id ascending, along
	// with the ordering key to resume from. An empty key means the sequence
	// is exhausted.
	ReadProductsPage(ctx context.Context, filter ProductFilter, opts PaginationOptions) ([]*model.Product, string, error)

	// ReadProductsPageByOffset is the legacy offset mode. The returned bool
	// reports whether more rows exist past this page.
	ReadProductsPageByOffset(ctx context.Context, filter ProductFilter, opts OffsetPaginationOptions) ([]*model.Product, bool, error)

	// CreateProduct inserts a new product. Duplicate id or sku returns
	// ErrCollision.
	CreateProduct(ctx context.Context, product *model.Product) error

	// UpdateProduct applies a sparse patch to one product and returns the
	// updated row, or ErrNotFound.
	UpdateProduct(ctx context.Context, patch *model.ProductPatch) (*model.Product, error)

	// DeleteProduct removes one product by id, or ErrNotFound.
	DeleteProduct(ctx context.Context, id string) error

	// BulkUpdateProducts applies sparse patches batch-by-batch inside one
	// transaction. Patches whose id matches no row are reported as
	// unresolved. Any failure rolls back every batch.
	BulkUpdateProducts(ctx context.Context, patches []*model.ProductPatch, batchSize int) (*BulkResult, error)
}

// OrderBackend provides R/W access to orders.
type OrderBackend interface {
	// GetOrder returns one order by id, or ErrNotFound.
	GetOrder(ctx context.Context, id string) (*model.Order, error)

	// ReadOrders returns a lazy iterator over orders matching the filter,
	// ordered by id. The caller must drain or Stop the iterator.
	ReadOrders(ctx context.Context, filter OrderFilter, opts ReadOptions) (Iterator[*model.Order], error)

	// ReadOrdersPage returns one keyset page ordered by id ascending.
	ReadOrdersPage(ctx context.Context, filter OrderFilter, opts PaginationOptions) ([]*model.Order, string, error)

	// ReadOrdersPageByOffset is the legacy offset mode.
	ReadOrdersPageByOffset(ctx context.Context, filter OrderFilter, opts OffsetPaginationOptions) ([]*model.Order, bool, error)

	// CreateOrder inserts a new order. Duplicate id or reference returns
	// ErrCollision.
	CreateOrder(ctx context.Context, order *model.Order) error

	// UpdateOrder applies a sparse patch to one order and returns the updated
	// row, or ErrNotFound.
	UpdateOrder(ctx context.Context, patch *model.OrderPatch) (*model.Order, error)

	// BulkUpdateOrders applies sparse patches batch-by-batch inside one
	// transaction, mirroring BulkUpdateProducts.
	BulkUpdateOrders(ctx context.Context, patches []*model.OrderPatch, batchSize int) (*BulkResult, error)
}

// SharedCacheBackend is the authoritative (shared) cache tier, held in the
// datastore so every replica observes the same entries and invalidations.
type SharedCacheBackend interface {
	// GetCacheEntry returns the value for key, reporting a miss for absent or
	// expired entries.
	GetCacheEntry(ctx context.Context, key string) ([]byte, bool, error)

	// SetCacheEntry stores value under key with the given tags and TTL,
	// replacing any previous entry.
	SetCacheEntry(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error

	// DeleteCacheEntry removes one entry. Absent keys are not an error.
	DeleteCacheEntry(ctx context.Context, key string) error

	// DeleteCacheTag removes every entry carrying the tag.
	DeleteCacheTag(ctx context.Context, tag string) error
}

// Datastore is the full storage contract the server is wired against.
type Datastore interface {
	ProductBackend
	OrderBackend

	// SharedCache returns the datastore-backed cache tier, or nil when the
	// engine has none (the local tier then runs alone).
	SharedCache() SharedCacheBackend

	// IsReady reports whether the datastore is ready to accept traffic.
	IsReady(ctx context.Context) (ReadinessStatus, error)

	// Close closes the datastore and cleans up any residual resources.
	Close()
}

// ReadinessStatus represents the readiness status of the datastore.
type ReadinessStatus struct {
	// Message is a human-friendly status message for the current status.
	Message string

	IsReady bool
}
