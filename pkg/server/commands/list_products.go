package commands

import (
	"context"
	"strconv"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

// ListProductsRequest carries the decoded query parameters of a product list
// call. A zero PageSize means the server default. A non-nil Offset selects
// the legacy offset mode and cannot be combined with a cursor.
type ListProductsRequest struct {
	PageSize int32
	Cursor   string
	Offset   *int32
	Category string
}

// ListProductsResponse is one page of products plus the paging state needed
// to continue the sequence.
type ListProductsResponse struct {
	Data       []*model.Product `json:"data"`
	PageSize   int32            `json:"page_size"`
	HasMore    bool             `json:"has_more"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type ListProductsQuery struct {
	backend storage.ProductBackend
	cache   *cache.TieredCache
	cursors *CursorCodec
	logger  logger.Logger
}

type ListProductsQueryOption func(*ListProductsQuery)

func WithListProductsQueryLogger(l logger.Logger) ListProductsQueryOption {
	return func(q *ListProductsQuery) {
		q.logger = l
	}
}

func WithListProductsQueryCache(c *cache.TieredCache) ListProductsQueryOption {
	return func(q *ListProductsQuery) {
		q.cache = c
	}
}

func WithListProductsQueryCursorCodec(codec *CursorCodec) ListProductsQueryOption {
	return func(q *ListProductsQuery) {
		q.cursors = codec
	}
}

func NewListProductsQuery(backend storage.ProductBackend, opts ...ListProductsQueryOption) *ListProductsQuery {
	q := &ListProductsQuery{
		backend: backend,
		cursors: NewPlainCursorCodec(),
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *ListProductsQuery) Execute(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	ctx, span := tracer.Start(ctx, "ListProducts")
	defer span.End()

	if req.Cursor != "" && req.Offset != nil {
		return nil, serverErrors.NewValidationError("cursor and offset cannot be combined")
	}

	if req.Offset != nil {
		return q.executeOffset(ctx, req)
	}

	from := ""
	if req.Cursor != "" {
		var err error
		from, err = q.cursors.Decode(req.Cursor, "products", req.Category)
		if err != nil {
			return nil, serverErrors.FromError(err)
		}
	}

	opts := storage.NewPaginationOptions(req.PageSize, from)
	fetch := func(ctx context.Context) (*ListProductsResponse, error) {
		items, nextKey, err := q.backend.ReadProductsPage(ctx, storage.ProductFilter{Category: req.Category}, opts)
		if err != nil {
			return nil, err
		}

		nextCursor := ""
		if nextKey != "" {
			nextCursor, err = q.cursors.Encode(nextKey, "products", req.Category)
			if err != nil {
				return nil, err
			}
		}

		return &ListProductsResponse{
			Data:       nonNilProducts(items),
			PageSize:   int32(opts.PageSize),
			HasMore:    nextKey != "",
			NextCursor: nextCursor,
		}, nil
	}

	resp, err := q.fetchCached(ctx, listProductsKey(req.Category, "cursor", from, opts.PageSize), req.Category, fetch)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	return resp, nil
}

func (q *ListProductsQuery) executeOffset(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	opts := storage.NewOffsetPaginationOptions(req.PageSize, *req.Offset)
	fetch := func(ctx context.Context) (*ListProductsResponse, error) {
		items, hasMore, err := q.backend.ReadProductsPageByOffset(ctx, storage.ProductFilter{Category: req.Category}, opts)
		if err != nil {
			return nil, err
		}

		return &ListProductsResponse{
			Data:     nonNilProducts(items),
			PageSize: int32(opts.PageSize),
			HasMore:  hasMore,
		}, nil
	}

	resp, err := q.fetchCached(ctx, listProductsKey(req.Category, "offset", strconv.Itoa(opts.Offset), opts.PageSize), req.Category, fetch)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	return resp, nil
}

func (q *ListProductsQuery) fetchCached(ctx context.Context, key, category string, fetch func(context.Context) (*ListProductsResponse, error)) (*ListProductsResponse, error) {
	if q.cache == nil {
		return fetch(ctx)
	}

	tags := []string{productTag}
	if category != "" {
		tags = []string{categoryTag(category)}
	}

	return cache.GetOrCreateJSON(ctx, q.cache, key, tags, fetch)
}

func listProductsKey(category, mode, position string, pageSize int) string {
	return cache.Key("products_page", category, mode, position, strconv.Itoa(pageSize))
}

func nonNilProducts(items []*model.Product) []*model.Product {
	if items == nil {
		return []*model.Product{}
	}
	return items
}
