package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

// ListOrdersRequest carries the decoded query parameters of an order list
// call. A zero PageSize means the server default. A non-nil Offset selects
// the legacy offset mode and cannot be combined with a cursor.
type ListOrdersRequest struct {
	PageSize int32
	Cursor   string
	Offset   *int32
	Status   string
}

// ListOrdersResponse is one page of orders plus the paging state needed to
// continue the sequence.
type ListOrdersResponse struct {
	Data       []*model.Order `json:"data"`
	PageSize   int32          `json:"page_size"`
	HasMore    bool           `json:"has_more"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type ListOrdersQuery struct {
	backend storage.OrderBackend
	cache   *cache.TieredCache
	cursors *CursorCodec
	logger  logger.Logger
}

type ListOrdersQueryOption func(*ListOrdersQuery)

func WithListOrdersQueryLogger(l logger.Logger) ListOrdersQueryOption {
	return func(q *ListOrdersQuery) {
		q.logger = l
	}
}

func WithListOrdersQueryCache(c *cache.TieredCache) ListOrdersQueryOption {
	return func(q *ListOrdersQuery) {
		q.cache = c
	}
}

func WithListOrdersQueryCursorCodec(codec *CursorCodec) ListOrdersQueryOption {
	return func(q *ListOrdersQuery) {
		q.cursors = codec
	}
}

func NewListOrdersQuery(backend storage.OrderBackend, opts ...ListOrdersQueryOption) *ListOrdersQuery {
	q := &ListOrdersQuery{
		backend: backend,
		cursors: NewPlainCursorCodec(),
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *ListOrdersQuery) Execute(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	ctx, span := tracer.Start(ctx, "ListOrders")
	defer span.End()

	if req.Status != "" && !model.OrderStatus(req.Status).Valid() {
		return nil, serverErrors.NewValidationError(fmt.Sprintf("unknown status '%s'", req.Status))
	}
	if req.Cursor != "" && req.Offset != nil {
		return nil, serverErrors.NewValidationError("cursor and offset cannot be combined")
	}

	if req.Offset != nil {
		return q.executeOffset(ctx, req)
	}

	from := ""
	if req.Cursor != "" {
		var err error
		from, err = q.cursors.Decode(req.Cursor, "orders", req.Status)
		if err != nil {
			return nil, serverErrors.FromError(err)
		}
	}

	opts := storage.NewPaginationOptions(req.PageSize, from)
	fetch := func(ctx context.Context) (*ListOrdersResponse, error) {
		items, nextKey, err := q.backend.ReadOrdersPage(ctx, storage.OrderFilter{Status: model.OrderStatus(req.Status)}, opts)
		if err != nil {
			return nil, err
		}

		nextCursor := ""
		if nextKey != "" {
			nextCursor, err = q.cursors.Encode(nextKey, "orders", req.Status)
			if err != nil {
				return nil, err
			}
		}

		return &ListOrdersResponse{
			Data:       nonNilOrders(items),
			PageSize:   int32(opts.PageSize),
			HasMore:    nextKey != "",
			NextCursor: nextCursor,
		}, nil
	}

	resp, err := q.fetchCached(ctx, listOrdersKey(req.Status, "cursor", from, opts.PageSize), req.Status, fetch)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	return resp, nil
}

func (q *ListOrdersQuery) executeOffset(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	opts := storage.NewOffsetPaginationOptions(req.PageSize, *req.Offset)
	fetch := func(ctx context.Context) (*ListOrdersResponse, error) {
		items, hasMore, err := q.backend.ReadOrdersPageByOffset(ctx, storage.OrderFilter{Status: model.OrderStatus(req.Status)}, opts)
		if err != nil {
			return nil, err
		}

		return &ListOrdersResponse{
			Data:     nonNilOrders(items),
			PageSize: int32(opts.PageSize),
			HasMore:  hasMore,
		}, nil
	}

	resp, err := q.fetchCached(ctx, listOrdersKey(req.Status, "offset", strconv.Itoa(opts.Offset), opts.PageSize), req.Status, fetch)
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	return resp, nil
}

func (q *ListOrdersQuery) fetchCached(ctx context.Context, key, status string, fetch func(context.Context) (*ListOrdersResponse, error)) (*ListOrdersResponse, error) {
	if q.cache == nil {
		return fetch(ctx)
	}

	tags := []string{orderTag}
	if status != "" {
		tags = []string{statusTag(status)}
	}

	return cache.GetOrCreateJSON(ctx, q.cache, key, tags, fetch)
}

func listOrdersKey(status, mode, position string, pageSize int) string {
	return cache.Key("orders_page", status, mode, position, strconv.Itoa(pageSize))
}

func nonNilOrders(items []*model.Order) []*model.Order {
	if items == nil {
		return []*model.Order{}
	}
	return items
}
