package commands

import (
	"context"
	"fmt"

	"github.com/merchantd/merchantd/internal/export"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

// ExportOrdersRequest carries the decoded query parameters of an order
// export call. A zero MaxRecords means the server ceiling; a positive value
// lowers it for this request only.
type ExportOrdersRequest struct {
	Status     string
	Order      string
	MaxRecords int
}

// ExportOrdersResponse hands the transport layer a lazy source iterator plus
// the effective safeguards to stream it under. The caller owns the iterator
// and must drain or stop it.
type ExportOrdersResponse struct {
	Iterator   storage.Iterator[*model.Order]
	Safeguards export.Safeguards
}

type ExportOrdersQuery struct {
	backend    storage.OrderBackend
	safeguards export.Safeguards
	logger     logger.Logger
}

type ExportOrdersQueryOption func(*ExportOrdersQuery)

func WithExportOrdersQueryLogger(l logger.Logger) ExportOrdersQueryOption {
	return func(q *ExportOrdersQuery) {
		q.logger = l
	}
}

func WithExportOrdersQuerySafeguards(s export.Safeguards) ExportOrdersQueryOption {
	return func(q *ExportOrdersQuery) {
		q.safeguards = s
	}
}

func NewExportOrdersQuery(backend storage.OrderBackend, opts ...ExportOrdersQueryOption) *ExportOrdersQuery {
	q := &ExportOrdersQuery{
		backend:    backend,
		safeguards: export.DefaultSafeguards(),
		logger:     logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *ExportOrdersQuery) Execute(ctx context.Context, req *ExportOrdersRequest) (*ExportOrdersResponse, error) {
	ctx, span := tracer.Start(ctx, "ExportOrders")
	defer span.End()

	if req.Status != "" && !model.OrderStatus(req.Status).Valid() {
		return nil, serverErrors.NewValidationError(fmt.Sprintf("unknown status '%s'", req.Status))
	}

	sortDescending, err := exportOrder(req.Order)
	if err != nil {
		return nil, err
	}

	safeguards, err := effectiveSafeguards(q.safeguards, req.MaxRecords)
	if err != nil {
		return nil, err
	}

	iter, err := q.backend.ReadOrders(ctx, storage.OrderFilter{Status: model.OrderStatus(req.Status)}, storage.ReadOptions{SortDescending: sortDescending})
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	return &ExportOrdersResponse{
		Iterator:   iter,
		Safeguards: safeguards,
	}, nil
}
