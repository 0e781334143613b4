package commands

import (
	"context"

	"github.com/merchantd/merchantd/internal/export"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

// ExportProductsRequest carries the decoded query parameters of a product
// export call. A zero MaxRecords means the server ceiling; a positive value
// lowers it for this request only.
type ExportProductsRequest struct {
	Category   string
	Order      string
	MaxRecords int
}

// ExportProductsResponse hands the transport layer a lazy source iterator
// plus the effective safeguards to stream it under. The caller owns the
// iterator and must drain or stop it.
type ExportProductsResponse struct {
	Iterator   storage.Iterator[*model.Product]
	Safeguards export.Safeguards
}

type ExportProductsQuery struct {
	backend    storage.ProductBackend
	safeguards export.Safeguards
	logger     logger.Logger
}

type ExportProductsQueryOption func(*ExportProductsQuery)

func WithExportProductsQueryLogger(l logger.Logger) ExportProductsQueryOption {
	return func(q *ExportProductsQuery) {
		q.logger = l
	}
}

func WithExportProductsQuerySafeguards(s export.Safeguards) ExportProductsQueryOption {
	return func(q *ExportProductsQuery) {
		q.safeguards = s
	}
}

func NewExportProductsQuery(backend storage.ProductBackend, opts ...ExportProductsQueryOption) *ExportProductsQuery {
	q := &ExportProductsQuery{
		backend:    backend,
		safeguards: export.DefaultSafeguards(),
		logger:     logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *ExportProductsQuery) Execute(ctx context.Context, req *ExportProductsRequest) (*ExportProductsResponse, error) {
	ctx, span := tracer.Start(ctx, "ExportProducts")
	defer span.End()

	sortDescending, err := exportOrder(req.Order)
	if err != nil {
		return nil, err
	}

	safeguards, err := effectiveSafeguards(q.safeguards, req.MaxRecords)
	if err != nil {
		return nil, err
	}

	iter, err := q.backend.ReadProducts(ctx, storage.ProductFilter{Category: req.Category}, storage.ReadOptions{SortDescending: sortDescending})
	if err != nil {
		return nil, serverErrors.FromError(err)
	}

	return &ExportProductsResponse{
		Iterator:   iter,
		Safeguards: safeguards,
	}, nil
}

// exportOrder maps the order parameter to the read option. Ascending is the
// default.
func exportOrder(order string) (bool, error) {
	switch order {
	case "", "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, serverErrors.NewValidationError("order must be 'asc' or 'desc'")
	}
}

// effectiveSafeguards applies the client's max records override, which can
// only lower the server ceiling, never raise it.
func effectiveSafeguards(safeguards export.Safeguards, maxRecords int) (export.Safeguards, error) {
	if maxRecords < 0 {
		return safeguards, serverErrors.NewValidationError("max_records must be a positive integer")
	}
	if maxRecords > 0 && maxRecords < safeguards.MaxRecords {
		safeguards.MaxRecords = maxRecords
	}

	return safeguards, nil
}
