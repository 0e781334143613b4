package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/telemetry"
)

var tracer = otel.Tracer("merchantd/pkg/storage/memory")

// MemoryBackend provides an ephemeral memory-backed implementation of
// [storage.Datastore]. These instances may be safely shared by multiple
// go-routines.
type MemoryBackend struct {
	products      map[string]*model.Product // GUARDED_BY(mutexProducts).
	mutexProducts sync.RWMutex

	orders      map[string]*model.Order // GUARDED_BY(mutexOrders).
	mutexOrders sync.RWMutex
}

// Ensures that [MemoryBackend] implements the [storage.Datastore] interface.
var _ storage.Datastore = (*MemoryBackend)(nil)

// New creates a new [MemoryBackend].
func New() storage.Datastore {
	return &MemoryBackend{
		products: make(map[string]*model.Product, 0),
		orders:   make(map[string]*model.Order, 0),
	}
}

// Close does not do anything for [MemoryBackend].
func (s *MemoryBackend) Close() {}

// snapshotProducts returns filtered, sorted copies of the stored products.
func (s *MemoryBackend) snapshotProducts(filter storage.ProductFilter, sortDescending bool) []*model.Product {
	s.mutexProducts.RLock()
	defer s.mutexProducts.RUnlock()

	res := make([]*model.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		cp := *p
		res = append(res, &cp)
	}

	sort.Slice(res, func(i, j int) bool {
		if sortDescending {
			return res[i].ID > res[j].ID
		}
		return res[i].ID < res[j].ID
	})

	return res
}

// GetProduct see [storage.ProductBackend].GetProduct.
func (s *MemoryBackend) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	_, span := tracer.Start(ctx, "memory.GetProduct")
	defer span.End()

	s.mutexProducts.RLock()
	defer s.mutexProducts.RUnlock()

	p, ok := s.products[id]
	if !ok {
		telemetry.TraceError(span, storage.ErrNotFound)
		return nil, storage.ErrNotFound
	}

	cp := *p
	return &cp, nil
}

// ReadProducts see [storage.ProductBackend].ReadProducts.
func (s *MemoryBackend) ReadProducts(
	ctx context.Context,
	filter storage.ProductFilter,
	options storage.ReadOptions,
) (storage.Iterator[*model.Product], error) {
	_, span := tracer.Start(ctx, "memory.ReadProducts")
	defer span.End()

	return storage.NewStaticIterator(s.snapshotProducts(filter, options.SortDescending)), nil
}

// ReadProductsPage see [storage.ProductBackend].ReadProductsPage.
func (s *MemoryBackend) ReadProductsPage(
	ctx context.Context,
	filter storage.ProductFilter,
	options storage.PaginationOptions,
) ([]*model.Product, string, error) {
	_, span := tracer.Start(ctx, "memory.ReadProductsPage")
	defer span.End()

	all := s.snapshotProducts(filter, false)

	from := 0
	if options.From != "" {
		// The cursor is the last id the caller has seen; resume strictly
		// past it.
		from = sort.Search(len(all), func(i int) bool { return all[i].ID > options.From })
	}

	if from >= len(all) {
		return nil, "", nil
	}

	rest := all[from:]
	if len(rest) <= options.PageSize {
		return rest, "", nil
	}

	page := rest[:options.PageSize]
	return page, page[len(page)-1].ID, nil
}

// ReadProductsPageByOffset see [storage.ProductBackend].ReadProductsPageByOffset.
func (s *MemoryBackend) ReadProductsPageByOffset(
	ctx context.Context,
	filter storage.ProductFilter,
	options storage.OffsetPaginationOptions,
) ([]*model.Product, bool, error) {
	_, span := tracer.Start(ctx, "memory.ReadProductsPageByOffset")
	defer span.End()

	all := s.snapshotProducts(filter, false)

	if options.Offset >= len(all) {
		return nil, false, nil
	}

	rest := all[options.Offset:]
	if len(rest) <= options.PageSize {
		return rest, false, nil
	}

	return rest[:options.PageSize], true, nil
}

// CreateProduct see [storage.ProductBackend].CreateProduct.
func (s *MemoryBackend) CreateProduct(ctx context.Context, product *model.Product) error {
	_, span := tracer.Start(ctx, "memory.CreateProduct")
	defer span.End()

	s.mutexProducts.Lock()
	defer s.mutexProducts.Unlock()

	if _, ok := s.products[product.ID]; ok {
		telemetry.TraceError(span, storage.ErrCollision)
		return storage.ErrCollision
	}
	for _, p := range s.products {
		if p.SKU == product.SKU {
			telemetry.TraceError(span, storage.ErrCollision)
			return storage.ErrCollision
		}
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt

	cp := *product
	s.products[product.ID] = &cp

	return nil
}

// UpdateProduct see [storage.ProductBackend].UpdateProduct.
func (s *MemoryBackend) UpdateProduct(ctx context.Context, patch *model.ProductPatch) (*model.Product, error) {
	_, span := tracer.Start(ctx, "memory.UpdateProduct")
	defer span.End()

	if patch.ID == "" {
		err := fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
		telemetry.TraceError(span, err)
		return nil, err
	}
	if patch.IsZero() {
		err := storage.EmptyPatchError(patch.ID)
		telemetry.TraceError(span, err)
		return nil, err
	}

	s.mutexProducts.Lock()
	defer s.mutexProducts.Unlock()

	p, ok := s.products[patch.ID]
	if !ok {
		telemetry.TraceError(span, storage.ErrNotFound)
		return nil, storage.ErrNotFound
	}

	cp := *p
	patch.Apply(&cp)
	cp.UpdatedAt = time.Now().UTC()
	s.products[patch.ID] = &cp

	res := cp
	return &res, nil
}

// DeleteProduct see [storage.ProductBackend].DeleteProduct.
func (s *MemoryBackend) DeleteProduct(ctx context.Context, id string) error {
	_, span := tracer.Start(ctx, "memory.DeleteProduct")
	defer span.End()

	s.mutexProducts.Lock()
	defer s.mutexProducts.Unlock()

	if _, ok := s.products[id]; !ok {
		telemetry.TraceError(span, storage.ErrNotFound)
		return storage.ErrNotFound
	}
	delete(s.products, id)

	return nil
}

// BulkUpdateProducts see [storage.ProductBackend].BulkUpdateProducts.
func (s *MemoryBackend) BulkUpdateProducts(
	ctx context.Context,
	patches []*model.ProductPatch,
	batchSize int,
) (*storage.BulkResult, error) {
	_, span := tracer.Start(ctx, "memory.BulkUpdateProducts")
	defer span.End()

	if len(patches) == 0 {
		err := fmt.Errorf("no records in bulk update: %w", storage.ErrInvalidWriteInput)
		telemetry.TraceError(span, err)
		return nil, err
	}

	seen := make(map[string]struct{}, len(patches))
	for _, patch := range patches {
		if patch.ID == "" {
			err := fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
			telemetry.TraceError(span, err)
			return nil, err
		}
		if patch.IsZero() {
			err := storage.EmptyPatchError(patch.ID)
			telemetry.TraceError(span, err)
			return nil, err
		}
		if _, ok := seen[patch.ID]; ok {
			err := fmt.Errorf("duplicate record '%s': %w", patch.ID, storage.ErrInvalidWriteInput)
			telemetry.TraceError(span, err)
			return nil, err
		}
		seen[patch.ID] = struct{}{}
	}

	s.mutexProducts.Lock()
	defer s.mutexProducts.Unlock()

	// Validation above is the only failure mode, so applying under the lock
	// is all-or-nothing.
	now := time.Now().UTC()
	unresolved := storage.NewSortedSet()
	affected := storage.NewSortedSet()
	applied := 0
	for _, patch := range patches {
		p, ok := s.products[patch.ID]
		if !ok {
			unresolved.Add(patch.ID)
			continue
		}
		if p.Category != "" {
			affected.Add(p.Category)
		}
		if patch.Category != nil && *patch.Category != "" {
			affected.Add(*patch.Category)
		}
		cp := *p
		patch.Apply(&cp)
		cp.UpdatedAt = now
		s.products[patch.ID] = &cp
		applied++
	}

	return &storage.BulkResult{
		Applied:        applied,
		Unresolved:     unresolved.Values(),
		AffectedGroups: affected.Values(),
	}, nil
}

// snapshotOrders returns filtered, sorted copies of the stored orders.
func (s *MemoryBackend) snapshotOrders(filter storage.OrderFilter, sortDescending bool) []*model.Order {
	s.mutexOrders.RLock()
	defer s.mutexOrders.RUnlock()

	res := make([]*model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		cp := *o
		res = append(res, &cp)
	}

	sort.Slice(res, func(i, j int) bool {
		if sortDescending {
			return res[i].ID > res[j].ID
		}
		return res[i].ID < res[j].ID
	})

	return res
}

// GetOrder see [storage.OrderBackend].GetOrder.
func (s *MemoryBackend) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	_, span := tracer.Start(ctx, "memory.GetOrder")
	defer span.End()

	s.mutexOrders.RLock()
	defer s.mutexOrders.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		telemetry.TraceError(span, storage.ErrNotFound)
		return nil, storage.ErrNotFound
	}

	cp := *o
	return &cp, nil
}

// ReadOrders see [storage.OrderBackend].ReadOrders.
func (s *MemoryBackend) ReadOrders(
	ctx context.Context,
	filter storage.OrderFilter,
	options storage.ReadOptions,
) (storage.Iterator[*model.Order], error) {
	_, span := tracer.Start(ctx, "memory.ReadOrders")
	defer span.End()

	return storage.NewStaticIterator(s.snapshotOrders(filter, options.SortDescending)), nil
}

// ReadOrdersPage see [storage.OrderBackend].ReadOrdersPage.
func (s *MemoryBackend) ReadOrdersPage(
	ctx context.Context,
	filter storage.OrderFilter,
	options storage.PaginationOptions,
) ([]*model.Order, string, error) {
	_, span := tracer.Start(ctx, "memory.ReadOrdersPage")
	defer span.End()

	all := s.snapshotOrders(filter, false)

	from := 0
	if options.From != "" {
		from = sort.Search(len(all), func(i int) bool { return all[i].ID > options.From })
	}

	if from >= len(all) {
		return nil, "", nil
	}

	rest := all[from:]
	if len(rest) <= options.PageSize {
		return rest, "", nil
	}

	page := rest[:options.PageSize]
	return page, page[len(page)-1].ID, nil
}

// ReadOrdersPageByOffset see [storage.OrderBackend].ReadOrdersPageByOffset.
func (s *MemoryBackend) ReadOrdersPageByOffset(
	ctx context.Context,
	filter storage.OrderFilter,
	options storage.OffsetPaginationOptions,
) ([]*model.Order, bool, error) {
	_, span := tracer.Start(ctx, "memory.ReadOrdersPageByOffset")
	defer span.End()

	all := s.snapshotOrders(filter, false)

	if options.Offset >= len(all) {
		return nil, false, nil
	}

	rest := all[options.Offset:]
	if len(rest) <= options.PageSize {
		return rest, false, nil
	}

	return rest[:options.PageSize], true, nil
}

// CreateOrder see [storage.OrderBackend].CreateOrder.
func (s *MemoryBackend) CreateOrder(ctx context.Context, order *model.Order) error {
	_, span := tracer.Start(ctx, "memory.CreateOrder")
	defer span.End()

	s.mutexOrders.Lock()
	defer s.mutexOrders.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		telemetry.TraceError(span, storage.ErrCollision)
		return storage.ErrCollision
	}
	for _, o := range s.orders {
		if o.Reference == order.Reference {
			telemetry.TraceError(span, storage.ErrCollision)
			return storage.ErrCollision
		}
	}

	now := time.Now().UTC()
	if order.PlacedAt.IsZero() {
		order.PlacedAt = now
	}
	order.UpdatedAt = order.PlacedAt

	cp := *order
	s.orders[order.ID] = &cp

	return nil
}

// UpdateOrder see [storage.OrderBackend].UpdateOrder.
func (s *MemoryBackend) UpdateOrder(ctx context.Context, patch *model.OrderPatch) (*model.Order, error) {
	_, span := tracer.Start(ctx, "memory.UpdateOrder")
	defer span.End()

	if patch.ID == "" {
		err := fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
		telemetry.TraceError(span, err)
		return nil, err
	}
	if patch.Status != nil && !patch.Status.Valid() {
		err := fmt.Errorf("unknown status '%s': %w", *patch.Status, storage.ErrInvalidWriteInput)
		telemetry.TraceError(span, err)
		return nil, err
	}
	if patch.IsZero() {
		err := storage.EmptyPatchError(patch.ID)
		telemetry.TraceError(span, err)
		return nil, err
	}

	s.mutexOrders.Lock()
	defer s.mutexOrders.Unlock()

	o, ok := s.orders[patch.ID]
	if !ok {
		telemetry.TraceError(span, storage.ErrNotFound)
		return nil, storage.ErrNotFound
	}

	cp := *o
	patch.Apply(&cp)
	cp.UpdatedAt = time.Now().UTC()
	s.orders[patch.ID] = &cp

	res := cp
	return &res, nil
}

// BulkUpdateOrders see [storage.OrderBackend].BulkUpdateOrders.
func (s *MemoryBackend) BulkUpdateOrders(
	ctx context.Context,
	patches []*model.OrderPatch,
	batchSize int,
) (*storage.BulkResult, error) {
	_, span := tracer.Start(ctx, "memory.BulkUpdateOrders")
	defer span.End()

	if len(patches) == 0 {
		err := fmt.Errorf("no records in bulk update: %w", storage.ErrInvalidWriteInput)
		telemetry.TraceError(span, err)
		return nil, err
	}

	seen := make(map[string]struct{}, len(patches))
	for _, patch := range patches {
		if patch.ID == "" {
			err := fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
			telemetry.TraceError(span, err)
			return nil, err
		}
		if patch.Status != nil && !patch.Status.Valid() {
			err := fmt.Errorf("record '%s' has unknown status '%s': %w", patch.ID, *patch.Status, storage.ErrInvalidWriteInput)
			telemetry.TraceError(span, err)
			return nil, err
		}
		if patch.IsZero() {
			err := storage.EmptyPatchError(patch.ID)
			telemetry.TraceError(span, err)
			return nil, err
		}
		if _, ok := seen[patch.ID]; ok {
			err := fmt.Errorf("duplicate record '%s': %w", patch.ID, storage.ErrInvalidWriteInput)
			telemetry.TraceError(span, err)
			return nil, err
		}
		seen[patch.ID] = struct{}{}
	}

	s.mutexOrders.Lock()
	defer s.mutexOrders.Unlock()

	now := time.Now().UTC()
	unresolved := storage.NewSortedSet()
	affected := storage.NewSortedSet()
	applied := 0
	for _, patch := range patches {
		o, ok := s.orders[patch.ID]
		if !ok {
			unresolved.Add(patch.ID)
			continue
		}
		affected.Add(string(o.Status))
		if patch.Status != nil {
			affected.Add(string(*patch.Status))
		}
		cp := *o
		patch.Apply(&cp)
		cp.UpdatedAt = now
		s.orders[patch.ID] = &cp
		applied++
	}

	return &storage.BulkResult{
		Applied:        applied,
		Unresolved:     unresolved.Values(),
		AffectedGroups: affected.Values(),
	}, nil
}

// SharedCache see [storage.Datastore].SharedCache. The memory engine has no
// shared tier; the local tier runs alone.
func (s *MemoryBackend) SharedCache() storage.SharedCacheBackend {
	return nil
}

// IsReady see [storage.Datastore].IsReady.
func (s *MemoryBackend) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	return storage.ReadinessStatus{IsReady: true}, nil
}
