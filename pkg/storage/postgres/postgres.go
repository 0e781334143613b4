package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // Register the pgx driver.
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("merchantd/pkg/storage/postgres")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postgres."+name)
}

// Datastore provides a PostgreSQL based implementation of [storage.Datastore].
type Datastore struct {
	stbl             sq.StatementBuilderType
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	sharedCache      *sqlcommon.CacheStore
	versionReady     bool
}

// Ensures that Datastore implements the Datastore interface.
var _ storage.Datastore = (*Datastore)(nil)

// initDB initializes a new postgres database connection.
func initDB(uri string, username string, password string, cfg *sqlcommon.Config) (*sql.DB, error) {
	if username != "" || password != "" {
		parsed, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("parse postgres connection uri: %w", err)
		}

		if username == "" && parsed.User != nil {
			username = parsed.User.Username()
		}

		switch {
		case password != "":
			parsed.User = url.UserPassword(username, password)
		case parsed.User != nil:
			if pw, ok := parsed.User.Password(); ok {
				parsed.User = url.UserPassword(username, pw)
			} else {
				parsed.User = url.User(username)
			}
		default:
			parsed.User = url.User(username)
		}

		uri = parsed.String()
	}

	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres connection: %w", err)
	}

	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns) // default is 2, not retaining connections(0) would be detrimental for performance
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// configureDB waits for the database to come up and registers its stats
// collector when metrics are enabled.
func configureDB(db *sql.DB, cfg *sqlcommon.Config) (prometheus.Collector, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err := backoff.Retry(func() error {
		err := db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for database", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "merchantd")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return collector, nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	db, err := initDB(uri, cfg.Username, cfg.Password, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres connection: %w", err)
	}

	return NewWithDB(db, cfg)
}

// NewWithDB creates a new [Datastore] storage with the provided database connection.
func NewWithDB(db *sql.DB, cfg *sqlcommon.Config) (*Datastore, error) {
	collector, err := configureDB(db, cfg)
	if err != nil {
		return nil, fmt.Errorf("configure db: %w", err)
	}

	stbl := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).RunWith(db)
	dbInfo := sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "postgres")

	return &Datastore{
		stbl:             stbl,
		db:               db,
		dbInfo:           dbInfo,
		logger:           cfg.Logger,
		dbStatsCollector: collector,
		sharedCache:      sqlcommon.NewCacheStore(dbInfo),
		versionReady:     false,
	}, nil
}

// Close see [storage.Datastore].Close.
func (s *Datastore) Close() {
	if s.dbStatsCollector != nil {
		prometheus.Unregister(s.dbStatsCollector)
	}
	s.db.Close()
}

func (s *Datastore) productsQuery(filter storage.ProductFilter, sortDescending bool) sq.SelectBuilder {
	sb := s.stbl.
		Select(sqlcommon.ProductColumns()...).
		From("products")
	if filter.Category != "" {
		sb = sb.Where(sq.Eq{"category": filter.Category})
	}
	if sortDescending {
		return sb.OrderBy("id DESC")
	}
	return sb.OrderBy("id")
}

// GetProduct see [storage.ProductBackend].GetProduct.
func (s *Datastore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	ctx, span := startTrace(ctx, "GetProduct")
	defer span.End()

	row := s.stbl.
		Select(sqlcommon.ProductColumns()...).
		From("products").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx)

	var p model.Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category,
		&p.PriceCents, &p.Currency, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, HandleSQLError(err)
	}

	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	return &p, nil
}

// ReadProducts see [storage.ProductBackend].ReadProducts.
func (s *Datastore) ReadProducts(
	ctx context.Context,
	filter storage.ProductFilter,
	options storage.ReadOptions,
) (storage.Iterator[*model.Product], error) {
	_, span := startTrace(ctx, "ReadProducts")
	defer span.End()

	sb := s.productsQuery(filter, options.SortDescending)
	return sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanProduct, sqlcommon.ProductKey, HandleSQLError), nil
}

// ReadProductsPage see [storage.ProductBackend].ReadProductsPage.
func (s *Datastore) ReadProductsPage(
	ctx context.Context,
	filter storage.ProductFilter,
	options storage.PaginationOptions,
) ([]*model.Product, string, error) {
	ctx, span := startTrace(ctx, "ReadProductsPage")
	defer span.End()

	sb := s.productsQuery(filter, false)
	if options.From != "" {
		sb = sqlcommon.AddFromID(sb, options.From, false)
	}
	// + 1 is used to determine whether to return a continuation token.
	sb = sb.Limit(uint64(options.PageSize + 1))

	iter := sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanProduct, sqlcommon.ProductKey, HandleSQLError)
	defer iter.Stop()

	return iter.ToArray(ctx, options)
}

// ReadProductsPageByOffset see [storage.ProductBackend].ReadProductsPageByOffset.
func (s *Datastore) ReadProductsPageByOffset(
	ctx context.Context,
	filter storage.ProductFilter,
	options storage.OffsetPaginationOptions,
) ([]*model.Product, bool, error) {
	ctx, span := startTrace(ctx, "ReadProductsPageByOffset")
	defer span.End()

	sb := s.productsQuery(filter, false).
		Offset(uint64(options.Offset)).
		Limit(uint64(options.PageSize + 1))

	iter := sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanProduct, sqlcommon.ProductKey, HandleSQLError)
	defer iter.Stop()

	return iter.ToOffsetPage(ctx, options.PageSize)
}

// CreateProduct see [storage.ProductBackend].CreateProduct.
func (s *Datastore) CreateProduct(ctx context.Context, product *model.Product) error {
	ctx, span := startTrace(ctx, "CreateProduct")
	defer span.End()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt

	_, err := s.stbl.
		Insert("products").
		Columns(sqlcommon.ProductColumns()...).
		Values(
			product.ID, product.SKU, product.Name, product.Description, product.Category,
			product.PriceCents, product.Currency, product.Stock, product.CreatedAt, product.UpdatedAt,
		).
		ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err)
	}

	return nil
}

// UpdateProduct see [storage.ProductBackend].UpdateProduct.
func (s *Datastore) UpdateProduct(ctx context.Context, patch *model.ProductPatch) (*model.Product, error) {
	ctx, span := startTrace(ctx, "UpdateProduct")
	defer span.End()

	if patch.ID == "" {
		return nil, fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
	}
	if patch.IsZero() {
		return nil, storage.EmptyPatchError(patch.ID)
	}

	var p model.Product
	err := s.stbl.
		Update("products").
		SetMap(sqlcommon.ProductPatchSetMap(patch, time.Now().UTC())).
		Where(sq.Eq{"id": patch.ID}).
		Suffix("returning " + strings.Join(sqlcommon.ProductColumns(), ", ")).
		QueryRowContext(ctx).
		Scan(
			&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category,
			&p.PriceCents, &p.Currency, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
		)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, HandleSQLError(err)
	}

	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	return &p, nil
}

// DeleteProduct see [storage.ProductBackend].DeleteProduct.
func (s *Datastore) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := startTrace(ctx, "DeleteProduct")
	defer span.End()

	res, err := s.stbl.
		Delete("products").
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return HandleSQLError(err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// BulkUpdateProducts see [storage.ProductBackend].BulkUpdateProducts.
func (s *Datastore) BulkUpdateProducts(
	ctx context.Context,
	patches []*model.ProductPatch,
	batchSize int,
) (*storage.BulkResult, error) {
	ctx, span := startTrace(ctx, "BulkUpdateProducts")
	defer span.End()

	return sqlcommon.BulkUpdateProducts(ctx, s.dbInfo, patches, batchSize, time.Now().UTC())
}

func (s *Datastore) ordersQuery(filter storage.OrderFilter, sortDescending bool) sq.SelectBuilder {
	sb := s.stbl.
		Select(sqlcommon.OrderColumns()...).
		From("orders")
	if filter.Status != "" {
		sb = sb.Where(sq.Eq{"status": string(filter.Status)})
	}
	if sortDescending {
		return sb.OrderBy("id DESC")
	}
	return sb.OrderBy("id")
}

// GetOrder see [storage.OrderBackend].GetOrder.
func (s *Datastore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	ctx, span := startTrace(ctx, "GetOrder")
	defer span.End()

	row := s.stbl.
		Select(sqlcommon.OrderColumns()...).
		From("orders").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx)

	var o model.Order
	var status string
	err := row.Scan(
		&o.ID, &o.Reference, &o.CustomerEmail, &status,
		&o.TotalCents, &o.Currency, &o.PlacedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, HandleSQLError(err)
	}

	o.Status = model.OrderStatus(status)
	o.PlacedAt = o.PlacedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	return &o, nil
}

// ReadOrders see [storage.OrderBackend].ReadOrders.
func (s *Datastore) ReadOrders(
	ctx context.Context,
	filter storage.OrderFilter,
	options storage.ReadOptions,
) (storage.Iterator[*model.Order], error) {
	_, span := startTrace(ctx, "ReadOrders")
	defer span.End()

	sb := s.ordersQuery(filter, options.SortDescending)
	return sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanOrder, sqlcommon.OrderKey, HandleSQLError), nil
}

// ReadOrdersPage see [storage.OrderBackend].ReadOrdersPage.
func (s *Datastore) ReadOrdersPage(
	ctx context.Context,
	filter storage.OrderFilter,
	options storage.PaginationOptions,
) ([]*model.Order, string, error) {
	ctx, span := startTrace(ctx, "ReadOrdersPage")
	defer span.End()

	sb := s.ordersQuery(filter, false)
	if options.From != "" {
		sb = sqlcommon.AddFromID(sb, options.From, false)
	}
	// + 1 is used to determine whether to return a continuation token.
	sb = sb.Limit(uint64(options.PageSize + 1))

	iter := sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanOrder, sqlcommon.OrderKey, HandleSQLError)
	defer iter.Stop()

	return iter.ToArray(ctx, options)
}

// ReadOrdersPageByOffset see [storage.OrderBackend].ReadOrdersPageByOffset.
func (s *Datastore) ReadOrdersPageByOffset(
	ctx context.Context,
	filter storage.OrderFilter,
	options storage.OffsetPaginationOptions,
) ([]*model.Order, bool, error) {
	ctx, span := startTrace(ctx, "ReadOrdersPageByOffset")
	defer span.End()

	sb := s.ordersQuery(filter, false).
		Offset(uint64(options.Offset)).
		Limit(uint64(options.PageSize + 1))

	iter := sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanOrder, sqlcommon.OrderKey, HandleSQLError)
	defer iter.Stop()

	return iter.ToOffsetPage(ctx, options.PageSize)
}

// CreateOrder see [storage.OrderBackend].CreateOrder.
func (s *Datastore) CreateOrder(ctx context.Context, order *model.Order) error {
	ctx, span := startTrace(ctx, "CreateOrder")
	defer span.End()

	now := time.Now().UTC()
	if order.PlacedAt.IsZero() {
		order.PlacedAt = now
	}
	order.UpdatedAt = order.PlacedAt

	_, err := s.stbl.
		Insert("orders").
		Columns(sqlcommon.OrderColumns()...).
		Values(
			order.ID, order.Reference, order.CustomerEmail, string(order.Status),
			order.TotalCents, order.Currency, order.PlacedAt, order.UpdatedAt,
		).
		ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err)
	}

	return nil
}

// UpdateOrder see [storage.OrderBackend].UpdateOrder.
func (s *Datastore) UpdateOrder(ctx context.Context, patch *model.OrderPatch) (*model.Order, error) {
	ctx, span := startTrace(ctx, "UpdateOrder")
	defer span.End()

	if patch.ID == "" {
		return nil, fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("unknown status '%s': %w", *patch.Status, storage.ErrInvalidWriteInput)
	}
	if patch.IsZero() {
		return nil, storage.EmptyPatchError(patch.ID)
	}

	var o model.Order
	var status string
	err := s.stbl.
		Update("orders").
		SetMap(sqlcommon.OrderPatchSetMap(patch, time.Now().UTC())).
		Where(sq.Eq{"id": patch.ID}).
		Suffix("returning " + strings.Join(sqlcommon.OrderColumns(), ", ")).
		QueryRowContext(ctx).
		Scan(
			&o.ID, &o.Reference, &o.CustomerEmail, &status,
			&o.TotalCents, &o.Currency, &o.PlacedAt, &o.UpdatedAt,
		)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, HandleSQLError(err)
	}

	o.Status = model.OrderStatus(status)
	o.PlacedAt = o.PlacedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	return &o, nil
}

// BulkUpdateOrders see [storage.OrderBackend].BulkUpdateOrders.
func (s *Datastore) BulkUpdateOrders(
	ctx context.Context,
	patches []*model.OrderPatch,
	batchSize int,
) (*storage.BulkResult, error) {
	ctx, span := startTrace(ctx, "BulkUpdateOrders")
	defer span.End()

	return sqlcommon.BulkUpdateOrders(ctx, s.dbInfo, patches, batchSize, time.Now().UTC())
}

// SharedCache see [storage.Datastore].SharedCache.
func (s *Datastore) SharedCache() storage.SharedCacheBackend {
	return s.sharedCache
}

// IsReady see [sqlcommon.IsReady].
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, s.versionReady, s.db)
	if err != nil {
		return versionReady, err
	}
	s.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	if strings.Contains(err.Error(), "duplicate key value") {
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}
