package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
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

var tracer = otel.Tracer("merchantd/pkg/storage/mysql")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "mysql."+name)
}

// MySQL provides a MySQL based implementation of [storage.Datastore].
type MySQL struct {
	stbl             sq.StatementBuilderType
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	sharedCache      *sqlcommon.CacheStore
	versionReady     bool
}

// Ensures that MySQL implements the Datastore interface.
var _ storage.Datastore = (*MySQL)(nil)

// New creates a new [MySQL] storage.
func New(uri string, cfg *sqlcommon.Config) (*MySQL, error) {
	dsnCfg, err := mysql.ParseDSN(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql connection dsn: %w", err)
	}

	if cfg.Username != "" {
		dsnCfg.User = cfg.Username
	}
	if cfg.Password != "" {
		dsnCfg.Passwd = cfg.Password
	}

	// Timestamps scan into time.Time, which requires parseTime.
	dsnCfg.ParseTime = true

	uri = dsnCfg.FormatDSN()

	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err = backoff.Retry(func() error {
		err = db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for mysql", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "merchantd")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	stbl := sq.StatementBuilder.RunWith(db)
	dbInfo := sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "mysql")

	return &MySQL{
		stbl:             stbl,
		db:               db,
		dbInfo:           dbInfo,
		logger:           cfg.Logger,
		dbStatsCollector: collector,
		sharedCache:      sqlcommon.NewCacheStore(dbInfo),
		versionReady:     false,
	}, nil
}

// Close closes the datastore and cleans up any residual resources.
func (m *MySQL) Close() {
	if m.dbStatsCollector != nil {
		prometheus.Unregister(m.dbStatsCollector)
	}
	m.db.Close()
}

func (m *MySQL) productsQuery(filter storage.ProductFilter, sortDescending bool) sq.SelectBuilder {
	sb := m.stbl.
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
func (m *MySQL) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	ctx, span := startTrace(ctx, "GetProduct")
	defer span.End()

	row := m.stbl.
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
func (m *MySQL) ReadProducts(
	ctx context.Context,
	filter storage.ProductFilter,
	options storage.ReadOptions,
) (storage.Iterator[*model.Product], error) {
	_, span := startTrace(ctx, "ReadProducts")
	defer span.End()

	sb := m.productsQuery(filter, options.SortDescending)
	return sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanProduct, sqlcommon.ProductKey, HandleSQLError), nil
}

// ReadProductsPage see [storage.ProductBackend].ReadProductsPage.
func (m *MySQL) ReadProductsPage(
	ctx context.Context,
	filter storage.ProductFilter,
	options storage.PaginationOptions,
) ([]*model.Product, string, error) {
	ctx, span := startTrace(ctx, "ReadProductsPage")
	defer span.End()

	sb := m.productsQuery(filter, false)
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
func (m *MySQL) ReadProductsPageByOffset(
	ctx context.Context,
	filter storage.ProductFilter,
	options storage.OffsetPaginationOptions,
) ([]*model.Product, bool, error) {
	ctx, span := startTrace(ctx, "ReadProductsPageByOffset")
	defer span.End()

	sb := m.productsQuery(filter, false).
		Offset(uint64(options.Offset)).
		Limit(uint64(options.PageSize + 1))

	iter := sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanProduct, sqlcommon.ProductKey, HandleSQLError)
	defer iter.Stop()

	return iter.ToOffsetPage(ctx, options.PageSize)
}

// CreateProduct see [storage.ProductBackend].CreateProduct.
func (m *MySQL) CreateProduct(ctx context.Context, product *model.Product) error {
	ctx, span := startTrace(ctx, "CreateProduct")
	defer span.End()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt

	_, err := m.stbl.
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
//
// MySQL has no UPDATE ... RETURNING, so the update and the read-back run in
// one transaction.
func (m *MySQL) UpdateProduct(ctx context.Context, patch *model.ProductPatch) (*model.Product, error) {
	ctx, span := startTrace(ctx, "UpdateProduct")
	defer span.End()

	if patch.ID == "" {
		return nil, fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
	}
	if patch.IsZero() {
		return nil, storage.EmptyPatchError(patch.ID)
	}

	txn, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	_, err = m.stbl.
		Update("products").
		SetMap(sqlcommon.ProductPatchSetMap(patch, time.Now().UTC())).
		Where(sq.Eq{"id": patch.ID}).
		RunWith(txn).
		ExecContext(ctx)
	if err != nil {
		return nil, HandleSQLError(err)
	}

	row := m.stbl.
		Select(sqlcommon.ProductColumns()...).
		From("products").
		Where(sq.Eq{"id": patch.ID}).
		RunWith(txn).
		QueryRowContext(ctx)

	var p model.Product
	err = row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category,
		&p.PriceCents, &p.Currency, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, HandleSQLError(err)
	}

	if err := txn.Commit(); err != nil {
		return nil, HandleSQLError(err)
	}

	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	return &p, nil
}

// DeleteProduct see [storage.ProductBackend].DeleteProduct.
func (m *MySQL) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := startTrace(ctx, "DeleteProduct")
	defer span.End()

	res, err := m.stbl.
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
func (m *MySQL) BulkUpdateProducts(
	ctx context.Context,
	patches []*model.ProductPatch,
	batchSize int,
) (*storage.BulkResult, error) {
	ctx, span := startTrace(ctx, "BulkUpdateProducts")
	defer span.End()

	return sqlcommon.BulkUpdateProducts(ctx, m.dbInfo, patches, batchSize, time.Now().UTC())
}

func (m *MySQL) ordersQuery(filter storage.OrderFilter, sortDescending bool) sq.SelectBuilder {
	sb := m.stbl.
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
func (m *MySQL) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	ctx, span := startTrace(ctx, "GetOrder")
	defer span.End()

	row := m.stbl.
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
func (m *MySQL) ReadOrders(
	ctx context.Context,
	filter storage.OrderFilter,
	options storage.ReadOptions,
) (storage.Iterator[*model.Order], error) {
	_, span := startTrace(ctx, "ReadOrders")
	defer span.End()

	sb := m.ordersQuery(filter, options.SortDescending)
	return sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanOrder, sqlcommon.OrderKey, HandleSQLError), nil
}

// ReadOrdersPage see [storage.OrderBackend].ReadOrdersPage.
func (m *MySQL) ReadOrdersPage(
	ctx context.Context,
	filter storage.OrderFilter,
	options storage.PaginationOptions,
) ([]*model.Order, string, error) {
	ctx, span := startTrace(ctx, "ReadOrdersPage")
	defer span.End()

	sb := m.ordersQuery(filter, false)
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
func (m *MySQL) ReadOrdersPageByOffset(
	ctx context.Context,
	filter storage.OrderFilter,
	options storage.OffsetPaginationOptions,
) ([]*model.Order, bool, error) {
	ctx, span := startTrace(ctx, "ReadOrdersPageByOffset")
	defer span.End()

	sb := m.ordersQuery(filter, false).
		Offset(uint64(options.Offset)).
		Limit(uint64(options.PageSize + 1))

	iter := sqlcommon.NewSQLRowIterator(sb, sqlcommon.ScanOrder, sqlcommon.OrderKey, HandleSQLError)
	defer iter.Stop()

	return iter.ToOffsetPage(ctx, options.PageSize)
}

// CreateOrder see [storage.OrderBackend].CreateOrder.
func (m *MySQL) CreateOrder(ctx context.Context, order *model.Order) error {
	ctx, span := startTrace(ctx, "CreateOrder")
	defer span.End()

	now := time.Now().UTC()
	if order.PlacedAt.IsZero() {
		order.PlacedAt = now
	}
	order.UpdatedAt = order.PlacedAt

	_, err := m.stbl.
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
func (m *MySQL) UpdateOrder(ctx context.Context, patch *model.OrderPatch) (*model.Order, error) {
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

	txn, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	_, err = m.stbl.
		Update("orders").
		SetMap(sqlcommon.OrderPatchSetMap(patch, time.Now().UTC())).
		Where(sq.Eq{"id": patch.ID}).
		RunWith(txn).
		ExecContext(ctx)
	if err != nil {
		return nil, HandleSQLError(err)
	}

	row := m.stbl.
		Select(sqlcommon.OrderColumns()...).
		From("orders").
		Where(sq.Eq{"id": patch.ID}).
		RunWith(txn).
		QueryRowContext(ctx)

	var o model.Order
	var status string
	err = row.Scan(
		&o.ID, &o.Reference, &o.CustomerEmail, &status,
		&o.TotalCents, &o.Currency, &o.PlacedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, HandleSQLError(err)
	}

	if err := txn.Commit(); err != nil {
		return nil, HandleSQLError(err)
	}

	o.Status = model.OrderStatus(status)
	o.PlacedAt = o.PlacedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	return &o, nil
}

// BulkUpdateOrders see [storage.OrderBackend].BulkUpdateOrders.
func (m *MySQL) BulkUpdateOrders(
	ctx context.Context,
	patches []*model.OrderPatch,
	batchSize int,
) (*storage.BulkResult, error) {
	ctx, span := startTrace(ctx, "BulkUpdateOrders")
	defer span.End()

	return sqlcommon.BulkUpdateOrders(ctx, m.dbInfo, patches, batchSize, time.Now().UTC())
}

// SharedCache see [storage.Datastore].SharedCache.
func (m *MySQL) SharedCache() storage.SharedCacheBackend {
	return m.sharedCache
}

// IsReady see [sqlcommon.IsReady].
func (m *MySQL) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, m.versionReady, m.db)
	if err != nil {
		return versionReady, err
	}
	m.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}
