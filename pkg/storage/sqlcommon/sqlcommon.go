// Package sqlcommon holds the pieces shared by every SQL datastore: the
// connection config, the lazy row iterator behind paginated and streamed
// reads, the keyset cursor predicate, and the shared cache tier.
package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"

	"github.com/merchantd/merchantd/internal/build"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/storage"
)

var tracer = otel.Tracer("pkg/storage/sqlcommon")

// Config defines the configuration parameters
// for setting up and managing a sql connection.
type Config struct {
	Username string
	Password string
	Logger   logger.Logger

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	ExportMetrics bool
}

// DatastoreOption defines a function type
// used for configuring a Config object.
type DatastoreOption func(*Config)

// WithUsername returns a DatastoreOption that sets the username in the Config.
func WithUsername(username string) DatastoreOption {
	return func(config *Config) {
		config.Username = username
	}
}

// WithPassword returns a DatastoreOption that sets the password in the Config.
func WithPassword(password string) DatastoreOption {
	return func(config *Config) {
		config.Password = password
	}
}

// WithLogger returns a DatastoreOption that sets the Logger in the Config.
func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithMaxOpenConns returns a DatastoreOption that sets the
// maximum number of open connections in the Config.
func WithMaxOpenConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxOpenConns = c
	}
}

// WithMaxIdleConns returns a DatastoreOption that sets the
// maximum number of idle connections in the Config.
func WithMaxIdleConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxIdleConns = c
	}
}

// WithConnMaxIdleTime returns a DatastoreOption that sets
// the maximum idle time for a connection in the Config.
func WithConnMaxIdleTime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxIdleTime = d
	}
}

// WithConnMaxLifetime returns a DatastoreOption that sets
// the maximum lifetime for a connection in the Config.
func WithConnMaxLifetime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxLifetime = d
	}
}

// WithMetrics returns a DatastoreOption that
// enables the export of metrics in the Config.
func WithMetrics() DatastoreOption {
	return func(cfg *Config) {
		cfg.ExportMetrics = true
	}
}

// NewConfig creates a new Config instance with default values
// and applies any provided DatastoreOption modifications.
func NewConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	return cfg
}

type errorHandlerFn func(error, ...interface{}) error

// DBInfo encapsulates DB information for use in common methods.
type DBInfo struct {
	db             *sql.DB
	stbl           sq.StatementBuilderType
	dialect        string
	HandleSQLError errorHandlerFn
}

// NewDBInfo constructs a [DBInfo] object.
func NewDBInfo(db *sql.DB, stbl sq.StatementBuilderType, errorHandler errorHandlerFn, dialect string) *DBInfo {
	if err := goose.SetDialect(dialect); err != nil {
		panic("failed to set database dialect: " + err.Error())
	}

	return &DBInfo{
		db:             db,
		stbl:           stbl,
		dialect:        dialect,
		HandleSQLError: errorHandler,
	}
}

// RowScanner converts the current row of a result set into a value.
type RowScanner[T any] func(rows *sql.Rows) (T, error)

// SQLRowIterator implements storage.Iterator over rows fetched lazily from a
// SQL database. The query does not run until the first Next call.
type SQLRowIterator[T any] struct {
	rows           *sql.Rows // GUARDED_BY(mu)
	sb             sq.SelectBuilder
	scan           RowScanner[T]
	key            func(T) string
	handleSQLError errorHandlerFn
	mu             sync.Mutex
}

// NewSQLRowIterator returns a lazy iterator over the rows selected by sb.
// key extracts the ordering key of a scanned value, used by ToArray to build
// continuation cursors.
func NewSQLRowIterator[T any](sb sq.SelectBuilder, scan RowScanner[T], key func(T) string, errHandler errorHandlerFn) *SQLRowIterator[T] {
	return &SQLRowIterator[T]{
		sb:             sb,
		scan:           scan,
		key:            key,
		handleSQLError: errHandler,
	}
}

var _ storage.Iterator[*model.Product] = (*SQLRowIterator[*model.Product])(nil)

func (t *SQLRowIterator[T]) fetchBuffer(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.fetchBuffer")
	defer span.End()

	// The result set outlives any single Next call; cancellation is observed
	// at the Next boundary instead.
	ctx = context.WithoutCancel(ctx)
	rows, err := t.sb.QueryContext(ctx)
	if err != nil {
		return t.handleSQLError(err)
	}
	t.rows = rows
	return nil
}

func (t *SQLRowIterator[T]) next(ctx context.Context) (T, error) {
	var val T

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rows == nil {
		if err := t.fetchBuffer(ctx); err != nil {
			return val, err
		}
	}

	if !t.rows.Next() {
		if err := t.rows.Err(); err != nil {
			return val, t.handleSQLError(err)
		}
		return val, storage.ErrIteratorDone
	}

	val, err := t.scan(t.rows)
	if err != nil {
		return val, t.handleSQLError(err)
	}

	return val, nil
}

// Next returns the next available row, or the context's error once the
// request is cancelled.
func (t *SQLRowIterator[T]) Next(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var val T
		return val, err
	}

	return t.next(ctx)
}

// Stop terminates iteration and releases the underlying result set.
func (t *SQLRowIterator[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rows != nil {
		_ = t.rows.Close()
	}
}

// ToArray drains one page from the iterator and returns it with the ordering
// key to resume from, or an empty key when the sequence is exhausted.
// The underlying query uses LIMIT pageSize+1: the probe row only signals that
// more rows exist and is never part of the returned page.
func (t *SQLRowIterator[T]) ToArray(ctx context.Context, opts storage.PaginationOptions) ([]T, string, error) {
	if opts.PageSize < 1 {
		return nil, "", nil
	}

	var res []T
	for i := 0; i < opts.PageSize; i++ {
		item, err := t.next(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrIteratorDone) {
				return res, "", nil
			}
			return nil, "", err
		}
		res = append(res, item)
	}

	// Probe for one more row. If none exists we are at the end of the
	// sequence and no continuation cursor is needed.
	if _, err := t.next(ctx); err != nil {
		if errors.Is(err, storage.ErrIteratorDone) {
			return res, "", nil
		}
		return nil, "", err
	}

	return res, t.key(res[len(res)-1]), nil
}

// ToOffsetPage drains one offset page from the iterator and reports whether
// more rows exist past it, using the same LIMIT pageSize+1 probe as ToArray.
func (t *SQLRowIterator[T]) ToOffsetPage(ctx context.Context, pageSize int) ([]T, bool, error) {
	if pageSize < 1 {
		return nil, false, nil
	}

	var res []T
	for i := 0; i < pageSize; i++ {
		item, err := t.next(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrIteratorDone) {
				return res, false, nil
			}
			return nil, false, err
		}
		res = append(res, item)
	}

	if _, err := t.next(ctx); err != nil {
		if errors.Is(err, storage.ErrIteratorDone) {
			return res, false, nil
		}
		return nil, false, err
	}

	return res, true, nil
}

// AddFromID applies the keyset cursor predicate: rows strictly past the
// last-seen id, in the direction of the sort.
func AddFromID(sb sq.SelectBuilder, fromID string, sortDescending bool) sq.SelectBuilder {
	if sortDescending {
		return sb.Where(sq.Lt{"id": fromID})
	}
	return sb.Where(sq.Gt{"id": fromID})
}

// ProductColumns returns the product columns in scan order.
func ProductColumns() []string {
	return []string{
		"id", "sku", "name", "description", "category",
		"price_cents", "currency", "stock", "created_at", "updated_at",
	}
}

// ScanProduct scans the current row into a product. Column order must match
// ProductColumns.
func ScanProduct(rows *sql.Rows) (*model.Product, error) {
	var p model.Product
	err := rows.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category,
		&p.PriceCents, &p.Currency, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	return &p, nil
}

// ProductKey returns the ordering key used for product cursors.
func ProductKey(p *model.Product) string { return p.ID }

// OrderColumns returns the order columns in scan order.
func OrderColumns() []string {
	return []string{
		"id", "reference", "customer_email", "status",
		"total_cents", "currency", "placed_at", "updated_at",
	}
}

// ScanOrder scans the current row into an order. Column order must match
// OrderColumns.
func ScanOrder(rows *sql.Rows) (*model.Order, error) {
	var o model.Order
	var status string
	err := rows.Scan(
		&o.ID, &o.Reference, &o.CustomerEmail, &status,
		&o.TotalCents, &o.Currency, &o.PlacedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = model.OrderStatus(status)
	o.PlacedAt = o.PlacedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	return &o, nil
}

// OrderKey returns the ordering key used for order cursors.
func OrderKey(o *model.Order) string { return o.ID }

// IsReady returns true if the connection to the datastore is successful AND
// (the datastore has the latest migration applied OR skipVersionCheck).
func IsReady(ctx context.Context, skipVersionCheck bool, db *sql.DB) (storage.ReadinessStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// Ping first so a connection problem produces a clear error.
	if pingErr := db.PingContext(ctx); pingErr != nil {
		return storage.ReadinessStatus{}, pingErr
	}

	if skipVersionCheck {
		return storage.ReadinessStatus{
			IsReady: true,
		}, nil
	}

	revision, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return storage.ReadinessStatus{}, err
	}

	if revision < build.MinimumSupportedDatastoreSchemaRevision {
		return storage.ReadinessStatus{
			Message: "datastore requires migrations: at revision '" +
				strconv.FormatInt(revision, 10) +
				"', but requires '" +
				strconv.FormatInt(build.MinimumSupportedDatastoreSchemaRevision, 10) +
				"'. Run 'merchantd migrate'.",
			IsReady: false,
		}, nil
	}
	return storage.ReadinessStatus{
		IsReady: true,
	}, nil
}
