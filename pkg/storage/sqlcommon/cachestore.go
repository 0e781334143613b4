package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/merchantd/merchantd/pkg/storage"
)

// CacheStore is the shared cache tier persisted alongside the domain tables,
// so every replica observes the same entries and invalidations. Entries carry
// an absolute expiry and expired rows read as misses; they are replaced by
// the next write of the same key rather than swept by a background job.
type CacheStore struct {
	dbInfo *DBInfo
}

var _ storage.SharedCacheBackend = (*CacheStore)(nil)

// NewCacheStore returns a cache tier running on the given connection.
func NewCacheStore(dbInfo *DBInfo) *CacheStore {
	return &CacheStore{dbInfo: dbInfo}
}

// GetCacheEntry returns the value stored under key. Absent and expired rows
// both report a miss.
func (c *CacheStore) GetCacheEntry(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.GetCacheEntry")
	defer span.End()

	row := c.dbInfo.stbl.
		Select("value", "expires_at").
		From("cache_entries").
		Where(sq.Eq{"cache_key": key}).
		QueryRowContext(ctx)

	var value []byte
	var expiresAt time.Time
	if err := row.Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, c.dbInfo.HandleSQLError(err)
	}

	if !expiresAt.UTC().After(time.Now().UTC()) {
		return nil, false, nil
	}

	return value, true, nil
}

// SetCacheEntry stores value under key with the given tags and TTL, replacing
// any previous entry and its tag rows. The replacement is transactional, so a
// concurrent reader sees either the old entry or the new one.
func (c *CacheStore) SetCacheEntry(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.SetCacheEntry")
	defer span.End()

	txn, err := c.dbInfo.db.BeginTx(ctx, nil)
	if err != nil {
		return c.dbInfo.HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	// Delete-then-insert is the portable upsert across all three engines.
	_, err = c.dbInfo.stbl.
		Delete("cache_entries").
		Where(sq.Eq{"cache_key": key}).
		RunWith(txn).
		ExecContext(ctx)
	if err != nil {
		return c.dbInfo.HandleSQLError(err)
	}

	_, err = c.dbInfo.stbl.
		Delete("cache_tags").
		Where(sq.Eq{"cache_key": key}).
		RunWith(txn).
		ExecContext(ctx)
	if err != nil {
		return c.dbInfo.HandleSQLError(err)
	}

	_, err = c.dbInfo.stbl.
		Insert("cache_entries").
		Columns("cache_key", "value", "expires_at").
		Values(key, value, time.Now().UTC().Add(ttl)).
		RunWith(txn).
		ExecContext(ctx)
	if err != nil {
		return c.dbInfo.HandleSQLError(err)
	}

	for _, tag := range tags {
		_, err = c.dbInfo.stbl.
			Insert("cache_tags").
			Columns("tag", "cache_key").
			Values(tag, key).
			RunWith(txn).
			ExecContext(ctx)
		if err != nil {
			return c.dbInfo.HandleSQLError(err)
		}
	}

	if err := txn.Commit(); err != nil {
		return c.dbInfo.HandleSQLError(err)
	}
	return nil
}

// DeleteCacheEntry removes one entry and its tag rows. Absent keys are not an
// error.
func (c *CacheStore) DeleteCacheEntry(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.DeleteCacheEntry")
	defer span.End()

	txn, err := c.dbInfo.db.BeginTx(ctx, nil)
	if err != nil {
		return c.dbInfo.HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	if err := c.deleteKeys(ctx, txn, []string{key}); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return c.dbInfo.HandleSQLError(err)
	}
	return nil
}

// DeleteCacheTag removes every entry carrying the tag, together with all tag
// rows pointing at those entries.
func (c *CacheStore) DeleteCacheTag(ctx context.Context, tag string) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.DeleteCacheTag")
	defer span.End()

	txn, err := c.dbInfo.db.BeginTx(ctx, nil)
	if err != nil {
		return c.dbInfo.HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	// mysql rejects a DELETE whose subquery reads the same table, so the
	// tagged keys are materialized first and deleted in chunks.
	rows, err := c.dbInfo.stbl.
		Select("cache_key").
		From("cache_tags").
		Where(sq.Eq{"tag": tag}).
		RunWith(txn).
		QueryContext(ctx)
	if err != nil {
		return c.dbInfo.HandleSQLError(err)
	}

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return c.dbInfo.HandleSQLError(err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return c.dbInfo.HandleSQLError(err)
	}
	_ = rows.Close()

	if err := c.deleteKeys(ctx, txn, keys); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return c.dbInfo.HandleSQLError(err)
	}
	return nil
}

func (c *CacheStore) deleteKeys(ctx context.Context, txn *sql.Tx, keys []string) error {
	for _, chunk := range ChunkStrings(keys, storage.DefaultBulkBatchSize) {
		_, err := c.dbInfo.stbl.
			Delete("cache_entries").
			Where(sq.Eq{"cache_key": chunk}).
			RunWith(txn).
			ExecContext(ctx)
		if err != nil {
			return c.dbInfo.HandleSQLError(err)
		}

		_, err = c.dbInfo.stbl.
			Delete("cache_tags").
			Where(sq.Eq{"cache_key": chunk}).
			RunWith(txn).
			ExecContext(ctx)
		if err != nil {
			return c.dbInfo.HandleSQLError(err)
		}
	}
	return nil
}
