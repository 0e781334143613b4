package sqlcommon

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/storage"
)

// NormalizeBatchSize applies the default batch size when s is zero or
// negative and clamps it to the allowed maximum.
func NormalizeBatchSize(s int) int {
	if s <= 0 {
		return storage.DefaultBulkBatchSize
	}
	if s > storage.MaxBulkBatchSize {
		return storage.MaxBulkBatchSize
	}
	return s
}

// ChunkStrings splits vals into consecutive chunks of at most size elements,
// preserving order. The chunks alias the input slice.
func ChunkStrings(vals []string, size int) [][]string {
	if size < 1 {
		size = 1
	}

	chunks := make([][]string, 0, (len(vals)+size-1)/size)
	for len(vals) > size {
		chunks = append(chunks, vals[:size])
		vals = vals[size:]
	}
	if len(vals) > 0 {
		chunks = append(chunks, vals)
	}
	return chunks
}

// ProductPatchSetMap builds the UPDATE column assignments for a product
// patch. The updated_at stamp is always included.
func ProductPatchSetMap(patch *model.ProductPatch, now time.Time) map[string]interface{} {
	m := map[string]interface{}{"updated_at": now}
	if patch.Name != nil {
		m["name"] = *patch.Name
	}
	if patch.Description != nil {
		m["description"] = *patch.Description
	}
	if patch.Category != nil {
		m["category"] = *patch.Category
	}
	if patch.PriceCents != nil {
		m["price_cents"] = *patch.PriceCents
	}
	if patch.Currency != nil {
		m["currency"] = *patch.Currency
	}
	if patch.Stock != nil {
		m["stock"] = *patch.Stock
	}
	return m
}

// OrderPatchSetMap builds the UPDATE column assignments for an order patch.
// The updated_at stamp is always included.
func OrderPatchSetMap(patch *model.OrderPatch, now time.Time) map[string]interface{} {
	m := map[string]interface{}{"updated_at": now}
	if patch.Status != nil {
		m["status"] = string(*patch.Status)
	}
	if patch.CustomerEmail != nil {
		m["customer_email"] = *patch.CustomerEmail
	}
	return m
}

// BulkUpdateProducts applies product patches inside a single transaction,
// batch by batch. See bulkUpdate for the transactional contract.
func BulkUpdateProducts(
	ctx context.Context,
	dbInfo *DBInfo,
	patches []*model.ProductPatch,
	batchSize int,
	now time.Time,
) (*storage.BulkResult, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.BulkUpdateProducts")
	defer span.End()

	ids := make([]string, 0, len(patches))
	pending := make(map[string]*model.ProductPatch, len(patches))
	for _, patch := range patches {
		if patch.ID == "" {
			return nil, fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
		}
		if patch.IsZero() {
			return nil, storage.EmptyPatchError(patch.ID)
		}
		if _, ok := pending[patch.ID]; ok {
			return nil, fmt.Errorf("duplicate record '%s': %w", patch.ID, storage.ErrInvalidWriteInput)
		}
		pending[patch.ID] = patch
		ids = append(ids, patch.ID)
	}

	return bulkUpdate(ctx, dbInfo, "products", "category", ids, pending, ProductPatchSetMap, productPatchGroup, batchSize, now)
}

func productPatchGroup(patch *model.ProductPatch) (string, bool) {
	if patch.Category == nil {
		return "", false
	}
	return *patch.Category, true
}

func orderPatchGroup(patch *model.OrderPatch) (string, bool) {
	if patch.Status == nil {
		return "", false
	}
	return string(*patch.Status), true
}

// BulkUpdateOrders applies order patches inside a single transaction, batch
// by batch. See bulkUpdate for the transactional contract.
func BulkUpdateOrders(
	ctx context.Context,
	dbInfo *DBInfo,
	patches []*model.OrderPatch,
	batchSize int,
	now time.Time,
) (*storage.BulkResult, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.BulkUpdateOrders")
	defer span.End()

	ids := make([]string, 0, len(patches))
	pending := make(map[string]*model.OrderPatch, len(patches))
	for _, patch := range patches {
		if patch.ID == "" {
			return nil, fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
		}
		if patch.Status != nil && !patch.Status.Valid() {
			return nil, fmt.Errorf("record '%s' has unknown status '%s': %w", patch.ID, *patch.Status, storage.ErrInvalidWriteInput)
		}
		if patch.IsZero() {
			return nil, storage.EmptyPatchError(patch.ID)
		}
		if _, ok := pending[patch.ID]; ok {
			return nil, fmt.Errorf("duplicate record '%s': %w", patch.ID, storage.ErrInvalidWriteInput)
		}
		pending[patch.ID] = patch
		ids = append(ids, patch.ID)
	}

	return bulkUpdate(ctx, dbInfo, "orders", "status", ids, pending, OrderPatchSetMap, orderPatchGroup, batchSize, now)
}

type matchedRow struct {
	id    string
	group string
}

// bulkUpdate runs the shared batched mutation pipeline. All batches commit or
// roll back together. Ids that match no row are collected as unresolved
// rather than failing the transaction; every applied patch is released from
// pending as soon as its UPDATE lands, so the retained set shrinks batch by
// batch instead of holding all records until commit. The matching scan reads
// groupColumn alongside each id, which is the only point where the pre-update
// grouping values are visible; those values, plus any value groupOf extracts
// from an applied patch, become the result's AffectedGroups.
func bulkUpdate[P any](
	ctx context.Context,
	dbInfo *DBInfo,
	table string,
	groupColumn string,
	ids []string,
	pending map[string]P,
	setMap func(P, time.Time) map[string]interface{},
	groupOf func(P) (string, bool),
	batchSize int,
	now time.Time,
) (*storage.BulkResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no records in bulk update: %w", storage.ErrInvalidWriteInput)
	}

	txn, err := dbInfo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	unresolved := storage.NewSortedSet()
	affected := storage.NewSortedSet()
	applied := 0
	matched := make([]matchedRow, 0, batchSize)

	for _, chunk := range ChunkStrings(ids, NormalizeBatchSize(batchSize)) {
		matched = matched[:0]

		sb := dbInfo.stbl.
			Select("id", groupColumn).
			From(table).
			Where(sq.Eq{"id": chunk}).
			RunWith(txn)
		if dbInfo.dialect != "sqlite" {
			// sqlite locks the whole database per transaction and rejects the
			// row-locking syntax.
			sb = sb.Suffix("FOR UPDATE")
		}

		rows, err := sb.QueryContext(ctx)
		if err != nil {
			return nil, dbInfo.HandleSQLError(err)
		}
		for rows.Next() {
			var row matchedRow
			if err := rows.Scan(&row.id, &row.group); err != nil {
				_ = rows.Close()
				return nil, dbInfo.HandleSQLError(err)
			}
			matched = append(matched, row)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, dbInfo.HandleSQLError(err)
		}
		// The transaction cannot execute statements while a result set is
		// open, so the chunk is drained before any UPDATE runs.
		_ = rows.Close()

		for _, row := range matched {
			patch := pending[row.id]
			_, err := dbInfo.stbl.
				Update(table).
				SetMap(setMap(patch, now)).
				Where(sq.Eq{"id": row.id}).
				RunWith(txn).
				ExecContext(ctx)
			if err != nil {
				return nil, dbInfo.HandleSQLError(err)
			}
			applied++
			if row.group != "" {
				affected.Add(row.group)
			}
			if g, ok := groupOf(patch); ok && g != "" {
				affected.Add(g)
			}
			delete(pending, row.id)
		}

		// Whatever is left of this chunk in pending matched no row.
		for _, id := range chunk {
			if _, ok := pending[id]; ok {
				unresolved.Add(id)
				delete(pending, id)
			}
		}
	}

	if err := txn.Commit(); err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}

	return &storage.BulkResult{
		Applied:        applied,
		Unresolved:     unresolved.Values(),
		AffectedGroups: affected.Values(),
	}, nil
}
