package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/patchnotes/internal/types"
)

// -----------------------------------------------------------------------------
// Record Methods
// -----------------------------------------------------------------------------

const insertRecordSQL = `INSERT INTO records (id, kind, identity_key, record_date, doc)
	 VALUES ($1, $2, $3, $4, $5)
	 ON CONFLICT (kind, identity_key) DO NOTHING`

// InsertIfAbsent inserts every record whose (kind, key) is not stored yet, in
// one transaction. Existing rows are never modified. It returns the number of
// rows inserted.
func (db *DB) InsertIfAbsent(ctx context.Context, kind types.Kind, records []types.KeyedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		doc, err := json.Marshal(r.Record)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal record: %w", err)
		}
		batch.Queue(insertRecordSQL, uuid.New(), kind.String(), r.Key, r.Date, doc)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range records {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to insert %s record: %w", kind, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit records: %w", err)
	}
	return inserted, nil
}

// FindByDateRange returns records of kind dated within [from, to], oldest
// first.
func (db *DB) FindByDateRange(ctx context.Context, kind types.Kind, from, to time.Time) ([]types.Record, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, doc FROM records
		 WHERE kind = $1 AND record_date BETWEEN $2 AND $3
		 ORDER BY record_date ASC, created_at ASC`,
		kind.String(), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", kind, err)
	}
	return scanRecords(rows)
}

// FindByIDs returns the records of kind with the given ids.
func (db *DB) FindByIDs(ctx context.Context, kind types.Kind, ids []uuid.UUID) ([]types.Record, error) {
	if len(ids) == 0 {
		return []types.Record{}, nil
	}
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, doc FROM records
		 WHERE kind = $1 AND id = ANY($2::uuid[])
		 ORDER BY record_date ASC`,
		kind.String(), idStrings,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records by id: %w", kind, err)
	}
	return scanRecords(rows)
}

// CountRecords returns how many records of kind are stored.
func (db *DB) CountRecords(ctx context.Context, kind types.Kind) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE kind = $1`, kind.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", kind, err)
	}
	return n, nil
}

func scanRecords(rows pgx.Rows) ([]types.Record, error) {
	defer rows.Close()

	records := []types.Record{}
	for rows.Next() {
		var id uuid.UUID
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record, err := decodeRecord(id, doc)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// decodeRecord unmarshals a stored document and attaches its id. Dates come
// back as RFC 3339 strings; readers normalize them again.
func decodeRecord(id uuid.UUID, doc []byte) (types.Record, error) {
	var record types.Record
	if err := json.Unmarshal(doc, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	if record == nil {
		record = types.Record{}
	}
	record[types.IDField] = id.String()
	return record, nil
}
