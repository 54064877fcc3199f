// Package upsert merges batches of records into the store, inserting only
// records whose identity is not already present.
package upsert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jonathan/patchnotes/internal/normalize"
	"github.com/jonathan/patchnotes/internal/types"
)

// Store is the persistence the engine writes through. InsertIfAbsent must
// apply the batch in one transaction, skip keys that already exist, and
// return how many rows it inserted.
type Store interface {
	InsertIfAbsent(ctx context.Context, kind types.Kind, records []types.KeyedRecord) (int, error)
}

// Engine performs insert-if-absent upserts.
type Engine struct {
	store Store
}

// New creates an Engine writing to store.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// Upsert inserts records of kind keyed by the kind's identity fields. Dates
// are normalized first, so raw and normalized copies of a record share a key.
// It returns the number of records actually inserted.
func (e *Engine) Upsert(ctx context.Context, kind types.Kind, records []types.Record) (int, error) {
	if !kind.Valid() {
		return 0, &types.UnsupportedKindError{Value: kind.String()}
	}
	info := kind.Info()
	return e.upsert(ctx, kind, records, info.IdentityFields, info.DateField)
}

// UpsertWithFields is Upsert with an explicit identity field set.
func (e *Engine) UpsertWithFields(ctx context.Context, kind types.Kind, records []types.Record, fields []string) (int, error) {
	if !kind.Valid() {
		return 0, &types.UnsupportedKindError{Value: kind.String()}
	}
	if len(fields) == 0 {
		return 0, fmt.Errorf("identity fields are required")
	}
	return e.upsert(ctx, kind, records, fields, kind.Info().DateField)
}

func (e *Engine) upsert(ctx context.Context, kind types.Kind, records []types.Record, fields []string, dateField string) (int, error) {
	records = normalize.All(records)
	batch, err := Prepare(records, fields, dateField)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		log.Printf("[upsert] no %s records to insert", kind)
		return 0, nil
	}

	inserted, err := e.store.InsertIfAbsent(ctx, kind, batch)
	if err != nil {
		return 0, &StoreWriteError{Kind: kind, Count: len(batch), Cause: err}
	}
	log.Printf("[upsert] %s: %d received, %d inserted, %d already present",
		kind, len(records), inserted, len(batch)-inserted)
	return inserted, nil
}

// Prepare keys every non-empty record and drops in-batch duplicates, keeping
// the first occurrence.
func Prepare(records []types.Record, fields []string, dateField string) ([]types.KeyedRecord, error) {
	seen := make(map[string]struct{}, len(records))
	batch := make([]types.KeyedRecord, 0, len(records))
	for _, r := range records {
		if r.IsEmpty() {
			continue
		}
		key, err := IdentityKey(r, fields)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		kr := types.KeyedRecord{Key: key, Record: r}
		if t, ok := r.Time(dateField); ok {
			kr.Date = &t
		}
		batch = append(batch, kr)
	}
	return batch, nil
}

// IdentityKey derives a stable key from the values of fields in r. Missing
// fields contribute null, so two records that both lack a field agree on it.
// Normalized dates are keyed by their UTC instant.
func IdentityKey(r types.Record, fields []string) (string, error) {
	values := make([]any, len(fields))
	for i, f := range fields {
		v := r[f]
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		values[i] = v
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode identity fields %v: %w", fields, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
