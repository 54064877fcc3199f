package types

import (
	"time"

	"github.com/google/uuid"
)

// Record is one publication as returned by its upstream source. There is no
// fixed schema beyond the kind's identity and date fields.
type Record map[string]any

// IDField is the key under which stored records expose their store-assigned id.
const IDField = "_id"

// IsEmpty reports whether the record carries no fields.
func (r Record) IsEmpty() bool {
	return len(r) == 0
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the field as a string, or "" when absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Time returns the field as a time when it has been normalized.
func (r Record) Time(field string) (time.Time, bool) {
	t, ok := r[field].(time.Time)
	return t, ok
}

// ID returns the store-assigned id, if the record has been persisted.
func (r Record) ID() (uuid.UUID, bool) {
	switch v := r[IDField].(type) {
	case uuid.UUID:
		return v, true
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil
	default:
		return uuid.Nil, false
	}
}

// KeyedRecord is a record prepared for insertion: its identity key and the
// value of its kind's date field have been extracted.
type KeyedRecord struct {
	Key    string
	Date   *time.Time
	Record Record
}
