package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Bookmark points a user at one stored record.
type Bookmark struct {
	Kind     Kind      `json:"type"`
	RecordID uuid.UUID `json:"id"`
}

// bookmarkJSON uses the bookmark type tag ("bill", "order", ...) on the wire.
type bookmarkJSON struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// MarshalJSON implements json.Marshaler
func (b Bookmark) MarshalJSON() ([]byte, error) {
	if !b.Kind.Valid() {
		return nil, &UnsupportedKindError{Value: b.Kind.String()}
	}
	return json.Marshal(bookmarkJSON{Type: b.Kind.Info().BookmarkType, ID: b.RecordID})
}

// UnmarshalJSON implements json.Unmarshaler
func (b *Bookmark) UnmarshalJSON(data []byte) error {
	var raw bookmarkJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseKind(raw.Type)
	if err != nil {
		return err
	}
	b.Kind = kind
	b.RecordID = raw.ID
	return nil
}

// Bookmarks is an ordered list of bookmarks.
type Bookmarks []Bookmark

// Index returns the position of the bookmark for recordID, or -1.
func (bs Bookmarks) Index(recordID uuid.UUID) int {
	for i, b := range bs {
		if b.RecordID == recordID {
			return i
		}
	}
	return -1
}

// Toggle removes the bookmark for b.RecordID if present, otherwise appends b.
// It reports whether the bookmark is present afterwards.
func (bs Bookmarks) Toggle(b Bookmark) (Bookmarks, bool) {
	if i := bs.Index(b.RecordID); i >= 0 {
		out := make(Bookmarks, 0, len(bs)-1)
		out = append(out, bs[:i]...)
		return append(out, bs[i+1:]...), false
	}
	out := make(Bookmarks, 0, len(bs)+1)
	out = append(out, bs...)
	return append(out, b), true
}

// ByKind groups record ids by kind, preserving bookmark order.
func (bs Bookmarks) ByKind() map[Kind][]uuid.UUID {
	grouped := make(map[Kind][]uuid.UUID)
	for _, b := range bs {
		grouped[b.Kind] = append(grouped[b.Kind], b.RecordID)
	}
	return grouped
}

// Checkpoint records when the store was last brought up to date.
type Checkpoint struct {
	LastUpdated time.Time `json:"last_updated"`
}
