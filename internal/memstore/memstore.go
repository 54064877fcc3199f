// Package memstore is an in-memory implementation of the record, checkpoint,
// sync run and user stores. It backs tests and the --memory mode of the CLI.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/patchnotes/internal/types"
)

type storedRecord struct {
	id     uuid.UUID
	key    string
	date   *time.Time
	record types.Record
}

// Store holds everything in maps guarded by one mutex. It is safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	records    map[types.Kind][]storedRecord
	keys       map[types.Kind]map[string]struct{}
	checkpoint *types.Checkpoint
	runs       []types.SyncRun
	users      map[uuid.UUID]*types.User
	now        func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		records: make(map[types.Kind][]storedRecord),
		keys:    make(map[types.Kind]map[string]struct{}),
		users:   make(map[uuid.UUID]*types.User),
		now:     time.Now,
	}
}

// InsertIfAbsent adds records whose key is not yet stored for kind.
func (s *Store) InsertIfAbsent(_ context.Context, kind types.Kind, records []types.KeyedRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[kind] == nil {
		s.keys[kind] = make(map[string]struct{})
	}
	inserted := 0
	for _, r := range records {
		if _, ok := s.keys[kind][r.Key]; ok {
			continue
		}
		s.keys[kind][r.Key] = struct{}{}
		s.records[kind] = append(s.records[kind], storedRecord{
			id:     uuid.New(),
			key:    r.Key,
			date:   r.Date,
			record: r.Record.Clone(),
		})
		inserted++
	}
	return inserted, nil
}

// FindByDateRange returns records of kind whose date lies in [from, to],
// oldest first. Records without a date never match.
func (s *Store) FindByDateRange(_ context.Context, kind types.Kind, from, to time.Time) ([]types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []storedRecord
	for _, r := range s.records[kind] {
		if r.date == nil || r.date.Before(from) || r.date.After(to) {
			continue
		}
		matched = append(matched, r)
	}
	slices.SortStableFunc(matched, func(a, b storedRecord) int {
		return a.date.Compare(*b.date)
	})

	out := make([]types.Record, len(matched))
	for i, r := range matched {
		out[i] = r.view()
	}
	return out, nil
}

// FindByIDs returns the stored records of kind with the given ids, in id order.
func (s *Store) FindByIDs(_ context.Context, kind types.Kind, ids []uuid.UUID) ([]types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Record
	for _, id := range ids {
		for _, r := range s.records[kind] {
			if r.id == id {
				out = append(out, r.view())
				break
			}
		}
	}
	return out, nil
}

// Count returns how many records of kind are stored.
func (s *Store) Count(kind types.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[kind])
}

func (r storedRecord) view() types.Record {
	out := r.record.Clone()
	out[types.IDField] = r.id.String()
	return out
}

// GetCheckpoint returns the checkpoint, or nil if none was created.
func (s *Store) GetCheckpoint(_ context.Context) (*types.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.checkpoint == nil {
		return nil, nil
	}
	cp := *s.checkpoint
	return &cp, nil
}

// CreateCheckpoint creates the checkpoint at t unless one exists, and returns
// whichever checkpoint is stored afterwards.
func (s *Store) CreateCheckpoint(_ context.Context, t time.Time) (*types.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkpoint == nil {
		s.checkpoint = &types.Checkpoint{LastUpdated: t.UTC()}
	}
	cp := *s.checkpoint
	return &cp, nil
}

// AdvanceCheckpoint moves the checkpoint forward to t. Earlier values are
// ignored, so the checkpoint never moves backwards.
func (s *Store) AdvanceCheckpoint(_ context.Context, t time.Time) (*types.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkpoint == nil {
		s.checkpoint = &types.Checkpoint{LastUpdated: t.UTC()}
	} else if t.After(s.checkpoint.LastUpdated) {
		s.checkpoint.LastUpdated = t.UTC()
	}
	cp := *s.checkpoint
	return &cp, nil
}

// CreateSyncRun records a started run, assigning its id when unset.
func (s *Store) CreateSyncRun(_ context.Context, run *types.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	s.runs = append(s.runs, *run)
	return nil
}

// FinishSyncRun replaces the stored run with the same id.
func (s *Store) FinishSyncRun(_ context.Context, run *types.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = *run
			return nil
		}
	}
	s.runs = append(s.runs, *run)
	return nil
}

// ListSyncRuns returns up to limit runs, newest first.
func (s *Store) ListSyncRuns(_ context.Context, limit int) ([]types.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.SyncRun, 0, min(limit, len(s.runs)))
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

// CheckEmailExists reports whether an account uses email.
func (s *Store) CheckEmailExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userByEmail(email) != nil, nil
}

// CreateUser stores a new account and returns its id.
func (s *Store) CreateUser(_ context.Context, email, passwordHash string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userByEmail(email) != nil {
		return uuid.Nil, &types.EmailTakenError{Email: email}
	}
	u := &types.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
		Bookmarks:    types.Bookmarks{},
	}
	s.users[u.ID] = u
	return u.ID, nil
}

// GetUser returns the account with id, or nil.
func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.users[id]), nil
}

// GetUserByEmail returns the account with email, or nil.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.userByEmail(email)), nil
}

// ToggleBookmark flips b on the user's bookmark list. It returns the updated
// user and whether the bookmark is now present; a nil user means no account
// has userID.
func (s *Store) ToggleBookmark(_ context.Context, userID uuid.UUID, b types.Bookmark) (*types.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, false, nil
	}
	var present bool
	u.Bookmarks, present = u.Bookmarks.Toggle(b)
	return copyUser(u), present, nil
}

func (s *Store) userByEmail(email string) *types.User {
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func copyUser(u *types.User) *types.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Bookmarks = slices.Clone(u.Bookmarks)
	return &cp
}
