package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/patchnotes/internal/types"
)

// -----------------------------------------------------------------------------
// User Methods
// -----------------------------------------------------------------------------

const uniqueViolation = "23505"

const selectUserSQL = `SELECT id, email, password_hash, bookmarks, created_at FROM users`

// CheckEmailExists reports whether an account uses email.
func (db *DB) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// CreateUser inserts an account and returns its id. A taken email yields
// *types.EmailTakenError.
func (db *DB) CreateUser(ctx context.Context, email, passwordHash string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`,
		id, email, passwordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return uuid.Nil, &types.EmailTakenError{Email: email}
		}
		return uuid.Nil, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

// GetUser returns the account with id, or nil.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*types.User, error) {
	return db.getUser(ctx, selectUserSQL+` WHERE id = $1`, id)
}

// GetUserByEmail returns the account with email, or nil.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	if email == "" {
		return nil, nil
	}
	return db.getUser(ctx, selectUserSQL+` WHERE email = $1`, email)
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*types.User, error) {
	user, err := scanUser(db.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ToggleBookmark flips b on the user's bookmark list under a row lock. It
// returns the updated user and whether the bookmark is now present; a nil
// user means no account has userID.
func (db *DB) ToggleBookmark(ctx context.Context, userID uuid.UUID, b types.Bookmark) (*types.User, bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user, err := scanUser(tx.QueryRow(ctx, selectUserSQL+` WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to lock user: %w", err)
	}

	var present bool
	user.Bookmarks, present = user.Bookmarks.Toggle(b)
	bookmarksJSON, err := json.Marshal(user.Bookmarks)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal bookmarks: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET bookmarks = $2 WHERE id = $1`, userID, bookmarksJSON); err != nil {
		return nil, false, fmt.Errorf("failed to update bookmarks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit bookmarks: %w", err)
	}
	return user, present, nil
}

func scanUser(row pgx.Row) (*types.User, error) {
	var user types.User
	var bookmarksJSON []byte
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &bookmarksJSON, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Bookmarks = types.Bookmarks{}
	if len(bookmarksJSON) > 0 {
		if err := json.Unmarshal(bookmarksJSON, &user.Bookmarks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bookmarks: %w", err)
		}
	}
	return &user, nil
}
