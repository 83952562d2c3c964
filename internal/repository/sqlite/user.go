package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/study-timer/internal/apperror"
	"github.com/sakif/study-timer/internal/model"
	"github.com/sakif/study-timer/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, name, password_hash, github_id,
	preferences, study_time, days_logged, created_at, updated_at`

// Create inserts a new account.
//
// ID GENERATION WITH xid:
// 20 chars, URL-safe, sortable by creation time, e.g. "cv37rs3pp9olc6atsptg".
//
// The user is modified in place: after Create the caller's struct has its ID
// and timestamps, and nil Preferences/DaysLogged defaults are normalised.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.DaysLogged == nil {
		user.DaysLogged = model.DayList{}
	}

	// :name parameters are bound from the struct's db tags; Preferences and
	// DaysLogged are encoded to JSON text by their driver.Valuer methods.
	_, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :username, :name, :password_hash, :github_id,
			:preferences, :study_time, :days_logged, :created_at, :updated_at)`,
		user,
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return apperror.Conflict("user", field)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	return nil
}

// GetByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getOne(ctx, "id", id, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByUsername retrieves a user by exact username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getOne(ctx, "username", username, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// GetByGitHubID retrieves the account linked to a GitHub user.
func (db *DB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getOne(ctx, "github_id", strconv.FormatInt(githubID, 10),
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID)
}

func (db *DB) getOne(ctx context.Context, by, key, query string, arg any) (*model.User, error) {
	var u model.User
	if err := db.conn.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s %s: %w", by, key, err)
	}
	return &u, nil
}

// UsernameExists reports whether an account already uses username.
func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := db.conn.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)`, username)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking username %q: %w", username, err)
	}
	return exists, nil
}

// Save writes the mutable columns of an existing account.
//
// This is a plain read-modify-write: the caller loaded the row, changed the
// struct, and we overwrite the row with it. There is no version check, so of
// two concurrent Saves the later one wins.
func (db *DB) Save(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := db.conn.NamedExecContext(ctx, `
		UPDATE users
		SET name = :name, preferences = :preferences, study_time = :study_time,
			days_logged = :days_logged, updated_at = :updated_at
		WHERE id = :id`,
		user,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving user %s: %w", user.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// uniqueViolation extracts the column from SQLite's
// "UNIQUE constraint failed: users.username" message.
func uniqueViolation(err error) (string, bool) {
	msg := err.Error()
	const marker = "UNIQUE constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	col := msg[i+len(marker):]
	if j := strings.IndexAny(col, " ,)"); j >= 0 {
		col = col[:j]
	}
	col = strings.TrimPrefix(col, "users.")
	return col, true
}
