package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/xid"
	"github.com/sakif/study-timer/internal/apperror"
	"github.com/sakif/study-timer/internal/model"
	"github.com/sakif/study-timer/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, name, password_hash, github_id,
	preferences, study_time, days_logged, created_at, updated_at`

// uniqueViolationCode is SQLSTATE unique_violation.
const uniqueViolationCode = "23505"

// Create inserts a new account. See repository.UserRepository.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.DaysLogged == nil {
		user.DaysLogged = model.DayList{}
	}

	_, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :username, :name, :password_hash, :github_id,
			:preferences, :study_time, :days_logged, :created_at, :updated_at)`,
		user,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return apperror.Conflict("user", constraintField(pqErr.Constraint))
		}
		return fmt.Errorf("postgres: inserting user %q: %w", user.Username, err)
	}

	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getOne(ctx, "id", id, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (db *DB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getOne(ctx, "username", username, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (db *DB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getOne(ctx, "github_id", strconv.FormatInt(githubID, 10),
		`SELECT `+userColumns+` FROM users WHERE github_id = $1`, githubID)
}

func (db *DB) getOne(ctx context.Context, by, key, query string, arg any) (*model.User, error) {
	var u model.User
	if err := db.conn.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("postgres: getting user by %s %s: %w", by, key, err)
	}
	return &u, nil
}

func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := db.conn.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
	if err != nil {
		return false, fmt.Errorf("postgres: checking username %q: %w", username, err)
	}
	return exists, nil
}

// Save overwrites the mutable columns; last write wins.
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
		return fmt.Errorf("postgres: saving user %s: %w", user.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// constraintField maps Postgres' default constraint names
// (users_username_key, users_github_id_key) back to the column.
func constraintField(constraint string) string {
	field := strings.TrimSuffix(strings.TrimPrefix(constraint, "users_"), "_key")
	if field == "" {
		return "username"
	}
	return field
}
