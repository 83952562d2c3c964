// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in sub-packages (sqlite, postgres); the
// services only ever see these interfaces, which is what lets their tests run
// against in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/study-timer/internal/model"
)

// UserRepository persists user accounts.
//
// ERROR CONTRACT:
//   - lookups of a missing row return an error matching apperror.ErrNotFound
//   - Create on a taken username or GitHub ID returns apperror.ErrConflict
//     with Field set to "username" or "github_id"
type UserRepository interface {
	// Create inserts a new account, filling in ID, CreatedAt and UpdatedAt.
	// Nil Preferences/DaysLogged are stored as {} and [].
	Create(ctx context.Context, user *model.User) error

	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)

	// UsernameExists is an exact, case-sensitive match.
	UsernameExists(ctx context.Context, username string) (bool, error)

	// Save writes the mutable columns (name, preferences, study_time,
	// days_logged) of an existing account in one UPDATE and bumps UpdatedAt.
	// The whole row is written: concurrent Saves of the same user are
	// last-write-wins.
	Save(ctx context.Context, user *model.User) error
}
