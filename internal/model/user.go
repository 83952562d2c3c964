// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// The account owns three pieces of mutable per-user state besides its
// identity: the preference document and the two analytics fields
// (StudyTime, DaysLogged). Everything else is set at registration.
//
// WHY GitHubID *int64?
// Accounts created with username/password have no GitHub identity. A nil
// pointer maps to SQL NULL, and the UNIQUE constraint on github_id only
// applies to non-NULL values, so any number of password accounts can coexist.
//
// The `db:"..."` tags are read by sqlx when scanning rows into the struct.
type User struct {
	ID           string      `json:"id"          db:"id"`
	Username     string      `json:"username"    db:"username"`
	Name         string      `json:"name"        db:"name"`
	PasswordHash string      `json:"-"           db:"password_hash"` // never serialised
	GitHubID     *int64      `json:"-"           db:"github_id"`
	Preferences  Preferences `json:"preferences" db:"preferences"`
	StudyTime    int64       `json:"study_time"  db:"study_time"`
	DaysLogged   DayList     `json:"-"           db:"days_logged"`
	CreatedAt    time.Time   `json:"createdAt"   db:"created_at"`
	UpdatedAt    time.Time   `json:"updatedAt"   db:"updated_at"`
}

// NameOrNil returns the stored name for JSON output. An account registered
// without a name has none, which the API reports as null.
func (u *User) NameOrNil() *string {
	if u.Name == "" {
		return nil
	}
	name := u.Name
	return &name
}

// HasPassword reports whether the account can sign in with a password.
// Accounts created through GitHub sign-in have no password hash.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
