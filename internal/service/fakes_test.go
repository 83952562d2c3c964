package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/study-timer/internal/apperror"
	"github.com/sakif/study-timer/internal/auth"
	"github.com/sakif/study-timer/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository.
//
// It stores and returns copies, like a real database: a service that mutates
// the *model.User it loaded does not change what is stored until it calls
// Save.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]model.User
	nextID int

	// set to a non-nil error to simulate a database failure
	createErr error
	getErr    error
	saveErr   error

	// beforeSave, when set, runs at the start of every Save, before the row
	// is written. Tests use it to interleave a second request.
	beforeSave func(u *model.User)

	saves int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]model.User), nextID: 1}
}

func copyUser(u model.User) model.User {
	u.Preferences = u.Preferences.Clone()
	u.DaysLogged = append(model.DayList{}, u.DaysLogged...)
	if u.GitHubID != nil {
		id := *u.GitHubID
		u.GitHubID = &id
	}
	return u
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.users {
		if existing.Username == user.Username {
			return apperror.Conflict("user", "username")
		}
		if user.GitHubID != nil && existing.GitHubID != nil && *existing.GitHubID == *user.GitHubID {
			return apperror.Conflict("user", "github_id")
		}
	}

	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	if user.DaysLogged == nil {
		user.DaysLogged = model.DayList{}
	}
	f.users[user.ID] = copyUser(*user)
	return nil
}

func (f *fakeUserRepo) find(match func(model.User) bool, key string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if match(u) {
			c := copyUser(u)
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", key)
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return f.find(func(u model.User) bool { return u.ID == id }, id)
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return f.find(func(u model.User) bool { return u.Username == username }, username)
}

func (f *fakeUserRepo) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return f.find(func(u model.User) bool {
		return u.GitHubID != nil && *u.GitHubID == githubID
	}, fmt.Sprint(githubID))
}

func (f *fakeUserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	if f.getErr != nil {
		return false, f.getErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) Save(ctx context.Context, user *model.User) error {
	if f.beforeSave != nil {
		f.beforeSave(user)
	}
	if f.saveErr != nil {
		return f.saveErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	stored.Name = user.Name
	stored.Preferences = user.Preferences
	stored.StudyTime = user.StudyTime
	stored.DaysLogged = user.DaysLogged
	stored.UpdatedAt = time.Now().UTC()
	f.users[user.ID] = copyUser(stored)
	f.saves++
	return nil
}

// stored returns a copy of the row as the repository currently holds it.
func (f *fakeUserRepo) stored(t *testing.T, id string) model.User {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		t.Fatalf("user %s not in repository", id)
	}
	return copyUser(u)
}

// seedUser inserts an account directly and returns its ID.
func (f *fakeUserRepo) seedUser(t *testing.T, u model.User) string {
	t.Helper()
	if err := f.Create(context.Background(), &u); err != nil {
		t.Fatalf("seeding user %q: %v", u.Username, err)
	}
	return u.ID
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// newTestAccountService wires an AccountService to repo. bcrypt cost 4 is the
// minimum and keeps the tests fast.
func newTestAccountService(t *testing.T, repo *fakeUserRepo) (*AccountService, *auth.TokenService) {
	t.Helper()
	ts := newTestTokens(t)
	return NewAccountService(repo, ts, auth.NewPasswordServiceWithCost(4), discardLogger()), ts
}

// fixedClock returns a now func pinned to the given date at noon UTC.
func fixedClock(day string) func() time.Time {
	d, err := time.Parse(DayLayout, day)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return d.Add(12 * time.Hour) }
}
