// Package service holds the business rules of the application.
//
// Each service sits between the HTTP handlers and the repository:
//
//	handler (HTTP) → service (rules) → repository.UserRepository (DB)
//
// Services never see an http.Request or a status code, and never touch SQL.
// They return apperror values that the handler layer maps to HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/study-timer/internal/apperror"
	"github.com/sakif/study-timer/internal/auth"
	"github.com/sakif/study-timer/internal/model"
	"github.com/sakif/study-timer/internal/repository"
)

const (
	maxUsernameLength = 150
	maxNameLength     = 255

	msgRequired        = "This field is required."
	msgUsernameInvalid = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgUsernameTaken   = "A user with that username already exists."
	msgBadCredentials  = "No active account found with the given credentials"
)

// AccountService handles registration, sign-in and profile lookup.
//
// DEPENDENCIES (injected via NewAccountService):
//   - users      repository.UserRepository  → read/write accounts
//   - tokens     *auth.TokenService         → issue access/refresh JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger
type AccountService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// RegisterInput is the registration request. Name is optional.
type RegisterInput struct {
	Username string
	Password string
	Name     string
}

// TokenPair is returned by Login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AuthResult bundles an account with a freshly issued access token, for the
// GitHub callback which sets the token as a cookie.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register validates the input and creates a password account with empty
// preferences, zero study time and no logged days.
//
// All field problems are reported together (apperror.FieldErrors), so the
// client can show every message at once.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	var fe apperror.FieldErrors

	username := in.Username
	switch {
	case username == "":
		fe.Add("username", msgRequired)
	case utf8.RuneCountInString(username) > maxUsernameLength:
		fe.Add("username", fmt.Sprintf("Ensure this field has no more than %d characters.", maxUsernameLength))
	case !validUsername(username):
		fe.Add("username", msgUsernameInvalid)
	default:
		exists, err := s.users.UsernameExists(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("service/account: checking username: %w", err)
		}
		if exists {
			fe.Add("username", msgUsernameTaken)
		}
	}

	switch {
	case in.Password == "":
		fe.Add("password", msgRequired)
	case len(in.Password) > auth.MaxPasswordBytes:
		fe.Add("password", fmt.Sprintf("Ensure this field has no more than %d bytes.", auth.MaxPasswordBytes))
	}

	name := strings.TrimSpace(in.Name)
	if utf8.RuneCountInString(name) > maxNameLength {
		fe.Add("name", fmt.Sprintf("Ensure this field has no more than %d characters.", maxNameLength))
	}

	if err := fe.Err(); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/account: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Name:         name,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration of the same name.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("username", msgUsernameTaken)
		}
		return nil, fmt.Errorf("service/account: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login checks a username/password pair and issues an access and a refresh
// token. Unknown users, GitHub-only accounts and wrong passwords all produce
// the same 401 message.
func (s *AccountService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if username == "" || password == "" {
		var fe apperror.FieldErrors
		if username == "" {
			fe.Add("username", msgRequired)
		}
		if password == "" {
			fe.Add("password", msgRequired)
		}
		return nil, fe.Err()
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("service/account: loading user %q: %w", username, err)
	}

	if !user.HasPassword() {
		return nil, apperror.Unauthorized(msgBadCredentials)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("login failed: wrong password", slog.String("userID", user.ID))
			return nil, apperror.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("service/account: verifying password: %w", err)
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new access token. The account
// must still exist.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperror.ValidationFailed("refresh", msgRequired)
	}

	userID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return "", apperror.Unauthorized("Token is invalid or expired")
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized("User not found")
		}
		return "", fmt.Errorf("service/account: loading user %s: %w", userID, err)
	}

	access, err := s.tokens.Generate(userID)
	if err != nil {
		return "", fmt.Errorf("service/account: generating access token: %w", err)
	}
	return access, nil
}

// LoginOrRegisterGitHub finds the account linked to a GitHub user, creating
// one on first sign-in, and issues an access token for it.
//
// New accounts take the GitHub login as username. If a password account
// already owns that name, an xid suffix makes it unique.
func (s *AccountService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/account: GitHub user must not be nil")
	}

	user, err := s.users.GetByGitHubID(ctx, ghUser.ID)
	switch {
	case err == nil:
		// existing link
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.createGitHubAccount(ctx, ghUser)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service/account: loading user (githubID=%d): %w", ghUser.ID, err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.Int64("githubID", ghUser.ID),
	)

	return &AuthResult{User: user, Token: token}, nil
}

func (s *AccountService) createGitHubAccount(ctx context.Context, ghUser *auth.GitHubUser) (*model.User, error) {
	username := ghUser.Login
	if !validUsername(username) || utf8.RuneCountInString(username) > maxUsernameLength-21 {
		username = "github"
	}

	taken, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/account: checking username: %w", err)
	}
	if taken {
		username = username + "-" + xid.New().String()
	}

	ghID := ghUser.ID
	user := &model.User{
		Username: username,
		Name:     strings.TrimSpace(ghUser.Name),
		GitHubID: &ghID,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// A concurrent callback for the same GitHub user got there first.
			existing, getErr := s.users.GetByGitHubID(ctx, ghUser.ID)
			if getErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("service/account: creating GitHub user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user registered via GitHub",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// UsernameExists reports whether username is taken. An empty username is a
// MissingParameter error.
func (s *AccountService) UsernameExists(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, apperror.MissingParameter("username", "Username is required.")
	}

	exists, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return false, fmt.Errorf("service/account: checking username: %w", err)
	}
	return exists, nil
}

// Profile returns the account for the authenticated user.
func (s *AccountService) Profile(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("service/account: user ID must not be empty")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching user %s: %w", userID, err)
	}
	return user, nil
}

func (s *AccountService) issuePair(userID string) (*TokenPair, error) {
	access, err := s.tokens.Generate(userID)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating access token: %w", err)
	}
	refresh, err := s.tokens.GenerateRefresh(userID)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating refresh token: %w", err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// validUsername allows letters, digits and the characters @ . + - _
func validUsername(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '@', '.', '+', '-', '_':
			continue
		}
		return false
	}
	return true
}
