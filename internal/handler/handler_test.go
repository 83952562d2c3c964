package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/study-timer/internal/auth"
	"github.com/sakif/study-timer/internal/handler"
	"github.com/sakif/study-timer/internal/model"
	sqliteRepo "github.com/sakif/study-timer/internal/repository/sqlite"
	"github.com/sakif/study-timer/internal/service"
)

// testEnv wires real services to an in-memory SQLite database, so handler
// tests cover the whole request path below the router.
type testEnv struct {
	db        *sqliteRepo.DB
	tokens    *auth.TokenService
	accounts  *service.AccountService
	users     *handler.UserHandler
	analytics *handler.AnalyticsHandler
	tokenH    *handler.TokenHandler

	// today is what the analytics service considers the current date.
	today string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	env := &testEnv{db: db, tokens: ts, today: "2024-01-01"}

	env.accounts = service.NewAccountService(db, ts, auth.NewPasswordServiceWithCost(4), logger)
	prefs := service.NewPreferenceService(db, logger)
	stats := service.NewAnalyticsService(db, time.UTC, logger).WithClock(func() time.Time {
		d, _ := time.Parse("2006-01-02", env.today)
		return d.Add(12 * time.Hour)
	})

	env.users = handler.NewUserHandler(env.accounts, prefs, logger)
	env.analytics = handler.NewAnalyticsHandler(stats, logger)
	env.tokenH = handler.NewTokenHandler(env.accounts, logger)
	return env
}

// createUser registers username with password "pw-123456" and returns its ID.
func (e *testEnv) createUser(t *testing.T, username string) string {
	t.Helper()
	user, err := e.accounts.Register(context.Background(), service.RegisterInput{
		Username: username,
		Password: "pw-123456",
	})
	require.NoError(t, err)
	return user.ID
}

func newRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// asUser marks req as authenticated, as RequireAuth would.
func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithUserID(req.Context(), userID))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

// =========================================================================
// REGISTRATION
// =========================================================================

func TestHandleRegister(t *testing.T) {
	env := newTestEnv(t)

	t.Run("created", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.users.HandleRegister(rr, newRequest(http.MethodPost, "/user/register",
			`{"username":"alice","password":"s3cret","name":"Alice"}`))

		assert.Equal(t, http.StatusCreated, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, "alice", body["username"])
		assert.Equal(t, "Alice", body["name"])
		assert.NotEmpty(t, body["id"])
		assert.NotContains(t, body, "password")
	})

	t.Run("duplicate username", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.users.HandleRegister(rr, newRequest(http.MethodPost, "/user/register",
			`{"username":"alice","password":"other"}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.JSONEq(t, `{
			"error": "validation_error",
			"message": "A user with that username already exists.",
			"fields": {"username": ["A user with that username already exists."]}
		}`, rr.Body.String())
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.users.HandleRegister(rr, newRequest(http.MethodPost, "/user/register", `{}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		fields := decodeBody(t, rr)["fields"].(map[string]any)
		assert.Contains(t, fields, "username")
		assert.Contains(t, fields, "password")
	})

	t.Run("invalid JSON", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.users.HandleRegister(rr, newRequest(http.MethodPost, "/user/register", `{"username":`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("non-string field", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.users.HandleRegister(rr, newRequest(http.MethodPost, "/user/register",
			`{"username":42,"password":"s3cret"}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "invalid_json", decodeBody(t, rr)["error"])
	})

	t.Run("keys are case-sensitive", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.users.HandleRegister(rr, newRequest(http.MethodPost, "/user/register",
			`{"Username":"bob","PASSWORD":"s3cret"}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		fields := decodeBody(t, rr)["fields"].(map[string]any)
		assert.Contains(t, fields, "username")
		assert.Contains(t, fields, "password")

		exists, err := env.db.UsernameExists(context.Background(), "bob")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("name omitted is null", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.users.HandleRegister(rr, newRequest(http.MethodPost, "/user/register",
			`{"username":"carol","password":"s3cret"}`))

		require.Equal(t, http.StatusCreated, rr.Code)
		body := decodeBody(t, rr)
		assert.Contains(t, body, "name")
		assert.Nil(t, body["name"])
	})
}

// =========================================================================
// PROFILE AND PREFERENCES
// =========================================================================

func TestHandleProfile(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "alice")

	rr := httptest.NewRecorder()
	env.users.HandleProfile(rr, asUser(newRequest(http.MethodGet, "/user/", ""), id))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"username":"alice","name":null,"preferences":{}}`, rr.Body.String())
}

func TestHandleProfile_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.users.HandleProfile(rr, newRequest(http.MethodGet, "/user/", ""))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleUpdatePreferences(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "alice")

	put := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		env.users.HandleUpdatePreferences(rr, asUser(newRequest(http.MethodPut, "/user/", body), id))
		return rr
	}

	rr := put(`{"preferences":{"timers":{"pomodoro":25,"shortBreak":5,"longBreak":10},"displayGreeting":true}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// theme applied, empty timers ignored
	rr = put(`{"preferences":{"theme":"dark","timers":{}}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"message": "Preferences updated successfully.",
		"preferences": {
			"timers": {"pomodoro":25,"shortBreak":5,"longBreak":10},
			"displayGreeting": true,
			"theme": "dark"
		}
	}`, rr.Body.String())

	// false is a value, not an absence
	rr = put(`{"preferences":{"displayGreeting":false}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// null is not a value
	rr = put(`{"preferences":{"displayGreeting":null}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	stored, err := env.db.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.JSONEq(t, `false`, string(stored.Preferences.DisplayGreeting))
	require.NotNil(t, stored.Preferences.Theme)
	assert.Equal(t, "dark", *stored.Preferences.Theme)
}

func TestHandleUpdatePreferences_InvalidPayload(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "alice")

	bodies := []string{
		``,
		`{}`,
		`{"preferences":"dark"}`,
		`{"preferences":[1,2]}`,
		`{"preferences":null}`,
		`{"PREFERENCES":{"theme":"dark"}}`,
		`{"Preferences":{"theme":"dark"}}`,
		`not json`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			rr := httptest.NewRecorder()
			env.users.HandleUpdatePreferences(rr, asUser(newRequest(http.MethodPut, "/user/", body), id))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "Invalid preferences data.", decodeBody(t, rr)["message"])
		})
	}

	stored, err := env.db.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, stored.Preferences.Keys())
}

// =========================================================================
// USERNAME CHECK
// =========================================================================

func TestHandleCheckUsername(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice")

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{"taken", "?username=alice", http.StatusOK, `{"exists":true}`},
		{"free", "?username=bob", http.StatusOK, `{"exists":false}`},
		{"case-sensitive", "?username=Alice", http.StatusOK, `{"exists":false}`},
		{"missing", "", http.StatusBadRequest, `{"error":"Username is required."}`},
		{"empty", "?username=", http.StatusBadRequest, `{"error":"Username is required."}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			env.users.HandleCheckUsername(rr, newRequest(http.MethodGet, "/user/check"+tt.query, ""))

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.JSONEq(t, tt.wantBody, rr.Body.String())
		})
	}
}

// =========================================================================
// ANALYTICS
// =========================================================================

func TestAnalytics_Scenario(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "alice")

	record := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		env.analytics.HandleRecord(rr, asUser(newRequest(http.MethodPost, "/user/analytics/", body), id))
		return rr
	}

	rr := httptest.NewRecorder()
	env.analytics.HandleGet(rr, asUser(newRequest(http.MethodGet, "/user/analytics/", ""), id))
	assert.JSONEq(t, `{"study_time":0,"days_logged":0}`, rr.Body.String())

	rr = record(`{"study_time":30}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Study time updated successfully.","study_time":30,"days_logged":1}`, rr.Body.String())

	rr = record(`{"study_time":20}`)
	assert.JSONEq(t, `{"message":"Study time updated successfully.","study_time":50,"days_logged":1}`, rr.Body.String())

	env.today = "2024-01-02"
	rr = record(`{"study_time":10}`)
	assert.JSONEq(t, `{"message":"Study time updated successfully.","study_time":60,"days_logged":2}`, rr.Body.String())

	rr = httptest.NewRecorder()
	env.analytics.HandleGet(rr, asUser(newRequest(http.MethodGet, "/user/analytics/", ""), id))
	assert.JSONEq(t, `{"study_time":60,"days_logged":2}`, rr.Body.String())
}

func TestAnalytics_IgnoredDeltaStillLogsDay(t *testing.T) {
	for _, body := range []string{`{"study_time":-5}`, `{"study_time":"abc"}`, `{"study_time":2.5}`, `{}`, ``} {
		t.Run(body, func(t *testing.T) {
			env := newTestEnv(t)
			id := env.createUser(t, "alice")

			rr := httptest.NewRecorder()
			env.analytics.HandleRecord(rr, asUser(newRequest(http.MethodPost, "/user/analytics/", body), id))

			require.Equal(t, http.StatusOK, rr.Code)
			body := decodeBody(t, rr)
			assert.EqualValues(t, 0, body["study_time"])
			assert.EqualValues(t, 1, body["days_logged"])

			stored, err := env.db.GetByID(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, model.DayList{"2024-01-01"}, stored.DaysLogged)
		})
	}
}

func TestAnalytics_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "alice")

	rr := httptest.NewRecorder()
	env.analytics.HandleRecord(rr, asUser(newRequest(http.MethodPost, "/user/analytics/", `[30]`), id))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =========================================================================
// TOKENS
// =========================================================================

func TestTokenObtainAndRefresh(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "alice")

	rr := httptest.NewRecorder()
	env.tokenH.HandleObtain(rr, newRequest(http.MethodPost, "/api/token/", `{"username":"alice","password":"pw-123456"}`))
	require.Equal(t, http.StatusOK, rr.Code)

	var pair struct{ Access, Refresh string }
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&pair))

	subject, err := env.tokens.Validate(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, id, subject)

	rr = httptest.NewRecorder()
	env.tokenH.HandleRefresh(rr, newRequest(http.MethodPost, "/api/token/refresh/", `{"refresh":"`+pair.Refresh+`"}`))
	require.Equal(t, http.StatusOK, rr.Code)

	access, ok := decodeBody(t, rr)["access"].(string)
	require.True(t, ok)
	subject, err = env.tokens.Validate(access)
	require.NoError(t, err)
	assert.Equal(t, id, subject)
}

func TestTokenObtain_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice")

	rr := httptest.NewRecorder()
	env.tokenH.HandleObtain(rr, newRequest(http.MethodPost, "/api/token/", `{"username":"alice","password":"nope"}`))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "No active account found with the given credentials", decodeBody(t, rr)["message"])
}

func TestTokenEndpoints_KeysAreCaseSensitive(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "alice")
	refresh, err := env.tokens.GenerateRefresh(id)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	env.tokenH.HandleObtain(rr, newRequest(http.MethodPost, "/api/token/", `{"Username":"alice","Password":"pw-123456"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.NotContains(t, decodeBody(t, rr), "access")

	rr = httptest.NewRecorder()
	env.tokenH.HandleRefresh(rr, newRequest(http.MethodPost, "/api/token/refresh/", `{"Refresh":"`+refresh+`"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.NotContains(t, decodeBody(t, rr), "access")
}

func TestTokenRefresh_RejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	id := env.createUser(t, "alice")
	access, err := env.tokens.Generate(id)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	env.tokenH.HandleRefresh(rr, newRequest(http.MethodPost, "/api/token/refresh/", `{"refresh":"`+access+`"}`))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// =========================================================================
// GITHUB SIGN-IN
// =========================================================================

type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeGitHub) Exchange(ctx context.Context, code string) (*auth.GitHubUser, error) {
	return f.user, f.err
}

func callbackRequest(state, cookieState, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state="+state+query, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: cookieState})
	}
	return req
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestGitHubLogin_SetsStateAndRedirects(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewAuthHandler(&fakeGitHub{}, env.accounts, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	rr := httptest.NewRecorder()
	h.HandleGitHubLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := findCookie(rr, "oauth_state")
	require.NotNil(t, state)
	assert.Contains(t, rr.Header().Get("Location"), "state="+state.Value)
}

func TestGitHubCallback(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("creates account and sets token cookie", func(t *testing.T) {
		env := newTestEnv(t)
		gh := &fakeGitHub{user: &auth.GitHubUser{ID: 42, Login: "octocat", Name: "Octo"}}
		h := handler.NewAuthHandler(gh, env.accounts, "http://localhost:5173/", logger)

		rr := httptest.NewRecorder()
		h.HandleGitHubCallback(rr, callbackRequest("s1", "s1", "&code=abc"))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "http://localhost:5173/", rr.Header().Get("Location"))

		cookie := findCookie(rr, auth.CookieName)
		require.NotNil(t, cookie)
		userID, err := env.tokens.Validate(cookie.Value)
		require.NoError(t, err)

		user, err := env.db.GetByGitHubID(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, user.ID, userID)
		assert.Equal(t, "octocat", user.Username)
	})

	t.Run("state mismatch", func(t *testing.T) {
		env := newTestEnv(t)
		h := handler.NewAuthHandler(&fakeGitHub{}, env.accounts, "", logger)

		rr := httptest.NewRecorder()
		h.HandleGitHubCallback(rr, callbackRequest("s1", "other", "&code=abc"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing state cookie", func(t *testing.T) {
		env := newTestEnv(t)
		h := handler.NewAuthHandler(&fakeGitHub{}, env.accounts, "", logger)

		rr := httptest.NewRecorder()
		h.HandleGitHubCallback(rr, callbackRequest("s1", "", "&code=abc"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("user denied", func(t *testing.T) {
		env := newTestEnv(t)
		h := handler.NewAuthHandler(&fakeGitHub{}, env.accounts, "", logger)

		rr := httptest.NewRecorder()
		h.HandleGitHubCallback(rr, callbackRequest("s1", "s1", "&error=access_denied"))
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/?auth=denied", rr.Header().Get("Location"))
	})

	t.Run("exchange fails", func(t *testing.T) {
		env := newTestEnv(t)
		h := handler.NewAuthHandler(&fakeGitHub{err: errors.New("bad code")}, env.accounts, "", logger)

		rr := httptest.NewRecorder()
		h.HandleGitHubCallback(rr, callbackRequest("s1", "s1", "&code=abc"))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Nil(t, findCookie(rr, auth.CookieName))
	})
}

func TestLogout_ClearsCookie(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewAuthHandler(&fakeGitHub{}, env.accounts, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	rr := httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	cookie := findCookie(rr, auth.CookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}
