package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sakif/study-timer/internal/apperror"
	"github.com/sakif/study-timer/internal/model"
	"github.com/sakif/study-timer/internal/repository"
)

const msgInvalidPreferences = "Invalid preferences data."

// MergePreferences applies a partial preference payload to current and
// returns the resulting document. current is not modified.
//
// incoming must be a JSON object, otherwise an InvalidPayload error is
// returned and nothing is applied. Each recognised key is then handled on its
// own; a key that is absent, or present with the wrong shape, leaves the
// stored value as it was:
//
//	timers, sound       non-empty object ({} is ignored)
//	theme, clockFont    non-empty string
//	displayGreeting     any value except null, so false is stored
//
// Keys other than these five are never written.
func MergePreferences(current model.Preferences, incoming json.RawMessage) (model.Preferences, error) {
	if !model.IsJSONObject(incoming) {
		return current, apperror.InvalidPayload(msgInvalidPreferences)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(incoming, &fields); err != nil {
		return current, apperror.InvalidPayload(msgInvalidPreferences)
	}

	out := current.Clone()

	if v, ok := nonEmptyObject(fields[model.PrefTimers]); ok {
		out.Timers = v
	}
	if v, ok := nonEmptyObject(fields[model.PrefSound]); ok {
		out.Sound = v
	}
	if s, ok := nonEmptyString(fields[model.PrefTheme]); ok {
		out.Theme = &s
		delete(out.Extra, model.PrefTheme)
	}
	if s, ok := nonEmptyString(fields[model.PrefClockFont]); ok {
		out.ClockFont = &s
		delete(out.Extra, model.PrefClockFont)
	}
	if v, ok := fields[model.PrefDisplayGreeting]; ok && !isNull(v) {
		out.DisplayGreeting = compact(v)
	}

	return out, nil
}

func nonEmptyObject(raw json.RawMessage) (json.RawMessage, bool) {
	if !model.IsJSONObject(raw) {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) == 0 {
		return nil, false
	}
	return compact(raw), true
}

func nonEmptyString(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// compact returns a whitespace-free copy of raw, which is already known to be
// valid JSON.
func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return buf.Bytes()
}

// PreferenceService persists preference updates.
type PreferenceService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewPreferenceService creates a PreferenceService.
func NewPreferenceService(users repository.UserRepository, logger *slog.Logger) *PreferenceService {
	return &PreferenceService{users: users, logger: logger}
}

// UpdatePreferences merges payload into the user's stored document, saves the
// account once and returns the complete updated document. An invalid payload
// is rejected before anything is loaded or written.
func (s *PreferenceService) UpdatePreferences(ctx context.Context, userID string, payload json.RawMessage) (model.Preferences, error) {
	if !model.IsJSONObject(payload) {
		return model.Preferences{}, apperror.InvalidPayload(msgInvalidPreferences)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("service/preferences: fetching user %s: %w", userID, err)
	}

	merged, err := MergePreferences(user.Preferences, payload)
	if err != nil {
		return model.Preferences{}, err
	}

	user.Preferences = merged
	if err := s.users.Save(ctx, user); err != nil {
		return model.Preferences{}, fmt.Errorf("service/preferences: saving user %s: %w", userID, err)
	}

	s.logger.Debug("preferences updated",
		slog.String("userID", userID),
		slog.Any("keys", merged.Keys()),
	)

	return merged, nil
}
