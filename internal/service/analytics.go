package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/sakif/study-timer/internal/model"
	"github.com/sakif/study-timer/internal/repository"
)

// DayLayout is the format of the entries in User.DaysLogged.
const DayLayout = "2006-01-02"

// StudyStats is what the analytics endpoints report: the running total and
// the number (not the list) of distinct days with logged study.
type StudyStats struct {
	StudyTime  int64 `json:"study_time"`
	DaysLogged int   `json:"days_logged"`
}

// ParseStudyDelta reads the study_time value of an accumulation request.
//
// Only a JSON integer literal greater than zero that fits in an int64 is
// accepted. Strings ("30"), fractions (30.5, 30.0), exponents (3e1),
// booleans, null and missing values all return ok == false; they are not
// errors, the delta is simply ignored.
func ParseStudyDelta(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}

	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}

	// ParseInt rejects "30.0" and "3e1", which json.Number keeps verbatim.
	n, err := strconv.ParseInt(num.String(), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Accumulate returns the analytics state after one accumulation request.
//
// delta is added only when it is > 0; the total saturates at math.MaxInt64
// rather than wrapping, so it never decreases. today is appended only if it
// is not already in days. The input slice is never modified.
func Accumulate(studyTime int64, days model.DayList, delta int64, today string) (int64, model.DayList) {
	if delta > 0 {
		if studyTime > math.MaxInt64-delta {
			studyTime = math.MaxInt64
		} else {
			studyTime += delta
		}
	}

	out := make(model.DayList, len(days), len(days)+1)
	copy(out, days)
	if !out.Contains(today) {
		out = append(out, today)
	}

	return studyTime, out
}

// AnalyticsService reads and records study time.
type AnalyticsService struct {
	users    repository.UserRepository
	location *time.Location
	logger   *slog.Logger

	now func() time.Time
}

// NewAnalyticsService creates an AnalyticsService. loc decides which calendar
// day a request falls on; nil means UTC.
func NewAnalyticsService(users repository.UserRepository, loc *time.Location, logger *slog.Logger) *AnalyticsService {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsService{
		users:    users,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source and returns s. Used by tests that need
// a fixed "today".
func (s *AnalyticsService) WithClock(now func() time.Time) *AnalyticsService {
	s.now = now
	return s
}

// Today returns the current date string in the service's time zone.
func (s *AnalyticsService) Today() string {
	return s.now().In(s.location).Format(DayLayout)
}

// Get returns the user's current stats. It never writes.
func (s *AnalyticsService) Get(ctx context.Context, userID string) (StudyStats, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return StudyStats{}, fmt.Errorf("service/analytics: fetching user %s: %w", userID, err)
	}
	return StudyStats{StudyTime: user.StudyTime, DaysLogged: len(user.DaysLogged)}, nil
}

// Record applies one accumulation request: add the delta if valid, mark today
// as logged, save.
//
// The account is always saved, even when the delta was ignored, so a request
// with a bad delta still records the day.
//
// CONCURRENCY:
// This is load, modify, save with no lock or version check. Two concurrent
// Record calls for the same user can both load the same row, and the second
// Save overwrites the first, losing its delta. Accepted because only the user
// themselves writes their own analytics.
func (s *AnalyticsService) Record(ctx context.Context, userID string, rawDelta json.RawMessage) (StudyStats, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return StudyStats{}, fmt.Errorf("service/analytics: fetching user %s: %w", userID, err)
	}

	delta, ok := ParseStudyDelta(rawDelta)
	if !ok && len(bytes.TrimSpace(rawDelta)) > 0 {
		s.logger.Debug("ignoring invalid study_time delta",
			slog.String("userID", userID),
			slog.String("value", string(rawDelta)),
		)
	}

	user.StudyTime, user.DaysLogged = Accumulate(user.StudyTime, user.DaysLogged, delta, s.Today())

	if err := s.users.Save(ctx, user); err != nil {
		return StudyStats{}, fmt.Errorf("service/analytics: saving user %s: %w", userID, err)
	}

	return StudyStats{StudyTime: user.StudyTime, DaysLogged: len(user.DaysLogged)}, nil
}
