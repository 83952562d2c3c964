package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/study-timer/internal/service"
)

// AnalyticsHandler serves the study-time counter.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	logger    *slog.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(analytics *service.AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: logger}
}

type recordResponse struct {
	Message string `json:"message"`
	service.StudyStats
}

// HandleGet returns the total study time and the number of logged days.
//
// HTTP: GET /user/analytics/
// Auth: Required
//
// Response: {"study_time": 60, "days_logged": 2}
func (h *AnalyticsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrFail(w, r)
	if !ok {
		return
	}

	stats, err := h.analytics.Get(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandleRecord adds study time and marks today as logged.
//
// HTTP: POST /user/analytics/
// Auth: Required
// REQUEST BODY: {"study_time": 25}
//
// A missing, non-integer or non-positive study_time is not an error: the
// request still succeeds and today is still logged. Only a body that is not
// a JSON object is rejected.
func (h *AnalyticsHandler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrFail(w, r)
	if !ok {
		return
	}

	req, err := decodeObject(w, r)
	if err != nil {
		h.logger.Warn("invalid analytics JSON",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeInvalidJSON(w)
		return
	}

	stats, err := h.analytics.Record(r.Context(), userID, req["study_time"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, recordResponse{
		Message:    "Study time updated successfully.",
		StudyStats: stats,
	})
}
