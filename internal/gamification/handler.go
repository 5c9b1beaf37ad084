package gamification

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/learnhub/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func getUserID(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value("user_id").(int64)
	return uid, ok
}

// ── Gamification State ──────────────────────────────────

func (h *Handler) GetGamification(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.GetUserGamification(userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get gamification state"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Login ───────────────────────────────────────────────

func (h *Handler) RecordLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.RecordLogin(userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to record login"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Point Awards ────────────────────────────────────────

// AwardPoints is the entry point the rest of the platform (enrollment,
// quizzes, assignments, forum) calls when a point-earning event happens.
func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.AwardPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "reason is required"})
		return
	}
	if req.Points < 0 || req.XP < 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "points and xp must be non-negative"})
		return
	}

	resp, err := h.service.AwardPoints(userID, req.Points, req.XP, req.Reason, req.Metadata)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to award points"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Leaderboard ─────────────────────────────────────────

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := getUserID(r); !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	query := r.URL.Query()
	period := query.Get("period")
	if period == "" {
		period = models.PeriodWeekly
	}
	if !models.ValidPeriod(period) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "period must be daily, weekly, monthly, or all_time"})
		return
	}

	var courseID *int64
	if raw := query.Get("course_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid course ID"})
			return
		}
		courseID = &id
	}

	limit := intQueryParam(query, "limit", defaultLeaderboardLimit)

	resp, err := h.service.GetLeaderboard(r.Context(), period, courseID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get leaderboard"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Helpers ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
