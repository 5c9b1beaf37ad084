package models

import "time"

// ── Core Gamification Structs ─────────────────────────────

// UserPoints is the per-user running total of points plus level progress.
// Version backs the optimistic lock on the read-modify-write in the ledger.
type UserPoints struct {
	UserID        int64     `json:"user_id"`
	TotalPoints   int64     `json:"total_points"`
	CurrentLevel  int       `json:"current_level"`
	CurrentXP     int       `json:"current_xp"`
	XPToNextLevel int       `json:"xp_to_next_level"`
	Version       int64     `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserLevel is one append-only audit row per level-up event.
type UserLevel struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Level      int       `json:"level"`
	XPEarned   int64     `json:"xp_earned"`
	AchievedAt time.Time `json:"achieved_at"`
}

type LoginStreak struct {
	UserID        int64      `json:"user_id"`
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	LastLoginDate *time.Time `json:"last_login_date"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Badge is catalog data. Criteria holds the JSON rule descriptor evaluated
// by the badge evaluator; the catalog itself is managed by admin tooling.
type Badge struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Points      int    `json:"points"`
	Criteria    string `json:"criteria"`
	Category    string `json:"category"`
	Rarity      string `json:"rarity"`
}

type EarnedBadge struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	BadgeID  int64     `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

type LeaderboardEntry struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	CourseID    *int64     `json:"course_id,omitempty"`
	Period      string     `json:"period"`
	Points      int64      `json:"points"`
	Rank        int        `json:"rank"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

type PointEvent struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Reason    string    `json:"reason"`
	Points    int       `json:"points"`
	XP        int       `json:"xp"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Request Types ─────────────────────────────────────────

type AwardPointsRequest struct {
	Points   int                    `json:"points"`
	XP       int                    `json:"xp"`
	Reason   string                 `json:"reason"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ── Response Types ────────────────────────────────────────

type UserGamificationSnapshot struct {
	TotalPoints   int64             `json:"total_points"`
	CurrentLevel  int               `json:"current_level"`
	CurrentXP     int               `json:"current_xp"`
	XPToNextLevel int               `json:"xp_to_next_level"`
	LoginStreak   int               `json:"login_streak"`
	LongestStreak int               `json:"longest_streak"`
	Badges        []EarnedBadgeInfo `json:"badges"`
}

type EarnedBadgeInfo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	Category    string    `json:"category"`
	Rarity      string    `json:"rarity"`
	EarnedAt    time.Time `json:"earned_at"`
}

type RecordLoginResponse struct {
	Streak        int `json:"streak"`
	PointsAwarded int `json:"points_awarded"`
}

type LeaderboardResponse struct {
	Period  string           `json:"period"`
	Entries []LeaderboardRow `json:"entries"`
}

type LeaderboardRow struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	Points      int64  `json:"points"`
}

// ── Period Constants ──────────────────────────────────────

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodAllTime = "all_time"
)

// Periods lists every leaderboard window, in upsert order.
var Periods = []string{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime}

// ValidPeriod reports whether s names a leaderboard period.
func ValidPeriod(s string) bool {
	switch s {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime:
		return true
	}
	return false
}

// ── Award Reason Constants ────────────────────────────────

const (
	ReasonCourseCompleted     = "course_completed"
	ReasonLessonCompleted     = "lesson_completed"
	ReasonQuizPassed          = "quiz_passed"
	ReasonAssignmentSubmitted = "assignment_submitted"
	ReasonForumPost           = "forum_post"
	ReasonDailyLogin          = "daily_login"
	ReasonBadgeEarned         = "badge_earned"
)
