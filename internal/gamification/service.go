package gamification

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/learnhub/backend/internal/models"
)

// maxAwardRetries bounds the optimistic-lock retry loop on the ledger's
// read-modify-write. Conflicts only happen when two events for the same
// user land at once, so a short loop is enough.
const maxAwardRetries = 3

// defaultLeaderboardLimit caps leaderboard pages when the caller gives none.
const defaultLeaderboardLimit = 100

// Storage is what the service needs from the durable store. *Store is the
// SQL implementation; tests substitute an in-memory one.
type Storage interface {
	GetOrCreateUserPoints(userID int64) (*models.UserPoints, error)
	UpdateUserPoints(up *models.UserPoints) (bool, error)
	InsertUserLevel(userID int64, level int, xpEarned int64) error
	LogPointEvent(userID int64, reason string, points, xp int, metadata map[string]interface{}) error

	GetLoginStreak(userID int64) (*models.LoginStreak, error)
	GetOrCreateLoginStreak(userID int64) (*models.LoginStreak, error)
	UpdateLoginStreak(ls *models.LoginStreak) error

	ListBadges() ([]models.Badge, error)
	EarnedBadgeIDs(userID int64) (map[int64]bool, error)
	AwardBadge(userID, badgeID int64) (bool, error)
	UserBadges(userID int64) ([]models.EarnedBadgeInfo, error)

	UpsertLeaderboardEntry(userID int64, courseID *int64, period string, points int64, periodStart time.Time, periodEnd *time.Time) error
	PeriodEntries(period string, periodStart time.Time, courseID *int64) ([]models.LeaderboardEntry, error)
	UpdateEntryRank(entryID int64, rank int) error
	Leaderboard(period string, periodStart time.Time, courseID *int64, limit int) ([]models.LeaderboardRow, error)
}

type Service struct {
	store  Storage
	cache  *LeaderboardCache
	events EventPublisher
	now    func() time.Time
}

// NewService wires the gamification core. cache may be nil; events may be
// nil, in which case events go to the process log.
func NewService(store Storage, cache *LeaderboardCache, events EventPublisher) *Service {
	if events == nil {
		events = LogPublisher{}
	}
	return &Service{
		store:  store,
		cache:  cache,
		events: events,
		now:    time.Now,
	}
}

// pendingAward is one entry on the flattened award queue. Badge rewards are
// queued instead of re-entering AwardPoints, so a single external event
// drains iteratively and updates the leaderboard exactly once.
type pendingAward struct {
	points   int
	xp       int
	reason   string
	metadata map[string]interface{}
}

// ── Points Ledger ───────────────────────────────────────

// AwardPoints applies a point/XP award for an external event, resolving any
// level-ups, then evaluates badges and refreshes the leaderboards. The
// primary write's error propagates; badge and leaderboard failures are
// logged and swallowed so they never undo a successful award.
func (s *Service) AwardPoints(userID int64, points, xp int, reason string, metadata map[string]interface{}) (*models.UserGamificationSnapshot, error) {
	queue := []pendingAward{{points: points, xp: xp, reason: reason, metadata: metadata}}

	var up *models.UserPoints
	for i := 0; len(queue) > 0; i++ {
		award := queue[0]
		queue = queue[1:]

		applied, err := s.applyAward(userID, award)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			// Badge reward follow-ups are best-effort.
			log.Printf("[gamification] follow-up award (%s) for user %d failed: %v", award.reason, userID, err)
			continue
		}
		up = applied

		newBadges, err := s.evaluateBadges(userID, award.reason, award.metadata, up)
		if err != nil {
			log.Printf("[gamification] badge evaluation for user %d failed: %v", userID, err)
		}
		for _, b := range newBadges {
			if b.Points <= 0 {
				continue
			}
			queue = append(queue, pendingAward{
				points:   b.Points,
				xp:       b.Points,
				reason:   models.ReasonBadgeEarned,
				metadata: map[string]interface{}{"badge_id": b.ID, "badge": b.Name},
			})
		}
	}

	if err := s.updateLeaderboards(userID, up.TotalPoints, courseIDFromMetadata(metadata)); err != nil {
		log.Printf("[gamification] leaderboard update for user %d failed: %v", userID, err)
	}

	return s.snapshot(userID, up)
}

// applyAward performs the versioned read-modify-write for one award,
// running the level-up loop and appending audit rows for each level
// crossed. A version conflict re-reads and retries.
func (s *Service) applyAward(userID int64, a pendingAward) (*models.UserPoints, error) {
	for attempt := 0; attempt < maxAwardRetries; attempt++ {
		up, err := s.store.GetOrCreateUserPoints(userID)
		if err != nil {
			return nil, fmt.Errorf("get user points: %w", err)
		}

		up.TotalPoints += int64(a.points)
		up.CurrentXP += a.xp

		// Thresholds are strictly positive, so this terminates. A single
		// large award may cross several levels.
		var crossed []int
		for up.CurrentXP >= up.XPToNextLevel {
			up.CurrentXP -= up.XPToNextLevel
			up.CurrentLevel++
			up.XPToNextLevel = XPForLevel(up.CurrentLevel + 1)
			crossed = append(crossed, up.CurrentLevel)
		}

		ok, err := s.store.UpdateUserPoints(up)
		if err != nil {
			return nil, fmt.Errorf("update user points: %w", err)
		}
		if !ok {
			continue // lost the race, re-read and recompute
		}

		for _, level := range crossed {
			if err := s.store.InsertUserLevel(userID, level, TotalXPForLevel(level)); err != nil {
				log.Printf("[gamification] failed to record level %d for user %d: %v", level, userID, err)
			}
			s.events.Publish(EventLevelUp, userID, map[string]interface{}{"level": level})
		}

		if err := s.store.LogPointEvent(userID, a.reason, a.points, a.xp, a.metadata); err != nil {
			log.Printf("[gamification] failed to log point event for user %d: %v", userID, err)
		}

		return up, nil
	}
	return nil, fmt.Errorf("award points: concurrent update conflict for user %d", userID)
}

// ── Login Streak Tracker ────────────────────────────────

// RecordLogin classifies a login against the user's last login day and
// awards the daily bonus through the ledger. Repeated calls on the same
// calendar day are a no-op.
func (s *Service) RecordLogin(userID int64) (*models.RecordLoginResponse, error) {
	ls, err := s.store.GetOrCreateLoginStreak(userID)
	if err != nil {
		return nil, fmt.Errorf("get login streak: %w", err)
	}

	today := midnight(s.now())
	bonus := DailyLoginXP

	if ls.LastLoginDate != nil {
		last := midnight(*ls.LastLoginDate)
		switch {
		case last.Equal(today):
			// Already recorded today.
			return &models.RecordLoginResponse{Streak: ls.CurrentStreak}, nil
		case last.Equal(today.AddDate(0, 0, -1)):
			ls.CurrentStreak++
			bonus = DailyLoginXP + ls.CurrentStreak*StreakBonusPerDay
		default:
			ls.CurrentStreak = 1
		}
	} else {
		ls.CurrentStreak = 1
	}

	if ls.CurrentStreak > ls.LongestStreak {
		ls.LongestStreak = ls.CurrentStreak
	}
	ls.LastLoginDate = &today

	if err := s.store.UpdateLoginStreak(ls); err != nil {
		return nil, fmt.Errorf("update login streak: %w", err)
	}

	if _, err := s.AwardPoints(userID, bonus, bonus, models.ReasonDailyLogin, map[string]interface{}{"streak": ls.CurrentStreak}); err != nil {
		return nil, fmt.Errorf("award login bonus: %w", err)
	}

	return &models.RecordLoginResponse{Streak: ls.CurrentStreak, PointsAwarded: bonus}, nil
}

// ── Badge Evaluator ─────────────────────────────────────

// evaluateBadges scans the catalog for un-earned badges whose criteria now
// match and awards them. The unique constraint on (user, badge) makes the
// insert race-safe; only rows actually inserted are reported back.
func (s *Service) evaluateBadges(userID int64, reason string, metadata map[string]interface{}, up *models.UserPoints) ([]models.Badge, error) {
	catalog, err := s.store.ListBadges()
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	earned, err := s.store.EarnedBadgeIDs(userID)
	if err != nil {
		return nil, fmt.Errorf("get earned badges: %w", err)
	}

	streak := 0
	if ls, err := s.store.GetLoginStreak(userID); err == nil && ls != nil {
		streak = ls.CurrentStreak
	}

	var awarded []models.Badge
	for _, b := range catalog {
		if earned[b.ID] {
			continue
		}
		crit, err := ParseCriterion(b.Criteria)
		if err != nil {
			// Malformed catalog rows are never awarded.
			continue
		}
		if !crit.Matches(reason, metadata, up, streak) {
			continue
		}
		inserted, err := s.store.AwardBadge(userID, b.ID)
		if err != nil {
			log.Printf("[gamification] failed to award badge %q to user %d: %v", b.Name, userID, err)
			continue
		}
		if !inserted {
			continue
		}
		s.events.Publish(EventBadgeEarned, userID, map[string]interface{}{"badge_id": b.ID, "badge": b.Name})
		awarded = append(awarded, b)
	}
	return awarded, nil
}

// ── Leaderboard Ranker ──────────────────────────────────

// updateLeaderboards upserts the user's entry for every period window and
// recomputes dense ranks across each affected scope. When the triggering
// event carries a course_id, the course-scoped boards are refreshed too.
func (s *Service) updateLeaderboards(userID int64, totalPoints int64, courseID *int64) error {
	now := s.now()
	scopes := []*int64{nil}
	if courseID != nil {
		scopes = append(scopes, courseID)
	}

	for _, period := range models.Periods {
		start, end := PeriodWindow(period, now)
		for _, scope := range scopes {
			if err := s.store.UpsertLeaderboardEntry(userID, scope, period, totalPoints, start, end); err != nil {
				return fmt.Errorf("upsert %s entry: %w", period, err)
			}
			if err := s.recomputeRanks(period, start, scope); err != nil {
				return fmt.Errorf("recompute %s ranks: %w", period, err)
			}
		}
	}
	return nil
}

// recomputeRanks assigns dense ranks (1, 2, 3, ...) by points descending
// over the full entry set for one period window. The sort is stable, so
// ties keep their query order. O(n log n) per award — fine at current user
// counts, revisit if boards grow large.
func (s *Service) recomputeRanks(period string, periodStart time.Time, courseID *int64) error {
	entries, err := s.store.PeriodEntries(period, periodStart, courseID)
	if err != nil {
		return err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Points > entries[j].Points
	})
	for i, e := range entries {
		rank := i + 1
		if e.Rank == rank {
			continue
		}
		if err := s.store.UpdateEntryRank(e.ID, rank); err != nil {
			return err
		}
	}
	return nil
}

// GetLeaderboard reads precomputed entries for the period's current window,
// through the cache when one is wired.
func (s *Service) GetLeaderboard(ctx context.Context, period string, courseID *int64, limit int) (*models.LeaderboardResponse, error) {
	if !models.ValidPeriod(period) {
		return nil, fmt.Errorf("invalid period %q", period)
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}

	if cached, ok := s.cache.Get(ctx, period, courseID, limit); ok {
		return cached, nil
	}

	start, end := PeriodWindow(period, s.now())
	rows, err := s.store.Leaderboard(period, start, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	if rows == nil {
		rows = []models.LeaderboardRow{}
	}

	resp := &models.LeaderboardResponse{
		Period:  periodLabel(period, start, end),
		Entries: rows,
	}
	if err := s.cache.Set(ctx, period, courseID, limit, resp); err != nil {
		log.Printf("[gamification] leaderboard cache write failed: %v", err)
	}
	return resp, nil
}

// ── Snapshot ────────────────────────────────────────────

// GetUserGamification returns the user's full gamification state, lazily
// creating the points row for first-time users.
func (s *Service) GetUserGamification(userID int64) (*models.UserGamificationSnapshot, error) {
	up, err := s.store.GetOrCreateUserPoints(userID)
	if err != nil {
		return nil, fmt.Errorf("get user points: %w", err)
	}
	return s.snapshot(userID, up)
}

func (s *Service) snapshot(userID int64, up *models.UserPoints) (*models.UserGamificationSnapshot, error) {
	badges, err := s.store.UserBadges(userID)
	if err != nil {
		log.Printf("[gamification] failed to load badges for user %d: %v", userID, err)
	}
	if badges == nil {
		badges = []models.EarnedBadgeInfo{}
	}

	snap := &models.UserGamificationSnapshot{
		TotalPoints:   up.TotalPoints,
		CurrentLevel:  up.CurrentLevel,
		CurrentXP:     up.CurrentXP,
		XPToNextLevel: up.XPToNextLevel,
		Badges:        badges,
	}
	if ls, err := s.store.GetLoginStreak(userID); err == nil && ls != nil {
		snap.LoginStreak = ls.CurrentStreak
		snap.LongestStreak = ls.LongestStreak
	}
	return snap, nil
}

// courseIDFromMetadata extracts an optional course scope from event
// metadata for per-course leaderboards.
func courseIDFromMetadata(metadata map[string]interface{}) *int64 {
	if metadata == nil {
		return nil
	}
	if n, ok := metadataInt(metadata, "course_id"); ok && n > 0 {
		id := int64(n)
		return &id
	}
	return nil
}
