package gamification

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/learnhub/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── User Points ─────────────────────────────────────────

func (s *Store) GetOrCreateUserPoints(userID int64) (*models.UserPoints, error) {
	_, err := s.db.Exec(
		`INSERT INTO user_points (user_id, xp_to_next_level) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, XPForLevel(2),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user points: %w", err)
	}

	var up models.UserPoints
	err = s.db.QueryRow(
		`SELECT user_id, total_points, current_level, current_xp, xp_to_next_level,
		        version, created_at, updated_at
		 FROM user_points WHERE user_id = $1`,
		userID,
	).Scan(&up.UserID, &up.TotalPoints, &up.CurrentLevel, &up.CurrentXP, &up.XPToNextLevel,
		&up.Version, &up.CreatedAt, &up.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get user points: %w", err)
	}
	return &up, nil
}

// UpdateUserPoints writes the row back conditioned on the version read,
// reporting false when another writer got there first.
func (s *Store) UpdateUserPoints(up *models.UserPoints) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE user_points SET
		    total_points = $2, current_level = $3, current_xp = $4,
		    xp_to_next_level = $5, version = version + 1, updated_at = NOW()
		 WHERE user_id = $1 AND version = $6`,
		up.UserID, up.TotalPoints, up.CurrentLevel, up.CurrentXP,
		up.XPToNextLevel, up.Version,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}
	up.Version++
	return true, nil
}

func (s *Store) InsertUserLevel(userID int64, level int, xpEarned int64) error {
	_, err := s.db.Exec(
		`INSERT INTO user_levels (user_id, level, xp_earned) VALUES ($1, $2, $3)`,
		userID, level, xpEarned,
	)
	return err
}

func (s *Store) LogPointEvent(userID int64, reason string, points, xp int, metadata map[string]interface{}) error {
	var metaJSON *string
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err == nil {
			str := string(b)
			metaJSON = &str
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO point_events (user_id, reason, points, xp, metadata)
		 VALUES ($1, $2, $3, $4, $5)`,
		userID, reason, points, xp, metaJSON,
	)
	return err
}

// ── Login Streaks ───────────────────────────────────────

func (s *Store) GetLoginStreak(userID int64) (*models.LoginStreak, error) {
	var ls models.LoginStreak
	err := s.db.QueryRow(
		`SELECT user_id, current_streak, longest_streak, last_login_date, created_at, updated_at
		 FROM login_streaks WHERE user_id = $1`,
		userID,
	).Scan(&ls.UserID, &ls.CurrentStreak, &ls.LongestStreak, &ls.LastLoginDate, &ls.CreatedAt, &ls.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get login streak: %w", err)
	}
	return &ls, nil
}

func (s *Store) GetOrCreateLoginStreak(userID int64) (*models.LoginStreak, error) {
	_, err := s.db.Exec(
		`INSERT INTO login_streaks (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert login streak: %w", err)
	}
	ls, err := s.GetLoginStreak(userID)
	if err != nil {
		return nil, err
	}
	if ls == nil {
		return nil, fmt.Errorf("login streak for user %d missing after insert", userID)
	}
	return ls, nil
}

func (s *Store) UpdateLoginStreak(ls *models.LoginStreak) error {
	_, err := s.db.Exec(
		`UPDATE login_streaks SET
		    current_streak = $2, longest_streak = $3, last_login_date = $4,
		    updated_at = NOW()
		 WHERE user_id = $1`,
		ls.UserID, ls.CurrentStreak, ls.LongestStreak, ls.LastLoginDate,
	)
	return err
}

// ── Badges ──────────────────────────────────────────────

func (s *Store) ListBadges() ([]models.Badge, error) {
	rows, err := s.db.Query(
		`SELECT id, name, description, COALESCE(icon, ''), points, criteria, category, rarity
		 FROM badges ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var badges []models.Badge
	for rows.Next() {
		var b models.Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Points, &b.Criteria, &b.Category, &b.Rarity); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

func (s *Store) EarnedBadgeIDs(userID int64) (map[int64]bool, error) {
	rows, err := s.db.Query(
		`SELECT badge_id FROM earned_badges WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get earned badge ids: %w", err)
	}
	defer rows.Close()

	earned := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		earned[id] = true
	}
	return earned, rows.Err()
}

// AwardBadge inserts the (user, badge) pair, reporting whether this call
// actually created it. The unique constraint keeps a badge single-award
// even under concurrent qualifying events.
func (s *Store) AwardBadge(userID, badgeID int64) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO earned_badges (user_id, badge_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		userID, badgeID,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) UserBadges(userID int64) ([]models.EarnedBadgeInfo, error) {
	rows, err := s.db.Query(
		`SELECT b.id, b.name, b.description, COALESCE(b.icon, ''), b.category, b.rarity, eb.earned_at
		 FROM earned_badges eb
		 JOIN badges b ON b.id = eb.badge_id
		 WHERE eb.user_id = $1
		 ORDER BY eb.earned_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get user badges: %w", err)
	}
	defer rows.Close()

	var badges []models.EarnedBadgeInfo
	for rows.Next() {
		var b models.EarnedBadgeInfo
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Category, &b.Rarity, &b.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan earned badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// ── Leaderboards ────────────────────────────────────────

func (s *Store) UpsertLeaderboardEntry(userID int64, courseID *int64, period string, points int64, periodStart time.Time, periodEnd *time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO leaderboard_entries (user_id, course_id, period, points, period_start, period_end)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, period, period_start, COALESCE(course_id, 0))
		 DO UPDATE SET points = EXCLUDED.points, period_end = EXCLUDED.period_end, updated_at = NOW()`,
		userID, courseID, period, points, periodStart, periodEnd,
	)
	return err
}

func (s *Store) PeriodEntries(period string, periodStart time.Time, courseID *int64) ([]models.LeaderboardEntry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if courseID == nil {
		rows, err = s.db.Query(
			`SELECT id, user_id, course_id, period, points, rank, period_start, period_end
			 FROM leaderboard_entries
			 WHERE period = $1 AND period_start = $2 AND course_id IS NULL
			 ORDER BY points DESC, id`,
			period, periodStart,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT id, user_id, course_id, period, points, rank, period_start, period_end
			 FROM leaderboard_entries
			 WHERE period = $1 AND period_start = $2 AND course_id = $3
			 ORDER BY points DESC, id`,
			period, periodStart, *courseID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("get period entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Period, &e.Points, &e.Rank, &e.PeriodStart, &e.PeriodEnd); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) UpdateEntryRank(entryID int64, rank int) error {
	_, err := s.db.Exec(
		`UPDATE leaderboard_entries SET rank = $2, updated_at = NOW() WHERE id = $1`,
		entryID, rank,
	)
	return err
}

func (s *Store) Leaderboard(period string, periodStart time.Time, courseID *int64, limit int) ([]models.LeaderboardRow, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if courseID == nil {
		rows, err = s.db.Query(
			`SELECT e.user_id, u.name, COALESCE(u.username, ''), e.points, e.rank
			 FROM leaderboard_entries e
			 JOIN users u ON u.id = e.user_id
			 WHERE e.period = $1 AND e.period_start = $2 AND e.course_id IS NULL
			 ORDER BY e.points DESC, e.rank ASC
			 LIMIT $3`,
			period, periodStart, limit,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT e.user_id, u.name, COALESCE(u.username, ''), e.points, e.rank
			 FROM leaderboard_entries e
			 JOIN users u ON u.id = e.user_id
			 WHERE e.period = $1 AND e.period_start = $2 AND e.course_id = $3
			 ORDER BY e.points DESC, e.rank ASC
			 LIMIT $4`,
			period, periodStart, *courseID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardRow
	for rows.Next() {
		var e models.LeaderboardRow
		var fullName string
		if err := rows.Scan(&e.UserID, &fullName, &e.Username, &e.Points, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		e.DisplayName = models.User{Name: fullName}.DisplayName()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
