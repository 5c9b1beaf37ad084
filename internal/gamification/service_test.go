package gamification

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/learnhub/backend/internal/models"
)

// memStore is an in-memory Storage used to exercise the service without a
// database. UpdateUserPoints honors the version check, and failUpdates can
// simulate a competing writer for the conflict-retry tests.
type memStore struct {
	points  map[int64]*models.UserPoints
	levels  []models.UserLevel
	streaks map[int64]*models.LoginStreak
	badges  []models.Badge
	earned  map[int64]map[int64]time.Time
	entries []*models.LeaderboardEntry
	events  []models.PointEvent
	nextID  int64

	failUpdates int
}

func newMemStore() *memStore {
	return &memStore{
		points:  make(map[int64]*models.UserPoints),
		streaks: make(map[int64]*models.LoginStreak),
		earned:  make(map[int64]map[int64]time.Time),
	}
}

func (m *memStore) GetOrCreateUserPoints(userID int64) (*models.UserPoints, error) {
	up, ok := m.points[userID]
	if !ok {
		up = &models.UserPoints{UserID: userID, CurrentLevel: 1, XPToNextLevel: XPForLevel(2)}
		m.points[userID] = up
	}
	cp := *up
	return &cp, nil
}

func (m *memStore) UpdateUserPoints(up *models.UserPoints) (bool, error) {
	if m.failUpdates > 0 {
		m.failUpdates--
		m.points[up.UserID].Version++ // competing writer won
		return false, nil
	}
	cur := m.points[up.UserID]
	if cur.Version != up.Version {
		return false, nil
	}
	cp := *up
	cp.Version++
	m.points[up.UserID] = &cp
	up.Version++
	return true, nil
}

func (m *memStore) InsertUserLevel(userID int64, level int, xpEarned int64) error {
	m.levels = append(m.levels, models.UserLevel{UserID: userID, Level: level, XPEarned: xpEarned})
	return nil
}

func (m *memStore) LogPointEvent(userID int64, reason string, points, xp int, metadata map[string]interface{}) error {
	m.events = append(m.events, models.PointEvent{UserID: userID, Reason: reason, Points: points, XP: xp})
	return nil
}

func (m *memStore) GetLoginStreak(userID int64) (*models.LoginStreak, error) {
	ls, ok := m.streaks[userID]
	if !ok {
		return nil, nil
	}
	cp := *ls
	return &cp, nil
}

func (m *memStore) GetOrCreateLoginStreak(userID int64) (*models.LoginStreak, error) {
	if _, ok := m.streaks[userID]; !ok {
		m.streaks[userID] = &models.LoginStreak{UserID: userID}
	}
	return m.GetLoginStreak(userID)
}

func (m *memStore) UpdateLoginStreak(ls *models.LoginStreak) error {
	cp := *ls
	m.streaks[ls.UserID] = &cp
	return nil
}

func (m *memStore) ListBadges() ([]models.Badge, error) {
	return m.badges, nil
}

func (m *memStore) EarnedBadgeIDs(userID int64) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for id := range m.earned[userID] {
		ids[id] = true
	}
	return ids, nil
}

func (m *memStore) AwardBadge(userID, badgeID int64) (bool, error) {
	if m.earned[userID] == nil {
		m.earned[userID] = make(map[int64]time.Time)
	}
	if _, ok := m.earned[userID][badgeID]; ok {
		return false, nil
	}
	m.earned[userID][badgeID] = time.Now()
	return true, nil
}

func (m *memStore) UserBadges(userID int64) ([]models.EarnedBadgeInfo, error) {
	var infos []models.EarnedBadgeInfo
	for _, b := range m.badges {
		if at, ok := m.earned[userID][b.ID]; ok {
			infos = append(infos, models.EarnedBadgeInfo{
				ID: b.ID, Name: b.Name, Description: b.Description,
				Category: b.Category, Rarity: b.Rarity, EarnedAt: at,
			})
		}
	}
	return infos, nil
}

func sameCourse(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memStore) UpsertLeaderboardEntry(userID int64, courseID *int64, period string, points int64, periodStart time.Time, periodEnd *time.Time) error {
	for _, e := range m.entries {
		if e.UserID == userID && e.Period == period && e.PeriodStart.Equal(periodStart) && sameCourse(e.CourseID, courseID) {
			e.Points = points
			e.PeriodEnd = periodEnd
			return nil
		}
	}
	m.nextID++
	m.entries = append(m.entries, &models.LeaderboardEntry{
		ID: m.nextID, UserID: userID, CourseID: courseID, Period: period,
		Points: points, PeriodStart: periodStart, PeriodEnd: periodEnd,
	})
	return nil
}

func (m *memStore) PeriodEntries(period string, periodStart time.Time, courseID *int64) ([]models.LeaderboardEntry, error) {
	var out []models.LeaderboardEntry
	for _, e := range m.entries {
		if e.Period == period && e.PeriodStart.Equal(periodStart) && sameCourse(e.CourseID, courseID) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) UpdateEntryRank(entryID int64, rank int) error {
	for _, e := range m.entries {
		if e.ID == entryID {
			e.Rank = rank
			return nil
		}
	}
	return fmt.Errorf("entry %d not found", entryID)
}

func (m *memStore) Leaderboard(period string, periodStart time.Time, courseID *int64, limit int) ([]models.LeaderboardRow, error) {
	entries, _ := m.PeriodEntries(period, periodStart, courseID)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].Rank < entries[j].Rank
	})
	var rows []models.LeaderboardRow
	for i, e := range entries {
		if i >= limit {
			break
		}
		rows = append(rows, models.LeaderboardRow{
			Rank:        e.Rank,
			UserID:      e.UserID,
			DisplayName: fmt.Sprintf("User %d", e.UserID),
			Points:      e.Points,
		})
	}
	return rows, nil
}

// newTestService pins the clock so streak and window logic is deterministic.
func newTestService(st *memStore, now time.Time) *Service {
	s := NewService(st, nil, nil)
	s.now = func() time.Time { return now }
	return s
}

var testNow = time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC) // a Wednesday

// ── Points Ledger ───────────────────────────────────────

func TestAwardPointsCreatesDefaults(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	snap, err := s.AwardPoints(1, 0, 0, models.ReasonForumPost, nil)
	if err != nil {
		t.Fatalf("AwardPoints returned error: %v", err)
	}

	if snap.TotalPoints != 0 || snap.CurrentLevel != 1 || snap.CurrentXP != 0 {
		t.Errorf("new user snapshot = %+v, want zeroed level-1 state", snap)
	}
	if snap.XPToNextLevel != XPForLevel(2) {
		t.Errorf("XPToNextLevel = %d, want %d", snap.XPToNextLevel, XPForLevel(2))
	}
}

func TestAwardPointsSingleLevelUp(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	snap, err := s.AwardPoints(1, 50, 120, models.ReasonQuizPassed, nil)
	if err != nil {
		t.Fatalf("AwardPoints returned error: %v", err)
	}

	if snap.CurrentLevel != 2 {
		t.Errorf("CurrentLevel = %d, want 2", snap.CurrentLevel)
	}
	if snap.CurrentXP != 20 {
		t.Errorf("CurrentXP = %d, want 20", snap.CurrentXP)
	}
	if snap.XPToNextLevel != XPForLevel(3) {
		t.Errorf("XPToNextLevel = %d, want %d", snap.XPToNextLevel, XPForLevel(3))
	}
	if len(st.levels) != 1 || st.levels[0].Level != 2 {
		t.Errorf("level audit rows = %+v, want one row for level 2", st.levels)
	}
}

func TestAwardPointsMultiLevelJump(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	// threshold(2)=100 and threshold(3)=150 consumed exactly: two levels,
	// zero remainder.
	snap, err := s.AwardPoints(1, 100, 250, models.ReasonCourseCompleted, nil)
	if err != nil {
		t.Fatalf("AwardPoints returned error: %v", err)
	}

	if snap.CurrentLevel != 3 {
		t.Errorf("CurrentLevel = %d, want 3", snap.CurrentLevel)
	}
	if snap.CurrentXP != 0 {
		t.Errorf("CurrentXP = %d, want 0", snap.CurrentXP)
	}
	if snap.XPToNextLevel != 225 {
		t.Errorf("XPToNextLevel = %d, want 225", snap.XPToNextLevel)
	}
	if snap.TotalPoints != 100 {
		t.Errorf("TotalPoints = %d, want 100", snap.TotalPoints)
	}
	if len(st.levels) != 2 || st.levels[0].Level != 2 || st.levels[1].Level != 3 {
		t.Errorf("level audit rows = %+v, want rows for levels 2 and 3", st.levels)
	}
}

func TestAwardPointsLevelInvariant(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	for _, xp := range []int{5, 99, 100, 1, 340, 12, 777, 60, 2500} {
		snap, err := s.AwardPoints(1, xp, xp, models.ReasonLessonCompleted, nil)
		if err != nil {
			t.Fatalf("AwardPoints(%d) returned error: %v", xp, err)
		}
		if snap.CurrentXP < 0 || snap.CurrentXP >= snap.XPToNextLevel {
			t.Errorf("after xp=%d: CurrentXP=%d not in [0, %d)", xp, snap.CurrentXP, snap.XPToNextLevel)
		}
		if snap.XPToNextLevel != XPForLevel(snap.CurrentLevel+1) {
			t.Errorf("after xp=%d: XPToNextLevel=%d, want XPForLevel(%d)=%d",
				xp, snap.XPToNextLevel, snap.CurrentLevel+1, XPForLevel(snap.CurrentLevel+1))
		}
	}
}

func TestAwardPointsRetriesOnConflict(t *testing.T) {
	st := newMemStore()
	st.failUpdates = 1
	s := newTestService(st, testNow)

	snap, err := s.AwardPoints(1, 40, 40, models.ReasonForumPost, nil)
	if err != nil {
		t.Fatalf("AwardPoints returned error: %v", err)
	}
	if snap.TotalPoints != 40 {
		t.Errorf("TotalPoints = %d, want 40 (applied exactly once)", snap.TotalPoints)
	}
}

func TestAwardPointsConflictExhausted(t *testing.T) {
	st := newMemStore()
	st.failUpdates = maxAwardRetries
	s := newTestService(st, testNow)

	if _, err := s.AwardPoints(1, 40, 40, models.ReasonForumPost, nil); err == nil {
		t.Fatal("expected error after exhausting retries, got nil")
	}
}

// ── Login Streak Tracker ────────────────────────────────

func TestRecordLoginFirstEver(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	resp, err := s.RecordLogin(1)
	if err != nil {
		t.Fatalf("RecordLogin returned error: %v", err)
	}
	if resp.Streak != 1 || resp.PointsAwarded != DailyLoginXP {
		t.Errorf("first login = %+v, want streak 1 and %d points", resp, DailyLoginXP)
	}

	up, _ := st.GetOrCreateUserPoints(1)
	if up.TotalPoints != int64(DailyLoginXP) {
		t.Errorf("TotalPoints = %d, want %d", up.TotalPoints, DailyLoginXP)
	}
}

func TestRecordLoginSameDayIdempotent(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	if _, err := s.RecordLogin(1); err != nil {
		t.Fatalf("first RecordLogin returned error: %v", err)
	}
	resp, err := s.RecordLogin(1)
	if err != nil {
		t.Fatalf("second RecordLogin returned error: %v", err)
	}
	if resp.Streak != 1 || resp.PointsAwarded != 0 {
		t.Errorf("repeat login = %+v, want streak 1 and 0 points", resp)
	}

	up, _ := st.GetOrCreateUserPoints(1)
	if up.TotalPoints != int64(DailyLoginXP) {
		t.Errorf("TotalPoints = %d, want %d (no double award)", up.TotalPoints, DailyLoginXP)
	}
}

func TestRecordLoginConsecutiveDay(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	if _, err := s.RecordLogin(1); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return testNow.AddDate(0, 0, 1) }

	resp, err := s.RecordLogin(1)
	if err != nil {
		t.Fatalf("RecordLogin returned error: %v", err)
	}
	want := DailyLoginXP + 2*StreakBonusPerDay
	if resp.Streak != 2 || resp.PointsAwarded != want {
		t.Errorf("consecutive login = %+v, want streak 2 and %d points", resp, want)
	}
}

func TestRecordLoginGapResets(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	if _, err := s.RecordLogin(1); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return testNow.AddDate(0, 0, 3) }

	resp, err := s.RecordLogin(1)
	if err != nil {
		t.Fatalf("RecordLogin returned error: %v", err)
	}
	if resp.Streak != 1 || resp.PointsAwarded != DailyLoginXP {
		t.Errorf("post-gap login = %+v, want streak 1 and %d points", resp, DailyLoginXP)
	}
}

func TestRecordLoginStreakBonusScenario(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	// User on a 5-day streak who last logged in yesterday.
	yesterday := midnight(testNow).AddDate(0, 0, -1)
	st.streaks[1] = &models.LoginStreak{UserID: 1, CurrentStreak: 5, LongestStreak: 5, LastLoginDate: &yesterday}

	resp, err := s.RecordLogin(1)
	if err != nil {
		t.Fatalf("RecordLogin returned error: %v", err)
	}
	if resp.Streak != 6 {
		t.Errorf("Streak = %d, want 6", resp.Streak)
	}
	if resp.PointsAwarded != 40 { // 10 + 6*5
		t.Errorf("PointsAwarded = %d, want 40", resp.PointsAwarded)
	}
}

func TestLongestStreakNeverDecreases(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	// Three consecutive days, a gap, then two more days.
	days := []int{0, 1, 2, 6, 7}
	longest := 0
	for _, d := range days {
		day := testNow.AddDate(0, 0, d)
		s.now = func() time.Time { return day }
		if _, err := s.RecordLogin(1); err != nil {
			t.Fatalf("RecordLogin on day +%d returned error: %v", d, err)
		}
		ls, _ := st.GetLoginStreak(1)
		if ls.LongestStreak < longest {
			t.Errorf("day +%d: LongestStreak dropped from %d to %d", d, longest, ls.LongestStreak)
		}
		longest = ls.LongestStreak
	}
	ls, _ := st.GetLoginStreak(1)
	if ls.LongestStreak != 3 || ls.CurrentStreak != 2 {
		t.Errorf("final streak state = %+v, want longest 3 current 2", ls)
	}
}

// ── Badge Evaluator ─────────────────────────────────────

func testCatalog() []models.Badge {
	return []models.Badge{
		{ID: 1, Name: "First Course", Points: 50, Criteria: `{"kind":"event","event":"course_completed"}`},
		{ID: 2, Name: "Quiz Master", Points: 100, Criteria: `{"kind":"counter","event":"quiz_passed","field":"quizzes_passed","min":10}`},
		{ID: 3, Name: "Dedicated Learner", Points: 200, Criteria: `{"kind":"level","min":10}`},
	}
}

func TestBadgeAwardedAtMostOnce(t *testing.T) {
	st := newMemStore()
	st.badges = testCatalog()
	s := newTestService(st, testNow)

	for i := 0; i < 3; i++ {
		if _, err := s.AwardPoints(1, 10, 10, models.ReasonCourseCompleted, nil); err != nil {
			t.Fatalf("AwardPoints returned error: %v", err)
		}
	}

	if len(st.earned[1]) != 1 {
		t.Errorf("earned badges = %d, want 1", len(st.earned[1]))
	}
	// One 50-point badge reward on the first event only.
	up, _ := st.GetOrCreateUserPoints(1)
	if up.TotalPoints != 10*3+50 {
		t.Errorf("TotalPoints = %d, want 80", up.TotalPoints)
	}
}

func TestBadgeRewardQueuedNotReentrant(t *testing.T) {
	st := newMemStore()
	st.badges = testCatalog()
	s := newTestService(st, testNow)

	snap, err := s.AwardPoints(1, 100, 100, models.ReasonCourseCompleted, nil)
	if err != nil {
		t.Fatalf("AwardPoints returned error: %v", err)
	}

	// 100 from the event plus the 50-point badge reward, applied through
	// the same queue.
	if snap.TotalPoints != 150 {
		t.Errorf("TotalPoints = %d, want 150", snap.TotalPoints)
	}
	if len(snap.Badges) != 1 || snap.Badges[0].Name != "First Course" {
		t.Errorf("Badges = %+v, want just First Course", snap.Badges)
	}

	// The badge reward must not have produced a second leaderboard entry.
	start, _ := PeriodWindow(models.PeriodDaily, testNow)
	entries, _ := st.PeriodEntries(models.PeriodDaily, start, nil)
	if len(entries) != 1 {
		t.Fatalf("daily entries = %d, want 1", len(entries))
	}
	if entries[0].Points != 150 {
		t.Errorf("daily entry points = %d, want final total 150", entries[0].Points)
	}
}

func TestCounterBadgeNeedsThreshold(t *testing.T) {
	st := newMemStore()
	st.badges = testCatalog()
	s := newTestService(st, testNow)

	if _, err := s.AwardPoints(1, 10, 10, models.ReasonQuizPassed, map[string]interface{}{"quizzes_passed": 9}); err != nil {
		t.Fatal(err)
	}
	if len(st.earned[1]) != 0 {
		t.Fatalf("badge awarded below threshold")
	}

	if _, err := s.AwardPoints(1, 10, 10, models.ReasonQuizPassed, map[string]interface{}{"quizzes_passed": 10}); err != nil {
		t.Fatal(err)
	}
	if _, ok := st.earned[1][2]; !ok {
		t.Errorf("Quiz Master not awarded at threshold")
	}
}

// ── Leaderboard Ranker ──────────────────────────────────

func TestLeaderboardDenseRanks(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	awards := map[int64]int{1: 300, 2: 500, 3: 100, 4: 500}
	for _, uid := range []int64{1, 2, 3, 4} {
		if _, err := s.AwardPoints(uid, awards[uid], 0, models.ReasonCourseCompleted, nil); err != nil {
			t.Fatalf("AwardPoints(%d) returned error: %v", uid, err)
		}
	}

	for _, period := range models.Periods {
		start, _ := PeriodWindow(period, testNow)
		entries, _ := st.PeriodEntries(period, start, nil)
		if len(entries) != 4 {
			t.Fatalf("%s: entries = %d, want 4", period, len(entries))
		}

		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
		for i, e := range entries {
			if e.Rank != i+1 {
				t.Errorf("%s: rank[%d] = %d, want contiguous from 1", period, i, e.Rank)
			}
			if i > 0 && entries[i-1].Points < e.Points {
				t.Errorf("%s: points not descending by rank: %d then %d", period, entries[i-1].Points, e.Points)
			}
		}
	}
}

func TestLeaderboardCourseScope(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	meta := map[string]interface{}{"course_id": 7}
	if _, err := s.AwardPoints(1, 100, 0, models.ReasonCourseCompleted, meta); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AwardPoints(2, 50, 0, models.ReasonCourseCompleted, nil); err != nil {
		t.Fatal(err)
	}

	course := int64(7)
	start, _ := PeriodWindow(models.PeriodAllTime, testNow)
	scoped, _ := st.PeriodEntries(models.PeriodAllTime, start, &course)
	if len(scoped) != 1 || scoped[0].UserID != 1 {
		t.Errorf("course-scoped entries = %+v, want only user 1", scoped)
	}

	global, _ := st.PeriodEntries(models.PeriodAllTime, start, nil)
	if len(global) != 2 {
		t.Errorf("global entries = %d, want 2", len(global))
	}
}

func TestGetLeaderboardOrdering(t *testing.T) {
	st := newMemStore()
	s := newTestService(st, testNow)

	for uid, pts := range map[int64]int{1: 20, 2: 80, 3: 50} {
		if _, err := s.AwardPoints(uid, pts, 0, models.ReasonForumPost, nil); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := s.GetLeaderboard(context.Background(), models.PeriodDaily, nil, 2)
	if err != nil {
		t.Fatalf("GetLeaderboard returned error: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("entries = %d, want limit 2", len(resp.Entries))
	}
	if resp.Entries[0].UserID != 2 || resp.Entries[0].Rank != 1 {
		t.Errorf("top entry = %+v, want user 2 at rank 1", resp.Entries[0])
	}
	if resp.Entries[1].UserID != 3 || resp.Entries[1].Rank != 2 {
		t.Errorf("second entry = %+v, want user 3 at rank 2", resp.Entries[1])
	}
}

func TestGetLeaderboardRejectsBadPeriod(t *testing.T) {
	s := newTestService(newMemStore(), testNow)
	if _, err := s.GetLeaderboard(context.Background(), "hourly", nil, 10); err == nil {
		t.Fatal("expected error for invalid period")
	}
}

// ── Snapshot ────────────────────────────────────────────

func TestGetUserGamificationIncludesStreakAndBadges(t *testing.T) {
	st := newMemStore()
	st.badges = testCatalog()
	s := newTestService(st, testNow)

	if _, err := s.RecordLogin(1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AwardPoints(1, 10, 10, models.ReasonCourseCompleted, nil); err != nil {
		t.Fatal(err)
	}

	snap, err := s.GetUserGamification(1)
	if err != nil {
		t.Fatalf("GetUserGamification returned error: %v", err)
	}
	if snap.LoginStreak != 1 || snap.LongestStreak != 1 {
		t.Errorf("streak = %d/%d, want 1/1", snap.LoginStreak, snap.LongestStreak)
	}
	if len(snap.Badges) != 1 {
		t.Errorf("badges = %d, want 1", len(snap.Badges))
	}
	if snap.TotalPoints != int64(DailyLoginXP+10+50) {
		t.Errorf("TotalPoints = %d, want %d", snap.TotalPoints, DailyLoginXP+10+50)
	}
}
