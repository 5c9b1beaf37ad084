package gamification

import "math"

const (
	// LevelBase and LevelGrowth define the exponential XP curve.
	LevelBase   = 100
	LevelGrowth = 1.5

	// DailyLoginXP is the base award for a recorded login.
	DailyLoginXP = 10
	// StreakBonusPerDay is the extra award per day of the current streak.
	StreakBonusPerDay = 5
)

// XPForLevel returns the XP required to advance into level from level-1:
// floor(100 * 1.5^(level-2)). XPForLevel(2) = 100, XPForLevel(3) = 150,
// XPForLevel(4) = 225. Callers pass currentLevel+1 to get the threshold
// for the next level boundary. Strictly positive for every level, which is
// what guarantees the level-up loop in the ledger terminates.
func XPForLevel(level int) int {
	if level <= 2 {
		return LevelBase
	}
	return int(math.Floor(LevelBase * math.Pow(LevelGrowth, float64(level-2))))
}

// TotalXPForLevel returns the cumulative XP consumed to climb from level 1
// to level. Used for the xp_earned audit column on level-up rows.
func TotalXPForLevel(level int) int64 {
	var total int64
	for l := 2; l <= level; l++ {
		total += int64(XPForLevel(l))
	}
	return total
}
