package gamification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learnhub/backend/internal/models"
)

// leaderboardTTL bounds staleness of cached leaderboard pages. Ranks are
// recomputed on every award, so the cache is only a read shield.
const leaderboardTTL = 30 * time.Second

// LeaderboardCache is a read-through cache for leaderboard pages. All
// methods are safe on a nil receiver so callers can wire it optionally.
type LeaderboardCache struct {
	client *redis.Client
}

func NewLeaderboardCache(client *redis.Client) *LeaderboardCache {
	return &LeaderboardCache{client: client}
}

func leaderboardKey(period string, courseID *int64, limit int) string {
	course := int64(0)
	if courseID != nil {
		course = *courseID
	}
	return fmt.Sprintf("leaderboard:%s:%d:%d", period, course, limit)
}

func (c *LeaderboardCache) Get(ctx context.Context, period string, courseID *int64, limit int) (*models.LeaderboardResponse, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, leaderboardKey(period, courseID, limit)).Result()
	if err != nil {
		return nil, false
	}
	var resp models.LeaderboardResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (c *LeaderboardCache) Set(ctx context.Context, period string, courseID *int64, limit int, resp *models.LeaderboardResponse) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, leaderboardKey(period, courseID, limit), raw, leaderboardTTL).Err()
}
