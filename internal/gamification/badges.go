package gamification

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/learnhub/backend/internal/models"
)

// Criterion kinds. Each badge carries one criterion as a JSON descriptor in
// its catalog row, so new badges do not require code changes.
const (
	CriterionEvent   = "event"   // reason matches a named event
	CriterionCounter = "counter" // reason matches AND a metadata counter >= min
	CriterionLevel   = "level"   // user's current level >= min
	CriterionPoints  = "points"  // lifetime points >= min
	CriterionStreak  = "streak"  // current login streak >= min
)

// Criterion is the declarative award rule for a badge.
type Criterion struct {
	Kind  string `json:"kind"`
	Event string `json:"event,omitempty"`
	Field string `json:"field,omitempty"`
	Min   int    `json:"min,omitempty"`
}

// ParseCriterion decodes a catalog criteria descriptor.
func ParseCriterion(raw string) (Criterion, error) {
	var c Criterion
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Criterion{}, fmt.Errorf("parse badge criteria: %w", err)
	}
	if c.Kind == "" {
		return Criterion{}, fmt.Errorf("parse badge criteria: missing kind")
	}
	return c, nil
}

// Matches reports whether the criterion is satisfied by the triggering
// event (reason + metadata) together with the user's current state.
// Unknown kinds never match, so an unrecognized catalog entry is simply
// never awarded rather than an error.
func (c Criterion) Matches(reason string, metadata map[string]interface{}, up *models.UserPoints, streak int) bool {
	switch c.Kind {
	case CriterionEvent:
		return reason == c.Event
	case CriterionCounter:
		if reason != c.Event {
			return false
		}
		n, ok := metadataInt(metadata, c.Field)
		return ok && n >= c.Min
	case CriterionLevel:
		return up != nil && up.CurrentLevel >= c.Min
	case CriterionPoints:
		return up != nil && up.TotalPoints >= int64(c.Min)
	case CriterionStreak:
		return streak >= c.Min
	}
	return false
}

// metadataInt pulls an integer counter out of event metadata. JSON decoding
// hands numbers over as float64, but callers invoking the ledger in-process
// may pass native ints, so both are accepted.
func metadataInt(metadata map[string]interface{}, field string) (int, bool) {
	if metadata == nil || field == "" {
		return 0, false
	}
	switch v := metadata[field].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
