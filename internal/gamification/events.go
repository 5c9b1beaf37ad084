package gamification

import "log"

// Event types published by the service.
const (
	EventLevelUp     = "level_up"
	EventBadgeEarned = "badge_earned"
)

// EventPublisher receives gamification events (level-ups, badge awards) for
// delivery to interested listeners: push notifications, websocket fan-out,
// analytics.
type EventPublisher interface {
	Publish(eventType string, userID int64, payload map[string]interface{})
}

// LogPublisher writes events to the process log. It is the default when no
// real publisher is wired in.
type LogPublisher struct{}

func (LogPublisher) Publish(eventType string, userID int64, payload map[string]interface{}) {
	log.Printf("[gamification] event %s user=%d %v", eventType, userID, payload)
}
