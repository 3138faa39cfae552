// Package analytics records and aggregates conversation events. Recording is
// best-effort everywhere it is called from the chat path: a failed write must
// never fail the conversation.
package analytics

import (
	"encoding/json"
	"time"
)

const (
	EventConversationStart  = "conversation_start"
	EventPlanCompared       = "plan_compared"
	EventCostCalculated     = "cost_calculated"
	EventRecommendationView = "recommendation_viewed"
	EventSatisfactionRated  = "satisfaction_rated"
)

type Event struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	SessionID string          `json:"sessionId"`
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
