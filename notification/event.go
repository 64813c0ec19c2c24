package notification

import (
	"encoding/json"
	"time"
)

// Event mirrors the envelope the back office publishes on the events topic.
// Money fields inside payloads arrive as strings since the publisher
// serializes big floats through their text form.
type Event struct {
	Type      string          `json:"type"`
	AccountID string          `json:"accountId"`
	Time      time.Time       `json:"time"`
	Payload   json.RawMessage `json:"payload"`
}

type sessionUpdatePayload struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type orderExecutedPayload struct {
	OrderID       string `json:"orderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	FailureReason string `json:"failureReason"`
}

type positionClosedPayload struct {
	OrderID           string `json:"orderId"`
	Symbol            string `json:"symbol"`
	Side              string `json:"side"`
	ProfitLoss        string `json:"profitLoss"`
	ProfitLossPercent string `json:"profitLossPercent"`
	ExitReason        string `json:"exitReason"`
}
