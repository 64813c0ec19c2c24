package autobot

import (
	"math/big"
	"time"
)

type EventType int

const (
	EventSessionUpdate EventType = iota
	EventOrderExecuted
	EventPositionUpdate
	EventPositionClosed
)

func (et EventType) String() string {
	switch et {
	case EventSessionUpdate:
		return "session_update"
	case EventOrderExecuted:
		return "order_executed"
	case EventPositionUpdate:
		return "position_update"
	case EventPositionClosed:
		return "position_closed"
	default:
		panic("unknown event type")
	}
}

// Event is a fire-and-forget state change announcement. Publishing must
// never block or fail the operation that produced the event.
type Event struct {
	Type      EventType
	AccountID ID
	Time      time.Time
	Payload   interface{}
}

type EventService interface {
	Publish(event *Event)
}

func NewSessionUpdateEvent(session *Session) *Event {
	return &Event{
		Type:      EventSessionUpdate,
		AccountID: session.Account.ID,
		Time:      time.Now(),
		Payload: struct {
			SessionID string    `json:"sessionId"`
			Status    string    `json:"status"`
			ExpiresAt time.Time `json:"expiresAt"`
		}{
			SessionID: session.ID.String(),
			Status:    session.Status.String(),
			ExpiresAt: session.ExpiresAt,
		},
	}
}

func NewOrderExecutedEvent(order *Order) *Event {
	return &Event{
		Type:      EventOrderExecuted,
		AccountID: order.AccountID,
		Time:      time.Now(),
		Payload: struct {
			OrderID       string     `json:"orderId"`
			SignalID      string     `json:"signalId"`
			Symbol        string     `json:"symbol"`
			Side          string     `json:"side"`
			Status        string     `json:"status"`
			Volume        *big.Float `json:"volume"`
			BrokerOrderID string     `json:"brokerOrderId"`
			FailureReason string     `json:"failureReason,omitempty"`
		}{
			OrderID:       order.ID.String(),
			SignalID:      order.SignalID.String(),
			Symbol:        order.Symbol,
			Side:          order.Side.String(),
			Status:        order.Status.String(),
			Volume:        order.ExecutedVolume,
			BrokerOrderID: order.BrokerOrderID,
			FailureReason: order.FailureReason,
		},
	}
}

func NewPositionUpdateEvent(
	order *Order,
	currentPrice *big.Float,
	profit *big.Float,
) *Event {
	return &Event{
		Type:      EventPositionUpdate,
		AccountID: order.AccountID,
		Time:      time.Now(),
		Payload: struct {
			OrderID       string     `json:"orderId"`
			Symbol        string     `json:"symbol"`
			Side          string     `json:"side"`
			Volume        *big.Float `json:"volume"`
			EntryPrice    *big.Float `json:"entryPrice"`
			CurrentPrice  *big.Float `json:"currentPrice"`
			Profit        *big.Float `json:"profit"`
			BrokerOrderID string     `json:"brokerOrderId"`
		}{
			OrderID:       order.ID.String(),
			Symbol:        order.Symbol,
			Side:          order.Side.String(),
			Volume:        order.ExecutedVolume,
			EntryPrice:    order.EntryPrice,
			CurrentPrice:  currentPrice,
			Profit:        profit,
			BrokerOrderID: order.BrokerOrderID,
		},
	}
}

func NewPositionClosedEvent(order *Order, trade *TradeRecord) *Event {
	return &Event{
		Type:      EventPositionClosed,
		AccountID: order.AccountID,
		Time:      time.Now(),
		Payload: struct {
			OrderID           string     `json:"orderId"`
			TradeID           string     `json:"tradeId"`
			Symbol            string     `json:"symbol"`
			Side              string     `json:"side"`
			Quantity          *big.Float `json:"quantity"`
			EntryPrice        *big.Float `json:"entryPrice"`
			ExitPrice         *big.Float `json:"exitPrice"`
			ProfitLoss        *big.Float `json:"profitLoss"`
			ProfitLossPercent *big.Float `json:"profitLossPercent"`
			ExitReason        string     `json:"exitReason"`
			DurationSeconds   float64    `json:"durationSeconds"`
		}{
			OrderID:           order.ID.String(),
			TradeID:           trade.ID.String(),
			Symbol:            trade.Symbol,
			Side:              trade.Side.String(),
			Quantity:          trade.Quantity,
			EntryPrice:        trade.EntryPrice,
			ExitPrice:         trade.ExitPrice,
			ProfitLoss:        trade.ProfitLoss,
			ProfitLossPercent: trade.ProfitLossPercent,
			ExitReason:        trade.ExitReason.String(),
			DurationSeconds:   trade.Duration().Seconds(),
		},
	}
}
