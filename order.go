package autobot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"
)

type OrderSide int

const (
	SideBuy OrderSide = iota
	SideSell
)

func ParseOrderSide(value string) (OrderSide, error) {
	switch value {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	}

	return -1, fmt.Errorf("unknown order side: [%v]", value)
}

func (os OrderSide) String() string {
	switch os {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		panic("unknown order side")
	}
}

func (os OrderSide) Opposite() OrderSide {
	switch os {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		panic("unknown order side")
	}
}

type OrderStatus int

const (
	OrderPending OrderStatus = iota
	OrderOpen
	OrderClosed
	OrderCancelled
	OrderFailed
)

func ParseOrderStatus(value string) (OrderStatus, error) {
	switch value {
	case "PENDING":
		return OrderPending, nil
	case "OPEN":
		return OrderOpen, nil
	case "CLOSED":
		return OrderClosed, nil
	case "CANCELLED":
		return OrderCancelled, nil
	case "FAILED":
		return OrderFailed, nil
	}

	return -1, fmt.Errorf("unknown order status: [%v]", value)
}

func (ost OrderStatus) String() string {
	switch ost {
	case OrderPending:
		return "PENDING"
	case OrderOpen:
		return "OPEN"
	case OrderClosed:
		return "CLOSED"
	case OrderCancelled:
		return "CANCELLED"
	case OrderFailed:
		return "FAILED"
	default:
		panic("unknown order status")
	}
}

func (ost OrderStatus) canTransitionTo(target OrderStatus) bool {
	switch ost {
	case OrderPending:
		return target == OrderOpen || target == OrderFailed
	case OrderOpen:
		return target == OrderClosed || target == OrderCancelled
	default:
		return false
	}
}

// OrderRepository persists the order ledger. Every mutation is a single
// transactional unit; CloseOrder commits the order update together with its
// trade record so that a trade exists exactly when its order is closed.
// OrderBySignal returns a nil order without error when no order exists for
// the pair. LiveOrders additionally includes pending orders whose broker
// acknowledgement may have been lost.
type OrderRepository interface {
	CreateOrder(order *Order) error

	UpdateOrder(order *Order) error

	CloseOrder(order *Order, trade *TradeRecord) error

	OrderBySignal(signalID ID, accountID ID) (*Order, error)

	OpenOrders(accountID ID) ([]*Order, error)

	LiveOrders(accountID ID) ([]*Order, error)

	OpenOrdersCount(accountID ID) (int, error)
}

type Order struct {
	ID        ID
	SignalID  ID
	AccountID ID

	Symbol string
	Side   OrderSide
	Status OrderStatus

	RequestedVolume *big.Float
	ExecutedVolume  *big.Float
	EntryPrice      *big.Float
	StopLoss        *big.Float
	TakeProfit      *big.Float

	BrokerOrderID string
	FailureReason string

	CreatedAt time.Time
	OpenedAt  time.Time
	ClosedAt  time.Time
}

// TransitionTo moves the order forward through its status machine. Orders
// never move backwards; an illegal move is an error and leaves the order
// untouched.
func (o *Order) TransitionTo(status OrderStatus) error {
	if !o.Status.canTransitionTo(status) {
		return fmt.Errorf(
			"illegal order status transition: [%v] -> [%v]",
			o.Status,
			status,
		)
	}

	o.Status = status

	return nil
}

// orderCloser turns an open order into a closed one: broker-side close,
// trade record computation and the single transactional persistence step.
// Both the orchestrator and the position monitor close through it.
type orderCloser struct {
	logger          Logger
	gateway         BrokerGateway
	orderRepository OrderRepository
	idService       IDService
	eventService    EventService
}

func (oc *orderCloser) close(
	ctx context.Context,
	session *Session,
	order *Order,
	reason ExitReason,
) (*TradeRecord, error) {
	positionClose, err := oc.gateway.ClosePosition(
		ctx,
		session.SessionTokens,
		order.BrokerOrderID,
	)
	if err != nil {
		var goneErr *ResourceGoneError
		if errors.As(err, &goneErr) {
			// The platform no longer knows the position, so it was closed
			// on its side. Record what the platform history reports.
			return oc.reconcile(ctx, session, order)
		}

		return nil, fmt.Errorf(
			"could not close position [%v]: [%v]",
			order.BrokerOrderID,
			err,
		)
	}

	if positionClose.Profit != nil {
		oc.logger.Debugf(
			"broker reported profit [%v] for position [%v]",
			positionClose.Profit.Text('f', 2),
			order.BrokerOrderID,
		)
	}

	return oc.record(
		order,
		positionClose.ClosePrice,
		positionClose.Commission,
		reason,
		positionClose.ClosedAt,
	)
}

func (oc *orderCloser) reconcile(
	ctx context.Context,
	session *Session,
	order *Order,
) (*TradeRecord, error) {
	var exitPrice, commission *big.Float
	closedAt := time.Now()

	closedPositions, err := oc.gateway.ClosedPositions(
		ctx,
		session.SessionTokens,
		order.OpenedAt,
		time.Now(),
	)
	if err != nil {
		oc.logger.Warningf(
			"could not fetch close history for position [%v]: [%v]",
			order.BrokerOrderID,
			err,
		)
	} else {
		for _, closedPosition := range closedPositions {
			if closedPosition.BrokerOrderID == order.BrokerOrderID {
				exitPrice = closedPosition.ClosePrice
				commission = closedPosition.Commission
				if !closedPosition.ClosedAt.IsZero() {
					closedAt = closedPosition.ClosedAt
				}
				break
			}
		}
	}

	if exitPrice == nil {
		// No history entry either; close flat at the entry price so the
		// ledger stops tracking a position that does not exist.
		exitPrice = order.EntryPrice
	}

	return oc.record(order, exitPrice, commission, ExitReconciled, closedAt)
}

func (oc *orderCloser) record(
	order *Order,
	exitPrice *big.Float,
	commission *big.Float,
	reason ExitReason,
	closedAt time.Time,
) (*TradeRecord, error) {
	if err := order.TransitionTo(OrderClosed); err != nil {
		return nil, err
	}

	if closedAt.IsZero() {
		closedAt = time.Now()
	}
	order.ClosedAt = closedAt

	trade := NewTradeRecord(
		oc.idService.NewID(),
		order,
		exitPrice,
		commission,
		reason,
	)

	if err := oc.orderRepository.CloseOrder(order, trade); err != nil {
		return nil, fmt.Errorf(
			"could not persist trade for order [%v]: [%v]",
			order.ID,
			err,
		)
	}

	oc.eventService.Publish(NewPositionClosedEvent(order, trade))

	return trade, nil
}
