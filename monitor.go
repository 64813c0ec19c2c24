package autobot

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// pendingOrderGrace is how long a pending order may stay unacknowledged
// before the monitor declares its dispatch lost.
const pendingOrderGrace = 1 * time.Minute

type PositionMonitorConfig struct {
	// MaxHoldingTime closes any position held longer, regardless of
	// price. Zero disables the duration exit.
	MaxHoldingTime time.Duration

	// RequestTimeout is the deadline for the broker-facing work of one
	// account within a cycle.
	RequestTimeout time.Duration
}

// PositionMonitor supervises all open orders across accounts. Every cycle
// it matches the broker's open positions against the order ledger,
// evaluates the exit conditions in strict priority and closes at most once
// per order per cycle. A failed close leaves the order open for the next
// cycle.
type PositionMonitor struct {
	logger           Logger
	config           PositionMonitorConfig
	sessionManager   *SessionManager
	gateway          BrokerGateway
	orderRepository  OrderRepository
	signalRepository SignalRepository
	eventService     EventService
	locks            *AccountLocks
	closer           *orderCloser
}

func NewPositionMonitor(
	logger Logger,
	config PositionMonitorConfig,
	sessionManager *SessionManager,
	gateway BrokerGateway,
	orderRepository OrderRepository,
	signalRepository SignalRepository,
	idService IDService,
	eventService EventService,
	locks *AccountLocks,
) *PositionMonitor {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return &PositionMonitor{
		logger:           logger,
		config:           config,
		sessionManager:   sessionManager,
		gateway:          gateway,
		orderRepository:  orderRepository,
		signalRepository: signalRepository,
		eventService:     eventService,
		locks:            locks,
		closer: &orderCloser{
			logger:          logger,
			gateway:         gateway,
			orderRepository: orderRepository,
			idService:       idService,
			eventService:    eventService,
		},
	}
}

// CheckOnce runs a single monitoring cycle over all active sessions.
// Account-level failures are logged and never abort the cycle.
func (pm *PositionMonitor) CheckOnce(ctx context.Context) {
	for _, session := range pm.sessionManager.ActiveSessions() {
		if err := pm.checkAccount(ctx, session); err != nil {
			pm.logger.Errorf(
				"could not check positions for account [%v]: [%v]",
				session.Account.ID,
				err,
			)
		}
	}
}

func (pm *PositionMonitor) checkAccount(
	ctx context.Context,
	session *Session,
) error {
	account := session.Account

	pm.locks.Lock(account.ID)
	defer pm.locks.Unlock(account.ID)

	orders, err := pm.orderRepository.LiveOrders(account.ID)
	if err != nil {
		return fmt.Errorf("could not get live orders: [%v]", err)
	}

	if len(orders) == 0 {
		return nil
	}

	requestCtx, cancelRequestCtx := context.WithTimeout(
		ctx,
		pm.config.RequestTimeout,
	)
	defer cancelRequestCtx()

	positions, err := pm.gateway.OpenPositions(
		requestCtx,
		session.SessionTokens,
	)
	if err != nil {
		return fmt.Errorf("could not get open positions: [%v]", err)
	}

	claimed := make(map[string]bool)

	for _, order := range orders {
		position := matchPosition(order, positions, claimed)

		if order.Status == OrderPending {
			pm.settlePendingOrder(order, position)
			continue
		}

		if position == nil {
			// The platform no longer reports the position; it was closed
			// on its side. Record the close from the platform's history.
			if _, err := pm.closer.reconcile(
				requestCtx,
				session,
				order,
			); err != nil {
				pm.logger.Warningf(
					"could not reconcile vanished position of order [%v]: "+
						"[%v]",
					order.ID,
					err,
				)
			}
			continue
		}

		pm.eventService.Publish(NewPositionUpdateEvent(
			order,
			position.CurrentPrice,
			position.Profit,
		))

		reason, shouldExit := pm.exitReason(order, position)
		if !shouldExit {
			continue
		}

		trade, err := pm.closer.close(requestCtx, session, order, reason)
		if err != nil {
			// The order stays open; the next cycle retries the close.
			pm.logger.Warningf(
				"could not close position [%v] for account [%v]: [%v]",
				order.BrokerOrderID,
				account.ID,
				err,
			)
			continue
		}

		pm.logger.Infof(
			"closed position [%v] for account [%v]: reason [%v], "+
				"profit/loss [%v]",
			order.BrokerOrderID,
			account.ID,
			reason,
			trade.ProfitLoss.Text('f', 2),
		)
	}

	return nil
}

// settlePendingOrder resolves an order whose broker acknowledgement was
// lost. A matching broker position recovers the acknowledgement; a pending
// order past the grace period with no position never reached the platform
// and is failed.
func (pm *PositionMonitor) settlePendingOrder(
	order *Order,
	position *BrokerPosition,
) {
	if position != nil {
		if order.EntryPrice == nil {
			order.EntryPrice = position.OpenPrice
		}
		order.OpenedAt = position.OpenedAt
		if order.OpenedAt.IsZero() {
			order.OpenedAt = time.Now()
		}

		if err := order.TransitionTo(OrderOpen); err != nil {
			pm.logger.Errorf(
				"could not recover order [%v]: [%v]",
				order.ID,
				err,
			)
			return
		}

		if err := pm.orderRepository.UpdateOrder(order); err != nil {
			pm.logger.Errorf(
				"could not persist recovered order [%v]: [%v]",
				order.ID,
				err,
			)
			return
		}

		pm.eventService.Publish(NewOrderExecutedEvent(order))

		pm.logger.Infof(
			"recovered order [%v] from broker position [%v]",
			order.ID,
			order.BrokerOrderID,
		)

		return
	}

	if time.Since(order.CreatedAt) <= pendingOrderGrace {
		return
	}

	order.FailureReason = "dispatch was never acknowledged by the platform"

	if err := order.TransitionTo(OrderFailed); err != nil {
		pm.logger.Errorf(
			"could not fail stale pending order [%v]: [%v]",
			order.ID,
			err,
		)
		return
	}

	if err := pm.orderRepository.UpdateOrder(order); err != nil {
		pm.logger.Errorf(
			"could not persist stale pending order [%v]: [%v]",
			order.ID,
			err,
		)
		return
	}

	pm.eventService.Publish(NewOrderExecutedEvent(order))

	pm.logger.Warningf(
		"failed stale pending order [%v] for signal [%v]",
		order.ID,
		order.SignalID,
	)
}

// exitReason evaluates the exit conditions in priority order: stop loss,
// opposing signal, take profit, max holding duration. The first satisfied
// condition wins.
func (pm *PositionMonitor) exitReason(
	order *Order,
	position *BrokerPosition,
) (ExitReason, bool) {
	price := position.CurrentPrice
	if price == nil {
		return 0, false
	}

	if order.StopLoss != nil && stopLossBreached(order.Side, price, order.StopLoss) {
		return ExitStopLoss, true
	}

	if pm.hasOpposingSignal(order) {
		return ExitOpposingSignal, true
	}

	if order.TakeProfit != nil &&
		takeProfitReached(order.Side, price, order.TakeProfit) {
		return ExitTakeProfit, true
	}

	if pm.config.MaxHoldingTime > 0 &&
		!order.OpenedAt.IsZero() &&
		time.Since(order.OpenedAt) > pm.config.MaxHoldingTime {
		return ExitMaxDuration, true
	}

	return 0, false
}

func (pm *PositionMonitor) hasOpposingSignal(order *Order) bool {
	signal, err := pm.signalRepository.LatestSignal(order.Symbol)
	if err != nil {
		pm.logger.Warningf(
			"could not get latest signal for symbol [%v]: [%v]",
			order.Symbol,
			err,
		)
		return false
	}

	if signal == nil || !signal.Action.IsEntry() {
		return false
	}

	if !signal.CreatedAt.After(order.OpenedAt) {
		return false
	}

	return signal.Action.EntrySide() == order.Side.Opposite()
}

// matchPosition pairs an order with its broker position, primarily by the
// broker-assigned identifier. An order whose acknowledgement was lost has
// no identifier yet; it falls back to the newest unclaimed position of the
// same symbol and side.
func matchPosition(
	order *Order,
	positions []*BrokerPosition,
	claimed map[string]bool,
) *BrokerPosition {
	if order.BrokerOrderID != "" {
		for _, position := range positions {
			if position.BrokerOrderID == order.BrokerOrderID {
				claimed[position.BrokerOrderID] = true
				return position
			}
		}
		return nil
	}

	var newest *BrokerPosition
	for _, position := range positions {
		if claimed[position.BrokerOrderID] {
			continue
		}
		if position.Symbol != order.Symbol || position.Side != order.Side {
			continue
		}
		if newest == nil || position.OpenedAt.After(newest.OpenedAt) {
			newest = position
		}
	}

	if newest != nil {
		claimed[newest.BrokerOrderID] = true
		order.BrokerOrderID = newest.BrokerOrderID
	}

	return newest
}

func stopLossBreached(
	side OrderSide,
	price *big.Float,
	stopLoss *big.Float,
) bool {
	if side == SideBuy {
		return price.Cmp(stopLoss) <= 0
	}

	return price.Cmp(stopLoss) >= 0
}

func takeProfitReached(
	side OrderSide,
	price *big.Float,
	takeProfit *big.Float,
) bool {
	if side == SideBuy {
		return price.Cmp(takeProfit) >= 0
	}

	return price.Cmp(takeProfit) <= 0
}
