package inmem

import (
	"fmt"
	"sync"

	"github.com/gudax/autobot"
)

type OrderRepository struct {
	mutex           sync.RWMutex
	orders          map[string]*autobot.Order
	ordersBySignal  map[string]string
	tradeRepository *TradeRepository
}

// NewOrderRepository creates an order repository bound to the given trade
// repository. CloseOrder stores the closed order and records the trade as
// one operation, mirroring the transactional contract of the persistent
// implementation.
func NewOrderRepository(tradeRepository *TradeRepository) *OrderRepository {
	return &OrderRepository{
		orders:          make(map[string]*autobot.Order),
		ordersBySignal:  make(map[string]string),
		tradeRepository: tradeRepository,
	}
}

func (or *OrderRepository) CreateOrder(order *autobot.Order) error {
	or.mutex.Lock()
	defer or.mutex.Unlock()

	if _, exists := or.orders[order.ID.String()]; exists {
		return fmt.Errorf("order [%v] already exists", order.ID)
	}

	signalKey := orderSignalKey(order.SignalID, order.AccountID)
	if _, exists := or.ordersBySignal[signalKey]; exists {
		return fmt.Errorf(
			"order for signal [%v] and account [%v] already exists",
			order.SignalID,
			order.AccountID,
		)
	}

	copied := *order
	or.orders[order.ID.String()] = &copied
	or.ordersBySignal[signalKey] = order.ID.String()

	return nil
}

func (or *OrderRepository) UpdateOrder(order *autobot.Order) error {
	or.mutex.Lock()
	defer or.mutex.Unlock()

	if _, exists := or.orders[order.ID.String()]; !exists {
		return fmt.Errorf("no order with ID [%v]", order.ID)
	}

	copied := *order
	or.orders[order.ID.String()] = &copied

	return nil
}

func (or *OrderRepository) CloseOrder(
	order *autobot.Order,
	trade *autobot.TradeRecord,
) error {
	or.mutex.Lock()
	defer or.mutex.Unlock()

	if _, exists := or.orders[order.ID.String()]; !exists {
		return fmt.Errorf("no order with ID [%v]", order.ID)
	}

	if order.Status != autobot.OrderClosed {
		return fmt.Errorf(
			"cannot close order [%v] with status [%v]",
			order.ID,
			order.Status,
		)
	}

	copied := *order
	or.orders[order.ID.String()] = &copied
	or.tradeRepository.add(trade)

	return nil
}

func (or *OrderRepository) OrderBySignal(
	signalID autobot.ID,
	accountID autobot.ID,
) (*autobot.Order, error) {
	or.mutex.RLock()
	defer or.mutex.RUnlock()

	orderID, exists := or.ordersBySignal[orderSignalKey(signalID, accountID)]
	if !exists {
		return nil, nil
	}

	copied := *or.orders[orderID]
	return &copied, nil
}

func (or *OrderRepository) OpenOrders(
	accountID autobot.ID,
) ([]*autobot.Order, error) {
	return or.ordersByStatus(accountID, autobot.OrderOpen)
}

func (or *OrderRepository) LiveOrders(
	accountID autobot.ID,
) ([]*autobot.Order, error) {
	return or.ordersByStatus(
		accountID,
		autobot.OrderPending,
		autobot.OrderOpen,
	)
}

func (or *OrderRepository) OpenOrdersCount(
	accountID autobot.ID,
) (int, error) {
	orders, err := or.ordersByStatus(accountID, autobot.OrderOpen)
	if err != nil {
		return 0, err
	}

	return len(orders), nil
}

func (or *OrderRepository) ordersByStatus(
	accountID autobot.ID,
	statuses ...autobot.OrderStatus,
) ([]*autobot.Order, error) {
	or.mutex.RLock()
	defer or.mutex.RUnlock()

	orders := make([]*autobot.Order, 0)
	for _, order := range or.orders {
		if order.AccountID.String() != accountID.String() {
			continue
		}

		for _, status := range statuses {
			if order.Status == status {
				copied := *order
				orders = append(orders, &copied)
				break
			}
		}
	}

	return orders, nil
}

func orderSignalKey(signalID, accountID autobot.ID) string {
	return signalID.String() + ":" + accountID.String()
}
