package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gudax/autobot"
	"github.com/jackc/pgtype"
)

const createOrderQuery = `INSERT INTO
    trading_order (id, signal_id, account_id, symbol, side, status,
                   requested_volume, executed_volume, entry_price,
                   stop_loss, take_profit, broker_order_id,
                   failure_reason, created_at, opened_at, closed_at)
    VALUES (:id, :signal_id, :account_id, :symbol, :side, :status,
            :requested_volume, :executed_volume, :entry_price,
            :stop_loss, :take_profit, :broker_order_id,
            :failure_reason, :created_at, :opened_at, :closed_at)`

const updateOrderQuery = `UPDATE trading_order SET
    status = :status,
    executed_volume = :executed_volume,
    entry_price = :entry_price,
    stop_loss = :stop_loss,
    take_profit = :take_profit,
    broker_order_id = :broker_order_id,
    failure_reason = :failure_reason,
    opened_at = :opened_at,
    closed_at = :closed_at
    WHERE id = :id`

type OrderRepository struct {
	client    *Client
	idService autobot.IDService
}

func NewOrderRepository(
	client *Client,
	idService autobot.IDService,
) *OrderRepository {
	return &OrderRepository{client, idService}
}

func (or *OrderRepository) CreateOrder(order *autobot.Order) error {
	orderRow, err := new(orderRow).wrap(order)
	if err != nil {
		return fmt.Errorf(
			"could not convert order [%v] to pg row: [%v]",
			order.ID,
			err,
		)
	}

	_, err = or.client.instance().NamedExec(createOrderQuery, orderRow)
	if err != nil {
		return fmt.Errorf(
			"could not execute command for order [%v]: [%v]",
			order.ID,
			err,
		)
	}

	return nil
}

func (or *OrderRepository) UpdateOrder(order *autobot.Order) error {
	orderRow, err := new(orderRow).wrap(order)
	if err != nil {
		return fmt.Errorf(
			"could not convert order [%v] to pg row: [%v]",
			order.ID,
			err,
		)
	}

	_, err = or.client.instance().NamedExec(updateOrderQuery, orderRow)
	if err != nil {
		return fmt.Errorf(
			"could not execute command for order [%v]: [%v]",
			order.ID,
			err,
		)
	}

	return nil
}

// CloseOrder stores the closed order and its trade record within a single
// transaction. Either both make it to the database or neither does.
func (or *OrderRepository) CloseOrder(
	order *autobot.Order,
	trade *autobot.TradeRecord,
) error {
	orderRow, err := new(orderRow).wrap(order)
	if err != nil {
		return fmt.Errorf(
			"could not convert order [%v] to pg row: [%v]",
			order.ID,
			err,
		)
	}

	tradeRow, err := new(tradeRow).wrap(trade)
	if err != nil {
		return fmt.Errorf(
			"could not convert trade [%v] to pg row: [%v]",
			trade.ID,
			err,
		)
	}

	transaction, err := or.client.instance().Beginx()
	if err != nil {
		return fmt.Errorf("could not begin transaction: [%v]", err)
	}

	_, err = transaction.NamedExec(updateOrderQuery, orderRow)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf(
			"could not execute command for order [%v]: [%v]",
			order.ID,
			err,
		)
	}

	_, err = transaction.NamedExec(createTradeQuery, tradeRow)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf(
			"could not execute command for trade [%v]: [%v]",
			trade.ID,
			err,
		)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: [%v]", err)
	}

	return nil
}

func (or *OrderRepository) OrderBySignal(
	signalID autobot.ID,
	accountID autobot.ID,
) (*autobot.Order, error) {
	var orderRow orderRow

	query := `SELECT * FROM trading_order
		WHERE signal_id = $1 AND account_id = $2`

	err := or.client.instance().Get(
		&orderRow,
		query,
		signalID.String(),
		accountID.String(),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("could not execute query: [%v]", err)
	}

	return orderRow.unwrap(or.idService)
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
	var count int

	query := `SELECT COUNT(*) FROM trading_order
		WHERE account_id = $1 AND status = $2`

	err := or.client.instance().Get(
		&count,
		query,
		accountID.String(),
		autobot.OrderOpen.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("could not execute query: [%v]", err)
	}

	return count, nil
}

func (or *OrderRepository) ordersByStatus(
	accountID autobot.ID,
	statuses ...autobot.OrderStatus,
) ([]*autobot.Order, error) {
	statusValues := make([]string, 0, len(statuses))
	for _, status := range statuses {
		statusValues = append(statusValues, status.String())
	}

	query := `SELECT * FROM trading_order
		WHERE account_id = $1 AND status = ANY($2)
		ORDER BY created_at ASC`

	var orderRows []orderRow

	err := or.client.instance().Select(
		&orderRows,
		query,
		accountID.String(),
		statusValues,
	)
	if err != nil {
		return nil, fmt.Errorf("could not execute query: [%v]", err)
	}

	orders := make([]*autobot.Order, 0, len(orderRows))
	for _, row := range orderRows {
		order, err := row.unwrap(or.idService)
		if err != nil {
			return nil, fmt.Errorf(
				"could not convert order [%v] from pg row: [%v]",
				row.ID,
				err,
			)
		}

		orders = append(orders, order)
	}

	return orders, nil
}

type orderRow struct {
	ID              string
	SignalID        string `db:"signal_id"`
	AccountID       string `db:"account_id"`
	Symbol          string
	Side            string
	Status          string
	RequestedVolume pgtype.Numeric `db:"requested_volume"`
	ExecutedVolume  pgtype.Numeric `db:"executed_volume"`
	EntryPrice      pgtype.Numeric `db:"entry_price"`
	StopLoss        pgtype.Numeric `db:"stop_loss"`
	TakeProfit      pgtype.Numeric `db:"take_profit"`
	BrokerOrderID   string         `db:"broker_order_id"`
	FailureReason   string         `db:"failure_reason"`
	CreatedAt       time.Time      `db:"created_at"`
	OpenedAt        sql.NullTime   `db:"opened_at"`
	ClosedAt        sql.NullTime   `db:"closed_at"`
}

func (or *orderRow) wrap(order *autobot.Order) (*orderRow, error) {
	requestedVolume, err := floatToNumeric(order.RequestedVolume)
	if err != nil {
		return nil, err
	}

	executedVolume, err := nullableFloatToNumeric(order.ExecutedVolume)
	if err != nil {
		return nil, err
	}

	entryPrice, err := nullableFloatToNumeric(order.EntryPrice)
	if err != nil {
		return nil, err
	}

	stopLoss, err := nullableFloatToNumeric(order.StopLoss)
	if err != nil {
		return nil, err
	}

	takeProfit, err := nullableFloatToNumeric(order.TakeProfit)
	if err != nil {
		return nil, err
	}

	or.ID = order.ID.String()
	or.SignalID = order.SignalID.String()
	or.AccountID = order.AccountID.String()
	or.Symbol = order.Symbol
	or.Side = order.Side.String()
	or.Status = order.Status.String()
	or.RequestedVolume = requestedVolume
	or.ExecutedVolume = executedVolume
	or.EntryPrice = entryPrice
	or.StopLoss = stopLoss
	or.TakeProfit = takeProfit
	or.BrokerOrderID = order.BrokerOrderID
	or.FailureReason = order.FailureReason
	or.CreatedAt = order.CreatedAt
	or.OpenedAt = nullableTime(order.OpenedAt)
	or.ClosedAt = nullableTime(order.ClosedAt)

	return or, nil
}

func (or *orderRow) unwrap(
	idService autobot.IDService,
) (*autobot.Order, error) {
	ID, err := idService.NewIDFromString(or.ID)
	if err != nil {
		return nil, err
	}

	signalID, err := idService.NewIDFromString(or.SignalID)
	if err != nil {
		return nil, err
	}

	accountID, err := idService.NewIDFromString(or.AccountID)
	if err != nil {
		return nil, err
	}

	side, err := autobot.ParseOrderSide(or.Side)
	if err != nil {
		return nil, err
	}

	status, err := autobot.ParseOrderStatus(or.Status)
	if err != nil {
		return nil, err
	}

	requestedVolume, err := numericToFloat(or.RequestedVolume)
	if err != nil {
		return nil, err
	}

	executedVolume, err := numericToNullableFloat(or.ExecutedVolume)
	if err != nil {
		return nil, err
	}

	entryPrice, err := numericToNullableFloat(or.EntryPrice)
	if err != nil {
		return nil, err
	}

	stopLoss, err := numericToNullableFloat(or.StopLoss)
	if err != nil {
		return nil, err
	}

	takeProfit, err := numericToNullableFloat(or.TakeProfit)
	if err != nil {
		return nil, err
	}

	return &autobot.Order{
		ID:              ID,
		SignalID:        signalID,
		AccountID:       accountID,
		Symbol:          or.Symbol,
		Side:            side,
		Status:          status,
		RequestedVolume: requestedVolume,
		ExecutedVolume:  executedVolume,
		EntryPrice:      entryPrice,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		BrokerOrderID:   or.BrokerOrderID,
		FailureReason:   or.FailureReason,
		CreatedAt:       or.CreatedAt,
		OpenedAt:        or.OpenedAt.Time,
		ClosedAt:        or.ClosedAt.Time,
	}, nil
}

func nullableTime(value time.Time) sql.NullTime {
	return sql.NullTime{Time: value, Valid: !value.IsZero()}
}
