package postgres

import (
	"fmt"
	"time"

	"github.com/gudax/autobot"
	"github.com/jackc/pgtype"
)

const createTradeQuery = `INSERT INTO
    trade (id, order_id, account_id, symbol, side, quantity, entry_price,
           exit_price, profit_loss, profit_loss_percent, commission,
           exit_reason, opened_at, closed_at)
    VALUES (:id, :order_id, :account_id, :symbol, :side, :quantity,
            :entry_price, :exit_price, :profit_loss, :profit_loss_percent,
            :commission, :exit_reason, :opened_at, :closed_at)`

type TradeRepository struct {
	client    *Client
	idService autobot.IDService
}

func NewTradeRepository(
	client *Client,
	idService autobot.IDService,
) *TradeRepository {
	return &TradeRepository{client, idService}
}

func (tr *TradeRepository) Trades(
	accountID autobot.ID,
) ([]*autobot.TradeRecord, error) {
	var tradeRows []tradeRow

	query := `SELECT * FROM trade
		WHERE account_id = $1
		ORDER BY closed_at DESC`

	err := tr.client.instance().Select(
		&tradeRows,
		query,
		accountID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not execute query: [%v]", err)
	}

	trades := make([]*autobot.TradeRecord, 0, len(tradeRows))
	for _, row := range tradeRows {
		trade, err := row.unwrap(tr.idService)
		if err != nil {
			return nil, fmt.Errorf(
				"could not convert trade [%v] from pg row: [%v]",
				row.ID,
				err,
			)
		}

		trades = append(trades, trade)
	}

	return trades, nil
}

type tradeRow struct {
	ID                string
	OrderID           string `db:"order_id"`
	AccountID         string `db:"account_id"`
	Symbol            string
	Side              string
	Quantity          pgtype.Numeric
	EntryPrice        pgtype.Numeric `db:"entry_price"`
	ExitPrice         pgtype.Numeric `db:"exit_price"`
	ProfitLoss        pgtype.Numeric `db:"profit_loss"`
	ProfitLossPercent pgtype.Numeric `db:"profit_loss_percent"`
	Commission        pgtype.Numeric
	ExitReason        string    `db:"exit_reason"`
	OpenedAt          time.Time `db:"opened_at"`
	ClosedAt          time.Time `db:"closed_at"`
}

func (tr *tradeRow) wrap(trade *autobot.TradeRecord) (*tradeRow, error) {
	quantity, err := floatToNumeric(trade.Quantity)
	if err != nil {
		return nil, err
	}

	entryPrice, err := floatToNumeric(trade.EntryPrice)
	if err != nil {
		return nil, err
	}

	exitPrice, err := floatToNumeric(trade.ExitPrice)
	if err != nil {
		return nil, err
	}

	profitLoss, err := floatToNumeric(trade.ProfitLoss)
	if err != nil {
		return nil, err
	}

	profitLossPercent, err := floatToNumeric(trade.ProfitLossPercent)
	if err != nil {
		return nil, err
	}

	commission, err := floatToNumeric(trade.Commission)
	if err != nil {
		return nil, err
	}

	tr.ID = trade.ID.String()
	tr.OrderID = trade.OrderID.String()
	tr.AccountID = trade.AccountID.String()
	tr.Symbol = trade.Symbol
	tr.Side = trade.Side.String()
	tr.Quantity = quantity
	tr.EntryPrice = entryPrice
	tr.ExitPrice = exitPrice
	tr.ProfitLoss = profitLoss
	tr.ProfitLossPercent = profitLossPercent
	tr.Commission = commission
	tr.ExitReason = trade.ExitReason.String()
	tr.OpenedAt = trade.OpenedAt
	tr.ClosedAt = trade.ClosedAt

	return tr, nil
}

func (tr *tradeRow) unwrap(
	idService autobot.IDService,
) (*autobot.TradeRecord, error) {
	ID, err := idService.NewIDFromString(tr.ID)
	if err != nil {
		return nil, err
	}

	orderID, err := idService.NewIDFromString(tr.OrderID)
	if err != nil {
		return nil, err
	}

	accountID, err := idService.NewIDFromString(tr.AccountID)
	if err != nil {
		return nil, err
	}

	side, err := autobot.ParseOrderSide(tr.Side)
	if err != nil {
		return nil, err
	}

	exitReason, err := autobot.ParseExitReason(tr.ExitReason)
	if err != nil {
		return nil, err
	}

	quantity, err := numericToFloat(tr.Quantity)
	if err != nil {
		return nil, err
	}

	entryPrice, err := numericToFloat(tr.EntryPrice)
	if err != nil {
		return nil, err
	}

	exitPrice, err := numericToFloat(tr.ExitPrice)
	if err != nil {
		return nil, err
	}

	profitLoss, err := numericToFloat(tr.ProfitLoss)
	if err != nil {
		return nil, err
	}

	profitLossPercent, err := numericToFloat(tr.ProfitLossPercent)
	if err != nil {
		return nil, err
	}

	commission, err := numericToFloat(tr.Commission)
	if err != nil {
		return nil, err
	}

	return &autobot.TradeRecord{
		ID:                ID,
		OrderID:           orderID,
		AccountID:         accountID,
		Symbol:            tr.Symbol,
		Side:              side,
		Quantity:          quantity,
		EntryPrice:        entryPrice,
		ExitPrice:         exitPrice,
		ProfitLoss:        profitLoss,
		ProfitLossPercent: profitLossPercent,
		Commission:        commission,
		ExitReason:        exitReason,
		OpenedAt:          tr.OpenedAt,
		ClosedAt:          tr.ClosedAt,
	}, nil
}
