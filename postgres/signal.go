package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gudax/autobot"
	"github.com/jackc/pgtype"
)

type SignalRepository struct {
	client    *Client
	idService autobot.IDService
}

func NewSignalRepository(
	client *Client,
	idService autobot.IDService,
) *SignalRepository {
	return &SignalRepository{client, idService}
}

func (sr *SignalRepository) CreateSignal(signal *autobot.Signal) error {
	// A resubmitted signal keeps its first persisted form. The conflict
	// clause makes the insert idempotent on the signal ID.
	query := `INSERT INTO
    	signal (id, action, symbol, volume, entry_price, stop_loss,
    	        take_profit, strength, reason, created_at)
    	VALUES (:id, :action, :symbol, :volume, :entry_price, :stop_loss,
    	        :take_profit, :strength, :reason, :created_at)
    	ON CONFLICT (id) DO NOTHING`

	signalRow, err := new(signalRow).wrap(signal)
	if err != nil {
		return fmt.Errorf(
			"could not convert signal [%v] to pg row: [%v]",
			signal.ID,
			err,
		)
	}

	_, err = sr.client.instance().NamedExec(query, signalRow)
	if err != nil {
		return fmt.Errorf(
			"could not execute command for signal [%v]: [%v]",
			signal.ID,
			err,
		)
	}

	return nil
}

func (sr *SignalRepository) LatestSignal(
	symbol string,
) (*autobot.Signal, error) {
	var signalRow signalRow

	query := `SELECT * FROM signal
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT 1`

	err := sr.client.instance().Get(&signalRow, query, symbol)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("could not execute query: [%v]", err)
	}

	return signalRow.unwrap(sr.idService)
}

type signalRow struct {
	ID         string
	Action     string
	Symbol     string
	Volume     pgtype.Numeric
	EntryPrice pgtype.Numeric `db:"entry_price"`
	StopLoss   pgtype.Numeric `db:"stop_loss"`
	TakeProfit pgtype.Numeric `db:"take_profit"`
	Strength   pgtype.Numeric
	Reason     string
	CreatedAt  time.Time `db:"created_at"`
}

func (sr *signalRow) wrap(signal *autobot.Signal) (*signalRow, error) {
	volume, err := nullableFloatToNumeric(signal.Volume)
	if err != nil {
		return nil, err
	}

	entryPrice, err := nullableFloatToNumeric(signal.EntryPrice)
	if err != nil {
		return nil, err
	}

	stopLoss, err := nullableFloatToNumeric(signal.StopLoss)
	if err != nil {
		return nil, err
	}

	takeProfit, err := nullableFloatToNumeric(signal.TakeProfit)
	if err != nil {
		return nil, err
	}

	strength, err := nullableFloatToNumeric(signal.Strength)
	if err != nil {
		return nil, err
	}

	sr.ID = signal.ID.String()
	sr.Action = signal.Action.String()
	sr.Symbol = signal.Symbol
	sr.Volume = volume
	sr.EntryPrice = entryPrice
	sr.StopLoss = stopLoss
	sr.TakeProfit = takeProfit
	sr.Strength = strength
	sr.Reason = signal.Reason
	sr.CreatedAt = signal.CreatedAt

	return sr, nil
}

func (sr *signalRow) unwrap(
	idService autobot.IDService,
) (*autobot.Signal, error) {
	ID, err := idService.NewIDFromString(sr.ID)
	if err != nil {
		return nil, err
	}

	action, err := autobot.ParseSignalAction(sr.Action)
	if err != nil {
		return nil, err
	}

	volume, err := numericToNullableFloat(sr.Volume)
	if err != nil {
		return nil, err
	}

	entryPrice, err := numericToNullableFloat(sr.EntryPrice)
	if err != nil {
		return nil, err
	}

	stopLoss, err := numericToNullableFloat(sr.StopLoss)
	if err != nil {
		return nil, err
	}

	takeProfit, err := numericToNullableFloat(sr.TakeProfit)
	if err != nil {
		return nil, err
	}

	strength, err := numericToNullableFloat(sr.Strength)
	if err != nil {
		return nil, err
	}

	return &autobot.Signal{
		ID:         ID,
		Action:     action,
		Symbol:     sr.Symbol,
		Volume:     volume,
		EntryPrice: entryPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Strength:   strength,
		Reason:     sr.Reason,
		CreatedAt:  sr.CreatedAt,
	}, nil
}
