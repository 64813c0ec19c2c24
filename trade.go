package autobot

import (
	"fmt"
	"math/big"
	"time"
)

type ExitReason int

const (
	ExitStopLoss ExitReason = iota
	ExitOpposingSignal
	ExitTakeProfit
	ExitMaxDuration
	ExitManual
	ExitReconciled
)

func ParseExitReason(value string) (ExitReason, error) {
	switch value {
	case "STOP_LOSS":
		return ExitStopLoss, nil
	case "OPPOSING_SIGNAL":
		return ExitOpposingSignal, nil
	case "TAKE_PROFIT":
		return ExitTakeProfit, nil
	case "MAX_DURATION":
		return ExitMaxDuration, nil
	case "MANUAL":
		return ExitManual, nil
	case "RECONCILED":
		return ExitReconciled, nil
	}

	return -1, fmt.Errorf("unknown exit reason: [%v]", value)
}

func (er ExitReason) String() string {
	switch er {
	case ExitStopLoss:
		return "STOP_LOSS"
	case ExitOpposingSignal:
		return "OPPOSING_SIGNAL"
	case ExitTakeProfit:
		return "TAKE_PROFIT"
	case ExitMaxDuration:
		return "MAX_DURATION"
	case ExitManual:
		return "MANUAL"
	case ExitReconciled:
		return "RECONCILED"
	default:
		panic("unknown exit reason")
	}
}

// TradeRepository is the read side of the trade ledger. Trades are written
// only through OrderRepository.CloseOrder.
type TradeRepository interface {
	Trades(accountID ID) ([]*TradeRecord, error)
}

type TradeRecord struct {
	ID        ID
	OrderID   ID
	AccountID ID

	Symbol string
	Side   OrderSide

	Quantity   *big.Float
	EntryPrice *big.Float
	ExitPrice  *big.Float

	ProfitLoss        *big.Float
	ProfitLossPercent *big.Float
	Commission        *big.Float

	ExitReason ExitReason

	OpenedAt time.Time
	ClosedAt time.Time
}

func (tr *TradeRecord) Duration() time.Duration {
	return tr.ClosedAt.Sub(tr.OpenedAt)
}

// NewTradeRecord derives the trade outcome from a closed order:
// profit/loss is (exit - entry) * quantity, negated for sells, minus the
// commission; the percent variant relates that to the entry notional.
func NewTradeRecord(
	id ID,
	order *Order,
	exitPrice *big.Float,
	commission *big.Float,
	reason ExitReason,
) *TradeRecord {
	if commission == nil {
		commission = big.NewFloat(0)
	}

	// A missing price on either side makes the trade flat: whichever side
	// is known stands in for both, zero when neither is.
	entryPrice := order.EntryPrice
	if exitPrice == nil {
		exitPrice = entryPrice
	}
	if entryPrice == nil {
		entryPrice = exitPrice
	}
	if entryPrice == nil {
		entryPrice = big.NewFloat(0)
		exitPrice = big.NewFloat(0)
	}

	quantity := order.ExecutedVolume
	if quantity == nil {
		quantity = big.NewFloat(0)
	}

	direction := big.NewFloat(1)
	if order.Side == SideSell {
		direction = big.NewFloat(-1)
	}

	gross := new(big.Float).Mul(
		new(big.Float).Sub(exitPrice, entryPrice),
		new(big.Float).Mul(quantity, direction),
	)

	profitLoss := new(big.Float).Sub(gross, commission)

	profitLossPercent := big.NewFloat(0)
	notional := new(big.Float).Mul(entryPrice, quantity)
	if notional.Sign() != 0 {
		profitLossPercent = new(big.Float).Mul(
			new(big.Float).Quo(profitLoss, notional),
			big.NewFloat(100),
		)
	}

	return &TradeRecord{
		ID:                id,
		OrderID:           order.ID,
		AccountID:         order.AccountID,
		Symbol:            order.Symbol,
		Side:              order.Side,
		Quantity:          quantity,
		EntryPrice:        entryPrice,
		ExitPrice:         exitPrice,
		ProfitLoss:        profitLoss,
		ProfitLossPercent: profitLossPercent,
		Commission:        commission,
		ExitReason:        reason,
		OpenedAt:          order.OpenedAt,
		ClosedAt:          order.ClosedAt,
	}
}
