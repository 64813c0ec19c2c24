package inmem

import (
	"sync"

	"github.com/gudax/autobot"
)

type TradeRepository struct {
	mutex  sync.RWMutex
	trades []*autobot.TradeRecord
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{
		trades: make([]*autobot.TradeRecord, 0),
	}
}

func (tr *TradeRepository) Trades(
	accountID autobot.ID,
) ([]*autobot.TradeRecord, error) {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	trades := make([]*autobot.TradeRecord, 0)
	for _, trade := range tr.trades {
		if trade.AccountID.String() != accountID.String() {
			continue
		}

		copied := *trade
		trades = append(trades, &copied)
	}

	return trades, nil
}

func (tr *TradeRepository) add(trade *autobot.TradeRecord) {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	copied := *trade
	tr.trades = append(tr.trades, &copied)
}
