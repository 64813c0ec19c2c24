package matchtrade

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/gudax/autobot"
)

type balancePayload struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"freeMargin"`
	Leverage   float64 `json:"leverage"`
	Currency   string  `json:"currency"`
}

func (g *Gateway) Balance(
	ctx context.Context,
	tokens autobot.SessionTokens,
) (*autobot.AccountBalance, error) {
	response, err := g.tradingRequest(ctx, tokens).Get("/trading/balance")
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	var payload balancePayload
	if err := json.Unmarshal(response.Body(), &payload); err != nil {
		return nil, fmt.Errorf("could not parse balance payload: [%v]", err)
	}

	return &autobot.AccountBalance{
		Balance:    big.NewFloat(payload.Balance),
		Equity:     big.NewFloat(payload.Equity),
		Margin:     big.NewFloat(payload.Margin),
		FreeMargin: big.NewFloat(payload.FreeMargin),
		Leverage:   big.NewFloat(payload.Leverage),
		Currency:   payload.Currency,
	}, nil
}
