package matchtrade

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/gudax/autobot"
)

type pendingOrderPayload struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Volume float64 `json:"volume"`
	Price  float64 `json:"price"`
}

type pendingOrdersResponse struct {
	Orders []pendingOrderPayload `json:"orders"`
}

func (g *Gateway) PendingOrders(
	ctx context.Context,
	tokens autobot.SessionTokens,
) ([]*autobot.PendingOrder, error) {
	response, err := g.tradingRequest(ctx, tokens).
		Get("/trading/orders/active")
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	var payload pendingOrdersResponse
	if err := json.Unmarshal(response.Body(), &payload); err != nil {
		return nil, fmt.Errorf(
			"could not parse pending orders payload: [%v]",
			err,
		)
	}

	orders := make([]*autobot.PendingOrder, 0, len(payload.Orders))
	for _, order := range payload.Orders {
		parsed, err := parsePendingOrder(&order)
		if err != nil {
			return nil, err
		}

		orders = append(orders, parsed)
	}

	return orders, nil
}

type pendingOrderRequest struct {
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Volume     float64  `json:"volume"`
	Price      float64  `json:"price"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

func (g *Gateway) CreatePendingOrder(
	ctx context.Context,
	tokens autobot.SessionTokens,
	params *autobot.PendingOrderParams,
) (*autobot.PendingOrder, error) {
	response, err := g.tradingRequest(ctx, tokens).
		SetBody(&pendingOrderRequest{
			Symbol:     params.Symbol,
			Side:       params.Side.String(),
			Volume:     floatValue(params.Volume),
			Price:      floatValue(params.Price),
			StopLoss:   optionalFloat(params.StopLoss),
			TakeProfit: optionalFloat(params.TakeProfit),
		}).
		Post("/trading/orders/pending")
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	var payload pendingOrderPayload
	if err := json.Unmarshal(response.Body(), &payload); err != nil {
		return nil, fmt.Errorf(
			"could not parse pending order payload: [%v]",
			err,
		)
	}

	return parsePendingOrder(&payload)
}

func (g *Gateway) CancelPendingOrder(
	ctx context.Context,
	tokens autobot.SessionTokens,
	brokerOrderID string,
) error {
	response, err := g.tradingRequest(ctx, tokens).
		Delete(fmt.Sprintf("/trading/orders/%v", brokerOrderID))
	if err != nil {
		return &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		// An order gone on the platform side means there is nothing left
		// to cancel. Treat it as a successful cancellation.
		if response.StatusCode() == http.StatusGone {
			g.logger.Debugf(
				"pending order [%v] already gone on cancel",
				brokerOrderID,
			)
			return nil
		}

		return statusError(response)
	}

	return nil
}

func parsePendingOrder(
	payload *pendingOrderPayload,
) (*autobot.PendingOrder, error) {
	side, err := autobot.ParseOrderSide(payload.Side)
	if err != nil {
		return nil, fmt.Errorf(
			"could not parse side of pending order [%v]: [%v]",
			payload.ID,
			err,
		)
	}

	return &autobot.PendingOrder{
		BrokerOrderID: payload.ID,
		Symbol:        payload.Symbol,
		Side:          side,
		Volume:        big.NewFloat(payload.Volume),
		Price:         big.NewFloat(payload.Price),
	}, nil
}
