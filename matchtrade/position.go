package matchtrade

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/gudax/autobot"
)

type positionPayload struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"openPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	Profit       float64   `json:"profit"`
	Commission   float64   `json:"commission"`
	OpenTime     time.Time `json:"openTime"`
}

type positionsResponse struct {
	Positions []positionPayload `json:"positions"`
}

func (g *Gateway) OpenPositions(
	ctx context.Context,
	tokens autobot.SessionTokens,
) ([]*autobot.BrokerPosition, error) {
	response, err := g.tradingRequest(ctx, tokens).
		Get("/trading/positions/opened")
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	var payload positionsResponse
	if err := json.Unmarshal(response.Body(), &payload); err != nil {
		return nil, fmt.Errorf("could not parse positions payload: [%v]", err)
	}

	positions := make([]*autobot.BrokerPosition, 0, len(payload.Positions))
	for _, position := range payload.Positions {
		side, err := autobot.ParseOrderSide(position.Side)
		if err != nil {
			return nil, fmt.Errorf(
				"could not parse side of position [%v]: [%v]",
				position.ID,
				err,
			)
		}

		positions = append(positions, &autobot.BrokerPosition{
			BrokerOrderID: position.ID,
			Symbol:        position.Symbol,
			Side:          side,
			Volume:        big.NewFloat(position.Volume),
			OpenPrice:     big.NewFloat(position.OpenPrice),
			CurrentPrice:  big.NewFloat(position.CurrentPrice),
			Profit:        big.NewFloat(position.Profit),
			Commission:    big.NewFloat(position.Commission),
			OpenedAt:      position.OpenTime,
		})
	}

	return positions, nil
}

type openPositionRequest struct {
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Volume     float64  `json:"volume"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

type openPositionResponse struct {
	ID        string    `json:"id"`
	OpenPrice float64   `json:"openPrice"`
	OpenTime  time.Time `json:"openTime"`
}

func (g *Gateway) OpenPosition(
	ctx context.Context,
	tokens autobot.SessionTokens,
	params *autobot.OpenPositionParams,
) (*autobot.PositionAck, error) {
	response, err := g.tradingRequest(ctx, tokens).
		SetHeader(idempotencyKeyHeader, params.IdempotencyKey).
		SetBody(&openPositionRequest{
			Symbol:     params.Symbol,
			Side:       params.Side.String(),
			Volume:     floatValue(params.Volume),
			StopLoss:   optionalFloat(params.StopLoss),
			TakeProfit: optionalFloat(params.TakeProfit),
		}).
		Post("/trading/positions/open")
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	var payload openPositionResponse
	if err := json.Unmarshal(response.Body(), &payload); err != nil {
		return nil, fmt.Errorf(
			"could not parse position ack payload: [%v]",
			err,
		)
	}

	return &autobot.PositionAck{
		BrokerOrderID: payload.ID,
		OpenPrice:     big.NewFloat(payload.OpenPrice),
		OpenTime:      payload.OpenTime,
	}, nil
}

type closePositionPayload struct {
	ID         string    `json:"id"`
	ClosePrice float64   `json:"closePrice"`
	Profit     float64   `json:"profit"`
	Commission float64   `json:"commission"`
	CloseTime  time.Time `json:"closeTime"`
}

type closedPositionsResponse struct {
	Positions []closePositionPayload `json:"positions"`
}

func (g *Gateway) ClosePosition(
	ctx context.Context,
	tokens autobot.SessionTokens,
	brokerOrderID string,
) (*autobot.PositionClose, error) {
	response, err := g.tradingRequest(ctx, tokens).
		Post(fmt.Sprintf("/trading/positions/%v/close", brokerOrderID))
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	return parsePositionClose(response.Body())
}

type partialCloseRequest struct {
	Volume float64 `json:"volume"`
}

func (g *Gateway) PartialClosePosition(
	ctx context.Context,
	tokens autobot.SessionTokens,
	brokerOrderID string,
	volume *big.Float,
) (*autobot.PositionClose, error) {
	response, err := g.tradingRequest(ctx, tokens).
		SetBody(&partialCloseRequest{Volume: floatValue(volume)}).
		Post(fmt.Sprintf(
			"/trading/positions/%v/partial-close",
			brokerOrderID,
		))
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	return parsePositionClose(response.Body())
}

type editPositionRequest struct {
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

func (g *Gateway) EditPosition(
	ctx context.Context,
	tokens autobot.SessionTokens,
	brokerOrderID string,
	stopLoss *big.Float,
	takeProfit *big.Float,
) error {
	response, err := g.tradingRequest(ctx, tokens).
		SetBody(&editPositionRequest{
			StopLoss:   optionalFloat(stopLoss),
			TakeProfit: optionalFloat(takeProfit),
		}).
		Put(fmt.Sprintf("/trading/positions/%v", brokerOrderID))
	if err != nil {
		return &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return statusError(response)
	}

	return nil
}

func (g *Gateway) ClosedPositions(
	ctx context.Context,
	tokens autobot.SessionTokens,
	from time.Time,
	to time.Time,
) ([]*autobot.PositionClose, error) {
	response, err := g.tradingRequest(ctx, tokens).
		SetQueryParams(map[string]string{
			"from": from.Format(time.RFC3339),
			"to":   to.Format(time.RFC3339),
		}).
		Get("/trading/positions/closed")
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	var payload closedPositionsResponse
	if err := json.Unmarshal(response.Body(), &payload); err != nil {
		return nil, fmt.Errorf(
			"could not parse closed positions payload: [%v]",
			err,
		)
	}

	closes := make([]*autobot.PositionClose, 0, len(payload.Positions))
	for _, position := range payload.Positions {
		closes = append(closes, &autobot.PositionClose{
			BrokerOrderID: position.ID,
			ClosePrice:    big.NewFloat(position.ClosePrice),
			Profit:        big.NewFloat(position.Profit),
			Commission:    big.NewFloat(position.Commission),
			ClosedAt:      position.CloseTime,
		})
	}

	return closes, nil
}

func parsePositionClose(body []byte) (*autobot.PositionClose, error) {
	var payload closePositionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf(
			"could not parse position close payload: [%v]",
			err,
		)
	}

	return &autobot.PositionClose{
		BrokerOrderID: payload.ID,
		ClosePrice:    big.NewFloat(payload.ClosePrice),
		Profit:        big.NewFloat(payload.Profit),
		Commission:    big.NewFloat(payload.Commission),
		ClosedAt:      payload.CloseTime,
	}, nil
}
