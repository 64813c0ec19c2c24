// Package matchtrade implements the broker gateway against the Match-Trade
// manager and trading REST APIs.
package matchtrade

import (
	"context"
	"math/big"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gudax/autobot"
)

const requestTimeout = 1 * time.Minute

const (
	authorizationHeader   = "Authorization"
	tradingAPITokenHeader = "Trading-Api-Token"
	idempotencyKeyHeader  = "Idempotency-Key"
)

type Config struct {
	URL     string
	Timeout time.Duration
}

type Gateway struct {
	logger autobot.Logger
	client *resty.Client
}

func NewGateway(logger autobot.Logger, config *Config) *Gateway {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}

	client := resty.New()
	client.SetBaseURL(config.URL)
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &Gateway{
		logger: logger,
		client: client,
	}
}

// managerRequest prepares a request authorized for the manager API.
func (g *Gateway) managerRequest(
	ctx context.Context,
	tokens autobot.SessionTokens,
) *resty.Request {
	return g.client.R().
		SetContext(ctx).
		SetHeader(authorizationHeader, "Bearer "+tokens.AuthToken)
}

// tradingRequest prepares a request authorized for the trading API. Trading
// calls carry the trading API token on top of the manager auth token.
func (g *Gateway) tradingRequest(
	ctx context.Context,
	tokens autobot.SessionTokens,
) *resty.Request {
	return g.managerRequest(ctx, tokens).
		SetHeader(tradingAPITokenHeader, tokens.TradingAPIToken)
}

func floatValue(value *big.Float) float64 {
	if value == nil {
		return 0
	}

	float, _ := value.Float64()
	return float
}

func optionalFloat(value *big.Float) *float64 {
	if value == nil {
		return nil
	}

	float, _ := value.Float64()
	return &float
}
