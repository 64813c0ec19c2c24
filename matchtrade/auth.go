package matchtrade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gudax/autobot"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	BrokerID string `json:"brokerId"`
}

type sessionPayload struct {
	Token            string `json:"token"`
	TradingAPIToken  string `json:"tradingApiToken"`
	TradingAccountID string `json:"tradingAccountId"`
	ExpiresIn        int64  `json:"expiresIn"`
}

func (g *Gateway) Login(
	ctx context.Context,
	credentials autobot.Credentials,
) (*autobot.BrokerSession, error) {
	response, err := g.client.R().
		SetContext(ctx).
		SetBody(&loginRequest{
			Email:    credentials.Email,
			Password: credentials.Password,
			BrokerID: credentials.BrokerID,
		}).
		Post("/manager/mtr-login")
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	return parseSession(response.Body())
}

func (g *Gateway) RefreshToken(
	ctx context.Context,
	tokens autobot.SessionTokens,
) (*autobot.BrokerSession, error) {
	response, err := g.managerRequest(ctx, tokens).
		Post("/manager/refresh-token")
	if err != nil {
		return nil, &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return nil, statusError(response)
	}

	session, err := parseSession(response.Body())
	if err != nil {
		return nil, err
	}

	// Some platform versions omit the trading account ID on refresh.
	// It never changes within a session so carry the known one over.
	if session.TradingAccountID == "" {
		session.TradingAccountID = tokens.TradingAccountID
	}

	return session, nil
}

func (g *Gateway) Logout(
	ctx context.Context,
	tokens autobot.SessionTokens,
) error {
	response, err := g.managerRequest(ctx, tokens).Post("/manager/logout")
	if err != nil {
		return &autobot.NetworkError{Err: err}
	}

	if !response.IsSuccess() {
		return statusError(response)
	}

	return nil
}

func parseSession(body []byte) (*autobot.BrokerSession, error) {
	var payload sessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("could not parse session payload: [%v]", err)
	}

	return &autobot.BrokerSession{
		SessionTokens: autobot.SessionTokens{
			AuthToken:        payload.Token,
			TradingAPIToken:  payload.TradingAPIToken,
			TradingAccountID: payload.TradingAccountID,
		},
		ExpiresIn: time.Duration(payload.ExpiresIn) * time.Second,
	}, nil
}
