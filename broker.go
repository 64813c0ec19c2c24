package autobot

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

type Credentials struct {
	Email    string
	Password string
	BrokerID string
}

// SessionTokens is the set of tokens a broker session operates with. The
// auth token authorizes manager calls, the trading API token authorizes
// trading calls.
type SessionTokens struct {
	AuthToken        string
	TradingAPIToken  string
	TradingAccountID string
}

// BrokerSession is the platform side view of a freshly created or refreshed
// session. ExpiresIn is zero when the platform does not announce expiry.
type BrokerSession struct {
	SessionTokens

	ExpiresIn time.Duration
}

type AccountBalance struct {
	Balance    *big.Float
	Equity     *big.Float
	Margin     *big.Float
	FreeMargin *big.Float
	Leverage   *big.Float
	Currency   string
}

type OpenPositionParams struct {
	// IdempotencyKey makes the open request replay-safe on the platform
	// side. It is a pure function of the originating signal and account.
	IdempotencyKey string

	Symbol     string
	Side       OrderSide
	Volume     *big.Float
	StopLoss   *big.Float
	TakeProfit *big.Float
}

type PositionAck struct {
	BrokerOrderID string
	OpenPrice     *big.Float
	OpenTime      time.Time
}

type BrokerPosition struct {
	BrokerOrderID string
	Symbol        string
	Side          OrderSide
	Volume        *big.Float
	OpenPrice     *big.Float
	CurrentPrice  *big.Float
	Profit        *big.Float
	Commission    *big.Float
	OpenedAt      time.Time
}

type PositionClose struct {
	BrokerOrderID string
	ClosePrice    *big.Float
	Profit        *big.Float
	Commission    *big.Float
	ClosedAt      time.Time
}

type PendingOrderParams struct {
	Symbol     string
	Side       OrderSide
	Volume     *big.Float
	Price      *big.Float
	StopLoss   *big.Float
	TakeProfit *big.Float
}

type PendingOrder struct {
	BrokerOrderID string
	Symbol        string
	Side          OrderSide
	Volume        *big.Float
	Price         *big.Float
}

// BrokerGateway is the capability surface the core expects from the broker
// platform. All calls honor the passed context and return one of the typed
// errors below on failure.
type BrokerGateway interface {
	Login(
		ctx context.Context,
		credentials Credentials,
	) (*BrokerSession, error)

	RefreshToken(
		ctx context.Context,
		tokens SessionTokens,
	) (*BrokerSession, error)

	Logout(ctx context.Context, tokens SessionTokens) error

	Balance(ctx context.Context, tokens SessionTokens) (*AccountBalance, error)

	OpenPositions(
		ctx context.Context,
		tokens SessionTokens,
	) ([]*BrokerPosition, error)

	OpenPosition(
		ctx context.Context,
		tokens SessionTokens,
		params *OpenPositionParams,
	) (*PositionAck, error)

	ClosePosition(
		ctx context.Context,
		tokens SessionTokens,
		brokerOrderID string,
	) (*PositionClose, error)

	PartialClosePosition(
		ctx context.Context,
		tokens SessionTokens,
		brokerOrderID string,
		volume *big.Float,
	) (*PositionClose, error)

	EditPosition(
		ctx context.Context,
		tokens SessionTokens,
		brokerOrderID string,
		stopLoss *big.Float,
		takeProfit *big.Float,
	) error

	ClosedPositions(
		ctx context.Context,
		tokens SessionTokens,
		from time.Time,
		to time.Time,
	) ([]*PositionClose, error)

	PendingOrders(
		ctx context.Context,
		tokens SessionTokens,
	) ([]*PendingOrder, error)

	CreatePendingOrder(
		ctx context.Context,
		tokens SessionTokens,
		params *PendingOrderParams,
	) (*PendingOrder, error)

	CancelPendingOrder(
		ctx context.Context,
		tokens SessionTokens,
		brokerOrderID string,
	) error
}

// AuthError indicates the platform rejected the session credentials or
// tokens. Retryable with backoff during login; during other calls it means
// the session needs reauthentication.
type AuthError struct {
	Reason string
}

func (ae *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: [%v]", ae.Reason)
}

// ValidationError indicates the platform considers the request malformed.
// Never retryable.
type ValidationError struct {
	Reason string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("request rejected as invalid: [%v]", ve.Reason)
}

// RateLimitError indicates the platform throttled the call. RetryAfter
// carries the platform-indicated delay when announced, zero otherwise.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (rle *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited; retry after [%v]", rle.RetryAfter)
}

// ResourceGoneError indicates the addressed resource no longer exists on
// the platform side, e.g. a position that was already closed there.
type ResourceGoneError struct {
	Resource string
}

func (rge *ResourceGoneError) Error() string {
	return fmt.Sprintf("resource gone: [%v]", rge.Resource)
}

// NetworkError indicates a transport-level failure. Retryable.
type NetworkError struct {
	Err error
}

func (ne *NetworkError) Error() string {
	return fmt.Sprintf("network failure: [%v]", ne.Err)
}

func (ne *NetworkError) Unwrap() error {
	return ne.Err
}

// RejectionError indicates the platform refused the operation for a
// non-transient business reason. Never retryable.
type RejectionError struct {
	Code   int
	Reason string
}

func (re *RejectionError) Error() string {
	return fmt.Sprintf("rejected by broker with code [%v]: [%v]", re.Code, re.Reason)
}
