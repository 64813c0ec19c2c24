package autobot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"
)

type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureAuth
	FailureValidation
	FailureSizing
	FailureTimeout
	FailureRateLimit
	FailureRejection
	FailureNetwork
	FailurePersistence
)

func (fk FailureKind) String() string {
	switch fk {
	case FailureNone:
		return "NONE"
	case FailureAuth:
		return "AUTH"
	case FailureValidation:
		return "VALIDATION"
	case FailureSizing:
		return "SIZING"
	case FailureTimeout:
		return "TIMEOUT"
	case FailureRateLimit:
		return "RATE_LIMIT"
	case FailureRejection:
		return "REJECTION"
	case FailureNetwork:
		return "NETWORK"
	case FailurePersistence:
		return "PERSISTENCE"
	default:
		panic("unknown failure kind")
	}
}

// ExecutionResult is the outcome of one dispatch. Err is set when the
// dispatch left no confirmed open order behind.
type ExecutionResult struct {
	AccountID     ID
	OrderID       ID
	Status        OrderStatus
	BrokerOrderID string
	Volume        *big.Float
	Failure       FailureKind
	Err           error
}

func (er *ExecutionResult) failed(
	kind FailureKind,
	err error,
) *ExecutionResult {
	er.Failure = kind
	er.Err = err
	return er
}

// Executed says whether this dispatch holds or held a broker position.
func (er *ExecutionResult) Executed() bool {
	return er.Err == nil &&
		(er.Status == OrderOpen || er.Status == OrderClosed)
}

// ExecutionReport is the batch outcome of a signal. It always carries one
// result per dispatched account.
type ExecutionReport struct {
	SignalID      ID
	Results       []*ExecutionResult
	ExecutedCount int
	FailedCount   int
	TotalVolume   *big.Float
	Duration      time.Duration
}

type CloseOutcome struct {
	AccountID ID
	OrderID   ID
	Trade     *TradeRecord
	Err       error
}

type OrchestratorConfig struct {
	// DispatchParallelism bounds how many accounts are dispatched to
	// concurrently.
	DispatchParallelism int

	// DispatchTimeout is the deadline for the broker-facing part of a
	// single dispatch. A dispatch past it is abandoned and reported as a
	// timeout failure.
	DispatchTimeout time.Duration

	// ContractSize converts one volume lot into instrument units when
	// estimating margin.
	ContractSize *big.Float

	// FallbackMarginPerLot estimates the margin of one lot when the
	// signal carries no entry price or the account no leverage.
	FallbackMarginPerLot *big.Float

	MinVolume  *big.Float
	VolumeStep *big.Float

	RetryPolicy RetryPolicy
}

// OrderOrchestrator fans validated signals out to every active session.
// Each account is dispatched under its account lock, with bounded
// parallelism across accounts and an idempotency guarantee of exactly one
// order per signal and account.
type OrderOrchestrator struct {
	logger          Logger
	config          OrchestratorConfig
	sessionManager  *SessionManager
	gateway         BrokerGateway
	orderRepository OrderRepository
	signalIntake    *SignalIntake
	idService       IDService
	eventService    EventService
	locks           *AccountLocks
	closer          *orderCloser
}

func NewOrderOrchestrator(
	logger Logger,
	config OrchestratorConfig,
	sessionManager *SessionManager,
	gateway BrokerGateway,
	orderRepository OrderRepository,
	signalIntake *SignalIntake,
	idService IDService,
	eventService EventService,
	locks *AccountLocks,
) *OrderOrchestrator {
	if config.DispatchParallelism < 1 {
		config.DispatchParallelism = 1
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = 30 * time.Second
	}
	if config.ContractSize == nil {
		config.ContractSize = big.NewFloat(1)
	}
	if config.FallbackMarginPerLot == nil {
		config.FallbackMarginPerLot = big.NewFloat(1000)
	}
	if config.MinVolume == nil {
		config.MinVolume = big.NewFloat(0.01)
	}
	if config.VolumeStep == nil {
		config.VolumeStep = big.NewFloat(0.01)
	}

	return &OrderOrchestrator{
		logger:          logger,
		config:          config,
		sessionManager:  sessionManager,
		gateway:         gateway,
		orderRepository: orderRepository,
		signalIntake:    signalIntake,
		idService:       idService,
		eventService:    eventService,
		locks:           locks,
		closer: &orderCloser{
			logger:          logger,
			gateway:         gateway,
			orderRepository: orderRepository,
			idService:       idService,
			eventService:    eventService,
		},
	}
}

// ExecuteSignal validates and persists the signal, then dispatches it to
// all active sessions. The report always carries exactly one result per
// session that was active at the start of the batch; individual failures
// never abort the batch.
func (oo *OrderOrchestrator) ExecuteSignal(
	ctx context.Context,
	signal *Signal,
) (*ExecutionReport, error) {
	started := time.Now()

	if err := oo.signalIntake.Accept(signal); err != nil {
		return nil, fmt.Errorf("could not accept signal: [%v]", err)
	}

	if !signal.Action.IsEntry() {
		return oo.executeClose(ctx, signal, started)
	}

	sessions := oo.sessionManager.ActiveSessions()
	results := make([]*ExecutionResult, len(sessions))

	var wait sync.WaitGroup
	semaphore := make(chan struct{}, oo.config.DispatchParallelism)

	for index, session := range sessions {
		wait.Add(1)
		semaphore <- struct{}{}

		go func(index int, session *Session) {
			defer wait.Done()
			defer func() { <-semaphore }()

			results[index] = oo.dispatch(ctx, signal, session)
		}(index, session)
	}

	wait.Wait()

	report := newExecutionReport(signal.ID, results, time.Since(started))

	oo.logger.Infof(
		"signal [%v] dispatched to [%v] accounts in [%v]: "+
			"[%v] executed, [%v] failed",
		signal.ID,
		len(results),
		report.Duration,
		report.ExecutedCount,
		report.FailedCount,
	)

	return report, nil
}

// CloseAllPositions closes every open order across all active sessions,
// or only those of the given symbol when one is passed. One failed close
// does not stop the others.
func (oo *OrderOrchestrator) CloseAllPositions(
	ctx context.Context,
	symbol string,
) ([]*CloseOutcome, error) {
	sessions := oo.sessionManager.ActiveSessions()

	outcomes := make([]*CloseOutcome, 0)
	var outcomesMutex sync.Mutex

	var wait sync.WaitGroup
	semaphore := make(chan struct{}, oo.config.DispatchParallelism)

	for _, session := range sessions {
		wait.Add(1)
		semaphore <- struct{}{}

		go func(session *Session) {
			defer wait.Done()
			defer func() { <-semaphore }()

			accountOutcomes := oo.closeAccountPositions(ctx, session, symbol)

			outcomesMutex.Lock()
			outcomes = append(outcomes, accountOutcomes...)
			outcomesMutex.Unlock()
		}(session)
	}

	wait.Wait()

	return outcomes, nil
}

func (oo *OrderOrchestrator) closeAccountPositions(
	ctx context.Context,
	session *Session,
	symbol string,
) []*CloseOutcome {
	account := session.Account

	oo.locks.Lock(account.ID)
	defer oo.locks.Unlock(account.ID)

	outcomes := make([]*CloseOutcome, 0)

	orders, err := oo.orderRepository.OpenOrders(account.ID)
	if err != nil {
		return append(outcomes, &CloseOutcome{
			AccountID: account.ID,
			Err: fmt.Errorf(
				"could not get open orders: [%v]",
				err,
			),
		})
	}

	for _, order := range orders {
		if symbol != "" && order.Symbol != symbol {
			continue
		}

		requestCtx, cancelRequestCtx := context.WithTimeout(
			ctx,
			oo.config.DispatchTimeout,
		)

		trade, err := oo.closer.close(requestCtx, session, order, ExitManual)

		cancelRequestCtx()

		outcomes = append(outcomes, &CloseOutcome{
			AccountID: account.ID,
			OrderID:   order.ID,
			Trade:     trade,
			Err:       err,
		})
	}

	return outcomes
}

func (oo *OrderOrchestrator) executeClose(
	ctx context.Context,
	signal *Signal,
	started time.Time,
) (*ExecutionReport, error) {
	symbol := signal.Symbol
	if signal.Action == SignalCloseAll {
		symbol = ""
	}

	outcomes, err := oo.CloseAllPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}

	results := make([]*ExecutionResult, 0, len(outcomes))
	for _, outcome := range outcomes {
		result := &ExecutionResult{
			AccountID: outcome.AccountID,
			OrderID:   outcome.OrderID,
		}

		if outcome.Err != nil {
			result.Status = OrderOpen
			result.failed(classifyFailure(outcome.Err), outcome.Err)
		} else {
			result.Status = OrderClosed
			if outcome.Trade != nil {
				result.Volume = outcome.Trade.Quantity
			}
		}

		results = append(results, result)
	}

	return newExecutionReport(signal.ID, results, time.Since(started)), nil
}

func (oo *OrderOrchestrator) dispatch(
	ctx context.Context,
	signal *Signal,
	session *Session,
) *ExecutionResult {
	account := session.Account

	oo.locks.Lock(account.ID)
	defer oo.locks.Unlock(account.ID)

	result := &ExecutionResult{AccountID: account.ID}

	// An order recorded for this signal and account means the dispatch
	// already happened; report the recorded outcome without touching the
	// broker again.
	existing, err := oo.orderRepository.OrderBySignal(signal.ID, account.ID)
	if err != nil {
		return result.failed(FailurePersistence, fmt.Errorf(
			"could not check for existing order: [%v]",
			err,
		))
	}
	if existing != nil {
		result.OrderID = existing.ID
		result.Status = existing.Status
		result.BrokerOrderID = existing.BrokerOrderID
		result.Volume = existing.ExecutedVolume
		if existing.Status == OrderFailed {
			result.Failure = FailureRejection
			result.Err = fmt.Errorf(
				"order failed previously: [%v]",
				existing.FailureReason,
			)
		}
		return result
	}

	if account.OpenPositionsLimit > 0 {
		openCount, err := oo.orderRepository.OpenOrdersCount(account.ID)
		if err != nil {
			return result.failed(FailurePersistence, fmt.Errorf(
				"could not count open orders: [%v]",
				err,
			))
		}

		if openCount >= account.OpenPositionsLimit {
			return oo.failDispatch(result, signal, account, FailureSizing,
				fmt.Errorf(
					"open position limit [%v] reached",
					account.OpenPositionsLimit,
				))
		}
	}

	requestCtx, cancelRequestCtx := context.WithTimeout(
		ctx,
		oo.config.DispatchTimeout,
	)
	defer cancelRequestCtx()

	var balance *AccountBalance
	err = Retry(requestCtx, &oo.config.RetryPolicy, func() error {
		var balanceErr error
		balance, balanceErr = oo.gateway.Balance(
			requestCtx,
			session.SessionTokens,
		)
		return balanceErr
	})
	if err != nil {
		return oo.failDispatch(result, signal, account, classifyFailure(err),
			fmt.Errorf("could not get balance: [%v]", err))
	}

	volume, sizingReason := oo.sizePosition(signal, account, balance)
	if sizingReason != "" {
		return oo.failDispatch(result, signal, account, FailureSizing,
			errors.New(sizingReason))
	}

	order := &Order{
		ID:              oo.idService.NewID(),
		SignalID:        signal.ID,
		AccountID:       account.ID,
		Symbol:          signal.Symbol,
		Side:            signal.Action.EntrySide(),
		Status:          OrderPending,
		RequestedVolume: signal.Volume,
		ExecutedVolume:  volume,
		EntryPrice:      signal.EntryPrice,
		StopLoss:        signal.StopLoss,
		TakeProfit:      signal.TakeProfit,
		CreatedAt:       time.Now(),
	}

	if err := oo.orderRepository.CreateOrder(order); err != nil {
		return result.failed(FailurePersistence, fmt.Errorf(
			"could not persist order: [%v]",
			err,
		))
	}

	result.OrderID = order.ID

	var ack *PositionAck
	err = Retry(requestCtx, &oo.config.RetryPolicy, func() error {
		var openErr error
		ack, openErr = oo.gateway.OpenPosition(
			requestCtx,
			session.SessionTokens,
			&OpenPositionParams{
				IdempotencyKey: oo.idempotencyKey(signal, account),
				Symbol:         signal.Symbol,
				Side:           order.Side,
				Volume:         volume,
				StopLoss:       signal.StopLoss,
				TakeProfit:     signal.TakeProfit,
			},
		)
		return openErr
	})
	if err != nil {
		kind := classifyFailure(err)
		oo.recordOrderFailure(order, err)
		result.Status = order.Status
		return result.failed(kind, err)
	}

	order.BrokerOrderID = ack.BrokerOrderID
	if ack.OpenPrice != nil {
		order.EntryPrice = ack.OpenPrice
	}
	order.OpenedAt = ack.OpenTime
	if order.OpenedAt.IsZero() {
		order.OpenedAt = time.Now()
	}

	if err := order.TransitionTo(OrderOpen); err != nil {
		return result.failed(FailurePersistence, err)
	}

	if err := oo.orderRepository.UpdateOrder(order); err != nil {
		// The position exists on the platform but the ledger lost the
		// acknowledgement. The monitor reconciles it on its next cycle.
		oo.logger.Errorf(
			"could not persist open order [%v] with broker position [%v]: "+
				"[%v]",
			order.ID,
			order.BrokerOrderID,
			err,
		)
		return result.failed(FailurePersistence, err)
	}

	result.Status = OrderOpen
	result.BrokerOrderID = order.BrokerOrderID
	result.Volume = volume

	oo.eventService.Publish(NewOrderExecutedEvent(order))

	oo.logger.Infof(
		"signal [%v] executed for account [%v]: order [%v], "+
			"broker position [%v], volume [%v]",
		signal.ID,
		account.ID,
		order.ID,
		order.BrokerOrderID,
		volume.Text('f', 3),
	)

	return result
}

// failDispatch records a failed order for the dispatch so that a replay of
// the same signal does not retry the account, then marks the result.
func (oo *OrderOrchestrator) failDispatch(
	result *ExecutionResult,
	signal *Signal,
	account *Account,
	kind FailureKind,
	dispatchErr error,
) *ExecutionResult {
	order := &Order{
		ID:              oo.idService.NewID(),
		SignalID:        signal.ID,
		AccountID:       account.ID,
		Symbol:          signal.Symbol,
		Side:            signal.Action.EntrySide(),
		Status:          OrderPending,
		RequestedVolume: signal.Volume,
		EntryPrice:      signal.EntryPrice,
		StopLoss:        signal.StopLoss,
		TakeProfit:      signal.TakeProfit,
		CreatedAt:       time.Now(),
	}

	if err := oo.orderRepository.CreateOrder(order); err != nil {
		oo.logger.Errorf(
			"could not persist failed dispatch for signal [%v] and "+
				"account [%v]: [%v]",
			signal.ID,
			account.ID,
			err,
		)
		return result.failed(kind, dispatchErr)
	}

	oo.recordOrderFailure(order, dispatchErr)

	result.OrderID = order.ID
	result.Status = order.Status

	return result.failed(kind, dispatchErr)
}

func (oo *OrderOrchestrator) recordOrderFailure(order *Order, cause error) {
	order.FailureReason = cause.Error()

	if err := order.TransitionTo(OrderFailed); err != nil {
		oo.logger.Errorf(
			"could not mark order [%v] as failed: [%v]",
			order.ID,
			err,
		)
		return
	}

	if err := oo.orderRepository.UpdateOrder(order); err != nil {
		oo.logger.Errorf(
			"could not persist failure of order [%v]: [%v]",
			order.ID,
			err,
		)
		return
	}

	oo.eventService.Publish(NewOrderExecutedEvent(order))
}

// sizePosition applies the account risk budget to the requested volume:
// volume = min(requested, balance * risk fraction / estimated margin per
// lot), floored to the volume step. A result below the broker minimum is a
// sizing failure.
func (oo *OrderOrchestrator) sizePosition(
	signal *Signal,
	account *Account,
	balance *AccountBalance,
) (*big.Float, string) {
	marginPerLot := oo.config.FallbackMarginPerLot
	if signal.EntryPrice != nil &&
		balance.Leverage != nil &&
		balance.Leverage.Sign() > 0 {
		notionalPerLot := new(big.Float).Mul(
			signal.EntryPrice,
			oo.config.ContractSize,
		)
		marginPerLot = new(big.Float).Quo(notionalPerLot, balance.Leverage)
	}

	riskFraction := account.RiskFraction
	if riskFraction == nil {
		riskFraction = big.NewFloat(0)
	}

	riskBudget := new(big.Float).Mul(balance.Balance, riskFraction)
	maxVolume := new(big.Float).Quo(riskBudget, marginPerLot)

	volume := signal.Volume
	if volume.Cmp(maxVolume) == 1 {
		volume = maxVolume
	}

	volume = floorToStep(volume, oo.config.VolumeStep)

	if volume.Cmp(oo.config.MinVolume) == -1 {
		return nil, fmt.Sprintf(
			"sized volume [%v] is below the minimum tradable volume [%v]",
			volume.Text('f', 3),
			oo.config.MinVolume.Text('f', 3),
		)
	}

	return volume, ""
}

func (oo *OrderOrchestrator) idempotencyKey(
	signal *Signal,
	account *Account,
) string {
	seed := signal.ID.String() + ":" + account.ID.String()
	return oo.idService.DerivedID(seed).String()
}

func newExecutionReport(
	signalID ID,
	results []*ExecutionResult,
	duration time.Duration,
) *ExecutionReport {
	report := &ExecutionReport{
		SignalID:    signalID,
		Results:     results,
		TotalVolume: big.NewFloat(0),
		Duration:    duration,
	}

	for _, result := range results {
		if result.Executed() {
			report.ExecutedCount++
			if result.Volume != nil {
				report.TotalVolume = new(big.Float).Add(
					report.TotalVolume,
					result.Volume,
				)
			}
		} else {
			report.FailedCount++
		}
	}

	return report
}

func classifyFailure(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return FailureAuth
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return FailureValidation
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return FailureRateLimit
	}

	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return FailureNetwork
	}

	return FailureRejection
}

func floorToStep(value *big.Float, step *big.Float) *big.Float {
	valueFloat, _ := value.Float64()
	stepFloat, _ := step.Float64()

	if stepFloat <= 0 {
		return value
	}

	// The nudge keeps an exact step multiple from flooring one step down
	// on float64 quotient noise.
	steps := math.Floor(valueFloat/stepFloat + 1e-9)

	return big.NewFloat(steps * stepFloat)
}
