package autobot

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"
)

type noopLogger struct{}

func (nl *noopLogger) Debugf(format string, args ...interface{})   {}
func (nl *noopLogger) Infof(format string, args ...interface{})    {}
func (nl *noopLogger) Warningf(format string, args ...interface{}) {}
func (nl *noopLogger) Errorf(format string, args ...interface{})   {}
func (nl *noopLogger) Fatalf(format string, args ...interface{})   {}

func (nl *noopLogger) WithField(key string, value interface{}) Logger {
	return nl
}

func (nl *noopLogger) WithFields(fields map[string]interface{}) Logger {
	return nl
}

type testID string

func (ti testID) String() string {
	return string(ti)
}

type testIDService struct {
	mutex   sync.Mutex
	counter int
}

func (tis *testIDService) NewID() ID {
	tis.mutex.Lock()
	defer tis.mutex.Unlock()

	tis.counter++
	return testID(fmt.Sprintf("id-%v", tis.counter))
}

func (tis *testIDService) NewIDFromString(id string) (ID, error) {
	return testID(id), nil
}

func (tis *testIDService) DerivedID(seed string) ID {
	return testID("derived-" + seed)
}

type plainCipher struct{}

func (pc *plainCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (pc *plainCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

// fakeGateway is a scriptable broker platform. Every call runs the
// corresponding fn override when one is set and a benign default
// otherwise. Per-account call overlap is recorded so tests can assert
// that account work never runs concurrently for the same account.
type fakeGateway struct {
	mutex sync.Mutex

	loginFn   func(ctx context.Context, credentials Credentials) (*BrokerSession, error)
	refreshFn func(ctx context.Context, tokens SessionTokens) (*BrokerSession, error)
	logoutFn  func(ctx context.Context, tokens SessionTokens) error

	balanceFn         func(ctx context.Context, tokens SessionTokens) (*AccountBalance, error)
	openPositionsFn   func(ctx context.Context, tokens SessionTokens) ([]*BrokerPosition, error)
	openPositionFn    func(ctx context.Context, tokens SessionTokens, params *OpenPositionParams) (*PositionAck, error)
	closePositionFn   func(ctx context.Context, tokens SessionTokens, brokerOrderID string) (*PositionClose, error)
	closedPositionsFn func(ctx context.Context, tokens SessionTokens, from, to time.Time) ([]*PositionClose, error)

	loginCalls   int
	refreshCalls int
	logoutCalls  int
	balanceCalls int
	openCalls    int
	closeCalls   int

	ackCounter int

	inFlight   map[string]bool
	overlapped bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		inFlight: make(map[string]bool),
	}
}

func (fg *fakeGateway) bump(counter *int) {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	*counter++
}

func (fg *fakeGateway) calls(counter *int) int {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return *counter
}

func (fg *fakeGateway) enter(account string) {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	if fg.inFlight[account] {
		fg.overlapped = true
	}
	fg.inFlight[account] = true
}

func (fg *fakeGateway) leave(account string) {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	fg.inFlight[account] = false
}

func (fg *fakeGateway) nextBrokerOrderID() string {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	fg.ackCounter++
	return fmt.Sprintf("broker-%v", fg.ackCounter)
}

func (fg *fakeGateway) Login(
	ctx context.Context,
	credentials Credentials,
) (*BrokerSession, error) {
	fg.bump(&fg.loginCalls)
	fg.enter(credentials.Email)
	defer fg.leave(credentials.Email)

	if fg.loginFn != nil {
		return fg.loginFn(ctx, credentials)
	}

	return sessionForEmail(credentials.Email), nil
}

func (fg *fakeGateway) RefreshToken(
	ctx context.Context,
	tokens SessionTokens,
) (*BrokerSession, error) {
	fg.bump(&fg.refreshCalls)
	fg.enter(tokens.TradingAccountID)
	defer fg.leave(tokens.TradingAccountID)

	if fg.refreshFn != nil {
		return fg.refreshFn(ctx, tokens)
	}

	return &BrokerSession{
		SessionTokens: SessionTokens{
			AuthToken:        tokens.AuthToken + "-refreshed",
			TradingAPIToken:  tokens.TradingAPIToken,
			TradingAccountID: tokens.TradingAccountID,
		},
		ExpiresIn: 1 * time.Hour,
	}, nil
}

func (fg *fakeGateway) Logout(ctx context.Context, tokens SessionTokens) error {
	fg.bump(&fg.logoutCalls)

	if fg.logoutFn != nil {
		return fg.logoutFn(ctx, tokens)
	}

	return nil
}

func (fg *fakeGateway) Balance(
	ctx context.Context,
	tokens SessionTokens,
) (*AccountBalance, error) {
	fg.bump(&fg.balanceCalls)
	fg.enter(tokens.TradingAccountID)
	defer fg.leave(tokens.TradingAccountID)

	if fg.balanceFn != nil {
		return fg.balanceFn(ctx, tokens)
	}

	return &AccountBalance{
		Balance:    big.NewFloat(10000),
		Equity:     big.NewFloat(10000),
		Margin:     big.NewFloat(0),
		FreeMargin: big.NewFloat(10000),
		Currency:   "USD",
	}, nil
}

func (fg *fakeGateway) OpenPositions(
	ctx context.Context,
	tokens SessionTokens,
) ([]*BrokerPosition, error) {
	fg.enter(tokens.TradingAccountID)
	defer fg.leave(tokens.TradingAccountID)

	if fg.openPositionsFn != nil {
		return fg.openPositionsFn(ctx, tokens)
	}

	return nil, nil
}

func (fg *fakeGateway) OpenPosition(
	ctx context.Context,
	tokens SessionTokens,
	params *OpenPositionParams,
) (*PositionAck, error) {
	fg.bump(&fg.openCalls)
	fg.enter(tokens.TradingAccountID)
	defer fg.leave(tokens.TradingAccountID)

	if fg.openPositionFn != nil {
		return fg.openPositionFn(ctx, tokens, params)
	}

	return &PositionAck{
		BrokerOrderID: fg.nextBrokerOrderID(),
		OpenPrice:     big.NewFloat(100),
		OpenTime:      time.Now(),
	}, nil
}

func (fg *fakeGateway) ClosePosition(
	ctx context.Context,
	tokens SessionTokens,
	brokerOrderID string,
) (*PositionClose, error) {
	fg.bump(&fg.closeCalls)
	fg.enter(tokens.TradingAccountID)
	defer fg.leave(tokens.TradingAccountID)

	if fg.closePositionFn != nil {
		return fg.closePositionFn(ctx, tokens, brokerOrderID)
	}

	return &PositionClose{
		BrokerOrderID: brokerOrderID,
		ClosePrice:    big.NewFloat(100),
		Profit:        big.NewFloat(0),
		Commission:    big.NewFloat(0),
		ClosedAt:      time.Now(),
	}, nil
}

func (fg *fakeGateway) PartialClosePosition(
	ctx context.Context,
	tokens SessionTokens,
	brokerOrderID string,
	volume *big.Float,
) (*PositionClose, error) {
	return &PositionClose{
		BrokerOrderID: brokerOrderID,
		ClosePrice:    big.NewFloat(100),
		Profit:        big.NewFloat(0),
		Commission:    big.NewFloat(0),
		ClosedAt:      time.Now(),
	}, nil
}

func (fg *fakeGateway) EditPosition(
	ctx context.Context,
	tokens SessionTokens,
	brokerOrderID string,
	stopLoss *big.Float,
	takeProfit *big.Float,
) error {
	return nil
}

func (fg *fakeGateway) ClosedPositions(
	ctx context.Context,
	tokens SessionTokens,
	from time.Time,
	to time.Time,
) ([]*PositionClose, error) {
	fg.enter(tokens.TradingAccountID)
	defer fg.leave(tokens.TradingAccountID)

	if fg.closedPositionsFn != nil {
		return fg.closedPositionsFn(ctx, tokens, from, to)
	}

	return nil, nil
}

func (fg *fakeGateway) PendingOrders(
	ctx context.Context,
	tokens SessionTokens,
) ([]*PendingOrder, error) {
	return nil, nil
}

func (fg *fakeGateway) CreatePendingOrder(
	ctx context.Context,
	tokens SessionTokens,
	params *PendingOrderParams,
) (*PendingOrder, error) {
	return &PendingOrder{
		BrokerOrderID: fg.nextBrokerOrderID(),
		Symbol:        params.Symbol,
		Side:          params.Side,
		Volume:        params.Volume,
		Price:         params.Price,
	}, nil
}

func (fg *fakeGateway) CancelPendingOrder(
	ctx context.Context,
	tokens SessionTokens,
	brokerOrderID string,
) error {
	return nil
}

func sessionForEmail(email string) *BrokerSession {
	return &BrokerSession{
		SessionTokens: SessionTokens{
			AuthToken:        "auth-" + email,
			TradingAPIToken:  "api-" + email,
			TradingAccountID: "trading-" + email,
		},
		ExpiresIn: 1 * time.Hour,
	}
}

type fakeSessionRepository struct {
	mutex    sync.Mutex
	sessions map[string]*Session

	createErr error
	updateErr error
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{
		sessions: make(map[string]*Session),
	}
}

func (fsr *fakeSessionRepository) CreateSession(session *Session) error {
	fsr.mutex.Lock()
	defer fsr.mutex.Unlock()

	if fsr.createErr != nil {
		return fsr.createErr
	}

	fsr.sessions[session.ID.String()] = session.Snapshot()
	return nil
}

func (fsr *fakeSessionRepository) UpdateSession(session *Session) error {
	fsr.mutex.Lock()
	defer fsr.mutex.Unlock()

	if fsr.updateErr != nil {
		return fsr.updateErr
	}

	if _, exists := fsr.sessions[session.ID.String()]; !exists {
		return fmt.Errorf("no session with ID [%v]", session.ID)
	}

	fsr.sessions[session.ID.String()] = session.Snapshot()
	return nil
}

func (fsr *fakeSessionRepository) Sessions(
	filter SessionFilter,
) ([]*Session, error) {
	fsr.mutex.Lock()
	defer fsr.mutex.Unlock()

	sessions := make([]*Session, 0)
	for _, session := range fsr.sessions {
		if session.Status == filter.Status {
			sessions = append(sessions, session.Snapshot())
		}
	}

	return sessions, nil
}

func (fsr *fakeSessionRepository) session(id ID) *Session {
	fsr.mutex.Lock()
	defer fsr.mutex.Unlock()

	return fsr.sessions[id.String()]
}

type fakeOrderRepository struct {
	mutex    sync.Mutex
	orders   map[string]*Order
	bySignal map[string]string
	trades   []*TradeRecord

	createErr error
	updateErr error
	closeErr  error
}

func newFakeOrderRepository() *fakeOrderRepository {
	return &fakeOrderRepository{
		orders:   make(map[string]*Order),
		bySignal: make(map[string]string),
	}
}

func signalAccountKey(signalID ID, accountID ID) string {
	return signalID.String() + ":" + accountID.String()
}

func (fo *fakeOrderRepository) CreateOrder(order *Order) error {
	fo.mutex.Lock()
	defer fo.mutex.Unlock()

	if fo.createErr != nil {
		return fo.createErr
	}

	key := signalAccountKey(order.SignalID, order.AccountID)
	if _, exists := fo.bySignal[key]; exists {
		return fmt.Errorf(
			"order for signal [%v] and account [%v] already exists",
			order.SignalID,
			order.AccountID,
		)
	}

	copied := *order
	fo.orders[order.ID.String()] = &copied
	fo.bySignal[key] = order.ID.String()

	return nil
}

func (fo *fakeOrderRepository) UpdateOrder(order *Order) error {
	fo.mutex.Lock()
	defer fo.mutex.Unlock()

	if fo.updateErr != nil {
		return fo.updateErr
	}

	if _, exists := fo.orders[order.ID.String()]; !exists {
		return fmt.Errorf("no order with ID [%v]", order.ID)
	}

	copied := *order
	fo.orders[order.ID.String()] = &copied

	return nil
}

func (fo *fakeOrderRepository) CloseOrder(
	order *Order,
	trade *TradeRecord,
) error {
	fo.mutex.Lock()
	defer fo.mutex.Unlock()

	if fo.closeErr != nil {
		return fo.closeErr
	}

	copiedOrder := *order
	fo.orders[order.ID.String()] = &copiedOrder

	copiedTrade := *trade
	fo.trades = append(fo.trades, &copiedTrade)

	return nil
}

func (fo *fakeOrderRepository) OrderBySignal(
	signalID ID,
	accountID ID,
) (*Order, error) {
	fo.mutex.Lock()
	defer fo.mutex.Unlock()

	orderID, exists := fo.bySignal[signalAccountKey(signalID, accountID)]
	if !exists {
		return nil, nil
	}

	copied := *fo.orders[orderID]
	return &copied, nil
}

func (fo *fakeOrderRepository) OpenOrders(accountID ID) ([]*Order, error) {
	return fo.ordersIn(accountID, OrderOpen), nil
}

func (fo *fakeOrderRepository) LiveOrders(accountID ID) ([]*Order, error) {
	return fo.ordersIn(accountID, OrderPending, OrderOpen), nil
}

func (fo *fakeOrderRepository) OpenOrdersCount(accountID ID) (int, error) {
	return len(fo.ordersIn(accountID, OrderOpen)), nil
}

func (fo *fakeOrderRepository) ordersIn(
	accountID ID,
	statuses ...OrderStatus,
) []*Order {
	fo.mutex.Lock()
	defer fo.mutex.Unlock()

	orders := make([]*Order, 0)
	for _, order := range fo.orders {
		if order.AccountID.String() != accountID.String() {
			continue
		}

		for _, status := range statuses {
			if order.Status == status {
				copied := *order
				orders = append(orders, &copied)
				break
			}
		}
	}

	return orders
}

func (fo *fakeOrderRepository) order(t *testing.T, id ID) *Order {
	fo.mutex.Lock()
	defer fo.mutex.Unlock()

	order, exists := fo.orders[id.String()]
	if !exists {
		t.Fatalf("no order with ID [%v]", id)
	}

	copied := *order
	return &copied
}

func (fo *fakeOrderRepository) accountTrades(accountID ID) []*TradeRecord {
	fo.mutex.Lock()
	defer fo.mutex.Unlock()

	trades := make([]*TradeRecord, 0)
	for _, trade := range fo.trades {
		if trade.AccountID.String() == accountID.String() {
			trades = append(trades, trade)
		}
	}

	return trades
}

type fakeSignalRepository struct {
	mutex   sync.Mutex
	signals map[string]*Signal
}

func newFakeSignalRepository() *fakeSignalRepository {
	return &fakeSignalRepository{
		signals: make(map[string]*Signal),
	}
}

func (fsr *fakeSignalRepository) CreateSignal(signal *Signal) error {
	fsr.mutex.Lock()
	defer fsr.mutex.Unlock()

	if _, exists := fsr.signals[signal.ID.String()]; exists {
		return nil
	}

	copied := *signal
	fsr.signals[signal.ID.String()] = &copied

	return nil
}

func (fsr *fakeSignalRepository) LatestSignal(symbol string) (*Signal, error) {
	fsr.mutex.Lock()
	defer fsr.mutex.Unlock()

	var latest *Signal
	for _, signal := range fsr.signals {
		if signal.Symbol != symbol {
			continue
		}

		if latest == nil || signal.CreatedAt.After(latest.CreatedAt) {
			latest = signal
		}
	}

	if latest == nil {
		return nil, nil
	}

	copied := *latest
	return &copied, nil
}

type recordingEvents struct {
	mutex  sync.Mutex
	events []*Event
}

func (re *recordingEvents) Publish(event *Event) {
	re.mutex.Lock()
	defer re.mutex.Unlock()

	re.events = append(re.events, event)
}

func (re *recordingEvents) ofType(eventType EventType) []*Event {
	re.mutex.Lock()
	defer re.mutex.Unlock()

	events := make([]*Event, 0)
	for _, event := range re.events {
		if event.Type == eventType {
			events = append(events, event)
		}
	}

	return events
}

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   1 * time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
	}
}

type fixtureConfig struct {
	manager      SessionManagerConfig
	orchestrator OrchestratorConfig
	monitor      PositionMonitorConfig
}

func defaultFixtureConfig() fixtureConfig {
	return fixtureConfig{
		manager: SessionManagerConfig{
			TTL:                1 * time.Hour,
			ExpiryMargin:       1 * time.Minute,
			LoginParallelism:   4,
			MaxRefreshFailures: 3,
			RetryPolicy:        fastRetryPolicy(),
		},
		orchestrator: OrchestratorConfig{
			DispatchParallelism: 4,
			DispatchTimeout:     1 * time.Second,
			RetryPolicy:         fastRetryPolicy(),
		},
		monitor: PositionMonitorConfig{
			RequestTimeout: 1 * time.Second,
		},
	}
}

// fixture wires the session manager, the orchestrator and the position
// monitor against one fake gateway and one set of fake repositories, the
// same way the production binary wires the real ones.
type fixture struct {
	gateway   *fakeGateway
	sessions  *fakeSessionRepository
	orders    *fakeOrderRepository
	signals   *fakeSignalRepository
	events    *recordingEvents
	idService *testIDService

	manager      *SessionManager
	intake       *SignalIntake
	orchestrator *OrderOrchestrator
	monitor      *PositionMonitor
}

func newFixture(config fixtureConfig) *fixture {
	logger := &noopLogger{}
	gateway := newFakeGateway()
	sessions := newFakeSessionRepository()
	orders := newFakeOrderRepository()
	signals := newFakeSignalRepository()
	events := &recordingEvents{}
	idService := &testIDService{}
	locks := NewAccountLocks()

	manager := NewSessionManager(
		logger,
		config.manager,
		gateway,
		sessions,
		idService,
		&plainCipher{},
		events,
		locks,
	)

	intake := NewSignalIntake(signals, idService)

	orchestrator := NewOrderOrchestrator(
		logger,
		config.orchestrator,
		manager,
		gateway,
		orders,
		intake,
		idService,
		events,
		locks,
	)

	monitor := NewPositionMonitor(
		logger,
		config.monitor,
		manager,
		gateway,
		orders,
		signals,
		idService,
		events,
		locks,
	)

	return &fixture{
		gateway:      gateway,
		sessions:     sessions,
		orders:       orders,
		signals:      signals,
		events:       events,
		idService:    idService,
		manager:      manager,
		intake:       intake,
		orchestrator: orchestrator,
		monitor:      monitor,
	}
}

func newDefaultFixture() *fixture {
	return newFixture(defaultFixtureConfig())
}

func testAccount(id string, email string) *Account {
	return &Account{
		ID:                testID(id),
		Email:             email,
		BrokerID:          "broker-1",
		EncryptedPassword: []byte("password-" + email),
		RiskFraction:      big.NewFloat(1),
		Active:            true,
		CreatedAt:         time.Now(),
	}
}

func (f *fixture) login(t *testing.T, account *Account) *Session {
	session, err := f.manager.Login(context.Background(), account)
	if err != nil {
		t.Fatalf("could not log in account [%v]: [%v]", account.ID, err)
	}

	return session
}

func entrySignal(action SignalAction, symbol string, volume float64) *Signal {
	return &Signal{
		Action: action,
		Symbol: symbol,
		Volume: big.NewFloat(volume),
	}
}

// openOrder drives a signal through the orchestrator for an account that is
// already logged in and returns the persisted order.
func (f *fixture) openOrder(
	t *testing.T,
	account *Account,
	signal *Signal,
) *Order {
	report, err := f.orchestrator.ExecuteSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("could not execute signal: [%v]", err)
	}

	if report.ExecutedCount != 1 {
		t.Fatalf(
			"unexpected executed count\nexpected: [%v]\nactual:   [%v]",
			1,
			report.ExecutedCount,
		)
	}

	order, err := f.orders.OrderBySignal(signal.ID, account.ID)
	if err != nil {
		t.Fatalf("could not get order: [%v]", err)
	}
	if order == nil {
		t.Fatalf("no order for signal [%v] and account [%v]", signal.ID, account.ID)
	}

	return order
}
