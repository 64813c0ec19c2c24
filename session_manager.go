package autobot

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type SessionManagerConfig struct {
	// TTL is the assumed session lifetime when the platform does not
	// announce one on login or refresh.
	TTL time.Duration

	// ExpiryMargin is how close to expiry a session may get before a
	// health check refreshes it inline.
	ExpiryMargin time.Duration

	// LoginParallelism bounds how many accounts are logged in or
	// refreshed concurrently.
	LoginParallelism int

	// MaxRefreshFailures is the number of consecutive failed refresh
	// cycles after which a session is declared expired.
	MaxRefreshFailures int

	RetryPolicy RetryPolicy
}

// LoginResult is the per-account outcome of a login batch. Session is nil
// exactly when Err is set.
type LoginResult struct {
	Account *Account
	Session *Session
	Err     error
}

type HealthReport struct {
	Healthy      int
	ExpiringSoon int
	Expired      int
}

// SessionManager owns the broker sessions of all managed accounts. It keeps
// at most one active session per account, serializes all session-mutating
// work through the shared account locks, and mirrors every state change to
// the session repository and the event stream.
type SessionManager struct {
	logger            Logger
	config            SessionManagerConfig
	gateway           BrokerGateway
	sessionRepository SessionRepository
	idService         IDService
	cipher            CredentialCipher
	eventService      EventService
	locks             *AccountLocks

	sessionsMutex sync.RWMutex
	sessions      map[string]*Session
}

func NewSessionManager(
	logger Logger,
	config SessionManagerConfig,
	gateway BrokerGateway,
	sessionRepository SessionRepository,
	idService IDService,
	cipher CredentialCipher,
	eventService EventService,
	locks *AccountLocks,
) *SessionManager {
	if config.LoginParallelism < 1 {
		config.LoginParallelism = 1
	}
	if config.MaxRefreshFailures < 1 {
		config.MaxRefreshFailures = 1
	}

	return &SessionManager{
		logger:            logger,
		config:            config,
		gateway:           gateway,
		sessionRepository: sessionRepository,
		idService:         idService,
		cipher:            cipher,
		eventService:      eventService,
		locks:             locks,
		sessions:          make(map[string]*Session),
	}
}

// LoginAll logs in every given account with bounded parallelism. The result
// slice always has exactly one entry per account, in input order, whether
// the login succeeded or not.
func (sm *SessionManager) LoginAll(
	ctx context.Context,
	accounts []*Account,
) []*LoginResult {
	results := make([]*LoginResult, len(accounts))

	var wait sync.WaitGroup
	semaphore := make(chan struct{}, sm.config.LoginParallelism)

	for index, account := range accounts {
		wait.Add(1)
		semaphore <- struct{}{}

		go func(index int, account *Account) {
			defer wait.Done()
			defer func() { <-semaphore }()

			session, err := sm.Login(ctx, account)
			results[index] = &LoginResult{
				Account: account,
				Session: session,
				Err:     err,
			}
		}(index, account)
	}

	wait.Wait()

	return results
}

func (sm *SessionManager) Login(
	ctx context.Context,
	account *Account,
) (*Session, error) {
	sm.locks.Lock(account.ID)
	defer sm.locks.Unlock(account.ID)

	if existing := sm.session(account.ID); existing != nil &&
		existing.Status == SessionActive &&
		time.Now().Before(existing.ExpiresAt) {
		sm.logger.Debugf(
			"account [%v] already holds active session [%v]",
			account.ID,
			existing.ID,
		)
		return existing, nil
	}

	session := &Session{
		ID:        sm.idService.NewID(),
		Account:   account,
		Status:    SessionLoggingIn,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	brokerSession, err := sm.brokerLogin(ctx, account)
	if err != nil {
		return nil, fmt.Errorf(
			"could not login account [%v]: [%v]",
			account.ID,
			err,
		)
	}

	sm.applyBrokerSession(session, brokerSession)

	if err := session.TransitionTo(SessionActive); err != nil {
		return nil, err
	}

	if err := sm.sessionRepository.CreateSession(session); err != nil {
		// Do not leave an orphaned session on the platform side.
		if logoutErr := sm.gateway.Logout(
			ctx,
			session.SessionTokens,
		); logoutErr != nil {
			sm.logger.Warningf(
				"could not logout unpersisted session [%v]: [%v]",
				session.ID,
				logoutErr,
			)
		}

		return nil, fmt.Errorf(
			"could not persist session for account [%v]: [%v]",
			account.ID,
			err,
		)
	}

	sm.storeSession(session)
	sm.eventService.Publish(NewSessionUpdateEvent(session))

	sm.logger.Infof(
		"account [%v] logged in; session [%v] active until [%v]",
		account.ID,
		session.ID,
		session.ExpiresAt.Format(time.RFC3339),
	)

	return session.Snapshot(), nil
}

// Refresh renews the session tokens of the given account. A failed platform
// refresh falls back to a full re-login; when that fails too, the session
// enters reauthentication and, after the configured number of consecutive
// failed cycles, expires.
func (sm *SessionManager) Refresh(
	ctx context.Context,
	accountID ID,
) (*Session, error) {
	sm.locks.Lock(accountID)
	defer sm.locks.Unlock(accountID)

	session := sm.session(accountID)
	if session == nil {
		return nil, fmt.Errorf("no session for account [%v]", accountID)
	}

	if session.Status != SessionActive &&
		session.Status != SessionReauthenticating {
		return nil, fmt.Errorf(
			"session [%v] for account [%v] is [%v] and cannot be refreshed",
			session.ID,
			accountID,
			session.Status,
		)
	}

	var brokerSession *BrokerSession
	refreshErr := Retry(ctx, &sm.config.RetryPolicy, func() error {
		var err error
		brokerSession, err = sm.gateway.RefreshToken(
			ctx,
			session.SessionTokens,
		)
		return err
	})
	if refreshErr == nil {
		return sm.activateSession(session, brokerSession)
	}

	sm.logger.Warningf(
		"could not refresh session [%v] for account [%v]: [%v]; "+
			"attempting re-login",
		session.ID,
		accountID,
		refreshErr,
	)

	if session.Status == SessionActive {
		if err := session.TransitionTo(SessionReauthenticating); err != nil {
			return nil, err
		}
		sm.persistSession(session)
	}

	brokerSession, loginErr := sm.brokerLogin(ctx, session.Account)
	if loginErr == nil {
		return sm.activateSession(session, brokerSession)
	}

	session.RefreshFailures++

	if session.RefreshFailures >= sm.config.MaxRefreshFailures {
		if err := session.TransitionTo(SessionExpired); err != nil {
			return nil, err
		}
		sm.persistSession(session)
		sm.eventService.Publish(NewSessionUpdateEvent(session))

		return nil, fmt.Errorf(
			"session [%v] for account [%v] expired after [%v] failed "+
				"refresh cycles: [%v]",
			session.ID,
			accountID,
			session.RefreshFailures,
			loginErr,
		)
	}

	sm.persistSession(session)

	return nil, fmt.Errorf(
		"could not reauthenticate session [%v] for account [%v]: [%v]",
		session.ID,
		accountID,
		loginErr,
	)
}

// RefreshAll runs a refresh pass over all sessions that can be refreshed,
// with the same parallelism bound as login. Failures are logged; the pass
// always completes.
func (sm *SessionManager) RefreshAll(ctx context.Context) {
	sessions := sm.sessionsSnapshot(SessionActive, SessionReauthenticating)

	var wait sync.WaitGroup
	semaphore := make(chan struct{}, sm.config.LoginParallelism)

	for _, session := range sessions {
		wait.Add(1)
		semaphore <- struct{}{}

		go func(session *Session) {
			defer wait.Done()
			defer func() { <-semaphore }()

			if _, err := sm.Refresh(ctx, session.Account.ID); err != nil {
				sm.logger.Warningf(
					"refresh pass failed for account [%v]: [%v]",
					session.Account.ID,
					err,
				)
			}
		}(session)
	}

	wait.Wait()
}

// HealthCheck classifies every live session as healthy, expiring soon or
// expired. Expiring sessions are refreshed inline; expired ones are marked
// and announced.
func (sm *SessionManager) HealthCheck(ctx context.Context) *HealthReport {
	report := &HealthReport{}

	for _, session := range sm.sessionsSnapshot(
		SessionActive,
		SessionReauthenticating,
	) {
		now := time.Now()

		switch {
		case session.ExpiresAt.Before(now):
			report.Expired++
			sm.expireSession(session.Account.ID)
		case session.ExpiresAt.Sub(now) <= sm.config.ExpiryMargin:
			report.ExpiringSoon++
			if _, err := sm.Refresh(ctx, session.Account.ID); err != nil {
				sm.logger.Warningf(
					"could not refresh expiring session [%v]: [%v]",
					session.ID,
					err,
				)
			}
		default:
			report.Healthy++
		}
	}

	return report
}

// Logout terminates the account's session. The platform logout is best
// effort: local state becomes logged out even when the platform call fails.
func (sm *SessionManager) Logout(ctx context.Context, accountID ID) error {
	sm.locks.Lock(accountID)
	defer sm.locks.Unlock(accountID)

	session := sm.session(accountID)
	if session == nil {
		return fmt.Errorf("no session for account [%v]", accountID)
	}

	if session.Status == SessionActive ||
		session.Status == SessionReauthenticating {
		if err := sm.gateway.Logout(ctx, session.SessionTokens); err != nil {
			sm.logger.Warningf(
				"could not logout session [%v] on the platform side: [%v]",
				session.ID,
				err,
			)
		}
	}

	if err := session.TransitionTo(SessionLoggedOut); err != nil {
		return err
	}

	persistErr := sm.sessionRepository.UpdateSession(session)

	sm.removeSession(accountID)
	sm.eventService.Publish(NewSessionUpdateEvent(session))

	sm.logger.Infof(
		"account [%v] logged out; session [%v] terminated",
		accountID,
		session.ID,
	)

	if persistErr != nil {
		return fmt.Errorf(
			"could not persist logout of session [%v]: [%v]",
			session.ID,
			persistErr,
		)
	}

	return nil
}

// LogoutAll terminates every tracked session. Used on shutdown.
func (sm *SessionManager) LogoutAll(ctx context.Context) {
	for _, session := range sm.sessionsSnapshot(
		SessionActive,
		SessionReauthenticating,
		SessionExpired,
	) {
		if err := sm.Logout(ctx, session.Account.ID); err != nil {
			sm.logger.Warningf(
				"could not logout account [%v]: [%v]",
				session.Account.ID,
				err,
			)
		}
	}
}

// ActiveSessions returns snapshot copies of all currently active sessions.
// Mutating a returned session has no effect on the manager's state.
func (sm *SessionManager) ActiveSessions() []*Session {
	return sm.sessionsSnapshot(SessionActive)
}

func (sm *SessionManager) brokerLogin(
	ctx context.Context,
	account *Account,
) (*BrokerSession, error) {
	password, err := sm.cipher.Decrypt(account.EncryptedPassword)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt credentials: [%v]", err)
	}

	var brokerSession *BrokerSession
	err = RetryAuth(ctx, &sm.config.RetryPolicy, func() error {
		var loginErr error
		brokerSession, loginErr = sm.gateway.Login(ctx, Credentials{
			Email:    account.Email,
			Password: string(password),
			BrokerID: account.BrokerID,
		})
		return loginErr
	})
	if err != nil {
		return nil, err
	}

	return brokerSession, nil
}

func (sm *SessionManager) activateSession(
	session *Session,
	brokerSession *BrokerSession,
) (*Session, error) {
	sm.applyBrokerSession(session, brokerSession)

	if session.Status == SessionReauthenticating {
		if err := session.TransitionTo(SessionActive); err != nil {
			return nil, err
		}
	}

	sm.persistSession(session)
	sm.eventService.Publish(NewSessionUpdateEvent(session))

	sm.logger.Debugf(
		"session [%v] for account [%v] refreshed until [%v]",
		session.ID,
		session.Account.ID,
		session.ExpiresAt.Format(time.RFC3339),
	)

	return session.Snapshot(), nil
}

func (sm *SessionManager) applyBrokerSession(
	session *Session,
	brokerSession *BrokerSession,
) {
	ttl := sm.config.TTL
	if brokerSession.ExpiresIn > 0 {
		ttl = brokerSession.ExpiresIn
	}

	session.SessionTokens = brokerSession.SessionTokens
	session.ExpiresAt = time.Now().Add(ttl)
	session.RefreshFailures = 0
	session.UpdatedAt = time.Now()
}

func (sm *SessionManager) expireSession(accountID ID) {
	sm.locks.Lock(accountID)
	defer sm.locks.Unlock(accountID)

	session := sm.session(accountID)
	if session == nil || !time.Now().After(session.ExpiresAt) {
		return
	}

	if session.Status != SessionActive &&
		session.Status != SessionReauthenticating {
		return
	}

	if err := session.TransitionTo(SessionExpired); err != nil {
		sm.logger.Errorf(
			"could not expire session [%v]: [%v]",
			session.ID,
			err,
		)
		return
	}

	sm.persistSession(session)
	sm.eventService.Publish(NewSessionUpdateEvent(session))

	sm.logger.Warningf(
		"session [%v] for account [%v] expired",
		session.ID,
		session.Account.ID,
	)
}

// persistSession mirrors the session to memory and storage. A storage
// failure is logged but does not roll the in-memory state back; the next
// mutation retries the mirror with the then-current state.
func (sm *SessionManager) persistSession(session *Session) {
	sm.storeSession(session)

	if err := sm.sessionRepository.UpdateSession(session); err != nil {
		sm.logger.Errorf(
			"could not persist session [%v]: [%v]",
			session.ID,
			err,
		)
	}
}

func (sm *SessionManager) session(accountID ID) *Session {
	sm.sessionsMutex.RLock()
	defer sm.sessionsMutex.RUnlock()

	session, exists := sm.sessions[accountID.String()]
	if !exists {
		return nil
	}

	return session.Snapshot()
}

func (sm *SessionManager) storeSession(session *Session) {
	sm.sessionsMutex.Lock()
	defer sm.sessionsMutex.Unlock()

	sm.sessions[session.Account.ID.String()] = session.Snapshot()
}

func (sm *SessionManager) removeSession(accountID ID) {
	sm.sessionsMutex.Lock()
	defer sm.sessionsMutex.Unlock()

	delete(sm.sessions, accountID.String())
}

func (sm *SessionManager) sessionsSnapshot(
	statuses ...SessionStatus,
) []*Session {
	sm.sessionsMutex.RLock()
	defer sm.sessionsMutex.RUnlock()

	sessions := make([]*Session, 0)
	for _, session := range sm.sessions {
		for _, status := range statuses {
			if session.Status == status {
				sessions = append(sessions, session.Snapshot())
				break
			}
		}
	}

	return sessions
}
