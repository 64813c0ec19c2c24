package postgres

import (
	"fmt"
	"time"

	"github.com/gudax/autobot"
)

type SessionRepository struct {
	client    *Client
	idService autobot.IDService
}

func NewSessionRepository(
	client *Client,
	idService autobot.IDService,
) *SessionRepository {
	return &SessionRepository{client, idService}
}

func (sr *SessionRepository) CreateSession(session *autobot.Session) error {
	query := `INSERT INTO
    	session (id, account_id, status, auth_token, trading_api_token,
    	         trading_account_id, expires_at, refresh_failures,
    	         created_at, updated_at)
    	VALUES (:id, :account_id, :status, :auth_token, :trading_api_token,
    	        :trading_account_id, :expires_at, :refresh_failures,
    	        :created_at, :updated_at)`

	sessionRow := new(sessionRow).wrap(session)

	_, err := sr.client.instance().NamedExec(query, sessionRow)
	if err != nil {
		return fmt.Errorf(
			"could not execute command for session [%v]: [%v]",
			session.ID,
			err,
		)
	}

	return nil
}

func (sr *SessionRepository) UpdateSession(session *autobot.Session) error {
	query := `UPDATE session SET
		status = :status,
		auth_token = :auth_token,
		trading_api_token = :trading_api_token,
		trading_account_id = :trading_account_id,
		expires_at = :expires_at,
		refresh_failures = :refresh_failures,
		updated_at = :updated_at
		WHERE id = :id`

	sessionRow := new(sessionRow).wrap(session)

	_, err := sr.client.instance().NamedExec(query, sessionRow)
	if err != nil {
		return fmt.Errorf(
			"could not execute command for session [%v]: [%v]",
			session.ID,
			err,
		)
	}

	return nil
}

func (sr *SessionRepository) Sessions(
	filter autobot.SessionFilter,
) ([]*autobot.Session, error) {
	var selectResult []struct {
		sessionRow `db:"session"`
		accountRow `db:"account"`
	}

	query :=
		`SELECT
       		s.id "session.id",
       		s.account_id "session.account_id",
       		s.status "session.status",
       		s.auth_token "session.auth_token",
       		s.trading_api_token "session.trading_api_token",
       		s.trading_account_id "session.trading_account_id",
       		s.expires_at "session.expires_at",
       		s.refresh_failures "session.refresh_failures",
       		s.created_at "session.created_at",
       		s.updated_at "session.updated_at",
    		a.id "account.id",
       		a.email "account.email",
       		a.broker_id "account.broker_id",
       		a.encrypted_password "account.encrypted_password",
       		a.risk_fraction "account.risk_fraction",
       		a.open_positions_limit "account.open_positions_limit",
       		a.active "account.active",
       		a.created_at "account.created_at"
		FROM session s
		JOIN account a ON a.id = s.account_id
		WHERE s.status = $1
		ORDER BY s.created_at ASC`

	err := sr.client.instance().Select(
		&selectResult,
		query,
		filter.Status.String(),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"could not execute query for filter [%+v]: [%v]",
			filter,
			err,
		)
	}

	sessions := make([]*autobot.Session, 0, len(selectResult))
	for _, result := range selectResult {
		account, err := result.accountRow.unwrap(sr.idService)
		if err != nil {
			return nil, fmt.Errorf(
				"could not convert account [%v] from pg row: [%v]",
				result.accountRow.ID,
				err,
			)
		}

		session, err := result.sessionRow.unwrap(sr.idService)
		if err != nil {
			return nil, fmt.Errorf(
				"could not convert session [%v] from pg row: [%v]",
				result.sessionRow.ID,
				err,
			)
		}

		session.Account = account
		sessions = append(sessions, session)
	}

	return sessions, nil
}

type sessionRow struct {
	ID               string
	AccountID        string `db:"account_id"`
	Status           string
	AuthToken        string    `db:"auth_token"`
	TradingAPIToken  string    `db:"trading_api_token"`
	TradingAccountID string    `db:"trading_account_id"`
	ExpiresAt        time.Time `db:"expires_at"`
	RefreshFailures  int       `db:"refresh_failures"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (sr *sessionRow) wrap(session *autobot.Session) *sessionRow {
	sr.ID = session.ID.String()
	sr.AccountID = session.Account.ID.String()
	sr.Status = session.Status.String()
	sr.AuthToken = session.AuthToken
	sr.TradingAPIToken = session.TradingAPIToken
	sr.TradingAccountID = session.TradingAccountID
	sr.ExpiresAt = session.ExpiresAt
	sr.RefreshFailures = session.RefreshFailures
	sr.CreatedAt = session.CreatedAt
	sr.UpdatedAt = session.UpdatedAt

	return sr
}

func (sr *sessionRow) unwrap(
	idService autobot.IDService,
) (*autobot.Session, error) {
	ID, err := idService.NewIDFromString(sr.ID)
	if err != nil {
		return nil, err
	}

	status, err := autobot.ParseSessionStatus(sr.Status)
	if err != nil {
		return nil, err
	}

	return &autobot.Session{
		ID:     ID,
		Status: status,
		SessionTokens: autobot.SessionTokens{
			AuthToken:        sr.AuthToken,
			TradingAPIToken:  sr.TradingAPIToken,
			TradingAccountID: sr.TradingAccountID,
		},
		ExpiresAt:       sr.ExpiresAt,
		RefreshFailures: sr.RefreshFailures,
		CreatedAt:       sr.CreatedAt,
		UpdatedAt:       sr.UpdatedAt,
	}, nil
}
