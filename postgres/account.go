package postgres

import (
	"fmt"
	"time"

	"github.com/gudax/autobot"
	"github.com/jackc/pgtype"
)

type AccountRepository struct {
	client    *Client
	idService autobot.IDService
}

func NewAccountRepository(
	client *Client,
	idService autobot.IDService,
) *AccountRepository {
	return &AccountRepository{client, idService}
}

func (ar *AccountRepository) CreateAccount(account *autobot.Account) error {
	query := `INSERT INTO
    	account (id, email, broker_id, encrypted_password, risk_fraction,
    	         open_positions_limit, active, created_at)
    	VALUES (:id, :email, :broker_id, :encrypted_password, :risk_fraction,
    	        :open_positions_limit, :active, :created_at)`

	accountRow, err := new(accountRow).wrap(account)
	if err != nil {
		return fmt.Errorf(
			"could not convert account [%v] to pg row: [%v]",
			account.ID,
			err,
		)
	}

	_, err = ar.client.instance().NamedExec(query, accountRow)
	if err != nil {
		return fmt.Errorf(
			"could not execute command for account [%v]: [%v]",
			account.ID,
			err,
		)
	}

	return nil
}

func (ar *AccountRepository) Account(
	accountID autobot.ID,
) (*autobot.Account, error) {
	var accountRow accountRow

	query := `SELECT * FROM account WHERE id = $1`

	err := ar.client.instance().Get(
		&accountRow,
		query,
		accountID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not execute query: [%v]", err)
	}

	return accountRow.unwrap(ar.idService)
}

func (ar *AccountRepository) ActiveAccounts() ([]*autobot.Account, error) {
	var accountRows []accountRow

	query := `SELECT * FROM account WHERE active = TRUE ORDER BY created_at`

	err := ar.client.instance().Select(&accountRows, query)
	if err != nil {
		return nil, fmt.Errorf("could not execute query: [%v]", err)
	}

	accounts := make([]*autobot.Account, 0, len(accountRows))
	for _, row := range accountRows {
		account, err := row.unwrap(ar.idService)
		if err != nil {
			return nil, fmt.Errorf(
				"could not convert account [%v] from pg row: [%v]",
				row.ID,
				err,
			)
		}

		accounts = append(accounts, account)
	}

	return accounts, nil
}

func (ar *AccountRepository) RotateCredentials(
	accountID autobot.ID,
	encryptedPassword []byte,
) error {
	query := `UPDATE account SET encrypted_password = $1 WHERE id = $2`

	_, err := ar.client.instance().Exec(
		query,
		encryptedPassword,
		accountID.String(),
	)
	if err != nil {
		return fmt.Errorf(
			"could not execute command for account [%v]: [%v]",
			accountID,
			err,
		)
	}

	return nil
}

func (ar *AccountRepository) DeactivateAccount(accountID autobot.ID) error {
	query := `UPDATE account SET active = FALSE WHERE id = $1`

	_, err := ar.client.instance().Exec(query, accountID.String())
	if err != nil {
		return fmt.Errorf(
			"could not execute command for account [%v]: [%v]",
			accountID,
			err,
		)
	}

	return nil
}

type accountRow struct {
	ID                 string
	Email              string
	BrokerID           string         `db:"broker_id"`
	EncryptedPassword  []byte         `db:"encrypted_password"`
	RiskFraction       pgtype.Numeric `db:"risk_fraction"`
	OpenPositionsLimit int            `db:"open_positions_limit"`
	Active             bool
	CreatedAt          time.Time `db:"created_at"`
}

func (ar *accountRow) wrap(account *autobot.Account) (*accountRow, error) {
	riskFraction, err := floatToNumeric(account.RiskFraction)
	if err != nil {
		return nil, err
	}

	ar.ID = account.ID.String()
	ar.Email = account.Email
	ar.BrokerID = account.BrokerID
	ar.EncryptedPassword = account.EncryptedPassword
	ar.RiskFraction = riskFraction
	ar.OpenPositionsLimit = account.OpenPositionsLimit
	ar.Active = account.Active
	ar.CreatedAt = account.CreatedAt

	return ar, nil
}

func (ar *accountRow) unwrap(
	idService autobot.IDService,
) (*autobot.Account, error) {
	ID, err := idService.NewIDFromString(ar.ID)
	if err != nil {
		return nil, err
	}

	riskFraction, err := numericToFloat(ar.RiskFraction)
	if err != nil {
		return nil, err
	}

	return &autobot.Account{
		ID:                 ID,
		Email:              ar.Email,
		BrokerID:           ar.BrokerID,
		EncryptedPassword:  ar.EncryptedPassword,
		RiskFraction:       riskFraction,
		OpenPositionsLimit: ar.OpenPositionsLimit,
		Active:             ar.Active,
		CreatedAt:          ar.CreatedAt,
	}, nil
}
