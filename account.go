package autobot

import (
	"math/big"
	"time"
)

type AccountRepository interface {
	CreateAccount(account *Account) error

	Account(accountID ID) (*Account, error)

	ActiveAccounts() ([]*Account, error)

	// RotateCredentials replaces the account's encrypted password blob.
	// It is the only mutation allowed on provisioned account data.
	RotateCredentials(accountID ID, encryptedPassword []byte) error

	DeactivateAccount(accountID ID) error
}

// CredentialCipher guards account passwords at rest. Plaintext credentials
// exist in memory only for the duration of a login call.
type CredentialCipher interface {
	Encrypt(plaintext []byte) ([]byte, error)

	Decrypt(ciphertext []byte) ([]byte, error)
}

type Account struct {
	ID       ID
	Email    string
	BrokerID string

	EncryptedPassword []byte

	RiskFraction       *big.Float
	OpenPositionsLimit int

	Active    bool
	CreatedAt time.Time
}
