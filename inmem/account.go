package inmem

import (
	"fmt"
	"sync"

	"github.com/gudax/autobot"
)

type AccountRepository struct {
	mutex    sync.RWMutex
	accounts map[string]*autobot.Account
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[string]*autobot.Account),
	}
}

func (ar *AccountRepository) CreateAccount(account *autobot.Account) error {
	ar.mutex.Lock()
	defer ar.mutex.Unlock()

	if _, exists := ar.accounts[account.ID.String()]; exists {
		return fmt.Errorf("account [%v] already exists", account.ID)
	}

	copied := *account
	ar.accounts[account.ID.String()] = &copied

	return nil
}

func (ar *AccountRepository) Account(
	accountID autobot.ID,
) (*autobot.Account, error) {
	ar.mutex.RLock()
	defer ar.mutex.RUnlock()

	account, exists := ar.accounts[accountID.String()]
	if !exists {
		return nil, fmt.Errorf("no account with ID [%v]", accountID)
	}

	copied := *account
	return &copied, nil
}

func (ar *AccountRepository) ActiveAccounts() ([]*autobot.Account, error) {
	ar.mutex.RLock()
	defer ar.mutex.RUnlock()

	accounts := make([]*autobot.Account, 0)
	for _, account := range ar.accounts {
		if !account.Active {
			continue
		}

		copied := *account
		accounts = append(accounts, &copied)
	}

	return accounts, nil
}

func (ar *AccountRepository) RotateCredentials(
	accountID autobot.ID,
	encryptedPassword []byte,
) error {
	ar.mutex.Lock()
	defer ar.mutex.Unlock()

	account, exists := ar.accounts[accountID.String()]
	if !exists {
		return fmt.Errorf("no account with ID [%v]", accountID)
	}

	account.EncryptedPassword = append([]byte(nil), encryptedPassword...)

	return nil
}

func (ar *AccountRepository) DeactivateAccount(accountID autobot.ID) error {
	ar.mutex.Lock()
	defer ar.mutex.Unlock()

	account, exists := ar.accounts[accountID.String()]
	if !exists {
		return fmt.Errorf("no account with ID [%v]", accountID)
	}

	account.Active = false

	return nil
}
