package autobot

import "sync"

// AccountLocks serializes all broker-facing work per account. The same lock
// set must be shared by every component touching a given account, so that
// login, token refresh, order dispatch and position supervision never overlap
// for that account.
type AccountLocks struct {
	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

func (al *AccountLocks) Lock(accountID ID) {
	al.lockFor(accountID).Lock()
}

func (al *AccountLocks) Unlock(accountID ID) {
	al.lockFor(accountID).Unlock()
}

func (al *AccountLocks) lockFor(accountID ID) *sync.Mutex {
	al.mutex.Lock()
	defer al.mutex.Unlock()

	lock, exists := al.locks[accountID.String()]
	if !exists {
		lock = new(sync.Mutex)
		al.locks[accountID.String()] = lock
	}

	return lock
}
