package inmem

import (
	"sync"

	"github.com/gudax/autobot"
)

type SignalRepository struct {
	mutex   sync.RWMutex
	signals map[string]*autobot.Signal
}

func NewSignalRepository() *SignalRepository {
	return &SignalRepository{
		signals: make(map[string]*autobot.Signal),
	}
}

// CreateSignal persists the signal. A signal that already exists under the
// same ID is left untouched, so resubmitting a signal is safe.
func (sr *SignalRepository) CreateSignal(signal *autobot.Signal) error {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()

	if _, exists := sr.signals[signal.ID.String()]; exists {
		return nil
	}

	copied := *signal
	sr.signals[signal.ID.String()] = &copied

	return nil
}

func (sr *SignalRepository) LatestSignal(
	symbol string,
) (*autobot.Signal, error) {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()

	var latest *autobot.Signal
	for _, signal := range sr.signals {
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
