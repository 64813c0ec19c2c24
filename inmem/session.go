package inmem

import (
	"fmt"
	"sync"

	"github.com/gudax/autobot"
)

type SessionRepository struct {
	mutex    sync.RWMutex
	sessions map[string]*autobot.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*autobot.Session),
	}
}

func (sr *SessionRepository) CreateSession(session *autobot.Session) error {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()

	if _, exists := sr.sessions[session.ID.String()]; exists {
		return fmt.Errorf("session [%v] already exists", session.ID)
	}

	sr.sessions[session.ID.String()] = session.Snapshot()

	return nil
}

func (sr *SessionRepository) UpdateSession(session *autobot.Session) error {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()

	if _, exists := sr.sessions[session.ID.String()]; !exists {
		return fmt.Errorf("no session with ID [%v]", session.ID)
	}

	sr.sessions[session.ID.String()] = session.Snapshot()

	return nil
}

func (sr *SessionRepository) Sessions(
	filter autobot.SessionFilter,
) ([]*autobot.Session, error) {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()

	sessions := make([]*autobot.Session, 0)
	for _, session := range sr.sessions {
		if session.Status != filter.Status {
			continue
		}

		sessions = append(sessions, session.Snapshot())
	}

	return sessions, nil
}
