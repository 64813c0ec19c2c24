package autobot

import (
	"fmt"
	"time"
)

type SessionStatus int

const (
	SessionLoggedOut SessionStatus = iota
	SessionLoggingIn
	SessionActive
	SessionReauthenticating
	SessionExpired
)

func ParseSessionStatus(value string) (SessionStatus, error) {
	switch value {
	case "LOGGED_OUT":
		return SessionLoggedOut, nil
	case "LOGGING_IN":
		return SessionLoggingIn, nil
	case "ACTIVE":
		return SessionActive, nil
	case "REAUTHENTICATING":
		return SessionReauthenticating, nil
	case "EXPIRED":
		return SessionExpired, nil
	}

	return -1, fmt.Errorf("unknown session status: [%v]", value)
}

func (ss SessionStatus) String() string {
	switch ss {
	case SessionLoggedOut:
		return "LOGGED_OUT"
	case SessionLoggingIn:
		return "LOGGING_IN"
	case SessionActive:
		return "ACTIVE"
	case SessionReauthenticating:
		return "REAUTHENTICATING"
	case SessionExpired:
		return "EXPIRED"
	default:
		panic("unknown session status")
	}
}

func (ss SessionStatus) canTransitionTo(target SessionStatus) bool {
	switch ss {
	case SessionLoggedOut:
		return target == SessionLoggingIn
	case SessionLoggingIn:
		return target == SessionActive || target == SessionLoggedOut
	case SessionActive:
		return target == SessionReauthenticating ||
			target == SessionExpired ||
			target == SessionLoggedOut
	case SessionReauthenticating:
		return target == SessionActive ||
			target == SessionExpired ||
			target == SessionLoggedOut
	case SessionExpired:
		return target == SessionLoggedOut
	default:
		return false
	}
}

type SessionFilter struct {
	Status SessionStatus
}

type SessionRepository interface {
	CreateSession(session *Session) error

	UpdateSession(session *Session) error

	Sessions(filter SessionFilter) ([]*Session, error)
}

type Session struct {
	ID      ID
	Account *Account
	Status  SessionStatus

	SessionTokens

	ExpiresAt       time.Time
	RefreshFailures int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransitionTo moves the session through its status machine. Any move the
// machine does not allow is an error and leaves the session untouched.
func (s *Session) TransitionTo(status SessionStatus) error {
	if !s.Status.canTransitionTo(status) {
		return fmt.Errorf(
			"illegal session status transition: [%v] -> [%v]",
			s.Status,
			status,
		)
	}

	s.Status = status
	s.UpdatedAt = time.Now()

	return nil
}

// Snapshot returns a copy detached from the manager's live state. Callers
// may mutate it freely.
func (s *Session) Snapshot() *Session {
	copied := *s

	if s.Account != nil {
		account := *s.Account
		copied.Account = &account
	}

	return &copied
}
