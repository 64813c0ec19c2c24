package autobot

import (
	"math/big"
	"testing"
)

func TestSession_TransitionTo(t *testing.T) {
	tests := []struct {
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{SessionLoggedOut, SessionLoggingIn, true},
		{SessionLoggingIn, SessionActive, true},
		{SessionLoggingIn, SessionLoggedOut, true},
		{SessionActive, SessionReauthenticating, true},
		{SessionActive, SessionExpired, true},
		{SessionActive, SessionLoggedOut, true},
		{SessionReauthenticating, SessionActive, true},
		{SessionReauthenticating, SessionExpired, true},
		{SessionReauthenticating, SessionLoggedOut, true},
		{SessionExpired, SessionLoggedOut, true},
		{SessionLoggedOut, SessionActive, false},
		{SessionLoggingIn, SessionReauthenticating, false},
		{SessionActive, SessionLoggingIn, false},
		{SessionExpired, SessionActive, false},
		{SessionExpired, SessionReauthenticating, false},
	}

	for _, test := range tests {
		session := &Session{ID: testID("ses-1"), Status: test.from}

		err := session.TransitionTo(test.to)

		if test.allowed {
			if err != nil {
				t.Errorf(
					"unexpected error for [%v] -> [%v]: [%v]",
					test.from,
					test.to,
					err,
				)
			}
			if session.Status != test.to {
				t.Errorf(
					"unexpected status after [%v] -> [%v]: [%v]",
					test.from,
					test.to,
					session.Status,
				)
			}
		} else {
			if err == nil {
				t.Errorf(
					"expected an error for [%v] -> [%v]",
					test.from,
					test.to,
				)
			}
			if session.Status != test.from {
				t.Errorf(
					"denied transition [%v] -> [%v] changed the status to [%v]",
					test.from,
					test.to,
					session.Status,
				)
			}
		}
	}
}

func TestSession_Snapshot(t *testing.T) {
	session := &Session{
		ID: testID("ses-1"),
		Account: &Account{
			ID:           testID("acc-1"),
			Email:        "one@fx.dev",
			RiskFraction: big.NewFloat(0.01),
		},
		Status: SessionActive,
		SessionTokens: SessionTokens{
			AuthToken:        "auth-token",
			TradingAPIToken:  "api-token",
			TradingAccountID: "trading-account",
		},
	}

	snapshot := session.Snapshot()

	snapshot.Status = SessionExpired
	snapshot.AuthToken = "tampered"
	snapshot.Account.Email = "tampered@fx.dev"

	if session.Status != SessionActive {
		t.Errorf(
			"unexpected session status\nexpected: [%v]\nactual:   [%v]",
			SessionActive,
			session.Status,
		)
	}

	if session.AuthToken != "auth-token" {
		t.Errorf(
			"unexpected auth token\nexpected: [%v]\nactual:   [%v]",
			"auth-token",
			session.AuthToken,
		)
	}

	if session.Account.Email != "one@fx.dev" {
		t.Errorf(
			"unexpected account email\nexpected: [%v]\nactual:   [%v]",
			"one@fx.dev",
			session.Account.Email,
		)
	}
}

func TestParseSessionStatus(t *testing.T) {
	statuses := []SessionStatus{
		SessionLoggedOut,
		SessionLoggingIn,
		SessionActive,
		SessionReauthenticating,
		SessionExpired,
	}

	for _, status := range statuses {
		parsed, err := ParseSessionStatus(status.String())
		if err != nil {
			t.Fatalf("could not parse status [%v]: [%v]", status, err)
		}

		if parsed != status {
			t.Errorf(
				"unexpected parsed status\nexpected: [%v]\nactual:   [%v]",
				status,
				parsed,
			)
		}
	}

	if _, err := ParseSessionStatus("SUSPENDED"); err == nil {
		t.Errorf("expected a parse error")
	}
}
