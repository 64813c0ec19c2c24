package autobot

import (
	"math/big"
	"testing"
	"time"
)

func TestValidateSignal(t *testing.T) {
	tests := []struct {
		name   string
		signal *Signal
		valid  bool
	}{
		{
			name: "long market entry",
			signal: &Signal{
				Action: SignalOpenLong,
				Symbol: "EURUSD",
				Volume: big.NewFloat(0.5),
			},
			valid: true,
		},
		{
			name: "long entry with protective prices",
			signal: &Signal{
				Action:     SignalOpenLong,
				Symbol:     "EURUSD",
				Volume:     big.NewFloat(0.5),
				EntryPrice: big.NewFloat(100),
				StopLoss:   big.NewFloat(95),
				TakeProfit: big.NewFloat(110),
			},
			valid: true,
		},
		{
			name: "short entry with protective prices",
			signal: &Signal{
				Action:     SignalOpenShort,
				Symbol:     "EURUSD",
				Volume:     big.NewFloat(0.5),
				EntryPrice: big.NewFloat(100),
				StopLoss:   big.NewFloat(105),
				TakeProfit: big.NewFloat(90),
			},
			valid: true,
		},
		{
			name:   "close",
			signal: &Signal{Action: SignalClose, Symbol: "EURUSD"},
			valid:  true,
		},
		{
			name:   "close all without symbol",
			signal: &Signal{Action: SignalCloseAll},
			valid:  true,
		},
		{
			name:   "close all with symbol",
			signal: &Signal{Action: SignalCloseAll, Symbol: "BTCUSDT"},
			valid:  true,
		},
		{
			name: "malformed symbol",
			signal: &Signal{
				Action: SignalOpenLong,
				Symbol: "eur/usd",
				Volume: big.NewFloat(0.5),
			},
			valid: false,
		},
		{
			name:   "missing volume",
			signal: &Signal{Action: SignalOpenLong, Symbol: "EURUSD"},
			valid:  false,
		},
		{
			name: "volume above range",
			signal: &Signal{
				Action: SignalOpenLong,
				Symbol: "EURUSD",
				Volume: big.NewFloat(1000),
			},
			valid: false,
		},
		{
			name: "volume below range",
			signal: &Signal{
				Action: SignalOpenLong,
				Symbol: "EURUSD",
				Volume: big.NewFloat(0.0001),
			},
			valid: false,
		},
		{
			name: "non-positive stop loss",
			signal: &Signal{
				Action:   SignalOpenLong,
				Symbol:   "EURUSD",
				Volume:   big.NewFloat(0.5),
				StopLoss: big.NewFloat(0),
			},
			valid: false,
		},
		{
			name: "stop loss above entry for a long",
			signal: &Signal{
				Action:     SignalOpenLong,
				Symbol:     "EURUSD",
				Volume:     big.NewFloat(0.5),
				EntryPrice: big.NewFloat(100),
				StopLoss:   big.NewFloat(101),
			},
			valid: false,
		},
		{
			name: "take profit below entry for a long",
			signal: &Signal{
				Action:     SignalOpenLong,
				Symbol:     "EURUSD",
				Volume:     big.NewFloat(0.5),
				EntryPrice: big.NewFloat(100),
				TakeProfit: big.NewFloat(99),
			},
			valid: false,
		},
		{
			name: "stop loss below entry for a short",
			signal: &Signal{
				Action:     SignalOpenShort,
				Symbol:     "EURUSD",
				Volume:     big.NewFloat(0.5),
				EntryPrice: big.NewFloat(100),
				StopLoss:   big.NewFloat(99),
			},
			valid: false,
		},
		{
			name: "take profit above entry for a short",
			signal: &Signal{
				Action:     SignalOpenShort,
				Symbol:     "EURUSD",
				Volume:     big.NewFloat(0.5),
				EntryPrice: big.NewFloat(100),
				TakeProfit: big.NewFloat(101),
			},
			valid: false,
		},
		{
			name:   "unknown action",
			signal: &Signal{Action: SignalAction(99), Symbol: "EURUSD"},
			valid:  false,
		},
	}

	for _, test := range tests {
		err := ValidateSignal(test.signal)

		if test.valid && err != nil {
			t.Errorf("[%v]: unexpected error: [%v]", test.name, err)
		}
		if !test.valid && err == nil {
			t.Errorf("[%v]: expected a validation error", test.name)
		}
	}
}

func TestSignalIntake_Accept(t *testing.T) {
	repository := newFakeSignalRepository()
	intake := NewSignalIntake(repository, &testIDService{})

	signal := entrySignal(SignalOpenLong, "EURUSD", 0.5)

	if err := intake.Accept(signal); err != nil {
		t.Fatalf("could not accept signal: [%v]", err)
	}

	if signal.ID == nil {
		t.Errorf("expected an assigned signal ID")
	}
	if signal.CreatedAt.IsZero() {
		t.Errorf("expected an assigned creation time")
	}

	persisted, err := repository.LatestSignal("EURUSD")
	if err != nil {
		t.Fatalf("could not get latest signal: [%v]", err)
	}
	if persisted == nil {
		t.Fatalf("expected the signal to be persisted")
	}

	if persisted.ID.String() != signal.ID.String() {
		t.Errorf(
			"unexpected persisted signal ID\nexpected: [%v]\nactual:   [%v]",
			signal.ID,
			persisted.ID,
		)
	}
}

func TestSignalIntake_AcceptKeepsAssignedIdentity(t *testing.T) {
	repository := newFakeSignalRepository()
	intake := NewSignalIntake(repository, &testIDService{})

	createdAt := time.Date(2021, 6, 11, 15, 0, 0, 0, time.UTC)
	signal := entrySignal(SignalOpenLong, "EURUSD", 0.5)
	signal.ID = testID("sig-external")
	signal.CreatedAt = createdAt

	if err := intake.Accept(signal); err != nil {
		t.Fatalf("could not accept signal: [%v]", err)
	}

	if signal.ID.String() != "sig-external" {
		t.Errorf(
			"unexpected signal ID\nexpected: [%v]\nactual:   [%v]",
			"sig-external",
			signal.ID,
		)
	}
	if !signal.CreatedAt.Equal(createdAt) {
		t.Errorf(
			"unexpected creation time\nexpected: [%v]\nactual:   [%v]",
			createdAt,
			signal.CreatedAt,
		)
	}
}

func TestSignalIntake_RejectsInvalidSignal(t *testing.T) {
	repository := newFakeSignalRepository()
	intake := NewSignalIntake(repository, &testIDService{})

	signal := &Signal{Action: SignalOpenLong, Symbol: "EURUSD"}

	if err := intake.Accept(signal); err == nil {
		t.Fatalf("expected an intake error")
	}

	persisted, err := repository.LatestSignal("EURUSD")
	if err != nil {
		t.Fatalf("could not get latest signal: [%v]", err)
	}
	if persisted != nil {
		t.Errorf("expected no persisted signal")
	}
}

func TestParseSignalAction(t *testing.T) {
	actions := []SignalAction{
		SignalOpenLong,
		SignalOpenShort,
		SignalClose,
		SignalCloseAll,
	}

	for _, action := range actions {
		parsed, err := ParseSignalAction(action.String())
		if err != nil {
			t.Fatalf("could not parse action [%v]: [%v]", action, err)
		}

		if parsed != action {
			t.Errorf(
				"unexpected parsed action\nexpected: [%v]\nactual:   [%v]",
				action,
				parsed,
			)
		}
	}

	if _, err := ParseSignalAction("HOLD"); err == nil {
		t.Errorf("expected a parse error")
	}
}
