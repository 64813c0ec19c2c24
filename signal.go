package autobot

import (
	"fmt"
	"math/big"
	"regexp"
	"time"
)

const (
	minSignalVolume = 0.001
	maxSignalVolume = 100.0
)

var symbolPattern = regexp.MustCompile(`^[A-Z]{3,10}$`)

type SignalAction int

const (
	SignalOpenLong SignalAction = iota
	SignalOpenShort
	SignalClose
	SignalCloseAll
)

func ParseSignalAction(value string) (SignalAction, error) {
	switch value {
	case "OPEN_LONG":
		return SignalOpenLong, nil
	case "OPEN_SHORT":
		return SignalOpenShort, nil
	case "CLOSE":
		return SignalClose, nil
	case "CLOSE_ALL":
		return SignalCloseAll, nil
	}

	return -1, fmt.Errorf("unknown signal action: [%v]", value)
}

func (sa SignalAction) String() string {
	switch sa {
	case SignalOpenLong:
		return "OPEN_LONG"
	case SignalOpenShort:
		return "OPEN_SHORT"
	case SignalClose:
		return "CLOSE"
	case SignalCloseAll:
		return "CLOSE_ALL"
	default:
		panic("unknown signal action")
	}
}

// IsEntry says whether the action opens a new position.
func (sa SignalAction) IsEntry() bool {
	return sa == SignalOpenLong || sa == SignalOpenShort
}

func (sa SignalAction) EntrySide() OrderSide {
	switch sa {
	case SignalOpenLong:
		return SideBuy
	case SignalOpenShort:
		return SideSell
	default:
		panic("signal action has no entry side")
	}
}

type Signal struct {
	ID         ID
	Action     SignalAction
	Symbol     string
	Volume     *big.Float
	EntryPrice *big.Float
	StopLoss   *big.Float
	TakeProfit *big.Float
	Strength   *big.Float
	Reason     string
	CreatedAt  time.Time
}

func (s *Signal) String() string {
	if s.Volume == nil {
		return fmt.Sprintf("%v %v", s.Action.String(), s.Symbol)
	}

	return fmt.Sprintf(
		"%v %v, volume: %v",
		s.Action.String(),
		s.Symbol,
		s.Volume.Text('f', 3),
	)
}

// SignalRepository keeps every accepted signal. LatestSignal returns a nil
// signal without error when no signal exists for the symbol.
type SignalRepository interface {
	CreateSignal(signal *Signal) error

	LatestSignal(symbol string) (*Signal, error)
}

// SignalIntake is the single entry point for externally produced signals.
// A signal passes validation exactly once, gets an ID if it carries none,
// and is persisted before any dispatch happens.
type SignalIntake struct {
	signalRepository SignalRepository
	idService        IDService
}

func NewSignalIntake(
	signalRepository SignalRepository,
	idService IDService,
) *SignalIntake {
	return &SignalIntake{
		signalRepository: signalRepository,
		idService:        idService,
	}
}

func (si *SignalIntake) Accept(signal *Signal) error {
	if err := ValidateSignal(signal); err != nil {
		return fmt.Errorf("invalid signal: [%v]", err)
	}

	if signal.ID == nil {
		signal.ID = si.idService.NewID()
	}

	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now()
	}

	if err := si.signalRepository.CreateSignal(signal); err != nil {
		return fmt.Errorf("could not persist signal: [%v]", err)
	}

	return nil
}

func ValidateSignal(signal *Signal) error {
	switch signal.Action {
	case SignalOpenLong, SignalOpenShort:
		if err := validateSymbol(signal.Symbol); err != nil {
			return err
		}
		return validateEntry(signal)
	case SignalClose:
		return validateSymbol(signal.Symbol)
	case SignalCloseAll:
		if signal.Symbol == "" {
			return nil
		}
		return validateSymbol(signal.Symbol)
	default:
		return fmt.Errorf("unknown signal action: [%v]", int(signal.Action))
	}
}

func validateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("malformed symbol: [%v]", symbol)
	}

	return nil
}

func validateEntry(signal *Signal) error {
	if signal.Volume == nil {
		return fmt.Errorf("missing volume")
	}

	volume, _ := signal.Volume.Float64()
	if volume < minSignalVolume || volume > maxSignalVolume {
		return fmt.Errorf(
			"volume [%v] outside allowed range [%v..%v]",
			signal.Volume.Text('f', 3),
			minSignalVolume,
			maxSignalVolume,
		)
	}

	for _, price := range []*big.Float{
		signal.EntryPrice,
		signal.StopLoss,
		signal.TakeProfit,
	} {
		if price != nil && price.Sign() <= 0 {
			return fmt.Errorf("non-positive price: [%v]", price.Text('f', 2))
		}
	}

	// Stop loss and take profit placement is verifiable only against a
	// known entry price. Market signals without one are left to the broker.
	if signal.EntryPrice == nil {
		return nil
	}

	long := signal.Action == SignalOpenLong

	if signal.StopLoss != nil {
		if long && signal.StopLoss.Cmp(signal.EntryPrice) >= 0 {
			return fmt.Errorf("stop loss above entry price for a long signal")
		}
		if !long && signal.StopLoss.Cmp(signal.EntryPrice) <= 0 {
			return fmt.Errorf("stop loss below entry price for a short signal")
		}
	}

	if signal.TakeProfit != nil {
		if long && signal.TakeProfit.Cmp(signal.EntryPrice) <= 0 {
			return fmt.Errorf(
				"take profit below entry price for a long signal",
			)
		}
		if !long && signal.TakeProfit.Cmp(signal.EntryPrice) >= 0 {
			return fmt.Errorf(
				"take profit above entry price for a short signal",
			)
		}
	}

	return nil
}
