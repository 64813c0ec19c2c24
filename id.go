package autobot

import "fmt"

type ID interface {
	fmt.Stringer
}

type IDService interface {
	NewID() ID

	NewIDFromString(id string) (ID, error)

	// DerivedID produces an ID that is a pure function of the given seed.
	// Two calls with the same seed always return the same ID.
	DerivedID(seed string) ID
}
