package uuid

import (
	"github.com/google/uuid"
	"github.com/gudax/autobot"
)

type IDService struct{}

func (ids *IDService) NewID() autobot.ID {
	return uuid.New()
}

func (ids *IDService) NewIDFromString(id string) (autobot.ID, error) {
	return uuid.Parse(id)
}

func (ids *IDService) DerivedID(seed string) autobot.ID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}
