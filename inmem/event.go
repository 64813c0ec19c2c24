package inmem

import (
	"sync"

	"github.com/gudax/autobot"
)

// EventService records published events in memory. It backs tests and
// local development runs where no message broker is configured.
type EventService struct {
	mutex  sync.RWMutex
	events []*autobot.Event
}

func NewEventService() *EventService {
	return &EventService{
		events: make([]*autobot.Event, 0),
	}
}

func (es *EventService) Publish(event *autobot.Event) {
	es.mutex.Lock()
	defer es.mutex.Unlock()

	es.events = append(es.events, event)
}

func (es *EventService) Events() []*autobot.Event {
	es.mutex.RLock()
	defer es.mutex.RUnlock()

	events := make([]*autobot.Event, len(es.events))
	copy(events, es.events)

	return events
}

func (es *EventService) EventsOfType(
	eventType autobot.EventType,
) []*autobot.Event {
	es.mutex.RLock()
	defer es.mutex.RUnlock()

	events := make([]*autobot.Event, 0)
	for _, event := range es.events {
		if event.Type == eventType {
			events = append(events, event)
		}
	}

	return events
}
