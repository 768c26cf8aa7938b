package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope of everything broadcast to the connections of a session
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	Code      string          `json:"code"`      // Session join code
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of session event
type EventType string

const (
	EventTypeQuestion          EventType = "question"
	EventTypeLeaderboard       EventType = "leaderboard"
	EventTypeSessionEnd        EventType = "session-end"
	EventTypeParticipantJoined EventType = "participant-joined"
)

// Broadcaster delivers an event to every connection associated with a session code.
// Implementations must not block the caller on slow or failed deliveries.
type Broadcaster interface {
	Broadcast(code string, event *Event)
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(code string, event *Event)

func (f BroadcasterFunc) Broadcast(code string, event *Event) { f(code, event) }

// Fanout delivers every event to each non-nil broadcaster in order.
func Fanout(broadcasters ...Broadcaster) Broadcaster {
	targets := make([]Broadcaster, 0, len(broadcasters))
	for _, b := range broadcasters {
		if b != nil {
			targets = append(targets, b)
		}
	}
	return BroadcasterFunc(func(code string, event *Event) {
		for _, b := range targets {
			b.Broadcast(code, event)
		}
	})
}

// New builds an event with a fresh id, marshalling payload into Data.
func New(code string, eventType EventType, at time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Code:      code,
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ParsePayload decodes event data into the payload struct matching its type
func ParsePayload(event *Event) (interface{}, error) {
	switch event.Type {
	case EventTypeQuestion:
		var payload QuestionPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeLeaderboard:
		var payload LeaderboardPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSessionEnd:
		var payload SessionEndPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeParticipantJoined:
		var payload ParticipantJoinedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}
