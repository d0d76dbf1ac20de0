package types

import "encoding/json"

// Event kinds produced locally rather than read from the bus.
const (
	EventKindHealth = "health"
	EventKindRaw    = "raw"
)

// Event kinds published by the account service.
const (
	EventKindAccountCreated         = "account.created"
	EventKindAccountPasswordChanged = "account.password_changed"
	EventKindAccountGMLevelChanged  = "account.gm_level_changed"
	EventKindAccountMetaChanged     = "account.meta_changed"
)

// Event is the envelope carried on the bus and delivered to relay subscribers.
type Event struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event of the given kind.
func NewEvent(kind string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, Payload: data}, nil
}
