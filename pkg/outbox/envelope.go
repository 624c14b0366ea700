package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who triggered the stock change.
type ActorRef struct {
	ID   string `json:"id"`
	Kind string `json:"kind,omitempty"`
}

// Actor kinds stamped on envelopes.
const (
	ActorKindUser   = "user"
	ActorKindSystem = "system"
)

// EnvelopeVersion is the newest envelope layout this build writes and reads.
const EnvelopeVersion = 1

// PayloadEnvelope wraps every stock event payload stored in outbox_events and
// sent on the wire. Data holds the event-type specific payload.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Supported reports whether this build can decode the envelope. Newer layouts
// are written by a newer publisher and must not be half-read.
func (e PayloadEnvelope) Supported() bool {
	return e.Version >= 1 && e.Version <= EnvelopeVersion
}
