package outbox

import "context"

// Attribute keys stamped on every published stock event.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrCreatedAt     = "created_at"
)

// Message is an outbox row ready to hand to a broker.
type Message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Transport delivers outbox messages to Pub/Sub or Kafka.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
}
