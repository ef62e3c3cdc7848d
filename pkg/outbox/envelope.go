package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

// EnvelopeVersion is bumped whenever the envelope shape changes; payload
// shapes are versioned by their event type.
const EnvelopeVersion = 1

// ActorRef is the authenticated caller that caused the event. System
// transitions (webhooks, cron) carry no actor.
type ActorRef struct {
	UserID  uuid.UUID       `json:"user_id"`
	StoreID *uuid.UUID      `json:"store_id,omitempty"`
	Role    enums.ActorRole `json:"role"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and shipped
// verbatim to the broker. EventID equals the outbox row id so consumers can
// dedupe redeliveries.
type PayloadEnvelope struct {
	Version     int                       `json:"version"`
	EventID     string                    `json:"event_id"`
	EventType   enums.OutboxEventType     `json:"event_type,omitempty"`
	Aggregate   enums.OutboxAggregateType `json:"aggregate,omitempty"`
	AggregateID string                    `json:"aggregate_id,omitempty"`
	OccurredAt  time.Time                 `json:"occurred_at"`
	Actor       *ActorRef                 `json:"actor,omitempty"`
	Data        json.RawMessage           `json:"data"`
}
