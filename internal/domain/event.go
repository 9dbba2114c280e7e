package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventVoterRegistered      EventType = "voter.registered"
	EventVoterConfirmed       EventType = "voter.confirmed"
	EventVoterDeleted         EventType = "voter.deleted"
	EventRegistrationToggled  EventType = "registration.toggled"
	EventAccountCreated       EventType = "account.created"
	EventAccountDeleted       EventType = "account.deleted"
	EventAccountRoleChanged   EventType = "account.role_changed"
	EventAccountPasswordReset EventType = "account.password_reset"
)

// AggregateType enumerates the aggregate root types events belong to.
type AggregateType string

const (
	AggregateVoter    AggregateType = "voter"
	AggregateAccount  AggregateType = "account"
	AggregateSettings AggregateType = "settings"
)

// EventDraft is a lifecycle event ready to be published.
type EventDraft struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	Actor         string          `json:"actor,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Topic is the broker topic the event is published on.
func (d EventDraft) Topic() string {
	return "registry." + string(d.AggregateType)
}

// EventPublisher hands lifecycle events to the broker. Publishing is
// best-effort and never fails the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev EventDraft)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, EventDraft) {}
