// Package events carries lead lifecycle events from the HTTP handlers to the
// notification worker, over RabbitMQ or an in-process channel.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"funnelcrm/models"
)

type Type string

const (
	LeadAssigned      Type = "lead.assigned"
	LeadStatusChanged Type = "lead.status_changed"
	ImportApplied     Type = "import.applied"
)

var ErrClosed = errors.New("event bus closed")

// Event is the message body on the bus.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	ActorID    *uint             `json:"actor_id,omitempty"`
	LeadID     *uint             `json:"lead_id,omitempty"`
	LeadName   string            `json:"lead_name,omitempty"`
	UserID     *uint             `json:"user_id,omitempty"`
	From       models.LeadStatus `json:"from,omitempty"`
	To         models.LeadStatus `json:"to,omitempty"`
	Summary    string            `json:"summary,omitempty"`
}

// New stamps an event with an id and the current time.
func New(t Type) Event {
	return Event{ID: uuid.New().String(), Type: t, OccurredAt: time.Now().UTC()}
}

// Handler processes one event. A returned error rejects the message.
type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus publishes events and delivers them to a single consumer.
type Bus interface {
	Publisher
	// Consume blocks, calling h for each event until ctx is done.
	Consume(ctx context.Context, h Handler) error
	Close() error
}
