package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/claravin/vinflow/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// TransitionJobArgs carries an applied transition for asynchronous
// processing. River serializes this as JSON into its job queue table. It is
// a full snapshot of the ledger event, so the worker never needs to query
// the database.
type TransitionJobArgs struct {
	EventID    string `json:"event_id"`
	TenantID   string `json:"tenant_id"`
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (TransitionJobArgs) Kind() string { return "transition.applied" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues an applied transition as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.TransitionEvent) error {
	_, err := p.client.Insert(ctx, TransitionJobArgs{
		EventID:    event.ID,
		TenantID:   event.TenantID,
		EntityID:   event.EntityID,
		EntityType: string(event.EntityType),
		FromStatus: string(event.FromStatus),
		ToStatus:   string(event.ToStatus),
		ActorID:    event.ActorID,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing transition job: %w", err)
	}
	return nil
}
