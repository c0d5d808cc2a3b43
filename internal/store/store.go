package store

import (
	"context"

	"github.com/fabriqa/takt/internal/ontology"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Knowledge base. The read side satisfies ontology.KnowledgeBase so a
	// resolver can sit directly on the store.
	ontology.KnowledgeBase
	SeedKnowledgeBase(ctx context.Context, doc *ontology.Document) error

	// Snapshots (one factory-state document per ISO date)
	PutSnapshot(ctx context.Context, date string, document map[string]any) error
	Snapshot(ctx context.Context, date string) (map[string]any, error)
	Dates(ctx context.Context) ([]string, error)

	// Goal schedules
	CreateSchedule(ctx context.Context, sched *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
