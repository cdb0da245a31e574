package persistence

import (
	"context"

	"github.com/petrijr/durable/pkg/api"
)

// HistoryStore persists the append-only history of each orchestration
// instance.
//
// Appends to one instance are serialized and atomic: either every event of
// a call is stored, in order, or none is. Appends to different instances
// are independent.
type HistoryStore interface {
	// Create records a new instance whose history starts with started.
	// It returns api.ErrInstanceExists if the instance already has history.
	Create(ctx context.Context, instanceID string, started api.HistoryEvent) error

	// Append adds events to the end of an existing history. It returns
	// api.ErrInstanceNotFound if the instance was never created.
	Append(ctx context.Context, instanceID string, events ...api.HistoryEvent) error

	// Read returns the full history in append order, or
	// api.ErrInstanceNotFound.
	Read(ctx context.Context, instanceID string) ([]api.HistoryEvent, error)

	// Reset atomically replaces the whole history with the started event
	// followed by carried. It implements continue-as-new truncation.
	Reset(ctx context.Context, instanceID string, started api.HistoryEvent, carried ...api.HistoryEvent) error

	// ListInstances returns the IDs of all known instances.
	ListInstances(ctx context.Context) ([]string, error)
}
