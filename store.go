package bridge

import (
	"context"
	"time"
)

// WorkflowRecord is one persisted revision of a workflow in its canonical
// interchange form.
type WorkflowRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Revision  int       `json:"revision"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Store defines the contract for persisting workflow revisions between
// pipeline stages.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// SaveWorkflow persists a new revision. If rec.ID is empty a UUID is
	// auto-generated; if rec.Revision is zero the next revision for
	// rec.Name is assigned. Returns the record ID.
	SaveWorkflow(ctx context.Context, rec *WorkflowRecord) (string, error)

	// GetWorkflow fetches a record by its ID. Returns nil, nil if not found.
	GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error)

	// LatestWorkflow fetches the highest revision for a name.
	// Returns nil, nil if not found.
	LatestWorkflow(ctx context.Context, name string) (*WorkflowRecord, error)

	// ListWorkflows returns the latest revision of every stored name.
	ListWorkflows(ctx context.Context) ([]WorkflowRecord, error)

	// ListRevisions returns all revisions for a name, oldest first.
	ListRevisions(ctx context.Context, name string) ([]WorkflowRecord, error)

	// DeleteWorkflow deletes a record by its ID. No error if it doesn't exist.
	DeleteWorkflow(ctx context.Context, id string) error
}
