package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/meikuraledutech/bridge"
)

// SaveWorkflow persists a new workflow revision.
// If rec.ID is empty, a UUID is auto-generated. If rec.Revision is zero,
// the next revision number for rec.Name is assigned inside the insert
// transaction. Returns the record ID.
func (s *PGStore) SaveWorkflow(ctx context.Context, rec *bridge.WorkflowRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("bridge: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if rec.Revision == 0 {
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(revision), 0) + 1 FROM bridge_workflows WHERE name = $1`,
			rec.Name,
		).Scan(&rec.Revision)
		if err != nil {
			return "", fmt.Errorf("bridge: next revision: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO bridge_workflows (id, name, revision, data) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.Name, rec.Revision, rec.Data,
	); err != nil {
		return "", fmt.Errorf("bridge: insert workflow: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("bridge: commit: %w", err)
	}
	return rec.ID, nil
}

// GetWorkflow fetches a single record by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetWorkflow(ctx context.Context, id string) (*bridge.WorkflowRecord, error) {
	var rec bridge.WorkflowRecord
	err := s.db.QueryRow(ctx,
		`SELECT id, name, revision, data, created_at FROM bridge_workflows WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Name, &rec.Revision, &rec.Data, &rec.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bridge: get workflow: %w", err)
	}
	return &rec, nil
}

// LatestWorkflow fetches the highest revision stored under name.
// Returns nil, nil if not found.
func (s *PGStore) LatestWorkflow(ctx context.Context, name string) (*bridge.WorkflowRecord, error) {
	var rec bridge.WorkflowRecord
	err := s.db.QueryRow(ctx,
		`SELECT id, name, revision, data, created_at FROM bridge_workflows
		 WHERE name = $1 ORDER BY revision DESC LIMIT 1`, name,
	).Scan(&rec.ID, &rec.Name, &rec.Revision, &rec.Data, &rec.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bridge: latest workflow: %w", err)
	}
	return &rec, nil
}

// ListWorkflows returns the latest revision of every stored name,
// ordered by name. Returns an empty slice (not nil) if none found.
func (s *PGStore) ListWorkflows(ctx context.Context) ([]bridge.WorkflowRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT ON (name) id, name, revision, data, created_at
		 FROM bridge_workflows ORDER BY name, revision DESC`)
	if err != nil {
		return nil, fmt.Errorf("bridge: list workflows: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListRevisions returns all revisions for a name, oldest first.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListRevisions(ctx context.Context, name string) ([]bridge.WorkflowRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, revision, data, created_at FROM bridge_workflows
		 WHERE name = $1 ORDER BY revision`, name)
	if err != nil {
		return nil, fmt.Errorf("bridge: list revisions: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteWorkflow deletes a record by its ID.
// No error if the record doesn't exist.
func (s *PGStore) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM bridge_workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bridge: delete workflow: %w", err)
	}
	return nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows pgxRows) ([]bridge.WorkflowRecord, error) {
	recs := []bridge.WorkflowRecord{}
	for rows.Next() {
		var rec bridge.WorkflowRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Revision, &rec.Data, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("bridge: scan workflow: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bridge: rows workflows: %w", err)
	}
	return recs, nil
}
