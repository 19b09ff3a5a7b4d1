package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bridge_workflows (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    revision   INT  NOT NULL,
    data       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (name, revision)
);

CREATE INDEX IF NOT EXISTS idx_bridge_workflows_name ON bridge_workflows(name);
`

// CreateSchema creates the bridge_workflows table if it doesn't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the bridge_workflows table.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS bridge_workflows CASCADE;`)
	return err
}
