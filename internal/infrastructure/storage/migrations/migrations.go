// Package migrations holds the schema history as goose Go migrations.
// Versions are append-only: never edit a migration that has shipped.
package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

// All returns every migration in version order
func All() []*goose.Migration {
	return []*goose.Migration{
		goose.NewGoMigration(1, &goose.GoFunc{RunTx: upInitialSchema}, &goose.GoFunc{RunTx: downInitialSchema}),
		goose.NewGoMigration(2, &goose.GoFunc{RunTx: upLookupIndexes}, &goose.GoFunc{RunTx: downLookupIndexes}),
	}
}

func upInitialSchema(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			churches_json TEXT NOT NULL DEFAULT '[]',
			results_json TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'running',
			error_message TEXT NOT NULL DEFAULT '',
			results INTEGER NOT NULL DEFAULT 0,
			identified INTEGER NOT NULL DEFAULT 0,
			unidentified INTEGER NOT NULL DEFAULT 0,
			pending INTEGER NOT NULL DEFAULT 0,
			divergent INTEGER NOT NULL DEFAULT 0,
			model_requests INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE file_models (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			lineage_id TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			owner_id TEXT NOT NULL DEFAULT '',
			global INTEGER NOT NULL DEFAULT 0,
			fingerprint TEXT NOT NULL,
			mapping_json TEXT NOT NULL,
			parsing_rules_json TEXT NOT NULL,
			snippet TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE learned_associations (
			owner_id TEXT NOT NULL,
			normalized_description TEXT NOT NULL,
			contributor_normalized_name TEXT NOT NULL,
			contributor_name TEXT NOT NULL DEFAULT '',
			church_id TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (owner_id, normalized_description)
		)`,
	)
}

func downInitialSchema(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`DROP TABLE IF EXISTS learned_associations`,
		`DROP TABLE IF EXISTS file_models`,
		`DROP TABLE IF EXISTS runs`,
		`DROP TABLE IF EXISTS sessions`,
	)
}

func upLookupIndexes(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_file_models_fingerprint ON file_models(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_file_models_lineage ON file_models(lineage_id, version)`,
	)
}

func downLookupIndexes(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`DROP INDEX IF EXISTS idx_file_models_lineage`,
		`DROP INDEX IF EXISTS idx_file_models_fingerprint`,
		`DROP INDEX IF EXISTS idx_runs_session`,
	)
}

func execAll(ctx context.Context, tx *sql.Tx, statements ...string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
