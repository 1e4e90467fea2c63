// Package database is the relational half of the mirror: a thin pgx layer
// that creates and widens tables on demand and exposes the handful of
// lookups the ingestion engine needs. Schema is derived from the records
// themselves; the only statically migrated table is sync_runs.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pool for callers that run their own queries
// (the query API, the sync-run recorder).
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

func (d *DB) Close() {
	d.pool.Close()
}

// Exec runs a statement. Used by the finalizer for DDL.
func (d *DB) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := d.pool.Exec(ctx, sql, args...)
	return err
}

// TableExists reports whether a table or view of this name exists.
func (d *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`select to_regclass('public.' || quote_ident($1)) is not null`, name,
	).Scan(&exists)
	return exists, err
}

// Columns returns the column names of a table, or an empty map when the
// table does not exist.
func (d *DB) Columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := d.pool.Query(ctx,
		`select column_name from information_schema.columns
		 where table_schema = 'public' and table_name = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// ColumnExists reports whether table.column exists.
func (d *DB) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	cols, err := d.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	return cols[column], nil
}

// ConstraintExists reports whether a named constraint exists on a table.
func (d *DB) ConstraintExists(ctx context.Context, table, name string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`select exists (
		   select 1 from pg_constraint c
		   join pg_class t on t.oid = c.conrelid
		   where c.conname = $1 and t.relname = $2
		 )`, name, table,
	).Scan(&exists)
	return exists, err
}

// LookupRepoID resolves a repo's identity by its full_name, if the repos
// table exists and holds it.
func (d *DB) LookupRepoID(ctx context.Context, fullName string) (int64, bool, error) {
	return d.lookupID(ctx, "repos",
		`select id from repos where full_name = $1`, fullName)
}

// LookupIssueID resolves a locally mirrored issue by repo full_name and
// issue number. Used for the best-effort comment → issue link.
func (d *DB) LookupIssueID(ctx context.Context, repoFullName string, number int64) (int64, bool, error) {
	return d.lookupID(ctx, "issues",
		`select issues.id from issues
		 join repos on issues.repo = repos.id
		 where repos.full_name = $1 and issues.number = $2`,
		repoFullName, number)
}

// LookupWorkflowID resolves a workflow row by its (repo, filename) identity.
func (d *DB) LookupWorkflowID(ctx context.Context, repoID int64, filename string) (int64, bool, error) {
	return d.lookupID(ctx, "workflows",
		`select id from workflows where repo = $1 and filename = $2`,
		repoID, filename)
}

func (d *DB) lookupID(ctx context.Context, table, sql string, args ...any) (int64, bool, error) {
	exists, err := d.TableExists(ctx, table)
	if err != nil || !exists {
		return 0, false, err
	}
	var id int64
	err = d.pool.QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// HasCommit reports whether a commit sha is already mirrored. This is the
// stop predicate for incremental commit ingestion.
func (d *DB) HasCommit(ctx context.Context, sha string) (bool, error) {
	exists, err := d.TableExists(ctx, "commits")
	if err != nil || !exists {
		return false, err
	}
	var found bool
	err = d.pool.QueryRow(ctx,
		`select exists (select 1 from commits where sha = $1)`, sha).Scan(&found)
	return found, err
}

// HasDependent reports whether a (repo, dependent) pair is already recorded.
func (d *DB) HasDependent(ctx context.Context, repoID, dependentID int64) (bool, error) {
	exists, err := d.TableExists(ctx, "dependents")
	if err != nil || !exists {
		return false, err
	}
	var found bool
	err = d.pool.QueryRow(ctx,
		`select exists (select 1 from dependents where repo = $1 and dependent = $2)`,
		repoID, dependentID).Scan(&found)
	return found, err
}

// DeleteWorkflow removes a workflow definition and everything hanging off
// it. Workflow rows have no upstream identity, so replacement is delete
// then reinsert; steps go first, then jobs, then the workflow itself.
func (d *DB) DeleteWorkflow(ctx context.Context, workflowID int64) error {
	if _, err := d.pool.Exec(ctx,
		`delete from steps where job in (select id from jobs where workflow = $1)`,
		workflowID); err != nil {
		return err
	}
	if _, err := d.pool.Exec(ctx,
		`delete from jobs where workflow = $1`, workflowID); err != nil {
		return err
	}
	_, err := d.pool.Exec(ctx, `delete from workflows where id = $1`, workflowID)
	return err
}
