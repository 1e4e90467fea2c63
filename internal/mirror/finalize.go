package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github-mirror/internal/database"
)

// Finalize ensures declared foreign keys, FTS projections, and convenience
// views exist. It runs once per command, after all records are written, and
// every step is a guarded no-op when its precondition is already satisfied,
// so it is safe against stores holding any subset of the schema.
func Finalize(ctx context.Context, db *database.DB, logger *slog.Logger) error {
	if err := ensureForeignKeys(ctx, db); err != nil {
		return fmt.Errorf("ensure foreign keys: %w", err)
	}
	if err := ensureWorkflowIndex(ctx, db); err != nil {
		return fmt.Errorf("ensure workflow index: %w", err)
	}
	if err := ensureFTS(ctx, db, logger); err != nil {
		return fmt.Errorf("ensure fts: %w", err)
	}
	if err := ensureViews(ctx, db, logger); err != nil {
		return fmt.Errorf("ensure views: %w", err)
	}
	return nil
}

// ensureForeignKeys adds each declared constraint once both tables and both
// columns exist, and indexes the referencing column. Constraints go in NOT
// VALID: rows written before the referenced table was populated must not
// block the upgrade.
func ensureForeignKeys(ctx context.Context, db *database.DB) error {
	for _, fk := range ForeignKeys {
		ok, err := fkApplicable(ctx, db, fk)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		name := fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
		exists, err := db.ConstraintExists(ctx, fk.Table, name)
		if err != nil {
			return err
		}
		if !exists {
			if err := db.Exec(ctx, fmt.Sprintf(
				`alter table %q add constraint %q foreign key (%q) references %q (%q) not valid`,
				fk.Table, name, fk.Column, fk.RefTable, fk.RefColumn)); err != nil {
				return err
			}
		}
		if err := db.Exec(ctx, fmt.Sprintf(
			`create index if not exists %q on %q (%q)`,
			"idx_"+fk.Table+"_"+fk.Column, fk.Table, fk.Column)); err != nil {
			return err
		}
	}
	return nil
}

func fkApplicable(ctx context.Context, db *database.DB, fk ForeignKey) (bool, error) {
	for _, probe := range []struct{ table, column string }{
		{fk.Table, fk.Column},
		{fk.RefTable, fk.RefColumn},
	} {
		exists, err := db.TableExists(ctx, probe.table)
		if err != nil || !exists {
			return false, err
		}
		hasCol, err := db.ColumnExists(ctx, probe.table, probe.column)
		if err != nil || !hasCol {
			return false, err
		}
	}
	return true, nil
}

// ensureWorkflowIndex enforces the (repo, filename) identity of workflow
// rows, whose primary key is generated.
func ensureWorkflowIndex(ctx context.Context, db *database.DB) error {
	exists, err := db.TableExists(ctx, "workflows")
	if err != nil || !exists {
		return err
	}
	return db.Exec(ctx,
		`create unique index if not exists idx_workflows_repo_filename on workflows (repo, filename)`)
}

// ensureFTS creates the `<table>_fts` shadow table, its GIN index, and a
// sync trigger for each searchable table that exists and has not been
// enabled yet, then backfills it from the source table.
func ensureFTS(ctx context.Context, db *database.DB, logger *slog.Logger) error {
	for _, fts := range FTSConfig {
		exists, err := db.TableExists(ctx, fts.Table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		ftsTable := fts.Table + "_fts"
		enabled, err := db.TableExists(ctx, ftsTable)
		if err != nil {
			return err
		}
		if enabled {
			continue
		}
		logger.Info("enabling full-text search", "table", fts.Table, "columns", fts.Columns)
		for _, stmt := range ftsStatements(fts) {
			if err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("fts %s: %w", fts.Table, err)
			}
		}
	}
	return nil
}

// ftsStatements renders the DDL for one projection: shadow table, index,
// trigger function, trigger, backfill.
func ftsStatements(fts FTSTable) []string {
	ftsTable := fts.Table + "_fts"
	parts := make([]string, len(fts.Columns))
	backfillParts := make([]string, len(fts.Columns))
	for i, col := range fts.Columns {
		parts[i] = fmt.Sprintf("coalesce(new.%q, '')", col)
		backfillParts[i] = fmt.Sprintf("coalesce(%q, '')", col)
	}
	vector := "to_tsvector('english', " + strings.Join(parts, " || ' ' || ") + ")"
	backfillVector := "to_tsvector('english', " + strings.Join(backfillParts, " || ' ' || ") + ")"

	return []string{
		fmt.Sprintf(`create table %q (%q %s primary key, search tsvector)`,
			ftsTable, fts.PK, fts.PKType),
		fmt.Sprintf(`create index %q on %q using gin (search)`,
			"idx_"+ftsTable+"_search", ftsTable),
		fmt.Sprintf(`create or replace function %s() returns trigger as $fn$
begin
  insert into %q (%q, search) values (new.%q, %s)
  on conflict (%q) do update set search = excluded.search;
  return new;
end
$fn$ language plpgsql`,
			ftsTable+"_sync", ftsTable, fts.PK, fts.PK, vector, fts.PK),
		fmt.Sprintf(`create trigger %s after insert or update on %q
for each row execute function %s()`,
			ftsTable+"_trigger", fts.Table, ftsTable+"_sync"),
		fmt.Sprintf(`insert into %q (%q, search) select %q, %s from %q
on conflict (%q) do update set search = excluded.search`,
			ftsTable, fts.PK, fts.PK, backfillVector, fts.Table, fts.PK),
	}
}

// ensureViews creates or replaces each declared view whose dependency
// tables all exist.
func ensureViews(ctx context.Context, db *database.DB, logger *slog.Logger) error {
	for _, view := range Views {
		ready := true
		for _, table := range view.Tables {
			exists, err := db.TableExists(ctx, table)
			if err != nil {
				return err
			}
			if !exists {
				ready = false
				break
			}
		}
		if !ready {
			logger.Debug("skipping view, dependency tables missing", "view", view.Name)
			continue
		}
		if err := db.Exec(ctx, fmt.Sprintf("create or replace view %q as %s", view.Name, view.SQL)); err != nil {
			return fmt.Errorf("view %s: %w", view.Name, err)
		}
	}
	return nil
}
