package database

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github-mirror/internal/model"
)

// WriteMode selects what a second write with the same key does.
type WriteMode int

const (
	// ModeInsert is insert-or-replace: the new record fully overwrites the
	// row, and table columns absent from the record become null.
	ModeInsert WriteMode = iota
	// ModeUpsert is insert-or-merge: only the columns present in the record
	// are written, existing values in other columns are kept.
	ModeUpsert
)

// ColumnType is a declared Postgres column type.
type ColumnType string

const (
	TypeInteger ColumnType = "bigint"
	TypeFloat   ColumnType = "double precision"
	TypeText    ColumnType = "text"
	TypeBool    ColumnType = "boolean"
	TypeJSON    ColumnType = "jsonb"
)

// UpsertOptions declares the shape of one upsert.
type UpsertOptions struct {
	// PK names the primary key column(s). Ignored when AutoPK is set.
	PK []string
	// Hints pins column types that must not be inferred from the first
	// record, typically foreign keys that may arrive null.
	Hints map[string]ColumnType
	Mode  WriteMode
	// AutoPK gives the table a generated bigint "id" primary key, for
	// entities the source system assigns no identity (workflows, jobs,
	// steps).
	AutoPK bool
}

// Upsert writes one record into table, creating the table on first use and
// adding any columns not seen before. It returns the row's primary key: the
// record's own key under identity passthrough, or the generated id when
// AutoPK is set. Composite keys return a []any tuple.
func (d *DB) Upsert(ctx context.Context, table string, rec model.Record, opts UpsertOptions) (any, error) {
	if len(opts.PK) == 0 && !opts.AutoPK {
		return nil, fmt.Errorf("upsert %s: no primary key declared", table)
	}

	cols := recordColumns(rec, opts)

	exists, err := d.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := d.Exec(ctx, buildCreateTable(table, cols, opts)); err != nil {
			return nil, fmt.Errorf("create table %s: %w", table, err)
		}
	} else {
		existing, err := d.Columns(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			if existing[c.name] {
				continue
			}
			// Column widening: later records may carry fields earlier ones
			// did not.
			if err := d.Exec(ctx, fmt.Sprintf(
				"alter table %s add column if not exists %s %s",
				quoteIdent(table), quoteIdent(c.name), c.typ)); err != nil {
				return nil, fmt.Errorf("add column %s.%s: %w", table, c.name, err)
			}
		}
		if opts.Mode == ModeInsert {
			// Full replace nulls out every table column the record lacks.
			for name := range existing {
				if name == "id" && opts.AutoPK {
					continue
				}
				if !slices.ContainsFunc(cols, func(c column) bool { return c.name == name }) {
					cols = append(cols, column{name: name, typ: TypeText, value: nil})
				}
			}
		}
	}

	sql, args := buildUpsert(table, cols, opts)
	if opts.AutoPK {
		var id int64
		if err := d.pool.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
			return nil, fmt.Errorf("upsert %s: %w", table, err)
		}
		return id, nil
	}
	if _, err := d.pool.Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, err)
	}
	if len(opts.PK) == 1 {
		return rec[opts.PK[0]], nil
	}
	key := make([]any, len(opts.PK))
	for i, pk := range opts.PK {
		key[i] = rec[pk]
	}
	return key, nil
}

// column is one resolved (name, declared type, bind value) triple.
type column struct {
	name  string
	typ   ColumnType
	value any
}

// recordColumns resolves every record field to a column with a declared
// type (hint first, then inference) and a pgx-bindable value, in
// deterministic order: primary key columns first, the rest sorted.
func recordColumns(rec model.Record, opts UpsertOptions) []column {
	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		ai, bi := slices.Index(opts.PK, a), slices.Index(opts.PK, b)
		switch {
		case ai != -1 && bi != -1:
			return ai - bi
		case ai != -1:
			return -1
		case bi != -1:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})

	cols := make([]column, 0, len(names))
	for _, name := range names {
		typ, ok := opts.Hints[name]
		if !ok {
			typ = inferType(rec[name])
		}
		cols = append(cols, column{name: name, typ: typ, value: bindValue(rec[name], typ)})
	}
	return cols
}

// inferType maps a decoded JSON value to a column type. Nulls default to
// text; callers that know better pass a hint so early nulls cannot cause
// type drift.
func inferType(v any) ColumnType {
	switch t := v.(type) {
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return TypeInteger
		}
		return TypeFloat
	case bool:
		return TypeBool
	case map[string]any, []any:
		return TypeJSON
	case int, int64:
		return TypeInteger
	case float64:
		return TypeFloat
	default:
		return TypeText
	}
}

// bindValue converts a decoded JSON value into something pgx can bind for
// the resolved column type.
func bindValue(v any, typ ColumnType) any {
	switch t := v.(type) {
	case nil:
		return nil
	case json.Number:
		if typ == TypeText {
			return t.String()
		}
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		if typ == TypeJSON {
			return b
		}
		return string(b)
	default:
		return v
	}
}

func buildCreateTable(table string, cols []column, opts UpsertOptions) string {
	var defs []string
	if opts.AutoPK {
		defs = append(defs, `"id" bigserial primary key`)
	}
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(c.name), c.typ))
	}
	if !opts.AutoPK {
		quoted := make([]string, len(opts.PK))
		for i, pk := range opts.PK {
			quoted[i] = quoteIdent(pk)
		}
		defs = append(defs, fmt.Sprintf("primary key (%s)", strings.Join(quoted, ", ")))
	}
	return fmt.Sprintf("create table %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}

func buildUpsert(table string, cols []column, opts UpsertOptions) (string, []any) {
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.name)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = c.value
	}

	conflict := opts.PK
	if opts.AutoPK {
		conflict = []string{"id"}
	}
	conflictCols := make([]string, len(conflict))
	for i, pk := range conflict {
		conflictCols[i] = quoteIdent(pk)
	}

	var sets []string
	for _, c := range cols {
		if slices.Contains(conflict, c.name) {
			continue
		}
		q := quoteIdent(c.name)
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", q, q))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "insert into %s (%s) values (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if opts.AutoPK {
		// Generated keys never conflict; a plain insert with RETURNING.
		b.WriteString(` returning "id"`)
		return b.String(), args
	}
	fmt.Fprintf(&b, " on conflict (%s) ", strings.Join(conflictCols, ", "))
	if len(sets) == 0 {
		b.WriteString("do nothing")
	} else {
		fmt.Fprintf(&b, "do update set %s", strings.Join(sets, ", "))
	}
	return b.String(), args
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
