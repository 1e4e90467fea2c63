package mirror

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForeignKeysCoverDeclaredTables(t *testing.T) {
	// Every edge references users, repos or another mirrored table; spot
	// check the ones whose direction is easy to get backwards.
	edges := map[string]ForeignKey{}
	for _, fk := range ForeignKeys {
		edges[fk.Table+"."+fk.Column] = fk
	}

	lic, ok := edges["repos.license"]
	require.True(t, ok)
	assert.Equal(t, "licenses", lic.RefTable)
	assert.Equal(t, "key", lic.RefColumn)

	dep, ok := edges["dependents.dependent"]
	require.True(t, ok)
	assert.Equal(t, "repos", dep.RefTable)

	join, ok := edges["labels_pull_requests.pull_requests_id"]
	require.True(t, ok)
	assert.Equal(t, "pull_requests", join.RefTable)
	assert.Equal(t, "id", join.RefColumn)
}

func TestFTSStatementsShape(t *testing.T) {
	stmts := ftsStatements(FTSTable{
		Table: "issues", PK: "id", PKType: "bigint",
		Columns: []string{"title", "body"},
	})
	require.Len(t, stmts, 5)

	assert.Contains(t, stmts[0], `create table "issues_fts"`)
	assert.Contains(t, stmts[0], `"id" bigint primary key`)
	assert.Contains(t, stmts[1], "using gin (search)")
	assert.Contains(t, stmts[2], "create or replace function issues_fts_sync()")
	assert.Contains(t, stmts[2], `coalesce(new."title", '')`)
	assert.Contains(t, stmts[3], `after insert or update on "issues"`)

	// Backfill reads the source table, not the trigger's NEW row.
	assert.Contains(t, stmts[4], `from "issues"`)
	assert.NotContains(t, stmts[4], "new.")
}

func TestViewSQLReferencesOnlyDeclaredTables(t *testing.T) {
	for _, view := range Views {
		require.NotEmpty(t, view.Tables, view.Name)
		for _, table := range view.Tables {
			assert.Contains(t, view.SQL, table, "view %s declares %s but never reads it", view.Name, table)
		}
	}
}

func TestStripURLFields(t *testing.T) {
	rec := stripURLFields(map[string]any{
		"id":         1,
		"url":        "x",
		"events_url": "x",
		"html_url":   "x",
	}, "html_url")
	assert.Contains(t, rec, "id")
	assert.Contains(t, rec, "html_url")
	assert.NotContains(t, rec, "url")
	assert.NotContains(t, rec, "events_url")
}

func TestFTSConfigPKTypesMatchSources(t *testing.T) {
	for _, fts := range FTSConfig {
		switch fts.Table {
		case "commits":
			assert.Equal(t, "sha", fts.PK)
			assert.Equal(t, "text", fts.PKType)
		case "licenses":
			assert.Equal(t, "key", fts.PK)
			assert.Equal(t, "text", fts.PKType)
		default:
			assert.Equal(t, "id", fts.PK, fts.Table)
			assert.Equal(t, "bigint", fts.PKType, fts.Table)
		}
		assert.False(t, strings.HasSuffix(fts.Table, "_fts"))
	}
}
