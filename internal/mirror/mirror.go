// Package mirror turns raw GitHub API records into normalized relational
// rows: transport fields stripped, nested entities collapsed to foreign
// keys, shared child entities written exactly once, every write an
// idempotent upsert keyed by the source system's own identifiers.
package mirror

import (
	"context"
	"strings"

	"github-mirror/internal/database"
	"github-mirror/internal/model"
)

// Store is the relational handle every save operation writes through.
// *database.DB implements it; tests substitute an in-memory fake.
type Store interface {
	Upsert(ctx context.Context, table string, rec model.Record, opts database.UpsertOptions) (any, error)
	LookupIssueID(ctx context.Context, repoFullName string, number int64) (int64, bool, error)
	LookupWorkflowID(ctx context.Context, repoID int64, filename string) (int64, bool, error)
	DeleteWorkflow(ctx context.Context, workflowID int64) error
	HasDependent(ctx context.Context, repoID, dependentID int64) (bool, error)
}

// stripURLFields drops every field whose name ends in "url" except the
// listed keepers. These fields are transport metadata and are never
// queried; the keepers are display URLs (html_url, avatar_url).
func stripURLFields(rec model.Record, keep ...string) model.Record {
	out := make(model.Record, len(rec))
	for key, value := range rec {
		if strings.HasSuffix(key, "url") && !contains(keep, key) {
			continue
		}
		out[key] = value
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
