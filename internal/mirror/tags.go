package mirror

import (
	"context"

	"github-mirror/internal/database"
	"github-mirror/internal/errors"
	"github-mirror/internal/model"
)

// SaveTags persists tag records for one repository. A tag keeps only its
// commit hash, not a full commit row.
func SaveTags(ctx context.Context, s Store, tags []model.Record, repoID int64) error {
	for _, tag := range tags {
		commit := tag.Object("commit")
		if commit == nil {
			return &errors.ShapeError{Resource: "tag", Field: "commit"}
		}
		_, err := s.Upsert(ctx, "tags", model.Record{
			"repo": repoID,
			"name": tag["name"],
			"sha":  commit["sha"],
		}, database.UpsertOptions{
			PK: []string{"repo", "name"},
			Hints: map[string]database.ColumnType{
				"repo": database.TypeInteger,
				"name": database.TypeText,
				"sha":  database.TypeText,
			},
			Mode: database.ModeInsert,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
