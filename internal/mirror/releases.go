package mirror

import (
	"context"
	"fmt"

	"github-mirror/internal/database"
	"github-mirror/internal/errors"
	"github-mirror/internal/model"
)

// SaveReleases persists release records for one repository, each owning
// zero or more assets.
func SaveReleases(ctx context.Context, s Store, releases []model.Record, repoID int64) error {
	for _, original := range releases {
		release := stripURLFields(original, "html_url")

		assets := release.Array("assets")
		delete(release, "assets")

		release["repo"] = repoID
		authorID, err := SaveUser(ctx, s, release.Object("author"))
		if err != nil {
			return fmt.Errorf("release %v author: %w", release["id"], err)
		}
		release["author"] = authorID

		releaseID, err := s.Upsert(ctx, "releases", release, database.UpsertOptions{
			PK: []string{"id"},
			Hints: map[string]database.ColumnType{
				"id":     database.TypeInteger,
				"author": database.TypeInteger,
				"repo":   database.TypeInteger,
			},
			Mode: database.ModeInsert,
		})
		if err != nil {
			return err
		}

		for _, raw := range assets {
			assetRec, ok := raw.(map[string]any)
			if !ok {
				return &errors.ShapeError{Resource: "release asset", Field: "assets"}
			}
			asset := model.Record(assetRec).Clone()
			uploaderID, err := SaveUser(ctx, s, asset.Object("uploader"))
			if err != nil {
				return fmt.Errorf("asset %v uploader: %w", asset["id"], err)
			}
			asset["uploader"] = uploaderID
			asset["release"] = releaseID
			_, err = s.Upsert(ctx, "assets", asset, database.UpsertOptions{
				PK: []string{"id"},
				Hints: map[string]database.ColumnType{
					"id":       database.TypeInteger,
					"uploader": database.TypeInteger,
					"release":  database.TypeInteger,
				},
				Mode: database.ModeUpsert,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
