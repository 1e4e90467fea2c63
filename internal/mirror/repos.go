package mirror

import (
	"context"
	"fmt"

	"github-mirror/internal/database"
	"github-mirror/internal/errors"
	"github-mirror/internal/model"
)

// SaveRepo persists a repository record and returns its identity. The owner
// is required; license and organization are optional and stored as nullable
// foreign keys.
func SaveRepo(ctx context.Context, s Store, repo model.Record) (int64, error) {
	id, ok := repo.Int("id")
	if !ok {
		return 0, &errors.ShapeError{Resource: "repo", Field: "id"}
	}
	toSave := stripURLFields(repo, "html_url")

	owner := toSave.Object("owner")
	if owner == nil {
		return 0, &errors.ShapeError{Resource: "repo", Field: "owner"}
	}
	ownerID, err := SaveUser(ctx, s, owner)
	if err != nil {
		return 0, fmt.Errorf("repo owner: %w", err)
	}
	toSave["owner"] = ownerID

	licenseKey, err := SaveLicense(ctx, s, toSave.Object("license"))
	if err != nil {
		return 0, fmt.Errorf("repo license: %w", err)
	}
	toSave["license"] = licenseKey

	if org := toSave.Object("organization"); org != nil {
		orgID, err := SaveUser(ctx, s, org)
		if err != nil {
			return 0, fmt.Errorf("repo organization: %w", err)
		}
		toSave["organization"] = orgID
	} else {
		toSave["organization"] = nil
	}

	_, err = s.Upsert(ctx, "repos", toSave, database.UpsertOptions{
		PK: []string{"id"},
		Hints: map[string]database.ColumnType{
			"id":           database.TypeInteger,
			"owner":        database.TypeInteger,
			"organization": database.TypeInteger,
			"license":      database.TypeText,
			"name":         database.TypeText,
			"description":  database.TypeText,
			"topics":       database.TypeJSON,
		},
		Mode: database.ModeInsert,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
