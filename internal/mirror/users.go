package mirror

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"

	"github-mirror/internal/database"
	"github-mirror/internal/errors"
	"github-mirror/internal/model"
)

// SaveUser persists a user or organization record and returns its identity.
// Nested user payloads omit profile fields, so the display name falls back
// to the login. Users merge on later sightings rather than replace: a stub
// sighting must never erase attributes a full profile already supplied.
func SaveUser(ctx context.Context, s Store, user model.Record) (int64, error) {
	if user == nil {
		return 0, &errors.ShapeError{Resource: "user", Field: "id"}
	}
	id, ok := user.Int("id")
	if !ok {
		return 0, &errors.ShapeError{Resource: "user", Field: "id"}
	}
	toSave := stripURLFields(user, "avatar_url", "html_url")
	if toSave["name"] == nil {
		toSave["name"] = toSave["login"]
	}
	_, err := s.Upsert(ctx, "users", toSave, database.UpsertOptions{
		PK:    []string{"id"},
		Hints: map[string]database.ColumnType{"id": database.TypeInteger},
		Mode:  database.ModeUpsert,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SaveLicense persists a license record keyed by its short key, returning
// the key, or nil when the repo carries no license.
func SaveLicense(ctx context.Context, s Store, license model.Record) (any, error) {
	if license == nil {
		return nil, nil
	}
	_, err := s.Upsert(ctx, "licenses", license.Clone(), database.UpsertOptions{
		PK:   []string{"key"},
		Mode: database.ModeInsert,
	})
	if err != nil {
		return nil, err
	}
	return license["key"], nil
}

// SaveMilestone persists a milestone, resolving its creator, and returns
// its identity.
func SaveMilestone(ctx context.Context, s Store, milestone model.Record, repoID int64) (int64, error) {
	id, ok := milestone.Int("id")
	if !ok {
		return 0, &errors.ShapeError{Resource: "milestone", Field: "id"}
	}
	toSave := milestone.Clone()
	creator, err := SaveUser(ctx, s, toSave.Object("creator"))
	if err != nil {
		return 0, fmt.Errorf("milestone creator: %w", err)
	}
	toSave["creator"] = creator
	toSave["repo"] = repoID
	delete(toSave, "labels_url")
	delete(toSave, "url")
	_, err = s.Upsert(ctx, "milestones", toSave, database.UpsertOptions{
		PK: []string{"id"},
		Hints: map[string]database.ColumnType{
			"id":      database.TypeInteger,
			"creator": database.TypeInteger,
			"repo":    database.TypeInteger,
		},
		Mode: database.ModeInsert,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SaveCommitAuthor persists a raw (name, email) attribution pair and
// returns its content-addressed identity. Commits whose author never
// resolves to a platform account keep their attribution through this row.
func SaveCommitAuthor(ctx context.Context, s Store, rawAuthor model.Record) (string, error) {
	rec := model.Record{
		"name":  rawAuthor["name"],
		"email": rawAuthor["email"],
	}
	rec["id"] = rawAuthorID(rawAuthor.String("name"), rawAuthor.String("email"))
	_, err := s.Upsert(ctx, "raw_authors", rec, database.UpsertOptions{
		PK:   []string{"id"},
		Mode: database.ModeInsert,
	})
	if err != nil {
		return "", err
	}
	return rec["id"].(string), nil
}

// rawAuthorID derives a deterministic identity from the normalized field
// set, so repeated sightings of the same pair collapse to one row.
func rawAuthorID(name, email string) string {
	payload, _ := json.Marshal(map[string]string{"email": email, "name": name})
	return fmt.Sprintf("%x", sha1.Sum(payload))
}
