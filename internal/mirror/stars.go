package mirror

import (
	"context"
	"fmt"

	"github-mirror/internal/database"
	"github-mirror/internal/errors"
	"github-mirror/internal/model"
)

var starHints = map[string]database.ColumnType{
	"user":       database.TypeInteger,
	"repo":       database.TypeInteger,
	"starred_at": database.TypeText,
}

// SaveStars persists stars from a user's perspective: one user, many repos.
// Each starred repo is mirrored in full before the join row is written.
func SaveStars(ctx context.Context, s Store, user model.Record, stars []model.Record) error {
	userID, err := SaveUser(ctx, s, user)
	if err != nil {
		return err
	}
	for _, star := range stars {
		repo := star.Object("repo")
		if repo == nil {
			return &errors.ShapeError{Resource: "star", Field: "repo"}
		}
		repoID, err := SaveRepo(ctx, s, repo)
		if err != nil {
			return fmt.Errorf("starred repo: %w", err)
		}
		_, err = s.Upsert(ctx, "stars", model.Record{
			"user":       userID,
			"repo":       repoID,
			"starred_at": star["starred_at"],
		}, database.UpsertOptions{PK: []string{"user", "repo"}, Hints: starHints, Mode: database.ModeInsert})
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveStargazers persists stars from a repo's perspective: one repo, many
// users. Both paths converge on the same stars table.
func SaveStargazers(ctx context.Context, s Store, repoID int64, stargazers []model.Record) error {
	for _, stargazer := range stargazers {
		userID, err := SaveUser(ctx, s, stargazer.Object("user"))
		if err != nil {
			return fmt.Errorf("stargazer: %w", err)
		}
		_, err = s.Upsert(ctx, "stars", model.Record{
			"user":       userID,
			"repo":       repoID,
			"starred_at": stargazer["starred_at"],
		}, database.UpsertOptions{PK: []string{"user", "repo"}, Hints: starHints, Mode: database.ModeUpsert})
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveContributors persists per-repo contribution counts, resolving each
// contributor to a user row first.
func SaveContributors(ctx context.Context, s Store, contributors []model.Record, repoID int64) error {
	for _, contributor := range contributors {
		rec := contributor.Clone()
		contributions := rec["contributions"]
		delete(rec, "contributions")
		userID, err := SaveUser(ctx, s, rec)
		if err != nil {
			return fmt.Errorf("contributor: %w", err)
		}
		_, err = s.Upsert(ctx, "contributors", model.Record{
			"repo_id":       repoID,
			"user_id":       userID,
			"contributions": contributions,
		}, database.UpsertOptions{
			PK: []string{"repo_id", "user_id"},
			Hints: map[string]database.ColumnType{
				"repo_id":       database.TypeInteger,
				"user_id":       database.TypeInteger,
				"contributions": database.TypeInteger,
			},
			Mode: database.ModeInsert,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveDependent records that dependentID depends on repoID, keeping the
// first-seen timestamp of rows already present.
func SaveDependent(ctx context.Context, s Store, repoID, dependentID int64, firstSeen string) error {
	exists, err := s.HasDependent(ctx, repoID, dependentID)
	if err != nil || exists {
		return err
	}
	_, err = s.Upsert(ctx, "dependents", model.Record{
		"repo":           repoID,
		"dependent":      dependentID,
		"first_seen_utc": firstSeen,
	}, database.UpsertOptions{
		PK: []string{"repo", "dependent"},
		Hints: map[string]database.ColumnType{
			"repo":           database.TypeInteger,
			"dependent":      database.TypeInteger,
			"first_seen_utc": database.TypeText,
		},
		Mode: database.ModeInsert,
	})
	return err
}
