package mirror

import (
	"context"
	"fmt"

	"github-mirror/internal/database"
	"github-mirror/internal/errors"
	"github-mirror/internal/model"
)

// commitHints pins every commit column type up front: author and committer
// are null whenever the commit predates the author's platform account, and
// a null first record must not freeze the column as text.
var commitHints = map[string]database.ColumnType{
	"sha":            database.TypeText,
	"message":        database.TypeText,
	"author_date":    database.TypeText,
	"committer_date": database.TypeText,
	"raw_author":     database.TypeText,
	"raw_committer":  database.TypeText,
	"repo":           database.TypeInteger,
	"author":         database.TypeInteger,
	"committer":      database.TypeInteger,
}

// SaveCommits persists commit records, keyed by content hash. Attribution
// is stored twice: as raw (name, email) pairs, always, and as platform user
// references when the author resolves to an account.
func SaveCommits(ctx context.Context, s Store, commits []model.Record, repoID int64) error {
	for _, commit := range commits {
		if err := SaveCommit(ctx, s, commit, repoID); err != nil {
			return err
		}
	}
	return nil
}

// SaveCommit persists a single commit record.
func SaveCommit(ctx context.Context, s Store, commit model.Record, repoID int64) error {
	sha := commit.String("sha")
	if sha == "" {
		return &errors.ShapeError{Resource: "commit", Field: "sha"}
	}
	detail := commit.Object("commit")
	if detail == nil {
		return &errors.ShapeError{Resource: "commit", Field: "commit"}
	}
	author := detail.Object("author")
	committer := detail.Object("committer")
	if author == nil || committer == nil {
		return &errors.ShapeError{Resource: "commit", Field: "commit.author"}
	}

	rawAuthor, err := SaveCommitAuthor(ctx, s, author)
	if err != nil {
		return fmt.Errorf("commit %s raw author: %w", sha, err)
	}
	rawCommitter, err := SaveCommitAuthor(ctx, s, committer)
	if err != nil {
		return fmt.Errorf("commit %s raw committer: %w", sha, err)
	}

	toSave := model.Record{
		"sha":            sha,
		"message":        detail["message"],
		"author_date":    author["date"],
		"committer_date": committer["date"],
		"raw_author":     rawAuthor,
		"raw_committer":  rawCommitter,
		"repo":           repoID,
		"author":         nil,
		"committer":      nil,
	}
	if user := commit.Object("author"); user != nil {
		id, err := SaveUser(ctx, s, user)
		if err != nil {
			return fmt.Errorf("commit %s author: %w", sha, err)
		}
		toSave["author"] = id
	}
	if user := commit.Object("committer"); user != nil {
		id, err := SaveUser(ctx, s, user)
		if err != nil {
			return fmt.Errorf("commit %s committer: %w", sha, err)
		}
		toSave["committer"] = id
	}

	_, err = s.Upsert(ctx, "commits", toSave, database.UpsertOptions{
		PK:    []string{"sha"},
		Hints: commitHints,
		Mode:  database.ModeInsert,
	})
	return err
}
