package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github-mirror/internal/database"
	"github-mirror/internal/errors"
	"github-mirror/internal/model"
)

const apiRepoPrefix = "https://api.github.com/repos/"

// SaveIssues persists issue records from the unified issues feed for one
// repository. Records carrying a pull_request stub are tagged type=pull,
// the rest type=issue; the stub itself collapses to its repo-relative path.
func SaveIssues(ctx context.Context, s Store, issues []model.Record, repo model.Record) error {
	repoID, ok := repo.Int("id")
	if !ok {
		return &errors.ShapeError{Resource: "repo", Field: "id"}
	}
	for _, original := range issues {
		issue := stripURLFields(original)
		issue["repo"] = repoID

		issueType := "issue"
		if pr := issue.Object("pull_request"); pr != nil {
			issue["pull_request"] = strings.TrimPrefix(pr.String("url"), apiRepoPrefix)
			issueType = "pull"
		}
		issue["type"] = issueType

		userID, err := SaveUser(ctx, s, issue.Object("user"))
		if err != nil {
			return fmt.Errorf("issue %v user: %w", issue["id"], err)
		}
		issue["user"] = userID

		labels := issue.Array("labels")
		delete(issue, "labels")

		if err := resolveMilestone(ctx, s, issue, repoID); err != nil {
			return err
		}
		if err := resolveAssignee(ctx, s, issue); err != nil {
			return err
		}

		id, err := s.Upsert(ctx, "issues", issue, database.UpsertOptions{
			PK: []string{"id"},
			Hints: map[string]database.ColumnType{
				"id":        database.TypeInteger,
				"user":      database.TypeInteger,
				"assignee":  database.TypeInteger,
				"milestone": database.TypeInteger,
				"repo":      database.TypeInteger,
				"title":     database.TypeText,
				"body":      database.TypeText,
			},
			Mode: database.ModeInsert,
		})
		if err != nil {
			return err
		}
		if err := attachLabels(ctx, s, "issues", id, labels); err != nil {
			return err
		}
	}
	return nil
}

// SavePullRequests persists records from the pulls endpoint, which carry
// head/base refs and merge metadata the unified feed lacks.
func SavePullRequests(ctx context.Context, s Store, pullRequests []model.Record, repo model.Record) error {
	repoID, ok := repo.Int("id")
	if !ok {
		return &errors.ShapeError{Resource: "repo", Field: "id"}
	}
	for _, original := range pullRequests {
		pr := stripURLFields(original)
		pr["repo"] = repoID

		// _links collapses to the one display URL.
		if links := pr.Object("_links"); links != nil {
			if html := links.Object("html"); html != nil {
				pr["url"] = html["href"]
			}
		}
		delete(pr, "_links")

		userID, err := SaveUser(ctx, s, pr.Object("user"))
		if err != nil {
			return fmt.Errorf("pull request %v user: %w", pr["id"], err)
		}
		pr["user"] = userID

		labels := pr.Array("labels")
		delete(pr, "labels")

		if mergedBy := pr.Object("merged_by"); mergedBy != nil {
			mergedByID, err := SaveUser(ctx, s, mergedBy)
			if err != nil {
				return fmt.Errorf("pull request %v merged_by: %w", pr["id"], err)
			}
			pr["merged_by"] = mergedByID
		}

		// Head and base collapse to their commit hashes.
		if head := pr.Object("head"); head != nil {
			pr["head"] = head["sha"]
		}
		if base := pr.Object("base"); base != nil {
			pr["base"] = base["sha"]
		}

		if err := resolveMilestone(ctx, s, pr, repoID); err != nil {
			return err
		}
		if err := resolveAssignee(ctx, s, pr); err != nil {
			return err
		}
		delete(pr, "active_lock_reason")
		// Multiplicities not modeled yet.
		delete(pr, "requested_reviewers")
		delete(pr, "requested_teams")

		id, err := s.Upsert(ctx, "pull_requests", pr, database.UpsertOptions{
			PK: []string{"id"},
			Hints: map[string]database.ColumnType{
				"id":        database.TypeInteger,
				"user":      database.TypeInteger,
				"merged_by": database.TypeInteger,
				"assignee":  database.TypeInteger,
				"milestone": database.TypeInteger,
				"repo":      database.TypeInteger,
				"title":     database.TypeText,
				"body":      database.TypeText,
			},
			Mode: database.ModeInsert,
		})
		if err != nil {
			return err
		}
		if err := attachLabels(ctx, s, "pull_requests", id, labels); err != nil {
			return err
		}
	}
	return nil
}

// SaveIssueComment persists one comment and returns its identity. The link
// to its parent issue is best effort: resolved from the comment's issue URL
// when the issue is already mirrored, null otherwise.
func SaveIssueComment(ctx context.Context, s Store, logger *slog.Logger, comment model.Record) (any, error) {
	toSave := comment.Clone()
	userID, err := SaveUser(ctx, s, toSave.Object("user"))
	if err != nil {
		return nil, fmt.Errorf("comment user: %w", err)
	}
	toSave["user"] = userID

	toSave["issue"] = nil
	if fullName, number, ok := parseIssueURL(comment.String("issue_url")); ok {
		if issueID, found, err := s.LookupIssueID(ctx, fullName, number); err != nil {
			return nil, err
		} else if found {
			toSave["issue"] = issueID
		}
	} else {
		logger.Warn("unrecognized issue URL shape, storing null issue link",
			"issue_url", comment.String("issue_url"))
	}

	delete(toSave, "url")
	if reactions := toSave.Object("reactions"); reactions != nil {
		reactions = reactions.Clone()
		delete(reactions, "url")
		toSave["reactions"] = map[string]any(reactions)
	}

	return s.Upsert(ctx, "issue_comments", toSave, database.UpsertOptions{
		PK: []string{"id"},
		Hints: map[string]database.ColumnType{
			"id":    database.TypeInteger,
			"user":  database.TypeInteger,
			"issue": database.TypeInteger,
		},
		Mode: database.ModeInsert,
	})
}

// parseIssueURL extracts (owner/repo, issue number) from an API issue URL,
// expecting the path to end in OWNER/REPO/issues/NUMBER.
func parseIssueURL(issueURL string) (string, int64, bool) {
	bits := strings.Split(issueURL, "/")
	if len(bits) < 4 || bits[len(bits)-2] != "issues" {
		return "", 0, false
	}
	number, err := strconv.ParseInt(bits[len(bits)-1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return bits[len(bits)-4] + "/" + bits[len(bits)-3], number, true
}

func resolveMilestone(ctx context.Context, s Store, rec model.Record, repoID int64) error {
	milestone := rec.Object("milestone")
	if milestone == nil {
		return nil
	}
	id, err := SaveMilestone(ctx, s, milestone, repoID)
	if err != nil {
		return fmt.Errorf("record %v milestone: %w", rec["id"], err)
	}
	rec["milestone"] = id
	return nil
}

// resolveAssignee maps the legacy singular assignee to a foreign key. The
// assignees array is dropped: multi-assignee is not modeled, and the column
// is omitted rather than half-mirrored.
func resolveAssignee(ctx context.Context, s Store, rec model.Record) error {
	delete(rec, "assignees")
	assignee := rec.Object("assignee")
	if assignee == nil {
		return nil
	}
	id, err := SaveUser(ctx, s, assignee)
	if err != nil {
		return fmt.Errorf("record %v assignee: %w", rec["id"], err)
	}
	rec["assignee"] = id
	return nil
}

// attachLabels upserts each label and ensures a join row linking it to the
// parent. Re-attaching the same label is a no-op.
func attachLabels(ctx context.Context, s Store, parentTable string, parentID any, labels []any) error {
	joinTable, parentCol := labelJoin(parentTable)
	for _, raw := range labels {
		label, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		labelID, err := s.Upsert(ctx, "labels", model.Record(label).Clone(), database.UpsertOptions{
			PK:    []string{"id"},
			Hints: map[string]database.ColumnType{"id": database.TypeInteger},
			Mode:  database.ModeInsert,
		})
		if err != nil {
			return err
		}
		_, err = s.Upsert(ctx, joinTable, model.Record{
			parentCol:   parentID,
			"labels_id": labelID,
		}, database.UpsertOptions{
			PK: []string{parentCol, "labels_id"},
			Hints: map[string]database.ColumnType{
				parentCol:   database.TypeInteger,
				"labels_id": database.TypeInteger,
			},
			Mode: database.ModeInsert,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// labelJoin names the many-to-many join table: both table names sorted and
// joined, so issues get "issues_labels" and pull requests get
// "labels_pull_requests".
func labelJoin(parentTable string) (table, parentCol string) {
	names := []string{parentTable, "labels"}
	if names[0] > names[1] {
		names[0], names[1] = names[1], names[0]
	}
	return names[0] + "_" + names[1], parentTable + "_id"
}
