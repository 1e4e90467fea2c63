// Package syncer orchestrates one mirroring command: fetch records for each
// target, hand them to the engine, record the run, then finalize the schema
// once. Targets are independent; one failing does not stop the rest.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github-mirror/internal/database"
	apperrors "github-mirror/internal/errors"
	"github-mirror/internal/github"
	"github-mirror/internal/mirror"
	"github-mirror/internal/model"
)

// Syncer couples the fetch side to the store side for the duration of one
// command.
type Syncer struct {
	db          *database.DB
	client      *github.Client
	logger      *slog.Logger
	scrapeDelay time.Duration
}

// New creates a Syncer. scrapeDelay spaces dependents-page requests.
func New(db *database.DB, client *github.Client, logger *slog.Logger, scrapeDelay time.Duration) *Syncer {
	return &Syncer{db: db, client: client, logger: logger, scrapeDelay: scrapeDelay}
}

// ValidateRepo checks an 'owner/name' identifier before any network call.
func ValidateRepo(repo string) error {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return &apperrors.ErrInvalidRepoFormat{Repo: repo}
	}
	return nil
}

// ensureRepo fetches and mirrors the target repository itself, returning
// its record and identity. Every per-repo command starts here so child rows
// always have a parent.
func (s *Syncer) ensureRepo(ctx context.Context, fullName string) (model.Record, int64, error) {
	repo, err := s.client.FetchRepo(ctx, fullName)
	if err != nil {
		return nil, 0, err
	}
	id, err := mirror.SaveRepo(ctx, s.db, repo)
	if err != nil {
		return nil, 0, err
	}
	return repo, id, nil
}

// runTarget executes one target inside an error boundary, logging and
// recording the outcome either way.
func (s *Syncer) runTarget(ctx context.Context, command, target string, fn func(context.Context) (int, error)) error {
	started := time.Now().UTC()
	s.logger.Info("sync started", "command", command, "target", target)
	count, err := fn(ctx)
	s.recordRun(ctx, command, target, started, count, err)
	if err != nil {
		s.logger.Error("sync failed", "command", command, "target", target, "error", err)
		return fmt.Errorf("%s %s: %w", command, target, err)
	}
	s.logger.Info("sync finished", "command", command, "target", target,
		"records", count, "duration", time.Since(started).String())
	return nil
}

// finishRun finalizes the schema and joins any per-target errors. The
// finalizer runs even after partial failure: whatever was written deserves
// its constraints and views.
func (s *Syncer) finishRun(ctx context.Context, errs ...error) error {
	if err := mirror.Finalize(ctx, s.db, s.logger); err != nil {
		errs = append(errs, fmt.Errorf("finalize: %w", err))
	}
	return errors.Join(errs...)
}

// SyncRepos mirrors each named repository's own record.
func (s *Syncer) SyncRepos(ctx context.Context, repos []string) error {
	var errs []error
	for _, repo := range repos {
		if err := ValidateRepo(repo); err != nil {
			return err
		}
		errs = append(errs, s.runTarget(ctx, "repos", repo, func(ctx context.Context) (int, error) {
			if _, _, err := s.ensureRepo(ctx, repo); err != nil {
				return 0, err
			}
			return 1, nil
		}))
	}
	return s.finishRun(ctx, errs...)
}

// SyncUserRepos mirrors every repository owned by a user or organization,
// or by the authenticated user when username is empty.
func (s *Syncer) SyncUserRepos(ctx context.Context, username string) error {
	err := s.runTarget(ctx, "repos", userLabel(username), func(ctx context.Context) (int, error) {
		count := 0
		err := s.client.FetchAllRepos(ctx, username, func(repo model.Record) error {
			if _, err := mirror.SaveRepo(ctx, s.db, repo); err != nil {
				return err
			}
			count++
			return nil
		})
		return count, err
	})
	return s.finishRun(ctx, err)
}

// SyncIssues mirrors a repository's issues: the whole unified feed, or the
// given issue numbers.
func (s *Syncer) SyncIssues(ctx context.Context, repo string, numbers []int64) error {
	if err := ValidateRepo(repo); err != nil {
		return err
	}
	err := s.runTarget(ctx, "issues", repo, func(ctx context.Context) (int, error) {
		repoRec, _, err := s.ensureRepo(ctx, repo)
		if err != nil {
			return 0, err
		}
		var issues []model.Record
		if err := s.client.FetchIssues(ctx, repo, numbers, collect(&issues)); err != nil {
			return 0, err
		}
		return len(issues), mirror.SaveIssues(ctx, s.db, issues, repoRec)
	})
	return s.finishRun(ctx, err)
}

// SyncPullRequests mirrors a repository's pull requests from the pulls
// endpoint, which carries merge metadata the issues feed lacks.
func (s *Syncer) SyncPullRequests(ctx context.Context, repo string, numbers []int64) error {
	if err := ValidateRepo(repo); err != nil {
		return err
	}
	err := s.runTarget(ctx, "pull-requests", repo, func(ctx context.Context) (int, error) {
		repoRec, _, err := s.ensureRepo(ctx, repo)
		if err != nil {
			return 0, err
		}
		var pulls []model.Record
		if err := s.client.FetchPullRequests(ctx, repo, numbers, collect(&pulls)); err != nil {
			return 0, err
		}
		return len(pulls), mirror.SavePullRequests(ctx, s.db, pulls, repoRec)
	})
	return s.finishRun(ctx, err)
}

// SyncIssueComments mirrors comments for a repository, or for one issue.
func (s *Syncer) SyncIssueComments(ctx context.Context, repo string, issueNumber int64) error {
	if err := ValidateRepo(repo); err != nil {
		return err
	}
	err := s.runTarget(ctx, "issue-comments", repo, func(ctx context.Context) (int, error) {
		if _, _, err := s.ensureRepo(ctx, repo); err != nil {
			return 0, err
		}
		count := 0
		err := s.client.FetchIssueComments(ctx, repo, issueNumber, func(comment model.Record) error {
			if _, err := mirror.SaveIssueComment(ctx, s.db, s.logger, comment); err != nil {
				return err
			}
			count++
			return nil
		})
		return count, err
	})
	return s.finishRun(ctx, err)
}

// SyncCommits mirrors commits for each repository, newest first, stopping
// at the first already-mirrored commit unless all is set.
func (s *Syncer) SyncCommits(ctx context.Context, repos []string, all bool) error {
	var errs []error
	for _, repo := range repos {
		if err := ValidateRepo(repo); err != nil {
			return err
		}
		errs = append(errs, s.runTarget(ctx, "commits", repo, func(ctx context.Context) (int, error) {
			_, repoID, err := s.ensureRepo(ctx, repo)
			if err != nil {
				return 0, err
			}
			var stop github.StopFunc
			if !all {
				stop = func(rec model.Record) bool {
					seen, err := s.db.HasCommit(ctx, rec.String("sha"))
					if err != nil {
						s.logger.Warn("commit lookup failed, continuing stream", "error", err)
						return false
					}
					return seen
				}
			}
			count := 0
			err = s.client.FetchCommits(ctx, repo, stop, func(commit model.Record) error {
				if err := mirror.SaveCommit(ctx, s.db, commit, repoID); err != nil {
					return err
				}
				count++
				return nil
			})
			return count, err
		}))
	}
	return s.finishRun(ctx, errs...)
}

// SyncReleases mirrors each repository's releases and their assets.
func (s *Syncer) SyncReleases(ctx context.Context, repos []string) error {
	return s.perRepo(ctx, "releases", repos, func(ctx context.Context, repo string, repoID int64) (int, error) {
		var releases []model.Record
		if err := s.client.FetchReleases(ctx, repo, collect(&releases)); err != nil {
			return 0, err
		}
		return len(releases), mirror.SaveReleases(ctx, s.db, releases, repoID)
	})
}

// SyncTags mirrors each repository's tags.
func (s *Syncer) SyncTags(ctx context.Context, repos []string) error {
	return s.perRepo(ctx, "tags", repos, func(ctx context.Context, repo string, repoID int64) (int, error) {
		var tags []model.Record
		if err := s.client.FetchTags(ctx, repo, collect(&tags)); err != nil {
			return 0, err
		}
		return len(tags), mirror.SaveTags(ctx, s.db, tags, repoID)
	})
}

// SyncContributors mirrors each repository's contributor counts.
func (s *Syncer) SyncContributors(ctx context.Context, repos []string) error {
	return s.perRepo(ctx, "contributors", repos, func(ctx context.Context, repo string, repoID int64) (int, error) {
		var contributors []model.Record
		if err := s.client.FetchContributors(ctx, repo, collect(&contributors)); err != nil {
			return 0, err
		}
		return len(contributors), mirror.SaveContributors(ctx, s.db, contributors, repoID)
	})
}

// SyncStargazers mirrors the users who starred each repository.
func (s *Syncer) SyncStargazers(ctx context.Context, repos []string) error {
	return s.perRepo(ctx, "stargazers", repos, func(ctx context.Context, repo string, repoID int64) (int, error) {
		var stargazers []model.Record
		if err := s.client.FetchStargazers(ctx, repo, collect(&stargazers)); err != nil {
			return 0, err
		}
		return len(stargazers), mirror.SaveStargazers(ctx, s.db, repoID, stargazers)
	})
}

// SyncStarred mirrors every repository starred by a user, or by the
// authenticated user when username is empty.
func (s *Syncer) SyncStarred(ctx context.Context, username string) error {
	err := s.runTarget(ctx, "starred", userLabel(username), func(ctx context.Context) (int, error) {
		user, err := s.client.FetchUser(ctx, username)
		if err != nil {
			return 0, err
		}
		var stars []model.Record
		if err := s.client.FetchAllStarred(ctx, username, collect(&stars)); err != nil {
			return 0, err
		}
		return len(stars), mirror.SaveStars(ctx, s.db, user, stars)
	})
	return s.finishRun(ctx, err)
}

// SyncWorkflows mirrors each repository's workflow definition files into
// workflow, job and step rows.
func (s *Syncer) SyncWorkflows(ctx context.Context, repos []string) error {
	return s.perRepo(ctx, "workflows", repos, func(ctx context.Context, repo string, repoID int64) (int, error) {
		workflows, err := s.client.FetchWorkflows(ctx, repo)
		if err != nil {
			return 0, err
		}
		count := 0
		for filename, content := range workflows {
			if err := mirror.SaveWorkflow(ctx, s.db, repoID, filename, content); err != nil {
				return count, err
			}
			count++
		}
		return count, nil
	})
}

// ScrapeDependents records the repositories depending on each target. Each
// dependent not yet mirrored is fetched in full first.
func (s *Syncer) ScrapeDependents(ctx context.Context, repos []string) error {
	var errs []error
	for _, repo := range repos {
		if err := ValidateRepo(repo); err != nil {
			return err
		}
		errs = append(errs, s.runTarget(ctx, "scrape-dependents", repo, func(ctx context.Context) (int, error) {
			_, repoID, err := s.ensureRepo(ctx, repo)
			if err != nil {
				return 0, err
			}
			count := 0
			err = s.client.ScrapeDependents(ctx, repo, s.scrapeDelay, func(fullName string) error {
				dependentID, found, err := s.db.LookupRepoID(ctx, fullName)
				if err != nil {
					return err
				}
				if !found {
					dependent, err := s.client.FetchRepo(ctx, fullName)
					if err != nil {
						return fmt.Errorf("dependent %s: %w", fullName, err)
					}
					if dependentID, err = mirror.SaveRepo(ctx, s.db, dependent); err != nil {
						return err
					}
				}
				firstSeen := time.Now().UTC().Format(time.RFC3339)
				if err := mirror.SaveDependent(ctx, s.db, repoID, dependentID, firstSeen); err != nil {
					return err
				}
				count++
				return nil
			})
			return count, err
		}))
	}
	return s.finishRun(ctx, errs...)
}

// SyncReadme stores each repository's readme on its repos row, in the
// readme column as markdown or readme_html when rendered.
func (s *Syncer) SyncReadme(ctx context.Context, repos []string, html bool) error {
	column := "readme"
	if html {
		column = "readme_html"
	}
	var errs []error
	for _, repo := range repos {
		if err := ValidateRepo(repo); err != nil {
			return err
		}
		errs = append(errs, s.runTarget(ctx, "readme", repo, func(ctx context.Context) (int, error) {
			_, repoID, err := s.ensureRepo(ctx, repo)
			if err != nil {
				return 0, err
			}
			readme, err := s.client.FetchReadme(ctx, repo, html)
			if err != nil {
				return 0, err
			}
			_, err = s.db.Upsert(ctx, "repos", model.Record{
				"id":   repoID,
				column: readme,
			}, database.UpsertOptions{
				PK:    []string{"id"},
				Hints: map[string]database.ColumnType{"id": database.TypeInteger, column: database.TypeText},
				Mode:  database.ModeUpsert,
			})
			if err != nil {
				return 0, err
			}
			return 1, nil
		}))
	}
	return s.finishRun(ctx, errs...)
}

// SyncEmojis mirrors the emoji catalog.
func (s *Syncer) SyncEmojis(ctx context.Context) error {
	err := s.runTarget(ctx, "emojis", "catalog", func(ctx context.Context) (int, error) {
		emojis, err := s.client.FetchEmojis(ctx)
		if err != nil {
			return 0, err
		}
		return len(emojis), mirror.SaveEmojis(ctx, s.db, emojis)
	})
	return s.finishRun(ctx, err)
}

// perRepo runs one fetch-and-save step per repository target with the
// standard boundary, then finalizes.
func (s *Syncer) perRepo(ctx context.Context, command string, repos []string,
	fn func(ctx context.Context, repo string, repoID int64) (int, error)) error {
	var errs []error
	for _, repo := range repos {
		if err := ValidateRepo(repo); err != nil {
			return err
		}
		errs = append(errs, s.runTarget(ctx, command, repo, func(ctx context.Context) (int, error) {
			_, repoID, err := s.ensureRepo(ctx, repo)
			if err != nil {
				return 0, err
			}
			return fn(ctx, repo, repoID)
		}))
	}
	return s.finishRun(ctx, errs...)
}

func collect(dst *[]model.Record) github.VisitFunc {
	return func(rec model.Record) error {
		*dst = append(*dst, rec)
		return nil
	}
}

func userLabel(username string) string {
	if username == "" {
		return "(authenticated user)"
	}
	return username
}
