package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github-mirror/internal/config"
	"github-mirror/internal/database"
	"github-mirror/internal/syncer"
)

// withSyncer wraps a command body with connect and close.
func withSyncer(a *app, fn func(cmd *cobra.Command, args []string, s *syncer.Syncer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, s, err := a.connect(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(cmd, args, s)
	}
}

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Save a GitHub personal access token to the auth file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), "Create a GitHub personal access token and paste it here: ")
			reader := bufio.NewReader(cmd.InOrStdin())
			token, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("no token provided")
			}
			if err := config.SaveToken(a.cfg.AuthFile, token); err != nil {
				return err
			}
			a.logger.Info("token saved", "path", a.cfg.AuthFile)
			return nil
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the statically managed schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DBURL == "" {
				return config.ErrMissingDBURL
			}
			return database.Migrate(a.cfg.DBURL, a.logger)
		},
	}
}

func newReposCmd(a *app) *cobra.Command {
	var users []string
	cmd := &cobra.Command{
		Use:   "repos [owner/name...]",
		Short: "Mirror repositories: named ones, or everything a user owns",
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			if len(args) == 0 && len(users) == 0 {
				return s.SyncUserRepos(cmd.Context(), "")
			}
			for _, user := range users {
				if err := s.SyncUserRepos(cmd.Context(), user); err != nil {
					return err
				}
			}
			if len(args) > 0 {
				return s.SyncRepos(cmd.Context(), args)
			}
			return nil
		}),
	}
	cmd.Flags().StringSliceVarP(&users, "user", "u", nil, "mirror every repository this user or organization owns")
	return cmd
}

func newIssuesCmd(a *app) *cobra.Command {
	var numbers []int64
	cmd := &cobra.Command{
		Use:   "issues owner/name",
		Short: "Mirror a repository's issues",
		Args:  cobra.ExactArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncIssues(cmd.Context(), args[0], numbers)
		}),
	}
	cmd.Flags().Int64SliceVar(&numbers, "issue", nil, "specific issue number, repeatable")
	return cmd
}

func newPullRequestsCmd(a *app) *cobra.Command {
	var numbers []int64
	cmd := &cobra.Command{
		Use:   "pull-requests owner/name",
		Short: "Mirror a repository's pull requests",
		Args:  cobra.ExactArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncPullRequests(cmd.Context(), args[0], numbers)
		}),
	}
	cmd.Flags().Int64SliceVar(&numbers, "pull-request", nil, "specific pull request number, repeatable")
	return cmd
}

func newIssueCommentsCmd(a *app) *cobra.Command {
	var issue int64
	cmd := &cobra.Command{
		Use:   "issue-comments owner/name",
		Short: "Mirror a repository's issue comments",
		Args:  cobra.ExactArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncIssueComments(cmd.Context(), args[0], issue)
		}),
	}
	cmd.Flags().Int64Var(&issue, "issue", 0, "only comments on this issue number")
	return cmd
}

func newCommitsCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "commits owner/name...",
		Short: "Mirror commits, stopping at the first already-mirrored one",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncCommits(cmd.Context(), args, all)
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "fetch the full history regardless of what is mirrored")
	return cmd
}

func newReleasesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "releases owner/name...",
		Short: "Mirror releases and their assets",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncReleases(cmd.Context(), args)
		}),
	}
}

func newTagsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tags owner/name...",
		Short: "Mirror tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncTags(cmd.Context(), args)
		}),
	}
}

func newContributorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contributors owner/name...",
		Short: "Mirror contributor counts",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncContributors(cmd.Context(), args)
		}),
	}
}

func newStargazersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stargazers owner/name...",
		Short: "Mirror the users who starred a repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncStargazers(cmd.Context(), args)
		}),
	}
}

func newStarredCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "starred [username]",
		Short: "Mirror the repositories a user has starred",
		Args:  cobra.MaximumNArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			username := ""
			if len(args) == 1 {
				username = args[0]
			}
			return s.SyncStarred(cmd.Context(), username)
		}),
	}
}

func newWorkflowsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "workflows owner/name...",
		Short: "Mirror workflow definitions into workflow, job and step rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncWorkflows(cmd.Context(), args)
		}),
	}
}

func newScrapeDependentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scrape-dependents owner/name...",
		Short: "Record the repositories that depend on a repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.ScrapeDependents(cmd.Context(), args)
		}),
	}
}

func newReadmeCmd(a *app) *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "readme owner/name...",
		Short: "Store each repository's readme on its repos row",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncReadme(cmd.Context(), args, html)
		}),
	}
	cmd.Flags().BoolVar(&html, "html", false, "store rendered HTML instead of markdown")
	return cmd
}

func newEmojisCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "emojis",
		Short: "Mirror the emoji catalog",
		RunE: withSyncer(a, func(cmd *cobra.Command, args []string, s *syncer.Syncer) error {
			return s.SyncEmojis(cmd.Context())
		}),
	}
}
