// Command github-mirror mirrors GitHub repository data into PostgreSQL and
// serves it back out.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github-mirror/internal/config"
	"github-mirror/internal/database"
	"github-mirror/internal/github"
	"github-mirror/internal/syncer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds what every command shares: config and logger up front, the
// database and syncer on demand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) init() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	return nil
}

// connect opens the store and builds a syncer around it. The caller closes
// the returned DB.
func (a *app) connect(ctx context.Context) (*database.DB, *syncer.Syncer, error) {
	if a.cfg.DBURL == "" {
		return nil, nil, config.ErrMissingDBURL
	}
	db, err := database.Connect(ctx, a.cfg.DBURL, a.logger)
	if err != nil {
		return nil, nil, err
	}
	client := github.NewClient(a.cfg.Token(), a.cfg.RequestDelay, a.logger)
	return db, syncer.New(db, client, a.logger, a.cfg.RequestDelay), nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "github-mirror",
		Short:         "Mirror GitHub repository data into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.AddCommand(
		newAuthCmd(a),
		newMigrateCmd(a),
		newReposCmd(a),
		newIssuesCmd(a),
		newPullRequestsCmd(a),
		newIssueCommentsCmd(a),
		newCommitsCmd(a),
		newReleasesCmd(a),
		newTagsCmd(a),
		newContributorsCmd(a),
		newStargazersCmd(a),
		newStarredCmd(a),
		newWorkflowsCmd(a),
		newScrapeDependentsCmd(a),
		newReadmeCmd(a),
		newEmojisCmd(a),
		newServeCmd(a),
	)
	return root
}
