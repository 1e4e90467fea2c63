// Package api serves the mirrored data back out over HTTP: simple read
// endpoints over the relational tables and a search endpoint over the FTS
// projections. It never writes.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github-mirror/internal/database"
	"github-mirror/internal/mirror"
	"github-mirror/internal/model"
)

const defaultPageSize = 50

// Handler holds the read-side dependencies.
type Handler struct {
	db     *database.DB
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(db *database.DB, logger *slog.Logger) *Handler {
	return &Handler{db: db, logger: logger}
}

// Routes builds the HTTP router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos", h.ListRepositories)
		r.Get("/repos/{owner}/{name}", h.GetRepository)
		r.Get("/repos/{owner}/{name}/issues", h.ListIssues)
		r.Get("/repos/{owner}/{name}/commits", h.ListCommits)
		r.Get("/repos/{owner}/{name}/releases", h.ListReleases)
		r.Get("/search", h.Search)
	})
	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRepositories returns mirrored repositories, most recently updated
// first.
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exists, err := h.db.TableExists(ctx, "repos")
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !exists {
		h.respondWithJSON(w, http.StatusOK, []model.Repository{})
		return
	}

	limit, offset := pageParams(r)
	rows, err := h.db.Pool().Query(ctx,
		`select id, full_name, name, description, html_url, owner, license,
		        stargazers_count, created_at, updated_at
		 from repos order by updated_at desc nulls last limit $1 offset $2`,
		limit, offset)
	if err != nil {
		h.logger.Error("list repositories failed", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	repos := []model.Repository{}
	for rows.Next() {
		var repo model.Repository
		if err := rows.Scan(&repo.ID, &repo.FullName, &repo.Name, &repo.Description,
			&repo.HTMLURL, &repo.Owner, &repo.License, &repo.StargazersCount,
			&repo.CreatedAt, &repo.UpdatedAt); err != nil {
			h.respondWithError(w, http.StatusInternalServerError, "database error")
			return
		}
		repos = append(repos, repo)
	}
	h.respondWithJSON(w, http.StatusOK, repos)
}

// GetRepository returns one repository by owner/name.
func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	id, found, err := h.db.LookupRepoID(ctx, fullName)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !found {
		h.respondWithError(w, http.StatusNotFound, "repository not mirrored")
		return
	}

	var repo model.Repository
	err = h.db.Pool().QueryRow(ctx,
		`select id, full_name, name, description, html_url, owner, license,
		        stargazers_count, created_at, updated_at
		 from repos where id = $1`, id).
		Scan(&repo.ID, &repo.FullName, &repo.Name, &repo.Description,
			&repo.HTMLURL, &repo.Owner, &repo.License, &repo.StargazersCount,
			&repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "database error")
		return
	}
	h.respondWithJSON(w, http.StatusOK, repo)
}

// ListIssues returns a repository's mirrored issues, newest first.
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	h.listChildren(w, r, "issues", func(ctx repoQuery) (any, error) {
		rows, err := h.db.Pool().Query(ctx.ctx,
			`select id, number, title, state, type, "user", repo, created_at
			 from issues where repo = $1 order by created_at desc limit $2 offset $3`,
			ctx.repoID, ctx.limit, ctx.offset)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		issues := []model.Issue{}
		for rows.Next() {
			var issue model.Issue
			if err := rows.Scan(&issue.ID, &issue.Number, &issue.Title, &issue.State,
				&issue.Type, &issue.User, &issue.Repo, &issue.CreatedAt); err != nil {
				return nil, err
			}
			issues = append(issues, issue)
		}
		return issues, rows.Err()
	})
}

// ListCommits returns a repository's mirrored commits, newest first.
func (h *Handler) ListCommits(w http.ResponseWriter, r *http.Request) {
	h.listChildren(w, r, "commits", func(ctx repoQuery) (any, error) {
		rows, err := h.db.Pool().Query(ctx.ctx,
			`select sha, message, author_date, committer_date, author, repo
			 from commits where repo = $1 order by committer_date desc limit $2 offset $3`,
			ctx.repoID, ctx.limit, ctx.offset)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		commits := []model.Commit{}
		for rows.Next() {
			var commit model.Commit
			if err := rows.Scan(&commit.SHA, &commit.Message, &commit.AuthorDate,
				&commit.CommitterDate, &commit.Author, &commit.Repo); err != nil {
				return nil, err
			}
			commits = append(commits, commit)
		}
		return commits, rows.Err()
	})
}

// ListReleases returns a repository's mirrored releases, newest first.
func (h *Handler) ListReleases(w http.ResponseWriter, r *http.Request) {
	h.listChildren(w, r, "releases", func(ctx repoQuery) (any, error) {
		rows, err := h.db.Pool().Query(ctx.ctx,
			`select id, name, tag_name, published_at, repo
			 from releases where repo = $1 order by published_at desc limit $2 offset $3`,
			ctx.repoID, ctx.limit, ctx.offset)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		releases := []model.Release{}
		for rows.Next() {
			var release model.Release
			if err := rows.Scan(&release.ID, &release.Name, &release.TagName,
				&release.PublishedAt, &release.Repo); err != nil {
				return nil, err
			}
			releases = append(releases, release)
		}
		return releases, rows.Err()
	})
}

// Search queries the FTS projections. ?q= is required; ?table= narrows the
// search to one projection, otherwise every existing projection is queried.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")
	if query == "" {
		h.respondWithError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	only := r.URL.Query().Get("table")

	hits := []model.SearchHit{}
	for _, fts := range mirror.FTSConfig {
		if only != "" && fts.Table != only {
			continue
		}
		ftsTable := fts.Table + "_fts"
		exists, err := h.db.TableExists(ctx, ftsTable)
		if err != nil {
			h.respondWithError(w, http.StatusInternalServerError, "database error")
			return
		}
		if !exists {
			continue
		}
		rows, err := h.db.Pool().Query(ctx, fmt.Sprintf(
			`select %q::text, ts_rank(search, q) as rank
			 from %q, websearch_to_tsquery('english', $1) q
			 where search @@ q order by rank desc limit %d`,
			fts.PK, ftsTable, defaultPageSize), query)
		if err != nil {
			h.logger.Error("search failed", "table", ftsTable, "error", err)
			h.respondWithError(w, http.StatusInternalServerError, "database error")
			return
		}
		for rows.Next() {
			hit := model.SearchHit{Table: fts.Table}
			if err := rows.Scan(&hit.ID, &hit.Rank); err != nil {
				rows.Close()
				h.respondWithError(w, http.StatusInternalServerError, "database error")
				return
			}
			hits = append(hits, hit)
		}
		rows.Close()
	}
	h.respondWithJSON(w, http.StatusOK, hits)
}

// repoQuery bundles the resolved parameters of a per-repo child listing.
type repoQuery struct {
	ctx           context.Context
	repoID        int64
	limit, offset int
}

// listChildren resolves the repo, checks the child table exists, and runs
// the query. An absent table reads as an empty list, the same as a mirrored
// repo with no children.
func (h *Handler) listChildren(w http.ResponseWriter, r *http.Request, table string, query func(repoQuery) (any, error)) {
	ctx := r.Context()
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	repoID, found, err := h.db.LookupRepoID(ctx, fullName)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !found {
		h.respondWithError(w, http.StatusNotFound, "repository not mirrored")
		return
	}
	exists, err := h.db.TableExists(ctx, table)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !exists {
		h.respondWithJSON(w, http.StatusOK, []any{})
		return
	}

	limit, offset := pageParams(r)
	result, err := query(repoQuery{ctx: ctx, repoID: repoID, limit: limit, offset: offset})
	if err != nil {
		h.logger.Error("list failed", "table", table, "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "database error")
		return
	}
	h.respondWithJSON(w, http.StatusOK, result)
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}
