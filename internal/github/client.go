// Package github produces GitHub API resources as raw decoded JSON
// records, following pagination and handling the per-resource Accept
// headers the API wants. The engine consumes records; it never sees
// transport details.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gogithub "github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	apperrors "github-mirror/internal/errors"
	"github-mirror/internal/model"
)

const (
	// Preview media types some fields only arrive under: topics on repos,
	// starred_at on stars, reaction counts on comments.
	acceptTopics    = "application/vnd.github.mercy-preview+json"
	acceptStar      = "application/vnd.github.v3.star+json"
	acceptReactions = "application/vnd.github.squirrel-girl-preview"
	acceptV3        = "application/vnd.github.v3+json"

	perPage = 100
)

// StopFunc curtails an unbounded paginated stream: the first record it
// matches, and everything after it, is never yielded.
type StopFunc func(model.Record) bool

// VisitFunc receives each fetched record in arrival order.
type VisitFunc func(model.Record) error

// Client is a wrapper around the go-github client that returns raw records
// instead of typed structs; the mirror's schema is derived from the
// records themselves.
type Client struct {
	gh      *gogithub.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates and configures a new Client. The token may be empty
// for unauthenticated access; delay spaces successive requests to stay
// under abuse-rate thresholds.
func NewClient(token string, delay time.Duration, logger *slog.Logger) *Client {
	httpClient := http.DefaultClient
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)
	if delay <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		gh:      gogithub.NewClient(httpClient),
		limiter: limiter,
		logger:  logger,
	}
}

// get issues one request and decodes the body into out (a *model.Record,
// *[]model.Record, or *json.RawMessage).
func (c *Client) get(ctx context.Context, path, accept string, out any) (*gogithub.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.gh.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	var raw json.RawMessage
	resp, err := c.gh.Do(ctx, req, &raw)
	if err != nil {
		return resp, classify(err)
	}
	if out != nil && len(raw) > 0 {
		if err := decodeInto(raw, out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func decodeInto(raw json.RawMessage, out any) error {
	switch dst := out.(type) {
	case *json.RawMessage:
		*dst = raw
		return nil
	case *model.Record:
		rec, err := model.DecodeRecord(raw)
		if err != nil {
			return err
		}
		*dst = rec
		return nil
	case *[]model.Record:
		recs, err := model.DecodeRecords(raw)
		if err != nil {
			return err
		}
		*dst = recs
		return nil
	default:
		return fmt.Errorf("unsupported decode target %T", out)
	}
}

// classify converts go-github errors into the error taxonomy the engine
// understands. Non-2xx responses are terminal; the empty-repository
// message is the one recoverable case.
func classify(err error) error {
	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) {
		status := 0
		if ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
		return apperrors.NewGitHubError(ghErr.Message, status)
	}
	return err
}

// paginate follows a list endpoint to exhaustion, passing each page's
// records to visit. An HTTP 204 ends the stream as an empty page.
func (c *Client) paginate(ctx context.Context, path, accept string, visit func([]model.Record) error) error {
	page := 0
	for {
		pagedPath := path
		if page > 0 {
			sep := "?"
			for _, r := range path {
				if r == '?' {
					sep = "&"
					break
				}
			}
			pagedPath = fmt.Sprintf("%s%spage=%d", path, sep, page)
		}
		var records []model.Record
		resp, err := c.get(ctx, pagedPath, accept, &records)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			if err := visit(records); err != nil {
				return err
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil
		}
		page = resp.NextPage
	}
}

// visitEach adapts a per-record visitor to paginate's per-page shape.
func visitEach(visit VisitFunc) func([]model.Record) error {
	return func(records []model.Record) error {
		for _, rec := range records {
			if err := visit(rec); err != nil {
				return err
			}
		}
		return nil
	}
}

// FetchRepo fetches full repository details, topics included.
func (c *Client) FetchRepo(ctx context.Context, fullName string) (model.Record, error) {
	var repo model.Record
	_, err := c.get(ctx, "repos/"+fullName, acceptTopics, &repo)
	return repo, err
}

// FetchUser fetches a user's profile, or the authenticated user's when
// username is empty.
func (c *Client) FetchUser(ctx context.Context, username string) (model.Record, error) {
	path := "user"
	if username != "" {
		path = "users/" + username
	}
	var user model.Record
	_, err := c.get(ctx, path, "", &user)
	return user, err
}

// FetchIssues streams issues for a repository: all states from the unified
// feed, or just the numbered ones when numbers is non-empty.
func (c *Client) FetchIssues(ctx context.Context, repo string, numbers []int64, visit VisitFunc) error {
	if len(numbers) > 0 {
		return c.fetchNumbered(ctx, repo, "issues", numbers, visit)
	}
	return c.paginate(ctx, fmt.Sprintf("repos/%s/issues?state=all&filter=all&per_page=%d", repo, perPage),
		acceptV3, visitEach(visit))
}

// FetchPullRequests streams pull requests, or just the numbered ones.
func (c *Client) FetchPullRequests(ctx context.Context, repo string, numbers []int64, visit VisitFunc) error {
	if len(numbers) > 0 {
		return c.fetchNumbered(ctx, repo, "pulls", numbers, visit)
	}
	return c.paginate(ctx, fmt.Sprintf("repos/%s/pulls?state=all&filter=all&per_page=%d", repo, perPage),
		acceptV3, visitEach(visit))
}

func (c *Client) fetchNumbered(ctx context.Context, repo, kind string, numbers []int64, visit VisitFunc) error {
	for _, number := range numbers {
		var rec model.Record
		if _, err := c.get(ctx, fmt.Sprintf("repos/%s/%s/%d", repo, kind, number), acceptV3, &rec); err != nil {
			return err
		}
		if err := visit(rec); err != nil {
			return err
		}
	}
	return nil
}

// FetchIssueComments streams comments for a whole repository, or for one
// issue when issueNumber is non-zero. Reaction counts ride along.
func (c *Client) FetchIssueComments(ctx context.Context, repo string, issueNumber int64, visit VisitFunc) error {
	path := fmt.Sprintf("repos/%s/issues/comments?per_page=%d", repo, perPage)
	if issueNumber != 0 {
		path = fmt.Sprintf("repos/%s/issues/%d/comments?per_page=%d", repo, issueNumber, perPage)
	}
	return c.paginate(ctx, path, acceptReactions, visitEach(visit))
}

// FetchReleases streams releases with their assets.
func (c *Client) FetchReleases(ctx context.Context, repo string, visit VisitFunc) error {
	return c.paginate(ctx, fmt.Sprintf("repos/%s/releases?per_page=%d", repo, perPage), "", visitEach(visit))
}

// FetchContributors streams contributor records with contribution counts.
func (c *Client) FetchContributors(ctx context.Context, repo string, visit VisitFunc) error {
	return c.paginate(ctx, fmt.Sprintf("repos/%s/contributors?per_page=%d", repo, perPage), "", visitEach(visit))
}

// FetchTags streams tag records.
func (c *Client) FetchTags(ctx context.Context, repo string, visit VisitFunc) error {
	err := c.paginate(ctx, fmt.Sprintf("repos/%s/tags?per_page=%d", repo, perPage), "", visitEach(visit))
	if apperrors.IsRepositoryEmpty(err) {
		return nil
	}
	return err
}

// FetchCommits streams commits newest first. The optional stop predicate
// halts the stream at the first already-seen record without yielding it,
// giving "top up since last sync" semantics; a nil stop streams the full
// history. A newly created repository with no commits is a normal empty
// completion.
func (c *Client) FetchCommits(ctx context.Context, repo string, stop StopFunc, visit VisitFunc) error {
	var errStop = errors.New("stop")
	err := c.paginate(ctx, fmt.Sprintf("repos/%s/commits?per_page=%d", repo, perPage), "",
		func(records []model.Record) error {
			for _, rec := range records {
				if stop != nil && stop(rec) {
					return errStop
				}
				if err := visit(rec); err != nil {
					return err
				}
			}
			return nil
		})
	if errors.Is(err, errStop) || apperrors.IsRepositoryEmpty(err) {
		return nil
	}
	return err
}

// FetchStargazers streams a repo's stargazers with starred_at timestamps.
func (c *Client) FetchStargazers(ctx context.Context, repo string, visit VisitFunc) error {
	return c.paginate(ctx, fmt.Sprintf("repos/%s/stargazers?per_page=%d", repo, perPage),
		acceptStar, visitEach(visit))
}

// FetchAllStarred streams the repos starred by a user (or the
// authenticated user when username is empty), with starred_at timestamps.
func (c *Client) FetchAllStarred(ctx context.Context, username string, visit VisitFunc) error {
	path := fmt.Sprintf("user/starred?per_page=%d", perPage)
	if username != "" {
		path = fmt.Sprintf("users/%s/starred?per_page=%d", username, perPage)
	}
	return c.paginate(ctx, path, acceptStar, visitEach(visit))
}

// FetchAllRepos streams the repos owned by a user or organization (or the
// authenticated user when username is empty), topics included.
func (c *Client) FetchAllRepos(ctx context.Context, username string, visit VisitFunc) error {
	path := fmt.Sprintf("user/repos?per_page=%d", perPage)
	if username != "" {
		path = fmt.Sprintf("users/%s/repos?per_page=%d", username, perPage)
	}
	return c.paginate(ctx, path, acceptTopics, visitEach(visit))
}

// FetchWorkflows lists the repository's workflow definition files under
// .github/workflows and returns filename to raw YAML content. A repository
// with no workflows directory yields an empty map.
func (c *Client) FetchWorkflows(ctx context.Context, repo string) (map[string][]byte, error) {
	var listing []model.Record
	_, err := c.get(ctx, fmt.Sprintf("repos/%s/contents/.github/workflows", repo), "", &listing)
	if err != nil {
		var ghErr *apperrors.GitHubError
		if errors.As(err, &ghErr) && ghErr.StatusCode == http.StatusNotFound {
			return map[string][]byte{}, nil
		}
		return nil, err
	}
	workflows := make(map[string][]byte, len(listing))
	for _, entry := range listing {
		name := entry.String("name")
		downloadURL := entry.String("download_url")
		if name == "" || downloadURL == "" {
			continue
		}
		content, err := c.download(ctx, downloadURL)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", name, err)
		}
		workflows[name] = content
	}
	return workflows, nil
}

// download fetches an absolute URL outside the API surface, such as a raw
// content URL, through the same authenticated transport.
func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.gh.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewGitHubError(resp.Status, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FetchReadme fetches a repository's readme, rendered to HTML when html is
// set, raw markdown otherwise.
func (c *Client) FetchReadme(ctx context.Context, repo string, html bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := c.gh.NewRequest(http.MethodGet, fmt.Sprintf("repos/%s/readme", repo), nil)
	if err != nil {
		return "", err
	}
	accept := "application/vnd.github.v3.raw"
	if html {
		accept = "application/vnd.github.v3.html"
	}
	req.Header.Set("Accept", accept)
	var buf bytes.Buffer
	if _, err := c.gh.Do(ctx, req, &buf); err != nil {
		return "", classify(err)
	}
	return buf.String(), nil
}

// FetchEmojis fetches the emoji name → image URL catalog as records.
func (c *Client) FetchEmojis(ctx context.Context) ([]model.Record, error) {
	var raw json.RawMessage
	if _, err := c.get(ctx, "emojis", "", &raw); err != nil {
		return nil, err
	}
	var catalog map[string]string
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, err
	}
	records := make([]model.Record, 0, len(catalog))
	for name, url := range catalog {
		records = append(records, model.Record{"name": name, "url": url})
	}
	return records, nil
}
