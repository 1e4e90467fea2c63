package mirror

// ForeignKey is one declared edge, applied by the finalizer only when both
// ends exist.
type ForeignKey struct {
	Table, Column, RefTable, RefColumn string
}

// ForeignKeys is every FK edge in the schema. None are embedded in CREATE
// TABLE: deferring them all to the finalizer keeps table creation
// order-independent, and commands that only populate a subset of tables
// simply skip the edges they cannot satisfy yet.
var ForeignKeys = []ForeignKey{
	{"repos", "owner", "users", "id"},
	{"repos", "organization", "users", "id"},
	{"repos", "license", "licenses", "key"},
	{"issues", "user", "users", "id"},
	{"issues", "assignee", "users", "id"},
	{"issues", "milestone", "milestones", "id"},
	{"issues", "repo", "repos", "id"},
	{"pull_requests", "user", "users", "id"},
	{"pull_requests", "merged_by", "users", "id"},
	{"pull_requests", "assignee", "users", "id"},
	{"pull_requests", "milestone", "milestones", "id"},
	{"pull_requests", "repo", "repos", "id"},
	{"milestones", "creator", "users", "id"},
	{"milestones", "repo", "repos", "id"},
	{"issue_comments", "user", "users", "id"},
	{"issue_comments", "issue", "issues", "id"},
	{"releases", "author", "users", "id"},
	{"releases", "repo", "repos", "id"},
	{"assets", "uploader", "users", "id"},
	{"assets", "release", "releases", "id"},
	{"commits", "author", "users", "id"},
	{"commits", "committer", "users", "id"},
	{"commits", "raw_author", "raw_authors", "id"},
	{"commits", "raw_committer", "raw_authors", "id"},
	{"commits", "repo", "repos", "id"},
	{"tags", "repo", "repos", "id"},
	{"stars", "user", "users", "id"},
	{"stars", "repo", "repos", "id"},
	{"dependents", "repo", "repos", "id"},
	{"dependents", "dependent", "repos", "id"},
	{"contributors", "repo_id", "repos", "id"},
	{"contributors", "user_id", "users", "id"},
	{"workflows", "repo", "repos", "id"},
	{"jobs", "workflow", "workflows", "id"},
	{"jobs", "repo", "repos", "id"},
	{"steps", "job", "jobs", "id"},
	{"steps", "repo", "repos", "id"},
	{"issues_labels", "issues_id", "issues", "id"},
	{"issues_labels", "labels_id", "labels", "id"},
	{"labels_pull_requests", "pull_requests_id", "pull_requests", "id"},
	{"labels_pull_requests", "labels_id", "labels", "id"},
}

// FTSTable declares one full-text-search projection: a `<table>_fts` shadow
// table keyed like its source, kept in sync by trigger.
type FTSTable struct {
	Table   string
	PK      string
	PKType  string
	Columns []string
}

// FTSConfig lists every searchable table and its searchable columns.
var FTSConfig = []FTSTable{
	{"commits", "sha", "text", []string{"message"}},
	{"issue_comments", "id", "bigint", []string{"body"}},
	{"issues", "id", "bigint", []string{"title", "body"}},
	{"pull_requests", "id", "bigint", []string{"title", "body"}},
	{"labels", "id", "bigint", []string{"name", "description"}},
	{"licenses", "key", "text", []string{"name"}},
	{"milestones", "id", "bigint", []string{"title", "description"}},
	{"releases", "id", "bigint", []string{"name", "body"}},
	{"repos", "id", "bigint", []string{"name", "description"}},
	{"users", "id", "bigint", []string{"login", "name"}},
}

// View is one convenience read path, created only when every table it reads
// from exists.
type View struct {
	Name   string
	Tables []string
	SQL    string
}

// Views are pure derived read paths with no independent lifecycle; their
// SQL text is fixed.
var Views = []View{
	{
		Name:   "dependent_repos",
		Tables: []string{"repos", "dependents"},
		SQL: `select
  repos.full_name as repo,
  'https://github.com/' || dependent_repos.full_name as dependent,
  dependent_repos.created_at as dependent_created,
  dependent_repos.updated_at as dependent_updated,
  dependent_repos.stargazers_count as dependent_stars,
  dependent_repos.watchers_count as dependent_watchers
from
  dependents
  join repos as dependent_repos on dependents.dependent = dependent_repos.id
  join repos on dependents.repo = repos.id
order by
  dependent_repos.created_at desc`,
	},
	{
		Name:   "repos_starred",
		Tables: []string{"stars", "repos", "users"},
		SQL: `select
  stars.starred_at,
  starring_user.login as starred_by,
  repos.*
from
  repos
  join stars on repos.id = stars.repo
  join users as starring_user on stars."user" = starring_user.id
  join users on repos.owner = users.id
order by
  stars.starred_at desc`,
	},
	{
		Name:   "recent_releases",
		Tables: []string{"repos", "releases"},
		SQL: `select
  repos.id as repo_id,
  repos.html_url as repo,
  releases.html_url as release,
  substr(releases.published_at, 0, 11) as date,
  releases.body as body_markdown,
  releases.published_at,
  coalesce(repos.topics, '[]'::jsonb) as topics
from
  releases
  join repos on repos.id = releases.repo
order by
  releases.published_at desc`,
	},
}
