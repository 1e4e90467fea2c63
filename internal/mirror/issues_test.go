package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-mirror/internal/model"
)

func sampleRepo() model.Record {
	return model.Record{"id": num("901"), "full_name": "acme/widget"}
}

func TestSaveIssuesTagsPullRequestStubs(t *testing.T) {
	s := newFakeStore()
	issues := []model.Record{
		{
			"id":     num("11"),
			"number": num("3"),
			"title":  "widget leaks",
			"user":   map[string]any{"id": num("42"), "login": "jane"},
		},
		{
			"id":     num("12"),
			"number": num("4"),
			"title":  "fix widget leak",
			"user":   map[string]any{"id": num("42"), "login": "jane"},
			"pull_request": map[string]any{
				"url": "https://api.github.com/repos/acme/widget/pulls/4",
			},
		},
	}
	require.NoError(t, SaveIssues(context.Background(), s, issues, sampleRepo()))

	rows := s.rows("issues")
	require.Len(t, rows, 2)
	assert.Equal(t, "issue", rows[0]["type"])
	assert.Nil(t, rows[0]["pull_request"])
	assert.Equal(t, "pull", rows[1]["type"])
	assert.Equal(t, "acme/widget/pulls/4", rows[1]["pull_request"])
	assert.Equal(t, int64(901), rows[0]["repo"])
	assert.Equal(t, int64(42), rows[0]["user"])
}

func TestSaveIssuesAttachesLabels(t *testing.T) {
	s := newFakeStore()
	issues := []model.Record{{
		"id":     num("11"),
		"number": num("3"),
		"title":  "widget leaks",
		"user":   map[string]any{"id": num("42"), "login": "jane"},
		"labels": []any{
			map[string]any{"id": num("5"), "name": "bug", "color": "d73a4a"},
		},
	}}
	require.NoError(t, SaveIssues(context.Background(), s, issues, sampleRepo()))

	label := s.onlyRow(t, "labels")
	assert.Equal(t, "bug", label["name"])

	join := s.onlyRow(t, "issues_labels")
	assert.Equal(t, num("11"), join["issues_id"])
	assert.Equal(t, num("5"), join["labels_id"])

	issue := s.onlyRow(t, "issues")
	assert.NotContains(t, issue, "labels")
}

func TestSaveIssuesResolvesMilestoneAndAssignee(t *testing.T) {
	s := newFakeStore()
	issues := []model.Record{{
		"id":     num("11"),
		"number": num("3"),
		"title":  "widget leaks",
		"user":   map[string]any{"id": num("42"), "login": "jane"},
		"milestone": map[string]any{
			"id": num("7"), "title": "v1.0",
			"creator": map[string]any{"id": num("42"), "login": "jane"},
		},
		"assignee":  map[string]any{"id": num("43"), "login": "sam"},
		"assignees": []any{map[string]any{"id": num("43"), "login": "sam"}},
	}}
	require.NoError(t, SaveIssues(context.Background(), s, issues, sampleRepo()))

	issue := s.onlyRow(t, "issues")
	assert.Equal(t, int64(7), issue["milestone"])
	assert.Equal(t, int64(43), issue["assignee"])
	assert.NotContains(t, issue, "assignees")
	assert.Len(t, s.rows("milestones"), 1)
}

func TestSavePullRequestsCollapsesRefs(t *testing.T) {
	s := newFakeStore()
	pulls := []model.Record{{
		"id":     num("21"),
		"number": num("4"),
		"title":  "fix leak",
		"user":   map[string]any{"id": num("42"), "login": "jane"},
		"_links": map[string]any{
			"html": map[string]any{"href": "https://github.example/acme/widget/pull/4"},
		},
		"head":                map[string]any{"sha": "feed01", "ref": "fix-leak"},
		"base":                map[string]any{"sha": "beef02", "ref": "main"},
		"merged_by":           map[string]any{"id": num("44"), "login": "lee"},
		"requested_reviewers": []any{},
		"requested_teams":     []any{},
		"active_lock_reason":  nil,
	}}
	require.NoError(t, SavePullRequests(context.Background(), s, pulls, sampleRepo()))

	pr := s.onlyRow(t, "pull_requests")
	assert.Equal(t, "feed01", pr["head"])
	assert.Equal(t, "beef02", pr["base"])
	assert.Equal(t, int64(44), pr["merged_by"])
	assert.Equal(t, "https://github.example/acme/widget/pull/4", pr["url"])
	assert.NotContains(t, pr, "_links")
	assert.NotContains(t, pr, "requested_reviewers")
	assert.NotContains(t, pr, "requested_teams")
	assert.NotContains(t, pr, "active_lock_reason")
}

func TestSaveIssueCommentLinksMirroredIssue(t *testing.T) {
	s := newFakeStore()
	s.issueIDs["acme/widget#3"] = 11

	id, err := SaveIssueComment(context.Background(), s, discardLogger(), model.Record{
		"id":        num("31"),
		"body":      "still leaking",
		"issue_url": "https://api.github.com/repos/acme/widget/issues/3",
		"url":       "https://api.github.com/repos/acme/widget/issues/comments/31",
		"user":      map[string]any{"id": num("42"), "login": "jane"},
	})
	require.NoError(t, err)
	assert.Equal(t, num("31"), id)

	comment := s.onlyRow(t, "issue_comments")
	assert.Equal(t, int64(11), comment["issue"])
	assert.NotContains(t, comment, "url")
}

func TestSaveIssueCommentUnmirroredIssueStoresNull(t *testing.T) {
	s := newFakeStore()
	_, err := SaveIssueComment(context.Background(), s, discardLogger(), model.Record{
		"id":        num("31"),
		"body":      "still leaking",
		"issue_url": "https://api.github.com/repos/acme/widget/issues/99",
		"user":      map[string]any{"id": num("42"), "login": "jane"},
	})
	require.NoError(t, err)
	assert.Nil(t, s.onlyRow(t, "issue_comments")["issue"])
}

func TestSaveIssueCommentMalformedURLStoresNull(t *testing.T) {
	s := newFakeStore()
	_, err := SaveIssueComment(context.Background(), s, discardLogger(), model.Record{
		"id":        num("31"),
		"body":      "still leaking",
		"issue_url": "https://api.github.com/not/an/issue",
		"user":      map[string]any{"id": num("42"), "login": "jane"},
	})
	require.NoError(t, err)
	assert.Nil(t, s.onlyRow(t, "issue_comments")["issue"])
}

func TestSaveIssueCommentStripsReactionURL(t *testing.T) {
	s := newFakeStore()
	_, err := SaveIssueComment(context.Background(), s, discardLogger(), model.Record{
		"id":        num("31"),
		"body":      "nice",
		"issue_url": "https://api.github.com/repos/acme/widget/issues/3",
		"user":      map[string]any{"id": num("42"), "login": "jane"},
		"reactions": map[string]any{
			"url": "https://api.example/reactions", "+1": num("2"), "total_count": num("2"),
		},
	})
	require.NoError(t, err)

	reactions, ok := s.onlyRow(t, "issue_comments")["reactions"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, reactions, "url")
	assert.Equal(t, num("2"), reactions["total_count"])
}

func TestParseIssueURL(t *testing.T) {
	tests := []struct {
		url      string
		repo     string
		number   int64
		parsable bool
	}{
		{"https://api.github.com/repos/acme/widget/issues/3", "acme/widget", 3, true},
		{"https://api.github.com/repos/acme/widget/pulls/3", "", 0, false},
		{"https://api.github.com/repos/acme/widget/issues/abc", "", 0, false},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		repo, number, ok := parseIssueURL(tt.url)
		assert.Equal(t, tt.parsable, ok, tt.url)
		assert.Equal(t, tt.repo, repo, tt.url)
		assert.Equal(t, tt.number, number, tt.url)
	}
}

func TestLabelJoinNaming(t *testing.T) {
	table, col := labelJoin("issues")
	assert.Equal(t, "issues_labels", table)
	assert.Equal(t, "issues_id", col)

	table, col = labelJoin("pull_requests")
	assert.Equal(t, "labels_pull_requests", table)
	assert.Equal(t, "pull_requests_id", col)
}
