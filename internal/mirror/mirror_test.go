package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-mirror/internal/database"
	"github-mirror/internal/model"
)

// upsertCall records one write for assertions on table, record and options.
type upsertCall struct {
	table string
	rec   model.Record
	opts  database.UpsertOptions
}

// fakeStore is an in-memory Store that mimics the dynamic layer's key
// semantics: rows match on primary key, ModeInsert replaces, ModeUpsert
// merges, AutoPK assigns sequential ids.
type fakeStore struct {
	calls    []upsertCall
	tables   map[string][]model.Record
	nextID   int64
	issueIDs map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:   map[string][]model.Record{},
		issueIDs: map[string]int64{},
	}
}

func (f *fakeStore) Upsert(_ context.Context, table string, rec model.Record, opts database.UpsertOptions) (any, error) {
	stored := rec.Clone()
	f.calls = append(f.calls, upsertCall{table: table, rec: stored, opts: opts})

	if opts.AutoPK {
		f.nextID++
		stored["id"] = f.nextID
		f.tables[table] = append(f.tables[table], stored)
		return f.nextID, nil
	}

	rows := f.tables[table]
	matched := false
	for i, row := range rows {
		same := true
		for _, pk := range opts.PK {
			if !reflect.DeepEqual(row[pk], stored[pk]) {
				same = false
				break
			}
		}
		if !same {
			continue
		}
		if opts.Mode == database.ModeUpsert {
			merged := row.Clone()
			for k, v := range stored {
				merged[k] = v
			}
			rows[i] = merged
		} else {
			rows[i] = stored
		}
		matched = true
		break
	}
	if !matched {
		f.tables[table] = append(rows, stored)
	}

	if len(opts.PK) == 1 {
		return stored[opts.PK[0]], nil
	}
	key := make([]any, len(opts.PK))
	for i, pk := range opts.PK {
		key[i] = stored[pk]
	}
	return key, nil
}

func (f *fakeStore) LookupIssueID(_ context.Context, repoFullName string, number int64) (int64, bool, error) {
	id, ok := f.issueIDs[fmt.Sprintf("%s#%d", repoFullName, number)]
	return id, ok, nil
}

func (f *fakeStore) LookupWorkflowID(_ context.Context, repoID int64, filename string) (int64, bool, error) {
	for _, row := range f.tables["workflows"] {
		if row["repo"] == repoID && row["filename"] == filename {
			id, _ := row["id"].(int64)
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeStore) DeleteWorkflow(_ context.Context, workflowID int64) error {
	jobIDs := map[int64]bool{}
	var jobs []model.Record
	for _, job := range f.tables["jobs"] {
		if job["workflow"] == workflowID {
			if id, ok := job["id"].(int64); ok {
				jobIDs[id] = true
			}
			continue
		}
		jobs = append(jobs, job)
	}
	f.tables["jobs"] = jobs

	var steps []model.Record
	for _, step := range f.tables["steps"] {
		if id, ok := step["job"].(int64); ok && jobIDs[id] {
			continue
		}
		steps = append(steps, step)
	}
	f.tables["steps"] = steps

	var workflows []model.Record
	for _, wf := range f.tables["workflows"] {
		if wf["id"] == workflowID {
			continue
		}
		workflows = append(workflows, wf)
	}
	f.tables["workflows"] = workflows
	return nil
}

func (f *fakeStore) HasDependent(_ context.Context, repoID, dependentID int64) (bool, error) {
	for _, row := range f.tables["dependents"] {
		if row["repo"] == repoID && row["dependent"] == dependentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) rows(table string) []model.Record {
	return f.tables[table]
}

func (f *fakeStore) onlyRow(t *testing.T, table string) model.Record {
	t.Helper()
	require.Len(t, f.tables[table], 1, "expected exactly one row in %s", table)
	return f.tables[table][0]
}

func num(s string) json.Number {
	return json.Number(s)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSaveUserNameFallsBackToLogin(t *testing.T) {
	s := newFakeStore()
	id, err := SaveUser(context.Background(), s, model.Record{
		"id":    num("42"),
		"login": "jane",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	row := s.onlyRow(t, "users")
	assert.Equal(t, "jane", row["name"])
	assert.Equal(t, database.ModeUpsert, s.calls[0].opts.Mode)
}

func TestSaveUserStubDoesNotEraseProfile(t *testing.T) {
	s := newFakeStore()
	ctx := context.Background()
	_, err := SaveUser(ctx, s, model.Record{
		"id":    num("42"),
		"login": "jane",
		"name":  "Jane Doe",
		"bio":   "maintainer",
	})
	require.NoError(t, err)

	// A nested stub sighting carries fewer fields.
	_, err = SaveUser(ctx, s, model.Record{
		"id":    num("42"),
		"login": "jane",
	})
	require.NoError(t, err)

	row := s.onlyRow(t, "users")
	assert.Equal(t, "maintainer", row["bio"])
	assert.Equal(t, "jane", row["name"])
}

func TestSaveUserStripsTransportURLs(t *testing.T) {
	s := newFakeStore()
	_, err := SaveUser(context.Background(), s, model.Record{
		"id":         num("42"),
		"login":      "jane",
		"avatar_url": "https://avatars.example/42",
		"html_url":   "https://github.example/jane",
		"events_url": "https://api.example/users/jane/events",
	})
	require.NoError(t, err)

	row := s.onlyRow(t, "users")
	assert.Contains(t, row, "avatar_url")
	assert.Contains(t, row, "html_url")
	assert.NotContains(t, row, "events_url")
}

func TestSaveUserRejectsMissingID(t *testing.T) {
	s := newFakeStore()
	_, err := SaveUser(context.Background(), s, model.Record{"login": "jane"})
	assert.Error(t, err)

	_, err = SaveUser(context.Background(), s, nil)
	assert.Error(t, err)
}

func TestSaveRepoResolvesNestedEntities(t *testing.T) {
	s := newFakeStore()
	id, err := SaveRepo(context.Background(), s, model.Record{
		"id":        num("901"),
		"full_name": "acme/widget",
		"name":      "widget",
		"html_url":  "https://github.example/acme/widget",
		"keys_url":  "https://api.example/repos/acme/widget/keys",
		"owner": map[string]any{
			"id":    num("456"),
			"login": "acme",
		},
		"license": map[string]any{
			"key":  "mit",
			"name": "MIT License",
			"url":  "https://api.example/licenses/mit",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(901), id)

	repo := s.onlyRow(t, "repos")
	assert.Equal(t, int64(456), repo["owner"])
	assert.Equal(t, "mit", repo["license"])
	assert.Nil(t, repo["organization"])
	assert.Contains(t, repo, "html_url")
	assert.NotContains(t, repo, "keys_url")

	// The license row keeps its url: it is stored whole.
	license := s.onlyRow(t, "licenses")
	assert.Equal(t, "https://api.example/licenses/mit", license["url"])

	owner := s.onlyRow(t, "users")
	assert.Equal(t, "acme", owner["login"])
}

func TestSaveRepoWithoutLicense(t *testing.T) {
	s := newFakeStore()
	_, err := SaveRepo(context.Background(), s, model.Record{
		"id":        num("901"),
		"full_name": "acme/widget",
		"owner":     map[string]any{"id": num("456"), "login": "acme"},
		"license":   nil,
	})
	require.NoError(t, err)

	repo := s.onlyRow(t, "repos")
	assert.Nil(t, repo["license"])
	assert.Empty(t, s.rows("licenses"))
}

func TestSaveRepoRequiresOwner(t *testing.T) {
	s := newFakeStore()
	_, err := SaveRepo(context.Background(), s, model.Record{
		"id":        num("901"),
		"full_name": "acme/widget",
	})
	assert.Error(t, err)
}

func TestSaveCommitContentAddressedAuthors(t *testing.T) {
	s := newFakeStore()
	ctx := context.Background()
	commit := func(sha string) model.Record {
		return model.Record{
			"sha": sha,
			"commit": map[string]any{
				"message": "fix widget",
				"author": map[string]any{
					"name": "Jane Doe", "email": "jane@example.com",
					"date": "2024-03-01T10:00:00Z",
				},
				"committer": map[string]any{
					"name": "Jane Doe", "email": "jane@example.com",
					"date": "2024-03-01T10:05:00Z",
				},
			},
			"author":    map[string]any{"id": num("42"), "login": "jane"},
			"committer": nil,
		}
	}

	require.NoError(t, SaveCommit(ctx, s, commit("aaa111"), 901))
	require.NoError(t, SaveCommit(ctx, s, commit("bbb222"), 901))

	// Same (name, email) pair across four sightings collapses to one row.
	rawAuthors := s.rows("raw_authors")
	require.Len(t, rawAuthors, 1)
	id, ok := rawAuthors[0]["id"].(string)
	require.True(t, ok)
	assert.Len(t, id, 40)

	commits := s.rows("commits")
	require.Len(t, commits, 2)
	first := commits[0]
	assert.Equal(t, id, first["raw_author"])
	assert.Equal(t, id, first["raw_committer"])
	assert.Equal(t, int64(42), first["author"])
	assert.Nil(t, first["committer"])
	assert.Equal(t, "fix widget", first["message"])
	assert.Equal(t, "2024-03-01T10:00:00Z", first["author_date"])
}

func TestRawAuthorIDDeterministic(t *testing.T) {
	a := rawAuthorID("Jane Doe", "jane@example.com")
	b := rawAuthorID("Jane Doe", "jane@example.com")
	c := rawAuthorID("John Doe", "jane@example.com")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 40)
}

func TestSaveCommitRejectsMalformedRecord(t *testing.T) {
	s := newFakeStore()
	ctx := context.Background()

	err := SaveCommit(ctx, s, model.Record{"commit": map[string]any{}}, 901)
	assert.Error(t, err, "missing sha")

	err = SaveCommit(ctx, s, model.Record{"sha": "aaa"}, 901)
	assert.Error(t, err, "missing commit detail")

	err = SaveCommit(ctx, s, model.Record{
		"sha":    "aaa",
		"commit": map[string]any{"message": "x"},
	}, 901)
	assert.Error(t, err, "missing nested author")
	assert.Empty(t, s.rows("commits"))
}

func TestSaveMilestoneResolvesCreator(t *testing.T) {
	s := newFakeStore()
	id, err := SaveMilestone(context.Background(), s, model.Record{
		"id":         num("7"),
		"title":      "v1.0",
		"creator":    map[string]any{"id": num("42"), "login": "jane"},
		"labels_url": "https://api.example/x",
		"url":        "https://api.example/y",
	}, 901)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	row := s.onlyRow(t, "milestones")
	assert.Equal(t, int64(42), row["creator"])
	assert.Equal(t, int64(901), row["repo"])
	assert.NotContains(t, row, "labels_url")
	assert.NotContains(t, row, "url")
}
