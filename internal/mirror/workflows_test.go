package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWorkflow = `name: CI
on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - run: make test
  lint:
    runs-on: ubuntu-latest
    steps:
      - run: make lint
`

func TestSaveWorkflowSplitsJobsAndSteps(t *testing.T) {
	s := newFakeStore()
	require.NoError(t, SaveWorkflow(context.Background(), s, 901, "ci.yml", []byte(sampleWorkflow)))

	wf := s.onlyRow(t, "workflows")
	assert.Equal(t, "CI", wf["name"])
	assert.Equal(t, "ci.yml", wf["filename"])
	assert.Equal(t, int64(901), wf["repo"])
	assert.Contains(t, wf, "on")
	assert.NotContains(t, wf, "jobs")

	jobs := s.rows("jobs")
	require.Len(t, jobs, 2)
	// Jobs come out in name order.
	assert.Equal(t, "build", jobs[0]["name"])
	assert.Equal(t, "lint", jobs[1]["name"])
	assert.Equal(t, wf["id"], jobs[0]["workflow"])
	assert.NotContains(t, jobs[0], "steps")

	steps := s.rows("steps")
	require.Len(t, steps, 3)
	assert.Equal(t, 1, steps[0]["seq"])
	assert.Equal(t, 2, steps[1]["seq"])
	assert.Equal(t, jobs[0]["id"], steps[0]["job"])
	assert.Equal(t, jobs[1]["id"], steps[2]["job"])
}

func TestSaveWorkflowUnnamedFallsBackToFilename(t *testing.T) {
	s := newFakeStore()
	require.NoError(t, SaveWorkflow(context.Background(), s, 901, "release.yml",
		[]byte("on: push\njobs: {}\n")))
	assert.Equal(t, "release.yml", s.onlyRow(t, "workflows")["name"])
}

func TestSaveWorkflowReplacesExistingSubtree(t *testing.T) {
	s := newFakeStore()
	ctx := context.Background()
	require.NoError(t, SaveWorkflow(ctx, s, 901, "ci.yml", []byte(sampleWorkflow)))
	firstID := s.onlyRow(t, "workflows")["id"]

	shrunk := `name: CI
on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: make test
`
	require.NoError(t, SaveWorkflow(ctx, s, 901, "ci.yml", []byte(shrunk)))

	// The old subtree is gone, not merged under.
	wf := s.onlyRow(t, "workflows")
	assert.NotEqual(t, firstID, wf["id"])
	require.Len(t, s.rows("jobs"), 1)
	require.Len(t, s.rows("steps"), 1)
	assert.Equal(t, wf["id"], s.rows("jobs")[0]["workflow"])
}

func TestSaveWorkflowLeavesOtherFilesAlone(t *testing.T) {
	s := newFakeStore()
	ctx := context.Background()
	require.NoError(t, SaveWorkflow(ctx, s, 901, "ci.yml", []byte(sampleWorkflow)))
	require.NoError(t, SaveWorkflow(ctx, s, 901, "release.yml", []byte("on: push\njobs: {}\n")))
	require.NoError(t, SaveWorkflow(ctx, s, 901, "ci.yml", []byte(sampleWorkflow)))

	assert.Len(t, s.rows("workflows"), 2)
	assert.Len(t, s.rows("jobs"), 2)
}

func TestSaveWorkflowRejectsInvalidYAML(t *testing.T) {
	s := newFakeStore()
	err := SaveWorkflow(context.Background(), s, 901, "broken.yml", []byte(":\n  - ]["))
	assert.Error(t, err)
}

func TestYamlRecordNormalizesBooleanKeys(t *testing.T) {
	rec := yamlRecord(map[any]any{
		true:   "push",
		"name": "CI",
	})
	assert.Equal(t, "push", rec["on"])
	assert.Equal(t, "CI", rec["name"])
}
