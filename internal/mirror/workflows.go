package mirror

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github-mirror/internal/database"
	"github-mirror/internal/model"
)

// SaveWorkflow persists one workflow definition file. Workflow rows have no
// stable upstream identity, only content, so re-ingesting a (repo,
// filename) pair replaces the whole subtree: old steps, then jobs, then the
// workflow row itself, before fresh rows go in.
func SaveWorkflow(ctx context.Context, s Store, repoID int64, filename string, content []byte) error {
	var parsed map[any]any
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return fmt.Errorf("parse workflow %s: %w", filename, err)
	}
	workflow := yamlRecord(parsed)

	jobs := workflow.Object("jobs")
	delete(workflow, "jobs")

	if existingID, found, err := s.LookupWorkflowID(ctx, repoID, filename); err != nil {
		return err
	} else if found {
		if err := s.DeleteWorkflow(ctx, existingID); err != nil {
			return err
		}
	}

	workflow["repo"] = repoID
	workflow["filename"] = filename
	if workflow["name"] == nil {
		workflow["name"] = filename
	}
	workflowID, err := s.Upsert(ctx, "workflows", workflow, database.UpsertOptions{
		Hints: map[string]database.ColumnType{
			"repo":     database.TypeInteger,
			"filename": database.TypeText,
			"name":     database.TypeText,
		},
		AutoPK: true,
	})
	if err != nil {
		return err
	}

	for _, jobName := range sortedKeys(jobs) {
		details, _ := jobs[jobName].(map[string]any)
		job := model.Record(details).Clone()
		steps := job.Array("steps")
		delete(job, "steps")

		job["workflow"] = workflowID
		job["name"] = jobName
		job["repo"] = repoID
		jobID, err := s.Upsert(ctx, "jobs", job, database.UpsertOptions{
			Hints: map[string]database.ColumnType{
				"workflow": database.TypeInteger,
				"repo":     database.TypeInteger,
				"name":     database.TypeText,
			},
			AutoPK: true,
		})
		if err != nil {
			return err
		}

		for i, raw := range steps {
			stepRec, _ := raw.(map[string]any)
			step := model.Record(stepRec).Clone()
			step["seq"] = i + 1
			step["job"] = jobID
			step["repo"] = repoID
			_, err := s.Upsert(ctx, "steps", step, database.UpsertOptions{
				Hints: map[string]database.ColumnType{
					"seq":  database.TypeInteger,
					"job":  database.TypeInteger,
					"repo": database.TypeInteger,
				},
				AutoPK: true,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// yamlRecord coerces a decoded YAML mapping into a Record. YAML 1.1
// resolves a bare `on` key to boolean true, which is almost always the
// workflow trigger block; it goes back to being "on".
func yamlRecord(m map[any]any) model.Record {
	rec := make(model.Record, len(m))
	for key, value := range m {
		switch k := key.(type) {
		case string:
			rec[k] = value
		case bool:
			if k {
				rec["on"] = value
			} else {
				rec["off"] = value
			}
		default:
			rec[fmt.Sprint(k)] = value
		}
	}
	return rec
}

func sortedKeys(m model.Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
