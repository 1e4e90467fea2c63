package mirror

import (
	"context"

	"github-mirror/internal/database"
	"github-mirror/internal/model"
)

// SaveEmojis persists the emoji catalog, keyed by emoji name.
func SaveEmojis(ctx context.Context, s Store, emojis []model.Record) error {
	for _, emoji := range emojis {
		_, err := s.Upsert(ctx, "emojis", emoji, database.UpsertOptions{
			PK: []string{"name"},
			Hints: map[string]database.ColumnType{
				"name": database.TypeText,
				"url":  database.TypeText,
			},
			Mode: database.ModeInsert,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
