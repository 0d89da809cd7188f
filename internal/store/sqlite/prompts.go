package sqlite

import (
	"context"
	"database/sql"
	"errors"
)

func (s *Store) GetDirectoryPrompt(ctx context.Context, directory string) (string, error) {
	var prompt string
	err := s.db.QueryRowContext(ctx, `SELECT prompt FROM directory_prompts WHERE directory = ?`, directory).Scan(&prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classify(err)
	}
	return prompt, nil
}

func (s *Store) SetDirectoryPrompt(ctx context.Context, directory, prompt string) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO directory_prompts (directory, prompt) VALUES (?, ?)
			ON CONFLICT(directory) DO UPDATE SET prompt = excluded.prompt`, directory, prompt)
		return classify(err)
	})
}
