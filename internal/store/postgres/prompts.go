package postgres

import (
	"context"
	"database/sql"
	"errors"
)

func (s *Store) GetDirectoryPrompt(ctx context.Context, directory string) (string, error) {
	var prompt string
	err := s.db.QueryRowContext(ctx, `SELECT prompt FROM directory_prompts WHERE directory = $1`, directory).Scan(&prompt)
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
			INSERT INTO directory_prompts (directory, prompt) VALUES ($1, $2)
			ON CONFLICT (directory) DO UPDATE SET prompt = EXCLUDED.prompt`, directory, prompt)
		return classify(err)
	})
}
