package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/barrulus/clepho/internal/store"
)

func (s *Store) PutEmbedding(ctx context.Context, photoID int64, vector []byte, model string) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO embeddings (photo_id, vector, model_name, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (photo_id) DO UPDATE SET vector = EXCLUDED.vector, model_name = EXCLUDED.model_name, created_at = EXCLUDED.created_at`,
			photoID, vector, model, time.Now().Unix())
		return classify(err)
	})
}

func (s *Store) GetEmbedding(ctx context.Context, photoID int64) (*store.Embedding, error) {
	var e store.Embedding
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT photo_id, vector, model_name, created_at FROM embeddings WHERE photo_id = $1`, photoID).
		Scan(&e.PhotoID, &e.Vector, &e.ModelName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &e, nil
}

func (s *Store) IterEmbeddings(ctx context.Context, fn func(store.Embedding) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT photo_id, vector, model_name, created_at FROM embeddings ORDER BY photo_id`)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var e store.Embedding
		var createdAt int64
		if err := rows.Scan(&e.PhotoID, &e.Vector, &e.ModelName, &createdAt); err != nil {
			return classify(err)
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}
