package postgres

import (
	"context"

	"github.com/barrulus/clepho/internal/store"
)

func (s *Store) CreateSimilarityGroup(ctx context.Context, kind store.SimilarityGroupKind, photoIDs []int64) (int64, error) {
	var id int64
	err := withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		if err := tx.QueryRowContext(ctx, `INSERT INTO similarity_groups (kind) VALUES ($1) RETURNING id`, string(kind)).Scan(&id); err != nil {
			return classify(err)
		}
		for _, pid := range photoIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO photo_similarity (photo_id, group_id) VALUES ($1, $2)`, pid, id); err != nil {
				return classify(err)
			}
		}
		return tx.Commit()
	})
	return id, err
}

func (s *Store) ListSimilarityGroups(ctx context.Context, kind store.SimilarityGroupKind) ([]store.SimilarityGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.kind, ps.photo_id
		FROM similarity_groups g
		JOIN photo_similarity ps ON ps.group_id = g.id
		WHERE g.kind = $1
		ORDER BY g.id`, string(kind))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	byID := make(map[int64]*store.SimilarityGroup)
	var order []int64
	for rows.Next() {
		var id int64
		var k string
		var photoID int64
		if err := rows.Scan(&id, &k, &photoID); err != nil {
			return nil, classify(err)
		}
		g, ok := byID[id]
		if !ok {
			g = &store.SimilarityGroup{ID: id, Kind: store.SimilarityGroupKind(k)}
			byID[id] = g
			order = append(order, id)
		}
		g.PhotoIDs = append(g.PhotoIDs, photoID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	out := make([]store.SimilarityGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (s *Store) DeleteAllSimilarityGroups(ctx context.Context, kind store.SimilarityGroupKind) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM similarity_groups WHERE kind = $1`, string(kind))
		return classify(err)
	})
}
