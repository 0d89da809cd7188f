package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/barrulus/clepho/internal/store"
)

const faceColumns = `id, photo_id, bbox_x, bbox_y, bbox_w, bbox_h, embedding, person_id, confidence`

func scanFace(row interface{ Scan(...any) error }) (*store.Face, error) {
	var f store.Face
	var personID sql.NullInt64
	if err := row.Scan(&f.ID, &f.PhotoID, &f.BBox.X, &f.BBox.Y, &f.BBox.W, &f.BBox.H, &f.Embedding, &personID, &f.Confidence); err != nil {
		return nil, err
	}
	if personID.Valid {
		v := personID.Int64
		f.PersonID = &v
	}
	return &f, nil
}

func (s *Store) InsertFace(ctx context.Context, f store.Face) (int64, error) {
	var id int64
	err := withRetry(func() error {
		return classify(s.db.QueryRowContext(ctx, `
			INSERT INTO faces (photo_id, bbox_x, bbox_y, bbox_w, bbox_h, embedding, person_id, confidence)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			f.PhotoID, f.BBox.X, f.BBox.Y, f.BBox.W, f.BBox.H, f.Embedding, nullableInt64(f.PersonID), f.Confidence,
		).Scan(&id))
	})
	return id, err
}

func (s *Store) ListFacesByPhoto(ctx context.Context, photoID int64) ([]store.Face, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+faceColumns+` FROM faces WHERE photo_id = $1`, photoID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return collectFaces(rows)
}

func (s *Store) ListFacesByPerson(ctx context.Context, personID int64) ([]store.Face, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+faceColumns+` FROM faces WHERE person_id = $1`, personID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return collectFaces(rows)
}

func (s *Store) ListUnassignedFaces(ctx context.Context) ([]store.Face, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+faceColumns+` FROM faces WHERE person_id IS NULL`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return collectFaces(rows)
}

func collectFaces(rows *sql.Rows) ([]store.Face, error) {
	var out []store.Face
	for rows.Next() {
		f, err := scanFace(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (s *Store) LinkFaceToPerson(ctx context.Context, faceID int64, personID int64) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE faces SET person_id = $1 WHERE id = $2`, personID, faceID)
		return classify(err)
	})
}

func (s *Store) CreatePerson(ctx context.Context, name string) (int64, error) {
	var id int64
	err := withRetry(func() error {
		return classify(s.db.QueryRowContext(ctx, `INSERT INTO people (name) VALUES ($1) RETURNING id`, name).Scan(&id))
	})
	return id, err
}

func (s *Store) RenamePerson(ctx context.Context, personID int64, name string) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE people SET name = $1 WHERE id = $2`, name, personID)
		return classify(err)
	})
}

func (s *Store) DeletePerson(ctx context.Context, personID int64) error {
	return withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM people WHERE id = $1`, personID)
		if err != nil {
			return classify(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) CreateFaceCluster(ctx context.Context, faceIDs []int64) (int64, error) {
	var id int64
	err := withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		if err := tx.QueryRowContext(ctx, `INSERT INTO face_clusters DEFAULT VALUES RETURNING id`).Scan(&id); err != nil {
			return classify(err)
		}
		for _, fid := range faceIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO face_cluster_members (cluster_id, face_id) VALUES ($1, $2)`, id, fid); err != nil {
				return classify(err)
			}
		}
		return tx.Commit()
	})
	return id, err
}

func (s *Store) ListFaceClusters(ctx context.Context) ([]store.FaceCluster, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, array_agg(face_id) FROM face_cluster_members GROUP BY cluster_id ORDER BY cluster_id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []store.FaceCluster
	for rows.Next() {
		var c store.FaceCluster
		var faceIDs []int64
		if err := rows.Scan(&c.ID, pq.Array(&faceIDs)); err != nil {
			return nil, classify(err)
		}
		c.FaceIDs = faceIDs
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFaceClusters(ctx context.Context) error {
	return withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()
		if _, err := tx.ExecContext(ctx, `DELETE FROM face_cluster_members`); err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM face_clusters`); err != nil {
			return classify(err)
		}
		return tx.Commit()
	})
}

func (s *Store) MarkScanned(ctx context.Context, photoID int64, faceCount int) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO face_scans (photo_id, face_count, scanned_at) VALUES ($1, $2, $3)
			ON CONFLICT (photo_id) DO UPDATE SET face_count = EXCLUDED.face_count, scanned_at = EXCLUDED.scanned_at`,
			photoID, faceCount, time.Now().Unix())
		return classify(err)
	})
}

func (s *Store) IsScanned(ctx context.Context, photoID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM face_scans WHERE photo_id = $1`, photoID).Scan(&count)
	if err != nil {
		return false, classify(err)
	}
	return count > 0, nil
}
