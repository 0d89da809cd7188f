package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/barrulus/clepho/internal/store"
)

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

const faceColumns = `id, photo_id, bbox_x, bbox_y, bbox_w, bbox_h, embedding, person_id, confidence`

func (s *Store) InsertFace(ctx context.Context, f store.Face) (int64, error) {
	var id int64
	err := withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO faces (photo_id, bbox_x, bbox_y, bbox_w, bbox_h, embedding, person_id, confidence)
			VALUES (?,?,?,?,?,?,?,?)`,
			f.PhotoID, f.BBox.X, f.BBox.Y, f.BBox.W, f.BBox.H, f.Embedding, nullableInt64(f.PersonID), f.Confidence)
		if err != nil {
			return classify(err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *Store) ListFacesByPhoto(ctx context.Context, photoID int64) ([]store.Face, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+faceColumns+` FROM faces WHERE photo_id = ?`, photoID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return collectFaces(rows)
}

func (s *Store) ListFacesByPerson(ctx context.Context, personID int64) ([]store.Face, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+faceColumns+` FROM faces WHERE person_id = ?`, personID)
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
		_, err := s.db.ExecContext(ctx, `UPDATE faces SET person_id = ? WHERE id = ?`, personID, faceID)
		return classify(err)
	})
}

func (s *Store) CreatePerson(ctx context.Context, name string) (int64, error) {
	var id int64
	err := withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO people (name) VALUES (?)`, name)
		if err != nil {
			return classify(err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *Store) RenamePerson(ctx context.Context, personID int64, name string) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE people SET name = ? WHERE id = ?`, name, personID)
		return classify(err)
	})
}

// DeletePerson removes the person row; faces.person_id is ON DELETE SET
// NULL in the schema, so dependent faces survive unassigned rather than
// being deleted (§9 cyclic-graph hazard).
func (s *Store) DeletePerson(ctx context.Context, personID int64) error {
	return withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM people WHERE id = ?`, personID)
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

		res, err := tx.ExecContext(ctx, `INSERT INTO face_clusters DEFAULT VALUES`)
		if err != nil {
			return classify(err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		for _, fid := range faceIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO face_cluster_members (cluster_id, face_id) VALUES (?, ?)`, id, fid); err != nil {
				return classify(err)
			}
		}
		return tx.Commit()
	})
	return id, err
}

func (s *Store) ListFaceClusters(ctx context.Context) ([]store.FaceCluster, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, GROUP_CONCAT(face_id) FROM face_cluster_members GROUP BY cluster_id ORDER BY cluster_id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []store.FaceCluster
	for rows.Next() {
		var c store.FaceCluster
		var idsCSV string
		if err := rows.Scan(&c.ID, &idsCSV); err != nil {
			return nil, classify(err)
		}
		for _, part := range strings.Split(idsCSV, ",") {
			var fid int64
			if _, err := fmt.Sscan(part, &fid); err == nil {
				c.FaceIDs = append(c.FaceIDs, fid)
			}
		}
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
			INSERT INTO face_scans (photo_id, face_count, scanned_at) VALUES (?, ?, ?)
			ON CONFLICT(photo_id) DO UPDATE SET face_count = excluded.face_count, scanned_at = excluded.scanned_at`,
			photoID, faceCount, time.Now().Unix())
		return classify(err)
	})
}

func (s *Store) IsScanned(ctx context.Context, photoID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM face_scans WHERE photo_id = ?`, photoID).Scan(&count)
	if err != nil {
		return false, classify(err)
	}
	return count > 0, nil
}
