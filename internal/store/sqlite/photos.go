package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"time"

	"github.com/barrulus/clepho/internal/store"
)

const photoColumns = `
	id, path, filename, directory, size_bytes, modified_at, scanned_at,
	width, height, format,
	camera_make, camera_model, lens, focal_length, aperture, shutter_speed, iso,
	taken_at, gps_latitude, gps_longitude, raw_exif,
	md5, sha256, perceptual_hash,
	description, marked_for_deletion, is_favorite,
	original_path, trashed_at`

func scanPhoto(row interface{ Scan(...any) error }) (*store.Photo, error) {
	var p store.Photo
	var modifiedAt, scannedAt int64
	var takenAt, trashedAt sql.NullInt64
	var gpsLat, gpsLon sql.NullFloat64
	var rawEXIF []byte
	var originalPath sql.NullString

	err := row.Scan(
		&p.ID, &p.Path, &p.Filename, &p.Directory, &p.SizeBytes, &modifiedAt, &scannedAt,
		&p.Width, &p.Height, &p.Format,
		&p.EXIF.CameraMake, &p.EXIF.CameraModel, &p.EXIF.Lens, &p.EXIF.FocalLength, &p.EXIF.Aperture, &p.EXIF.ShutterSpeed, &p.EXIF.ISO,
		&takenAt, &gpsLat, &gpsLon, &rawEXIF,
		&p.MD5, &p.SHA256, &p.PerceptualHash,
		&p.Description, &p.MarkedForDeletion, &p.IsFavorite,
		&originalPath, &trashedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ModifiedAt = time.Unix(modifiedAt, 0).UTC()
	p.ScannedAt = time.Unix(scannedAt, 0).UTC()
	p.EXIF.TakenAt = unixToTime(takenAt)
	if gpsLat.Valid {
		v := gpsLat.Float64
		p.EXIF.GPSLatitude = &v
	}
	if gpsLon.Valid {
		v := gpsLon.Float64
		p.EXIF.GPSLongitude = &v
	}
	p.RawEXIF = rawEXIF
	if originalPath.Valid {
		p.OriginalPath = originalPath.String
	}
	p.TrashedAt = unixToTime(trashedAt)
	return &p, nil
}

func (s *Store) GetByPath(ctx context.Context, path string) (*store.Photo, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE path = ?`, path)
	p, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*store.Photo, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = ?`, id)
	p, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func (s *Store) ListByDirectory(ctx context.Context, directory string) ([]store.Photo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE directory = ? ORDER BY filename`, directory)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []store.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) PhotosBySHA256(ctx context.Context, hex string) ([]store.Photo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE sha256 = ? AND trashed_at IS NULL`, hex)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []store.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) PhotosWithPerceptualHash(ctx context.Context) ([]store.PhotoQualityInput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, sha256, perceptual_hash, width, height, size_bytes
		FROM photos
		WHERE perceptual_hash != '' AND trashed_at IS NULL
		ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []store.PhotoQualityInput
	for rows.Next() {
		var q store.PhotoQualityInput
		if err := rows.Scan(&q.ID, &q.Path, &q.SHA256, &q.PerceptualHash, &q.Width, &q.Height, &q.SizeBytes); err != nil {
			return nil, classify(err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) ListAllPhotos(ctx context.Context) ([]store.Photo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []store.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) UpsertPhoto(ctx context.Context, p store.UpsertPhotoParams) (int64, error) {
	var id int64
	err := withRetry(func() error {
		filename := filepath.Base(p.Path)
		directory := filepath.Dir(p.Path)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		var existingID int64
		scanErr := tx.QueryRowContext(ctx, `SELECT id FROM photos WHERE path = ?`, p.Path).Scan(&existingID)
		switch {
		case errors.Is(scanErr, sql.ErrNoRows):
			if p.PreserveID != 0 {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO photos (
						id, path, filename, directory, size_bytes, modified_at, scanned_at,
						width, height, format,
						camera_make, camera_model, lens, focal_length, aperture, shutter_speed, iso,
						taken_at, gps_latitude, gps_longitude, raw_exif,
						md5, sha256, perceptual_hash
					) VALUES (?,?,?,?,?,?,?, ?,?,?, ?,?,?,?,?,?,?, ?,?,?,?, ?,?,?)`,
					p.PreserveID, p.Path, filename, directory, p.SizeBytes, p.ModifiedAt, p.ScannedAt,
					p.Width, p.Height, p.Format,
					p.EXIF.CameraMake, p.EXIF.CameraModel, p.EXIF.Lens, p.EXIF.FocalLength, p.EXIF.Aperture, p.EXIF.ShutterSpeed, p.EXIF.ISO,
					timeToUnixPtr(p.EXIF.TakenAt), nullableFloat(p.EXIF.GPSLatitude), nullableFloat(p.EXIF.GPSLongitude), p.RawEXIF,
					p.MD5, p.SHA256, p.PerceptualHash,
				)
				if err != nil {
					return classify(err)
				}
				id = p.PreserveID
				break
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO photos (
					path, filename, directory, size_bytes, modified_at, scanned_at,
					width, height, format,
					camera_make, camera_model, lens, focal_length, aperture, shutter_speed, iso,
					taken_at, gps_latitude, gps_longitude, raw_exif,
					md5, sha256, perceptual_hash
				) VALUES (?,?,?,?,?,?, ?,?,?, ?,?,?,?,?,?,?, ?,?,?,?, ?,?,?)`,
				p.Path, filename, directory, p.SizeBytes, p.ModifiedAt, p.ScannedAt,
				p.Width, p.Height, p.Format,
				p.EXIF.CameraMake, p.EXIF.CameraModel, p.EXIF.Lens, p.EXIF.FocalLength, p.EXIF.Aperture, p.EXIF.ShutterSpeed, p.EXIF.ISO,
				timeToUnixPtr(p.EXIF.TakenAt), nullableFloat(p.EXIF.GPSLatitude), nullableFloat(p.EXIF.GPSLongitude), p.RawEXIF,
				p.MD5, p.SHA256, p.PerceptualHash,
			)
			if err != nil {
				return classify(err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return err
			}
		case scanErr != nil:
			return classify(scanErr)
		default:
			id = existingID
			_, err := tx.ExecContext(ctx, `
				UPDATE photos SET
					size_bytes = ?, modified_at = ?, scanned_at = ?,
					width = ?, height = ?, format = ?,
					camera_make = ?, camera_model = ?, lens = ?, focal_length = ?, aperture = ?, shutter_speed = ?, iso = ?,
					taken_at = ?, gps_latitude = ?, gps_longitude = ?, raw_exif = ?,
					md5 = ?, sha256 = ?, perceptual_hash = ?
				WHERE id = ?`,
				p.SizeBytes, p.ModifiedAt, p.ScannedAt,
				p.Width, p.Height, p.Format,
				p.EXIF.CameraMake, p.EXIF.CameraModel, p.EXIF.Lens, p.EXIF.FocalLength, p.EXIF.Aperture, p.EXIF.ShutterSpeed, p.EXIF.ISO,
				timeToUnixPtr(p.EXIF.TakenAt), nullableFloat(p.EXIF.GPSLatitude), nullableFloat(p.EXIF.GPSLongitude), p.RawEXIF,
				p.MD5, p.SHA256, p.PerceptualHash,
				id,
			)
			if err != nil {
				return classify(err)
			}
		}
		return tx.Commit()
	})
	return id, err
}

func timeToUnixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func (s *Store) UpdateDescription(ctx context.Context, photoID int64, description string) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE photos SET description = ? WHERE id = ?`, description, photoID)
		return classify(err)
	})
}

func (s *Store) UpdateTrashFields(ctx context.Context, photoID int64, path, originalPath string, trashedAt *int64) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE photos SET path = ?, directory = ?, filename = ?, original_path = ?, trashed_at = ?
			WHERE id = ?`,
			path, filepath.Dir(path), filepath.Base(path), nullString(originalPath), nullableInt64(trashedAt), photoID)
		return classify(err)
	})
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) SetMarkedForDeletion(ctx context.Context, photoID int64, marked bool) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE photos SET marked_for_deletion = ? WHERE id = ?`, marked, photoID)
		return classify(err)
	})
}

func (s *Store) SetFavorite(ctx context.Context, photoID int64, favorite bool) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE photos SET is_favorite = ? WHERE id = ?`, favorite, photoID)
		return classify(err)
	})
}

func (s *Store) Delete(ctx context.Context, photoID int64) error {
	return withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, photoID)
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
