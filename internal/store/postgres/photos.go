package postgres

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
	row := s.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE path = $1`, path)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = $1`, id)
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
	rows, err := s.db.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE directory = $1 ORDER BY filename`, directory)
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
	rows, err := s.db.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE sha256 = $1 AND trashed_at IS NULL`, hex)
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
	if p.PreserveID != 0 {
		err := withRetry(func() error {
			filename := filepath.Base(p.Path)
			directory := filepath.Dir(p.Path)

			err := s.db.QueryRowContext(ctx, `
				INSERT INTO photos (
					id, path, filename, directory, size_bytes, modified_at, scanned_at,
					width, height, format,
					camera_make, camera_model, lens, focal_length, aperture, shutter_speed, iso,
					taken_at, gps_latitude, gps_longitude, raw_exif,
					md5, sha256, perceptual_hash
				) VALUES ($1,$2,$3,$4,$5,$6,$7, $8,$9,$10, $11,$12,$13,$14,$15,$16,$17, $18,$19,$20,$21, $22,$23,$24)
				RETURNING id`,
				p.PreserveID, p.Path, filename, directory, p.SizeBytes, p.ModifiedAt, p.ScannedAt,
				p.Width, p.Height, p.Format,
				p.EXIF.CameraMake, p.EXIF.CameraModel, p.EXIF.Lens, p.EXIF.FocalLength, p.EXIF.Aperture, p.EXIF.ShutterSpeed, p.EXIF.ISO,
				timeToUnixPtr(p.EXIF.TakenAt), nullableFloat(p.EXIF.GPSLatitude), nullableFloat(p.EXIF.GPSLongitude), p.RawEXIF,
				p.MD5, p.SHA256, p.PerceptualHash,
			).Scan(&id)
			return classify(err)
		})
		return id, err
	}
	err := withRetry(func() error {
		filename := filepath.Base(p.Path)
		directory := filepath.Dir(p.Path)

		err := s.db.QueryRowContext(ctx, `
			INSERT INTO photos (
				path, filename, directory, size_bytes, modified_at, scanned_at,
				width, height, format,
				camera_make, camera_model, lens, focal_length, aperture, shutter_speed, iso,
				taken_at, gps_latitude, gps_longitude, raw_exif,
				md5, sha256, perceptual_hash
			) VALUES ($1,$2,$3,$4,$5,$6, $7,$8,$9, $10,$11,$12,$13,$14,$15,$16, $17,$18,$19,$20, $21,$22,$23)
			ON CONFLICT (path) DO UPDATE SET
				size_bytes = EXCLUDED.size_bytes, modified_at = EXCLUDED.modified_at, scanned_at = EXCLUDED.scanned_at,
				width = EXCLUDED.width, height = EXCLUDED.height, format = EXCLUDED.format,
				camera_make = EXCLUDED.camera_make, camera_model = EXCLUDED.camera_model, lens = EXCLUDED.lens,
				focal_length = EXCLUDED.focal_length, aperture = EXCLUDED.aperture, shutter_speed = EXCLUDED.shutter_speed, iso = EXCLUDED.iso,
				taken_at = EXCLUDED.taken_at, gps_latitude = EXCLUDED.gps_latitude, gps_longitude = EXCLUDED.gps_longitude, raw_exif = EXCLUDED.raw_exif,
				md5 = EXCLUDED.md5, sha256 = EXCLUDED.sha256, perceptual_hash = EXCLUDED.perceptual_hash
			RETURNING id`,
			p.Path, filename, directory, p.SizeBytes, p.ModifiedAt, p.ScannedAt,
			p.Width, p.Height, p.Format,
			p.EXIF.CameraMake, p.EXIF.CameraModel, p.EXIF.Lens, p.EXIF.FocalLength, p.EXIF.Aperture, p.EXIF.ShutterSpeed, p.EXIF.ISO,
			timeToUnixPtr(p.EXIF.TakenAt), nullableFloat(p.EXIF.GPSLatitude), nullableFloat(p.EXIF.GPSLongitude), p.RawEXIF,
			p.MD5, p.SHA256, p.PerceptualHash,
		).Scan(&id)
		return classify(err)
	})
	return id, err
}

func (s *Store) UpdateDescription(ctx context.Context, photoID int64, description string) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE photos SET description = $1 WHERE id = $2`, description, photoID)
		return classify(err)
	})
}

func (s *Store) UpdateTrashFields(ctx context.Context, photoID int64, path, originalPath string, trashedAt *int64) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE photos SET path = $1, directory = $2, filename = $3, original_path = $4, trashed_at = $5
			WHERE id = $6`,
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
		_, err := s.db.ExecContext(ctx, `UPDATE photos SET marked_for_deletion = $1 WHERE id = $2`, marked, photoID)
		return classify(err)
	})
}

func (s *Store) SetFavorite(ctx context.Context, photoID int64, favorite bool) error {
	return withRetry(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE photos SET is_favorite = $1 WHERE id = $2`, favorite, photoID)
		return classify(err)
	})
}

func (s *Store) Delete(ctx context.Context, photoID int64) error {
	return withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = $1`, photoID)
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
