package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/barrulus/clepho/internal/store"
)

const taskColumns = `
	id, kind, target_path, photo_ids, scheduled_at, hours_start, hours_end,
	status, created_at, started_at, completed_at, error_message`

func scanTask(row interface{ Scan(...any) error }) (*store.ScheduledTask, error) {
	var t store.ScheduledTask
	var kind, status string
	var scheduledAt, createdAt int64
	var hoursStart, hoursEnd, startedAt, completedAt sql.NullInt64
	var photoIDsRaw sql.NullString

	err := row.Scan(
		&t.ID, &kind, &t.TargetPath, &photoIDsRaw, &scheduledAt, &hoursStart, &hoursEnd,
		&status, &createdAt, &startedAt, &completedAt, &t.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = store.TaskKind(kind)
	t.Status = store.TaskStatus(status)
	t.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.StartedAt = unixToTime(startedAt)
	t.CompletedAt = unixToTime(completedAt)
	if hoursStart.Valid {
		v := int(hoursStart.Int64)
		t.HoursStart = &v
	}
	if hoursEnd.Valid {
		v := int(hoursEnd.Int64)
		t.HoursEnd = &v
	}
	if photoIDsRaw.Valid && photoIDsRaw.String != "" {
		var ids []int64
		if err := json.Unmarshal([]byte(photoIDsRaw.String), &ids); err != nil {
			return nil, err
		}
		t.PhotoIDs = ids
	}
	return &t, nil
}

func marshalPhotoIDs(ids []int64) (any, error) {
	if ids == nil {
		return nil, nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func intPtrOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *Store) CreateTask(ctx context.Context, t store.ScheduledTask) (int64, error) {
	var id int64
	err := withRetry(func() error {
		photoIDs, err := marshalPhotoIDs(t.PhotoIDs)
		if err != nil {
			return err
		}
		status := t.Status
		if status == "" {
			status = store.StatusPending
		}
		return classify(s.db.QueryRowContext(ctx, `
			INSERT INTO scheduled_tasks (
				kind, target_path, photo_ids, scheduled_at, hours_start, hours_end,
				status, created_at, error_message
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
			string(t.Kind), t.TargetPath, photoIDs, t.ScheduledAt.Unix(),
			intPtrOrNil(t.HoursStart), intPtrOrNil(t.HoursEnd),
			string(status), time.Now().Unix(), t.ErrorMessage,
		).Scan(&id))
	})
	return id, err
}

func (s *Store) GetTask(ctx context.Context, id int64) (*store.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

// ClaimDue uses SELECT ... FOR UPDATE SKIP LOCKED, the standard PostgreSQL
// pattern for a multi-worker job queue: concurrent executors never block
// on each other and never double-claim the same row, unlike the sqlite
// backend's single-connection serialization (§4.9, §9: networked backend
// must support concurrent executors).
func (s *Store) ClaimDue(ctx context.Context, now int64) (*store.ScheduledTask, error) {
	var claimed *store.ScheduledTask
	err := withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx, `
			SELECT `+taskColumns+` FROM scheduled_tasks
			WHERE status = 'pending' AND scheduled_at <= $1
			ORDER BY scheduled_at ASC
			FOR UPDATE SKIP LOCKED`, now)
		if err != nil {
			return classify(err)
		}

		var candidates []store.ScheduledTask
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return classify(err)
			}
			candidates = append(candidates, *t)
		}
		if err := rows.Err(); err != nil {
			return classify(err)
		}
		rows.Close()

		nowHour := time.Unix(now, 0).Local().Hour()
		for _, t := range candidates {
			if t.HasWindow() && !withinHoursWindow(nowHour, *t.HoursStart, *t.HoursEnd) {
				continue
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE scheduled_tasks SET status = 'running', started_at = $1
				WHERE id = $2 AND status = 'pending'`, now, t.ID)
			if err != nil {
				return classify(err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 1 {
				t.Status = store.StatusRunning
				started := time.Unix(now, 0).UTC()
				t.StartedAt = &started
				claimed = &t
				break
			}
		}
		return tx.Commit()
	})
	return claimed, err
}

func withinHoursWindow(hour, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (s *Store) SetStatus(ctx context.Context, id int64, status store.TaskStatus, errMsg string) error {
	return withRetry(func() error {
		var completedAt any
		if status == store.StatusCompleted || status == store.StatusFailed || status == store.StatusCancelled {
			completedAt = time.Now().Unix()
		}
		_, err := s.db.ExecContext(ctx, `
			UPDATE scheduled_tasks SET status = $1, completed_at = COALESCE($2, completed_at), error_message = $3
			WHERE id = $4`, string(status), completedAt, errMsg, id)
		return classify(err)
	})
}

func (s *Store) ListOverdue(ctx context.Context, now int64) ([]store.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE status = 'pending' AND scheduled_at < $1
		ORDER BY scheduled_at ASC`, now)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *Store) ListPending(ctx context.Context) ([]store.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks WHERE status = 'pending' ORDER BY scheduled_at ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]store.ScheduledTask, error) {
	var out []store.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) Cancel(ctx context.Context, id int64) error {
	return withRetry(func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE scheduled_tasks SET status = 'cancelled', completed_at = $1
			WHERE id = $2 AND status IN ('pending', 'running')`, time.Now().Unix(), id)
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

func (s *Store) ReapStaleRunning(ctx context.Context, now int64, staleAfterSeconds int64) (int, error) {
	var n int
	err := withRetry(func() error {
		cutoff := now - staleAfterSeconds
		res, err := s.db.ExecContext(ctx, `
			UPDATE scheduled_tasks SET status = 'failed', completed_at = $1, error_message = $2
			WHERE status = 'running' AND started_at < $3`, now, staleReapErrorMsg, cutoff)
		if err != nil {
			return classify(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(affected)
		return nil
	})
	return n, err
}
