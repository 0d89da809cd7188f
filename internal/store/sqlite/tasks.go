package sqlite

import (
	"context"
	"database/sql"
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
	ids, err := unmarshalPhotoIDs(photoIDsRaw)
	if err != nil {
		return nil, err
	}
	t.PhotoIDs = ids
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t store.ScheduledTask) (int64, error) {
	var id int64
	err := withRetry(func() error {
		photoIDs, err := marshalPhotoIDs(t.PhotoIDs)
		if err != nil {
			return err
		}
		now := time.Now().Unix()
		status := t.Status
		if status == "" {
			status = store.StatusPending
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO scheduled_tasks (
				kind, target_path, photo_ids, scheduled_at, hours_start, hours_end,
				status, created_at, error_message
			) VALUES (?,?,?,?,?,?,?,?,?)`,
			string(t.Kind), t.TargetPath, photoIDs, t.ScheduledAt.Unix(),
			intPtrOrNil(t.HoursStart), intPtrOrNil(t.HoursEnd),
			string(status), now, t.ErrorMessage)
		if err != nil {
			return classify(err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func intPtrOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *Store) GetTask(ctx context.Context, id int64) (*store.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

// ClaimDue implements §4.9's claiming algorithm: a pending task is
// eligible once scheduled_at <= now and, if it carries an hours window,
// now's local hour falls inside that window (wrapping past midnight when
// hours_end < hours_start). The select-then-conditional-update runs
// inside a transaction on the single sqlite connection, which combined
// with SetMaxOpenConns(1) gives atomic claiming without a separate lock
// table.
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
			WHERE status = 'pending' AND scheduled_at <= ?
			ORDER BY scheduled_at ASC`, now)
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
				UPDATE scheduled_tasks SET status = 'running', started_at = ?
				WHERE id = ? AND status = 'pending'`, now, t.ID)
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

// withinHoursWindow reports whether hour lies in [start, end), wrapping
// past midnight when end <= start (§4.9 edge case: overnight windows).
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
			UPDATE scheduled_tasks SET status = ?, completed_at = COALESCE(?, completed_at), error_message = ?
			WHERE id = ?`, string(status), completedAt, errMsg, id)
		return classify(err)
	})
}

func (s *Store) ListOverdue(ctx context.Context, now int64) ([]store.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE status = 'pending' AND scheduled_at < ?
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
			UPDATE scheduled_tasks SET status = 'cancelled', completed_at = ?
			WHERE id = ? AND status IN ('pending', 'running')`, time.Now().Unix(), id)
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

// ReapStaleRunning recovers tasks orphaned by an executor that exited
// without transitioning them out of "running" (§4.9 Failure semantics).
func (s *Store) ReapStaleRunning(ctx context.Context, now int64, staleAfterSeconds int64) (int, error) {
	var n int
	err := withRetry(func() error {
		cutoff := now - staleAfterSeconds
		res, err := s.db.ExecContext(ctx, `
			UPDATE scheduled_tasks SET status = 'failed', completed_at = ?, error_message = 'reaped: executor did not report completion'
			WHERE status = 'running' AND started_at < ?`, now, cutoff)
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
