package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/course-platform/internal/progress"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS course_progress (
  user_id            TEXT    NOT NULL,
  course_id          TEXT    NOT NULL,
  status             TEXT    NOT NULL,
  current_video_time REAL    NOT NULL DEFAULT 0,
  total_hours_spent  REAL    NOT NULL DEFAULT 0,
  progress           INTEGER NOT NULL DEFAULT 0,
  video_progress     TEXT    NOT NULL DEFAULT '{}',
  updated_at         TEXT    NOT NULL,
  PRIMARY KEY (user_id, course_id)
);
CREATE INDEX IF NOT EXISTS course_progress_user_updated_idx
  ON course_progress (user_id, updated_at DESC);`

// SQLiteRepository is a single-node repository for small deployments.
// All access goes through one connection, which serialises the
// read-modify-write in Merge.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) GetOrCreate(ctx context.Context, userID, courseID string) (progress.Record, error) {
	if err := validKey(userID, courseID); err != nil {
		return progress.Record{}, err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO course_progress (user_id, course_id, status, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, courseID, string(progress.StatusNotStarted), formatTime(time.Now()))
	if err != nil {
		return progress.Record{}, fmt.Errorf("create progress: %w", err)
	}
	return scanSQLite(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM course_progress WHERE user_id=? AND course_id=?`, userID, courseID))
}

func (r *SQLiteRepository) Merge(ctx context.Context, userID, courseID string, in progress.Record) (Change, error) {
	if err := validKey(userID, courseID); err != nil {
		return Change{}, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Change{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := false
	before, err := scanSQLite(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM course_progress WHERE user_id=? AND course_id=?`, userID, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		before, created = progress.New(courseID), true
	} else if err != nil {
		return Change{}, err
	}

	in.CourseID = courseID
	after := progress.Merge(before, in)
	after.UpdatedAt = time.Now().UTC()
	videos, err := json.Marshal(after.VideoProgress)
	if err != nil {
		return Change{}, err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO course_progress (user_id, course_id, status, current_video_time, total_hours_spent, progress, video_progress, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, course_id) DO UPDATE SET
  status             = excluded.status,
  current_video_time = excluded.current_video_time,
  total_hours_spent  = excluded.total_hours_spent,
  progress           = excluded.progress,
  video_progress     = excluded.video_progress,
  updated_at         = excluded.updated_at`,
		userID, courseID, string(after.Status), after.CurrentVideoTime, after.TotalHoursSpent,
		after.Progress, string(videos), formatTime(after.UpdatedAt))
	if err != nil {
		return Change{}, fmt.Errorf("upsert progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Change{}, fmt.Errorf("commit: %w", err)
	}
	return Change{Before: before, After: after, Created: created}, nil
}

func (r *SQLiteRepository) List(ctx context.Context, userID string, limit int) ([]progress.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM course_progress
WHERE user_id=? ORDER BY updated_at DESC, course_id ASC LIMIT ?`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []progress.Record
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (progress.Record, error) {
	var (
		rec     progress.Record
		status  string
		videos  string
		updated string
	)
	if err := row.Scan(&rec.CourseID, &status, &rec.CurrentVideoTime, &rec.TotalHoursSpent, &rec.Progress, &videos, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.Record{}, err
		}
		return progress.Record{}, fmt.Errorf("scan progress: %w", err)
	}
	rec.Status = progress.Status(status)
	rec.VideoProgress = map[string]progress.VideoProgress{}
	if videos != "" {
		if err := json.Unmarshal([]byte(videos), &rec.VideoProgress); err != nil {
			return progress.Record{}, fmt.Errorf("decode video_progress: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return progress.Record{}, fmt.Errorf("decode updated_at: %w", err)
	}
	rec.UpdatedAt = t
	return rec, nil
}

// RFC3339Nano in UTC sorts lexically in time order for the ORDER BY above
// only when the fractional part is fixed-width.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
