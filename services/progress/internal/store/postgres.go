package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/course-platform/internal/progress"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS course_progress (
  user_id            TEXT             NOT NULL,
  course_id          TEXT             NOT NULL,
  status             TEXT             NOT NULL,
  current_video_time DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_hours_spent  DOUBLE PRECISION NOT NULL DEFAULT 0,
  progress           INTEGER          NOT NULL DEFAULT 0,
  video_progress     JSONB            NOT NULL DEFAULT '{}'::jsonb,
  updated_at         TIMESTAMPTZ      NOT NULL,
  PRIMARY KEY (user_id, course_id)
);
CREATE INDEX IF NOT EXISTS course_progress_user_updated_idx
  ON course_progress (user_id, updated_at DESC);`

// PostgresRepository is the production Postgres-backed implementation.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the course_progress table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, postgresSchema)
	return err
}

const selectColumns = `course_id, status, current_video_time, total_hours_spent, progress, video_progress, updated_at`

func (r *PostgresRepository) GetOrCreate(ctx context.Context, userID, courseID string) (progress.Record, error) {
	if err := validKey(userID, courseID); err != nil {
		return progress.Record{}, err
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO course_progress (user_id, course_id, status, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, courseID, string(progress.StatusNotStarted), time.Now().UTC())
	if err != nil {
		return progress.Record{}, fmt.Errorf("create progress: %w", err)
	}
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM course_progress WHERE user_id=$1 AND course_id=$2`, userID, courseID)
	return scanRecord(row)
}

func (r *PostgresRepository) Merge(ctx context.Context, userID, courseID string, in progress.Record) (Change, error) {
	if err := validKey(userID, courseID); err != nil {
		return Change{}, err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Change{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Insert the empty row first so FOR UPDATE always has a row to lock;
	// concurrent first writes then serialise instead of both starting from
	// an empty record.
	tag, err := tx.Exec(ctx, `
INSERT INTO course_progress (user_id, course_id, status, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, courseID, string(progress.StatusNotStarted), time.Now().UTC())
	if err != nil {
		return Change{}, fmt.Errorf("create progress: %w", err)
	}
	created := tag.RowsAffected() == 1
	before, err := scanRecord(tx.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM course_progress WHERE user_id=$1 AND course_id=$2 FOR UPDATE`,
		userID, courseID))
	if err != nil {
		return Change{}, err
	}

	in.CourseID = courseID
	after := progress.Merge(before, in)
	after.UpdatedAt = time.Now().UTC()
	videos, err := json.Marshal(after.VideoProgress)
	if err != nil {
		return Change{}, err
	}

	_, err = tx.Exec(ctx, `
UPDATE course_progress SET
  status             = $3,
  current_video_time = $4,
  total_hours_spent  = $5,
  progress           = $6,
  video_progress     = $7,
  updated_at         = $8
WHERE user_id = $1 AND course_id = $2`,
		userID, courseID, string(after.Status), after.CurrentVideoTime, after.TotalHoursSpent,
		after.Progress, videos, after.UpdatedAt)
	if err != nil {
		return Change{}, fmt.Errorf("update progress: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Change{}, fmt.Errorf("commit: %w", err)
	}
	return Change{Before: before, After: after, Created: created}, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, limit int) ([]progress.Record, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM course_progress
WHERE user_id=$1 ORDER BY updated_at DESC, course_id ASC LIMIT $2`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []progress.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanRecord(row pgx.Row) (progress.Record, error) {
	var (
		rec    progress.Record
		status string
		videos []byte
	)
	err := row.Scan(&rec.CourseID, &status, &rec.CurrentVideoTime, &rec.TotalHoursSpent, &rec.Progress, &videos, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return progress.Record{}, err
		}
		return progress.Record{}, fmt.Errorf("scan progress: %w", err)
	}
	rec.Status = progress.Status(status)
	rec.VideoProgress = map[string]progress.VideoProgress{}
	if len(videos) > 0 {
		if err := json.Unmarshal(videos, &rec.VideoProgress); err != nil {
			return progress.Record{}, fmt.Errorf("decode video_progress: %w", err)
		}
	}
	return rec, nil
}
