package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/datallboy/gotube/internal/domain"
)

const jobColumns = `id, url, title, subtitle, channel, format, bitrate_kbps, video_quality, audio_quality,
	out_dir, status, percent, paused, attempts, max_retries, output_path, error, created_at, updated_at`

// SaveJob upserts the snapshot. created_at is only written on insert.
func (s *PersistentStore) SaveJob(snap *domain.JobSnapshot) error {
	var dbo jobDBO
	dbo.FromDomain(snap)

	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			subtitle = excluded.subtitle,
			out_dir = excluded.out_dir,
			status = excluded.status,
			percent = excluded.percent,
			paused = excluded.paused,
			attempts = excluded.attempts,
			max_retries = excluded.max_retries,
			output_path = excluded.output_path,
			error = excluded.error,
			updated_at = excluded.updated_at`

	if _, err := s.db.Exec(s.rebind(query), dbo.values()...); err != nil {
		return fmt.Errorf("failed to save job %s: %w", snap.ID, err)
	}
	return nil
}

// GetJob returns nil, nil when the job does not exist.
func (s *PersistentStore) GetJob(id string) (*domain.JobSnapshot, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? LIMIT 1`

	var dbo jobDBO
	err := s.db.QueryRow(s.rebind(query), id).Scan(dbo.scanFields()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Return nil, nil to indicate "Not found"
		}
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}

	return dbo.ToDomain(), nil
}

// ListJobs returns the most recent jobs first. limit <= 0 means no limit.
func (s *PersistentStore) ListJobs(limit int) ([]*domain.JobSnapshot, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.queryJobs(query, args...)
}

// ListUnfinishedJobs returns jobs that were queued or running when the
// process stopped, oldest first (KSUIDs sort chronologically).
func (s *PersistentStore) ListUnfinishedJobs() ([]*domain.JobSnapshot, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status NOT IN ('created', 'completed', 'failed', 'canceled')
		ORDER BY id ASC`

	return s.queryJobs(query)
}

func (s *PersistentStore) queryJobs(query string, args ...any) ([]*domain.JobSnapshot, error) {
	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.JobSnapshot
	for rows.Next() {
		var dbo jobDBO
		if err := rows.Scan(dbo.scanFields()...); err != nil {
			return nil, err
		}
		jobs = append(jobs, dbo.ToDomain())
	}

	return jobs, rows.Err()
}
