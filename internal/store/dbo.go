package store

import (
	"database/sql"
	"time"

	"github.com/datallboy/gotube/internal/domain"
)

// jobDBO maps to the jobs table
type jobDBO struct {
	ID           string         `db:"id"`
	URL          string         `db:"url"`
	Title        string         `db:"title"`
	Subtitle     string         `db:"subtitle"`
	Channel      sql.NullString `db:"channel"`
	Format       string         `db:"format"`
	BitrateKbps  int            `db:"bitrate_kbps"`
	VideoQuality string         `db:"video_quality"`
	AudioQuality string         `db:"audio_quality"`
	OutDir       sql.NullString `db:"out_dir"`
	Status       string         `db:"status"`
	Percent      int            `db:"percent"`
	Paused       bool           `db:"paused"`
	Attempts     int            `db:"attempts"`
	MaxRetries   int            `db:"max_retries"`
	OutputPath   sql.NullString `db:"output_path"`
	Error        sql.NullString `db:"error"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
}

// Mapper: DBO to Domain JobSnapshot
func (j *jobDBO) ToDomain() *domain.JobSnapshot {
	return &domain.JobSnapshot{
		ID:           j.ID,
		URL:          j.URL,
		Title:        j.Title,
		Subtitle:     j.Subtitle,
		Channel:      j.Channel.String,
		Format:       j.Format,
		BitrateKbps:  j.BitrateKbps,
		VideoQuality: j.VideoQuality,
		AudioQuality: j.AudioQuality,
		OutDir:       j.OutDir.String,
		Status:       domain.JobStatus(j.Status),
		Percent:      j.Percent,
		Paused:       j.Paused,
		Attempts:     j.Attempts,
		MaxRetries:   j.MaxRetries,
		OutputPath:   j.OutputPath.String,
		Error:        j.Error.String,
		CreatedAt:    time.UnixMilli(j.CreatedAt),
		UpdatedAt:    time.UnixMilli(j.UpdatedAt),
	}
}

// Mapper: Domain JobSnapshot to DBO
func (j *jobDBO) FromDomain(s *domain.JobSnapshot) {
	j.ID = s.ID
	j.URL = s.URL
	j.Title = s.Title
	j.Subtitle = s.Subtitle
	j.Channel = sql.NullString{String: s.Channel, Valid: s.Channel != ""}
	j.Format = s.Format
	j.BitrateKbps = s.BitrateKbps
	j.VideoQuality = s.VideoQuality
	j.AudioQuality = s.AudioQuality
	j.OutDir = sql.NullString{String: s.OutDir, Valid: s.OutDir != ""}
	j.Status = string(s.Status)
	j.Percent = s.Percent
	j.Paused = s.Paused
	j.Attempts = s.Attempts
	j.MaxRetries = s.MaxRetries
	j.OutputPath = sql.NullString{String: s.OutputPath, Valid: s.OutputPath != ""}
	j.Error = sql.NullString{String: s.Error, Valid: s.Error != ""}

	j.CreatedAt = unixMilli(s.CreatedAt)
	j.UpdatedAt = unixMilli(s.UpdatedAt)
	if j.UpdatedAt == 0 {
		j.UpdatedAt = time.Now().UnixMilli()
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// scanFields lists the destinations in jobColumns order.
func (j *jobDBO) scanFields() []any {
	return []any{
		&j.ID, &j.URL, &j.Title, &j.Subtitle, &j.Channel, &j.Format,
		&j.BitrateKbps, &j.VideoQuality, &j.AudioQuality, &j.OutDir,
		&j.Status, &j.Percent, &j.Paused, &j.Attempts, &j.MaxRetries,
		&j.OutputPath, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	}
}

// values lists the arguments in jobColumns order.
func (j *jobDBO) values() []any {
	return []any{
		j.ID, j.URL, j.Title, j.Subtitle, j.Channel, j.Format,
		j.BitrateKbps, j.VideoQuality, j.AudioQuality, j.OutDir,
		j.Status, j.Percent, j.Paused, j.Attempts, j.MaxRetries,
		j.OutputPath, j.Error, j.CreatedAt, j.UpdatedAt,
	}
}
