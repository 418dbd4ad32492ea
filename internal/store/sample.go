package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sample is one saved recording with its prompt and transcription.
type Sample struct {
	ID            string
	ProjectID     string
	Rating        int // 1 when the transcription matched the prompt, else 0
	FilePath      string
	FilePath24    string
	LengthSeconds int
	SizeBytes     int64
	TextSaid      string
	GroundTruth   string
	DateRecorded  time.Time
	WaveformPath  string
}

// NewSample is the input to AddSample.
type NewSample struct {
	ID              string
	ProjectID       string
	Match           bool
	FilePath        string
	FilePath24      string
	RecordingLength int
	SizeBytes       int64
	TextSaid        string
	GroundTruth     string
	WaveformPath    string
}

// AddSample inserts a sample. Rating is derived from Match and the recording
// date is the current time.
func (s *Store) AddSample(ctx context.Context, in NewSample) (*Sample, error) {
	rating := 0
	if in.Match {
		rating = 1
	}
	recorded := s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO samples (id, project_id, rating, file_path, file_path24, length_seconds, size_bytes,
    text_said, ground_truth, date_recorded, waveform_path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.ProjectID, rating, in.FilePath, in.FilePath24, in.RecordingLength, in.SizeBytes,
		in.TextSaid, in.GroundTruth, recorded, in.WaveformPath)
	if err != nil {
		return nil, fmt.Errorf("store: add sample %s: %w", in.ID, err)
	}
	s.log.Info("sample added",
		slog.String("id", in.ID),
		slog.String("project", in.ProjectID),
		slog.Int("rating", rating),
		slog.Int64("size_bytes", in.SizeBytes),
	)
	return &Sample{
		ID:            in.ID,
		ProjectID:     in.ProjectID,
		Rating:        rating,
		FilePath:      in.FilePath,
		FilePath24:    in.FilePath24,
		LengthSeconds: in.RecordingLength,
		SizeBytes:     in.SizeBytes,
		TextSaid:      in.TextSaid,
		GroundTruth:   in.GroundTruth,
		DateRecorded:  parseTime(recorded),
		WaveformPath:  in.WaveformPath,
	}, nil
}

// UpdateSample overwrites the editable fields of the sample with smp.ID.
// ProjectID, LengthSeconds, and DateRecorded are not changed.
func (s *Store) UpdateSample(ctx context.Context, smp Sample) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE samples SET rating = ?, file_path = ?, file_path24 = ?, size_bytes = ?, text_said = ?,
    ground_truth = ?, waveform_path = ?
WHERE id = ?`,
		smp.Rating, smp.FilePath, smp.FilePath24, smp.SizeBytes, smp.TextSaid,
		smp.GroundTruth, smp.WaveformPath, smp.ID)
	if err != nil {
		return fmt.Errorf("store: update sample %s: %w", smp.ID, err)
	}
	return expectRow(res, "sample", smp.ID)
}

// DeleteSample removes the sample row. Files on disk are left in place.
func (s *Store) DeleteSample(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete sample %s: %w", id, err)
	}
	return expectRow(res, "sample", id)
}

// GetSamples lists the samples of a project in recording order.
func (s *Store) GetSamples(ctx context.Context, projectID string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, project_id, COALESCE(rating, 0), file_path, file_path24, length_seconds, size_bytes,
    text_said, ground_truth, date_recorded, waveform_path
FROM samples WHERE project_id = ? ORDER BY date_recorded ASC, id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		var recorded string
		if err := rows.Scan(&smp.ID, &smp.ProjectID, &smp.Rating, &smp.FilePath, &smp.FilePath24,
			&smp.LengthSeconds, &smp.SizeBytes, &smp.TextSaid, &smp.GroundTruth, &recorded, &smp.WaveformPath); err != nil {
			return nil, fmt.Errorf("store: scan sample: %w", err)
		}
		smp.DateRecorded = parseTime(recorded)
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}
