package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Storage types accepted for a project.
const (
	StorageLocal = "Local"
	StorageCloud = "Cloud"
)

// Project is a named recording session for one voice actor.
type Project struct {
	ID           string
	Name         string
	VoiceActor   string
	Emotion      string
	Description  string
	AuthorID     string
	StorageType  string
	StoragePath  string
	S3URL        string
	S3Bucket     string
	S3RootFolder string
	S3Key        string
	DateCreated  time.Time

	Samples []Sample
}

func (p *Project) applyDefaults() {
	if p.AuthorID == "" {
		p.AuthorID = "0"
	}
	if p.StorageType == "" {
		p.StorageType = StorageLocal
	}
}

func (p *Project) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("store: project name is required")
	}
	if strings.TrimSpace(p.VoiceActor) == "" {
		return errors.New("store: project voice actor is required")
	}
	return nil
}

// CreateProject inserts p under a fresh id and returns the stored project.
func (s *Store) CreateProject(ctx context.Context, p Project) (*Project, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	p.applyDefaults()
	p.ID = s.newID()
	created := s.now()
	p.DateCreated = parseTime(created)
	p.Samples = nil

	_, err := s.db.ExecContext(ctx, `
INSERT INTO projects (id, name, voice_actor, emotion, description, author_id, storage_type,
    storage_path, s3_url, s3_bucket, s3_root_folder, s3_key, date_created)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.VoiceActor, p.Emotion, p.Description, p.AuthorID, p.StorageType,
		p.StoragePath, p.S3URL, p.S3Bucket, p.S3RootFolder, p.S3Key, created)
	if err != nil {
		return nil, fmt.Errorf("store: create project: %w", err)
	}
	s.log.Info("project created", slog.String("id", p.ID), slog.String("name", p.Name))
	return &p, nil
}

// UpdateProject overwrites the editable fields of the project with p.ID.
func (s *Store) UpdateProject(ctx context.Context, p Project) error {
	if err := p.validate(); err != nil {
		return err
	}
	p.applyDefaults()
	res, err := s.db.ExecContext(ctx, `
UPDATE projects SET name = ?, voice_actor = ?, emotion = ?, description = ?, author_id = ?,
    storage_type = ?, storage_path = ?, s3_url = ?, s3_bucket = ?, s3_root_folder = ?, s3_key = ?
WHERE id = ?`,
		p.Name, p.VoiceActor, p.Emotion, p.Description, p.AuthorID,
		p.StorageType, p.StoragePath, p.S3URL, p.S3Bucket, p.S3RootFolder, p.S3Key, p.ID)
	if err != nil {
		return fmt.Errorf("store: update project %s: %w", p.ID, err)
	}
	return expectRow(res, "project", p.ID)
}

// DeleteProject removes a project and, by cascade, its samples.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete project %s: %w", id, err)
	}
	return expectRow(res, "project", id)
}

// GetProjects lists all projects, newest first, each with its samples.
func (s *Store) GetProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY date_created DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range projects {
		samples, err := s.GetSamples(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Samples = samples
	}
	return projects, nil
}

// GetProject returns the project with id and its samples.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project %s: %w", id, err)
	}
	p.Samples, err = s.GetSamples(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

const projectColumns = `id, name, voice_actor, COALESCE(emotion, ''), COALESCE(description, ''),
    COALESCE(author_id, ''), COALESCE(storage_type, ''), COALESCE(storage_path, ''),
    COALESCE(s3_url, ''), COALESCE(s3_bucket, ''), COALESCE(s3_root_folder, ''),
    COALESCE(s3_key, ''), date_created`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(r scanner) (*Project, error) {
	var p Project
	var created string
	if err := r.Scan(&p.ID, &p.Name, &p.VoiceActor, &p.Emotion, &p.Description, &p.AuthorID,
		&p.StorageType, &p.StoragePath, &p.S3URL, &p.S3Bucket, &p.S3RootFolder, &p.S3Key, &created); err != nil {
		return nil, err
	}
	p.DateCreated = parseTime(created)
	return &p, nil
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}
