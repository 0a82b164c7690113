package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datallboy/sheetflow/internal/domain"
)

// runDBO maps to the runs table
type runDBO struct {
	ID         string         `db:"id"`
	Kind       string         `db:"kind"`
	Source     string         `db:"source"`
	Status     string         `db:"status"`
	ExportURL  sql.NullString `db:"export_url"`
	StagedPath sql.NullString `db:"staged_path"`
	InboxName  sql.NullString `db:"inbox_name"`
	FileHash   sql.NullString `db:"file_hash"`
	Files      string         `db:"files"`
	Copied     string         `db:"copied"`
	Error      sql.NullString `db:"error"`
	CreatedAt  int64          `db:"created_at"`
	UpdatedAt  int64          `db:"updated_at"`
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Mapper: Domain Run to DBO
func (r *runDBO) FromDomain(run *domain.Run) error {
	files, err := json.Marshal(nonNil(run.Files))
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}
	copied, err := json.Marshal(nonNil(run.Copied))
	if err != nil {
		return fmt.Errorf("failed to encode copied files: %w", err)
	}

	r.ID = run.ID
	r.Kind = string(run.Kind)
	r.Source = run.Source
	r.Status = string(run.Status)
	r.ExportURL = nullable(run.ExportURL)
	r.StagedPath = nullable(run.StagedPath)
	r.InboxName = nullable(run.InboxName)
	r.FileHash = nullable(run.FileHash)
	r.Files = string(files)
	r.Copied = string(copied)
	r.Error = nullable(run.Error)
	r.CreatedAt = run.CreatedAt.UnixNano()
	r.UpdatedAt = run.UpdatedAt.UnixNano()
	return nil
}

// Mapper: DBO to Domain Run
func (r *runDBO) ToDomain() (*domain.Run, error) {
	run := &domain.Run{
		ID:         r.ID,
		Kind:       domain.SourceKind(r.Kind),
		Source:     r.Source,
		Status:     domain.RunStatus(r.Status),
		ExportURL:  r.ExportURL.String,
		StagedPath: r.StagedPath.String,
		InboxName:  r.InboxName.String,
		FileHash:   r.FileHash.String,
		Error:      r.Error.String,
		CreatedAt:  time.Unix(0, r.CreatedAt),
		UpdatedAt:  time.Unix(0, r.UpdatedAt),
	}
	if err := json.Unmarshal([]byte(r.Files), &run.Files); err != nil {
		return nil, fmt.Errorf("failed to unmarshal files for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Copied), &run.Copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal copied files for %s: %w", r.ID, err)
	}
	return run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
