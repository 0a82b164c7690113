package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/datallboy/sheetflow/internal/domain"
)

const runColumns = `id, kind, source, status, export_url, staged_path, inbox_name, file_hash, files, copied, error, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.Run, error) {
	var dbo runDBO
	err := sc.Scan(
		&dbo.ID, &dbo.Kind, &dbo.Source, &dbo.Status,
		&dbo.ExportURL, &dbo.StagedPath, &dbo.InboxName, &dbo.FileHash,
		&dbo.Files, &dbo.Copied, &dbo.Error, &dbo.CreatedAt, &dbo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return dbo.ToDomain()
}

// SaveRun inserts the run or overwrites the stored copy.
func (s *PersistentStore) SaveRun(ctx context.Context, run *domain.Run) error {
	var dbo runDBO
	if err := dbo.FromDomain(run); err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			export_url = excluded.export_url,
			staged_path = excluded.staged_path,
			inbox_name = excluded.inbox_name,
			file_hash = excluded.file_hash,
			files = excluded.files,
			copied = excluded.copied,
			error = excluded.error,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query,
		dbo.ID, dbo.Kind, dbo.Source, dbo.Status,
		dbo.ExportURL, dbo.StagedPath, dbo.InboxName, dbo.FileHash,
		dbo.Files, dbo.Copied, dbo.Error, dbo.CreatedAt, dbo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PersistentStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+runColumns+` FROM runs WHERE id = ? LIMIT 1`), id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Return nil, nil to indicate "Not found"
		}
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs first. KSUIDs sort chronologically.
func (s *PersistentStore) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkInterrupted fails runs left mid-flight by a previous process.
func (s *PersistentStore) MarkInterrupted(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE runs SET status = ?, error = ?, updated_at = ?
		WHERE status NOT IN (?, ?, ?)`),
		string(domain.StatusFailed), "interrupted by restart", at.UnixNano(),
		string(domain.StatusCompleted), string(domain.StatusFailed), string(domain.StatusSuperseded),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}
