package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RecordArtifact stores the fingerprint of a stage file, replacing any
// earlier record for the same table and step.
func (s *SQLiteStore) RecordArtifact(a *Artifact) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now().UTC()
	}

	s.logger.Debug("recording artifact",
		slog.String("table", a.Table),
		slog.String("step", a.Step),
		slog.String("checksum", a.Checksum))

	_, err := s.db.Exec(`
		INSERT INTO artifacts (table_name, step, path, checksum, column_signature, column_count, size, mod_time, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (table_name, step) DO UPDATE SET
			path = excluded.path,
			checksum = excluded.checksum,
			column_signature = excluded.column_signature,
			column_count = excluded.column_count,
			size = excluded.size,
			mod_time = excluded.mod_time,
			recorded_at = excluded.recorded_at`,
		a.Table, a.Step, a.Path, a.Checksum, a.ColumnSignature, a.ColumnCount, a.Size,
		formatTime(a.ModTime), formatTime(a.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}
	return nil
}

const artifactColumns = `table_name, step, path, checksum, column_signature, column_count, size, mod_time, recorded_at`

// LatestArtifact returns the recorded fingerprint for a table's stage, or nil.
func (s *SQLiteStore) LatestArtifact(table, step string) (*Artifact, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(`SELECT `+artifactColumns+` FROM artifacts WHERE table_name = ? AND step = ?`, table, step)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// ListArtifacts returns every recorded artifact ordered by table and step.
func (s *SQLiteStore) ListArtifacts() ([]*Artifact, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT ` + artifactColumns + ` FROM artifacts ORDER BY table_name, step`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(sc scanner) (*Artifact, error) {
	a := &Artifact{}
	var modTime, recordedAt string
	if err := sc.Scan(&a.Table, &a.Step, &a.Path, &a.Checksum, &a.ColumnSignature,
		&a.ColumnCount, &a.Size, &modTime, &recordedAt); err != nil {
		return nil, err
	}
	var err error
	if a.ModTime, err = parseTime(modTime); err != nil {
		return nil, err
	}
	if a.RecordedAt, err = parseTime(recordedAt); err != nil {
		return nil, err
	}
	return a, nil
}
