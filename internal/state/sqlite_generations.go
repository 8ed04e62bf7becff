package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// RecordGeneration stores a generated script and the tables it covers.
func (s *SQLiteStore) RecordGeneration(step, scriptPath string, tables []string) (*Generation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	gen := &Generation{
		ID:         generateID(),
		Step:       step,
		ScriptPath: scriptPath,
		Tables:     append([]string(nil), tables...),
		CreatedAt:  time.Now().UTC(),
	}
	s.logger.Debug("recording generation",
		slog.String("id", gen.ID),
		slog.String("step", step),
		slog.Int("tables", len(tables)))

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO generations (id, step, script_path, created_at) VALUES (?, ?, ?, ?)`,
		gen.ID, gen.Step, gen.ScriptPath, formatTime(gen.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("failed to record generation: %w", err)
	}
	for _, table := range gen.Tables {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO generation_tables (generation_id, table_name) VALUES (?, ?)`,
			gen.ID, table,
		); err != nil {
			return nil, fmt.Errorf("failed to record generation table: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit generation: %w", err)
	}
	return gen, nil
}

// LatestGeneration returns the most recent generation of step, or nil.
func (s *SQLiteStore) LatestGeneration(step string) (*Generation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	gen := &Generation{}
	var createdAt string
	err := s.db.QueryRow(
		`SELECT id, step, script_path, created_at FROM generations
		 WHERE step = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		step,
	).Scan(&gen.ID, &gen.Step, &gen.ScriptPath, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}
	if gen.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT table_name FROM generation_tables WHERE generation_id = ? ORDER BY table_name`,
		gen.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get generation tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("failed to scan generation table: %w", err)
		}
		gen.Tables = append(gen.Tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read generation tables: %w", err)
	}
	return gen, nil
}
