// Package state persists a small record of pipeline progress in SQLite:
// which step scripts were generated for which tables, and a fingerprint of
// every stage file the generator validated.
package state

import "time"

// Generation records one generated step script.
type Generation struct {
	ID         string
	Step       string
	ScriptPath string
	Tables     []string
	CreatedAt  time.Time
}

// Includes reports whether the generation covered table.
func (g *Generation) Includes(table string) bool {
	for _, t := range g.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// Artifact is the last validated fingerprint of a table's stage file.
type Artifact struct {
	Table           string
	Step            string
	Path            string
	Checksum        string
	ColumnSignature string
	ColumnCount     int
	Size            int64
	ModTime         time.Time
	RecordedAt      time.Time
}

// Store is the persistence interface used by the generator.
type Store interface {
	RecordGeneration(step, scriptPath string, tables []string) (*Generation, error)
	LatestGeneration(step string) (*Generation, error)
	RecordArtifact(a *Artifact) error
	LatestArtifact(table, step string) (*Artifact, error)
	ListArtifacts() ([]*Artifact, error)
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
