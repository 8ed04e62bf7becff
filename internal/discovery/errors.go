package discovery

import (
	"errors"
	"fmt"
)

// NoFilesFoundError indicates that a table's pattern matched no raw files.
// It is non-fatal: the table is skipped for the current step.
type NoFilesFoundError struct {
	Table   string
	Pattern string
}

func (e *NoFilesFoundError) Error() string {
	return fmt.Sprintf("no files found for table %s with pattern %s", e.Table, e.Pattern)
}

func asNoFiles(err error, target **NoFilesFoundError) bool {
	return errors.As(err, target)
}
